// Package memstore is an in-memory implementation of store.Store used for
// tests and single-process deployments. It enforces the same uniqueness keys
// as the Postgres schema. A transaction holds the store lock for its whole
// duration and restores a snapshot when it fails.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
	"github.com/tendant/workspace-authz/pkg/policy"
	"github.com/tendant/workspace-authz/pkg/store"
)

type memberKey struct {
	workspaceID uuid.UUID
	userID      uuid.UUID
}

type roomKey struct {
	workspaceID uuid.UUID
	userA       uuid.UUID
	userB       uuid.UUID
}

type state struct {
	users       map[uuid.UUID]domain.User
	workspaces  map[uuid.UUID]domain.Workspace
	memberships map[memberKey]domain.Membership
	invitations map[uuid.UUID]domain.Invitation
	tasks       map[uuid.UUID]domain.Task
	rooms       map[roomKey]domain.DirectRoom
	profiles    map[uuid.UUID]domain.BusinessProfile
	audit       []domain.AuditRecord
}

func newState() *state {
	return &state{
		users:       make(map[uuid.UUID]domain.User),
		workspaces:  make(map[uuid.UUID]domain.Workspace),
		memberships: make(map[memberKey]domain.Membership),
		invitations: make(map[uuid.UUID]domain.Invitation),
		tasks:       make(map[uuid.UUID]domain.Task),
		rooms:       make(map[roomKey]domain.DirectRoom),
		profiles:    make(map[uuid.UUID]domain.BusinessProfile),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.workspaces {
		c.workspaces[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	c.audit = append([]domain.AuditRecord(nil), s.audit...)
	return c
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.Mutex
	st *state
	*view
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	s := &Store{st: newState()}
	s.view = &view{s: s}
	return s
}

// WithTx runs fn with exclusive access to the store. Changes made by fn are
// discarded when it returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Stores) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()

	return fn(&view{s: s, inTx: true})
}

// view binds the sub-stores either to the root (locking per call) or to a
// running transaction (lock already held).
type view struct {
	s    *Store
	inTx bool
}

func (v *view) do(fn func(st *state) error) error {
	if !v.inTx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.s.st)
}

func (v *view) Facts() policy.FactSource         { return facts{v} }
func (v *view) Workspaces() store.WorkspaceStore   { return workspaces{v} }
func (v *view) Memberships() store.MembershipStore { return memberships{v} }
func (v *view) Invitations() store.InvitationStore { return invitations{v} }
func (v *view) Users() store.UserStore             { return users{v} }
func (v *view) Tasks() store.TaskStore             { return tasks{v} }
func (v *view) Rooms() store.RoomStore             { return rooms{v} }
func (v *view) Profiles() store.ProfileStore       { return profiles{v} }
func (v *view) Audit() store.AuditStore            { return audit{v} }

// facts reads the workspace and membership maps directly.
type facts struct{ *view }

func (f facts) WorkspaceFacts(ctx context.Context, workspaceID, userID uuid.UUID) (policy.Facts, error) {
	var out policy.Facts
	err := f.do(func(st *state) error {
		w, ok := st.workspaces[workspaceID]
		if !ok {
			return domain.ErrNotFound
		}
		out = policy.Facts{WorkspaceID: workspaceID, OwnerID: w.OwnerID, UserID: userID}
		if m, ok := st.memberships[memberKey{workspaceID, userID}]; ok {
			out.Role = m.Role
		}
		return nil
	})
	return out, err
}

func (f facts) OwnsAnyWorkspace(ctx context.Context, userID uuid.UUID) (bool, error) {
	var owns bool
	err := f.do(func(st *state) error {
		for _, w := range st.workspaces {
			if w.OwnerID == userID {
				owns = true
				return nil
			}
		}
		return nil
	})
	return owns, err
}

type workspaces struct{ *view }

func (r workspaces) Create(ctx context.Context, w *domain.Workspace) error {
	return r.do(func(st *state) error {
		if _, ok := st.workspaces[w.ID]; ok {
			return domain.ErrRaceLost
		}
		st.workspaces[w.ID] = *w
		return nil
	})
}

func (r workspaces) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workspace, error) {
	var out *domain.Workspace
	err := r.do(func(st *state) error {
		w, ok := st.workspaces[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r workspaces) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Workspace, error) {
	var out []*domain.Workspace
	err := r.do(func(st *state) error {
		for id, w := range st.workspaces {
			_, member := st.memberships[memberKey{id, userID}]
			if w.OwnerID == userID || member {
				w := w
				out = append(out, &w)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (r workspaces) UpdateSubscription(ctx context.Context, s domain.Subscription) error {
	return r.do(func(st *state) error {
		w, ok := st.workspaces[s.WorkspaceID]
		if !ok {
			return domain.ErrNotFound
		}
		w.Plan = s.Plan
		w.Seats = s.Seats
		w.UpdatedAt = time.Now().UTC()
		st.workspaces[w.ID] = w
		return nil
	})
}

func (r workspaces) Delete(ctx context.Context, id uuid.UUID) error {
	return r.do(func(st *state) error {
		if _, ok := st.workspaces[id]; !ok {
			return domain.ErrNotFound
		}
		delete(st.workspaces, id)
		for k := range st.memberships {
			if k.workspaceID == id {
				delete(st.memberships, k)
			}
		}
		for k, inv := range st.invitations {
			if inv.WorkspaceID == id {
				delete(st.invitations, k)
			}
		}
		for k, t := range st.tasks {
			if t.WorkspaceID == id {
				delete(st.tasks, k)
			}
		}
		for k := range st.rooms {
			if k.workspaceID == id {
				delete(st.rooms, k)
			}
		}
		delete(st.profiles, id)
		return nil
	})
}

type memberships struct{ *view }

func (r memberships) Create(ctx context.Context, m *domain.Membership) error {
	return r.do(func(st *state) error {
		if _, ok := st.workspaces[m.WorkspaceID]; !ok {
			return domain.ErrNotFound
		}
		key := memberKey{m.WorkspaceID, m.UserID}
		if _, ok := st.memberships[key]; ok {
			return domain.ErrRaceLost
		}
		st.memberships[key] = *m
		return nil
	})
}

func (r memberships) Get(ctx context.Context, workspaceID, userID uuid.UUID) (*domain.Membership, error) {
	var out *domain.Membership
	err := r.do(func(st *state) error {
		m, ok := st.memberships[memberKey{workspaceID, userID}]
		if !ok {
			return domain.ErrNotFound
		}
		out = &m
		return nil
	})
	return out, err
}

func (r memberships) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Membership, error) {
	var out []*domain.Membership
	err := r.do(func(st *state) error {
		for k, m := range st.memberships {
			if k.workspaceID == workspaceID {
				m := m
				out = append(out, &m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, err
}

func (r memberships) Count(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	var n int
	err := r.do(func(st *state) error {
		for k := range st.memberships {
			if k.workspaceID == workspaceID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memberships) Delete(ctx context.Context, workspaceID, userID uuid.UUID) error {
	return r.do(func(st *state) error {
		key := memberKey{workspaceID, userID}
		if _, ok := st.memberships[key]; !ok {
			return domain.ErrNotFound
		}
		delete(st.memberships, key)
		return nil
	})
}

type invitations struct{ *view }

func (r invitations) Create(ctx context.Context, inv *domain.Invitation) error {
	return r.do(func(st *state) error {
		if _, ok := st.workspaces[inv.WorkspaceID]; !ok {
			return domain.ErrNotFound
		}
		for _, other := range st.invitations {
			if other.ID == inv.ID || other.TokenHash == inv.TokenHash {
				return domain.ErrRaceLost
			}
			if inv.Status == domain.InvitationStatusPending &&
				other.Status == domain.InvitationStatusPending &&
				other.WorkspaceID == inv.WorkspaceID &&
				strings.EqualFold(other.Email, inv.Email) {
				return domain.ErrRaceLost
			}
		}
		st.invitations[inv.ID] = *inv
		return nil
	})
}

func (r invitations) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error) {
	var out *domain.Invitation
	err := r.do(func(st *state) error {
		inv, ok := st.invitations[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &inv
		return nil
	})
	return out, err
}

func (r invitations) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	var out *domain.Invitation
	err := r.do(func(st *state) error {
		for _, inv := range st.invitations {
			if inv.TokenHash == tokenHash {
				inv := inv
				out = &inv
				return nil
			}
		}
		return domain.ErrNotFound
	})
	return out, err
}

func (r invitations) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Invitation, error) {
	var out []*domain.Invitation
	err := r.do(func(st *state) error {
		for _, inv := range st.invitations {
			if inv.WorkspaceID == workspaceID {
				inv := inv
				out = append(out, &inv)
			}
		}
		return nil
	})
	sortInvitations(out)
	return out, err
}

func (r invitations) CountPendingForEmail(ctx context.Context, email string, now time.Time) (int, error) {
	var n int
	err := r.do(func(st *state) error {
		for _, inv := range st.invitations {
			if inv.Status == domain.InvitationStatusPending &&
				strings.EqualFold(inv.Email, email) &&
				!now.After(inv.ExpiresAt) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r invitations) ExpirePending(ctx context.Context, workspaceID uuid.UUID, email string, now time.Time) ([]*domain.Invitation, error) {
	return r.expire(func(inv domain.Invitation) bool {
		return inv.WorkspaceID == workspaceID && strings.EqualFold(inv.Email, email)
	}, now)
}

func (r invitations) ExpireStale(ctx context.Context, now time.Time) ([]*domain.Invitation, error) {
	return r.expire(func(domain.Invitation) bool { return true }, now)
}

func (r invitations) expire(match func(domain.Invitation) bool, now time.Time) ([]*domain.Invitation, error) {
	var out []*domain.Invitation
	err := r.do(func(st *state) error {
		for id, inv := range st.invitations {
			if inv.Status != domain.InvitationStatusPending || !now.After(inv.ExpiresAt) || !match(inv) {
				continue
			}
			before := inv
			out = append(out, &before)
			inv.Status = domain.InvitationStatusExpired
			st.invitations[id] = inv
		}
		return nil
	})
	sortInvitations(out)
	return out, err
}

func (r invitations) Transition(ctx context.Context, inv *domain.Invitation, from domain.InvitationStatus) error {
	return r.do(func(st *state) error {
		cur, ok := st.invitations[inv.ID]
		if !ok {
			return domain.ErrNotFound
		}
		if cur.Status != from {
			return domain.ErrRaceLost
		}
		cur.Status = inv.Status
		cur.AcceptedAt = inv.AcceptedAt
		cur.AcceptedBy = inv.AcceptedBy
		st.invitations[inv.ID] = cur
		return nil
	})
}

func sortInvitations(out []*domain.Invitation) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}

type users struct{ *view }

func (r users) Create(ctx context.Context, u *domain.User) error {
	return r.do(func(st *state) error {
		if _, ok := st.users[u.ID]; ok {
			return domain.ErrRaceLost
		}
		st.users[u.ID] = *u
		return nil
	})
}

func (r users) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var out *domain.User
	err := r.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

type tasks struct{ *view }

func (r tasks) Create(ctx context.Context, t *domain.Task) error {
	return r.do(func(st *state) error {
		if _, ok := st.workspaces[t.WorkspaceID]; !ok {
			return domain.ErrNotFound
		}
		if _, ok := st.tasks[t.ID]; ok {
			return domain.ErrRaceLost
		}
		st.tasks[t.ID] = *t
		return nil
	})
}

func (r tasks) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var out *domain.Task
	err := r.do(func(st *state) error {
		t, ok := st.tasks[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r tasks) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Task, error) {
	var out []*domain.Task
	err := r.do(func(st *state) error {
		for _, t := range st.tasks {
			if t.WorkspaceID == workspaceID {
				t := t
				out = append(out, &t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (r tasks) Update(ctx context.Context, t *domain.Task) error {
	return r.do(func(st *state) error {
		cur, ok := st.tasks[t.ID]
		if !ok {
			return domain.ErrNotFound
		}
		cur.Title = t.Title
		cur.Description = t.Description
		cur.Status = t.Status
		cur.AssigneeID = t.AssigneeID
		cur.UpdatedAt = t.UpdatedAt
		st.tasks[t.ID] = cur
		return nil
	})
}

func (r tasks) Delete(ctx context.Context, id uuid.UUID) error {
	return r.do(func(st *state) error {
		if _, ok := st.tasks[id]; !ok {
			return domain.ErrNotFound
		}
		delete(st.tasks, id)
		return nil
	})
}

type rooms struct{ *view }

func (r rooms) Create(ctx context.Context, room *domain.DirectRoom) error {
	return r.do(func(st *state) error {
		if _, ok := st.workspaces[room.WorkspaceID]; !ok {
			return domain.ErrNotFound
		}
		key := roomKey{room.WorkspaceID, room.UserA, room.UserB}
		if _, ok := st.rooms[key]; ok {
			return domain.ErrRaceLost
		}
		st.rooms[key] = *room
		return nil
	})
}

func (r rooms) GetByPair(ctx context.Context, workspaceID, userA, userB uuid.UUID) (*domain.DirectRoom, error) {
	var out *domain.DirectRoom
	err := r.do(func(st *state) error {
		room, ok := st.rooms[roomKey{workspaceID, userA, userB}]
		if !ok {
			return domain.ErrNotFound
		}
		out = &room
		return nil
	})
	return out, err
}

type profiles struct{ *view }

func (r profiles) Get(ctx context.Context, workspaceID uuid.UUID) (*domain.BusinessProfile, error) {
	var out *domain.BusinessProfile
	err := r.do(func(st *state) error {
		p, ok := st.profiles[workspaceID]
		if !ok {
			return domain.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r profiles) Upsert(ctx context.Context, p *domain.BusinessProfile) error {
	return r.do(func(st *state) error {
		if _, ok := st.workspaces[p.WorkspaceID]; !ok {
			return domain.ErrNotFound
		}
		st.profiles[p.WorkspaceID] = *p
		return nil
	})
}

type audit struct{ *view }

func (r audit) Append(ctx context.Context, rec *domain.AuditRecord) error {
	return r.do(func(st *state) error {
		st.audit = append(st.audit, *rec)
		return nil
	})
}

func (r audit) List(ctx context.Context, filter store.AuditFilter) ([]*domain.AuditRecord, error) {
	var out []*domain.AuditRecord
	err := r.do(func(st *state) error {
		for i := len(st.audit) - 1; i >= 0; i-- {
			rec := st.audit[i]
			if !filter.Before.IsZero() && !rec.At.Before(filter.Before) {
				continue
			}
			if filter.WorkspaceID != nil && (rec.WorkspaceID == nil || *rec.WorkspaceID != *filter.WorkspaceID) {
				continue
			}
			if filter.Entity != "" && rec.Entity != filter.Entity {
				continue
			}
			if filter.EntityID != "" && rec.EntityID != filter.EntityID {
				continue
			}
			out = append(out, &rec)
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}
