package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tendant/workspace-authz/pkg/domain"
)

func TestGetOrCreateDirectRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, a, b, outsider := principal("o@example.com"), principal("a@example.com"), principal("b@example.com"), principal("x@example.com")
	w := f.workspace(t, owner)
	f.join(t, owner, w, a, b)

	room, created, err := f.rooms.GetOrCreateDirectRoom(ctx, a, w.ID, b.UserID)
	if err != nil {
		t.Fatalf("GetOrCreateDirectRoom() error = %v", err)
	}
	if !created {
		t.Error("created = false on first call")
	}
	lo, hi := domain.CanonicalPair(a.UserID, b.UserID)
	if room.UserA != lo || room.UserB != hi {
		t.Errorf("room pair = (%v, %v), want canonical order", room.UserA, room.UserB)
	}

	again, created, err := f.rooms.GetOrCreateDirectRoom(ctx, b, w.ID, a.UserID)
	if err != nil {
		t.Fatalf("reverse GetOrCreateDirectRoom() error = %v", err)
	}
	if created || again.ID != room.ID {
		t.Errorf("reverse call returned %v (created=%v), want %v", again.ID, created, room.ID)
	}

	tests := []struct {
		name    string
		p       domain.Principal
		peer    domain.Principal
		wantErr error
	}{
		{"self", a, a, domain.ErrInvalidInput},
		{"peer not a member", a, outsider, domain.ErrInvalidInput},
		{"caller not a member", outsider, a, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.rooms.GetOrCreateDirectRoom(ctx, tt.p, w.ID, tt.peer.UserID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetOrCreateDirectRoom() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetOrCreateDirectRoom_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, a, b := principal("o@example.com"), principal("a@example.com"), principal("b@example.com")
	w := f.workspace(t, owner)
	f.join(t, owner, w, a, b)

	const n = 10
	var wg sync.WaitGroup
	rooms := make([]*domain.DirectRoom, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller, peer := a, b
			if i%2 == 1 {
				caller, peer = b, a
			}
			r, _, err := f.rooms.GetOrCreateDirectRoom(ctx, caller, w.ID, peer.UserID)
			if err != nil {
				t.Errorf("GetOrCreateDirectRoom() error = %v", err)
				return
			}
			rooms[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range rooms {
		if r != nil && r.ID != rooms[0].ID {
			t.Errorf("got rooms %v and %v, want one", rooms[0].ID, r.ID)
		}
	}
}
