package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/tendant/workspace-authz/pkg/policy"
	"github.com/tendant/workspace-authz/pkg/store"
)

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// NewDB opens and pings a Postgres connection pool.
func NewDB(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories provides access to every repository bound to one Querier,
// which may be the pool or a transaction.
type Repositories struct {
	q Querier
}

// NewRepositories binds the repositories to q.
func NewRepositories(q Querier) *Repositories {
	return &Repositories{q: q}
}

func (r *Repositories) Facts() policy.FactSource         { return NewFactsRepository(r.q) }
func (r *Repositories) Workspaces() store.WorkspaceStore   { return NewWorkspacesRepository(r.q) }
func (r *Repositories) Memberships() store.MembershipStore { return NewMembershipsRepository(r.q) }
func (r *Repositories) Invitations() store.InvitationStore { return NewInvitationsRepository(r.q) }
func (r *Repositories) Users() store.UserStore             { return NewUsersRepository(r.q) }
func (r *Repositories) Tasks() store.TaskStore             { return NewTasksRepository(r.q) }
func (r *Repositories) Rooms() store.RoomStore             { return NewRoomsRepository(r.q) }
func (r *Repositories) Profiles() store.ProfileStore       { return NewProfilesRepository(r.q) }
func (r *Repositories) Audit() store.AuditStore            { return NewAuditRepository(r.q) }

// Store is the Postgres-backed store.Store.
type Store struct {
	*Repositories
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an open pool.
func NewStore(db *sql.DB) *Store {
	return &Store{Repositories: NewRepositories(db), db: db}
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx executes fn within a database transaction. If fn returns an error
// the transaction is rolled back; otherwise it is committed.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Stores) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	// no-op once committed
	defer tx.Rollback() //nolint:errcheck

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", translateError(err))
	}
	return nil
}

// RequiredTables lists the tables created by migrations/001_init.sql.
var RequiredTables = []string{
	"users", "workspaces", "memberships", "invitations",
	"tasks", "direct_rooms", "business_profiles", "audit_log",
}

// ValidateSchema checks that every required table exists.
func ValidateSchema(ctx context.Context, db *sql.DB) error {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	for _, table := range RequiredTables {
		var name string
		err := db.QueryRowContext(ctx, query, table).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("missing table '%s' - run migrations first (see migrations/ folder)", table)
		}
		if err != nil {
			return fmt.Errorf("failed to check schema: %w", err)
		}
	}

	return nil
}
