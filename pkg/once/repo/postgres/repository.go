package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/once/pkg/once"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements once.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return once.ErrEntryExists
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return once.ErrEntryNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) CreateEntry(ctx context.Context, entry *once.Entry) error {
	query := `
		INSERT INTO once_entries (id, object_name, state, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query, entry.ID, entry.ObjectName, string(entry.State), entry.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create entry", err)
	}
	return nil
}

func (r *Repository) GetEntry(ctx context.Context, id string) (*once.Entry, error) {
	query := `
		SELECT id, object_name, state, created_at, served_at
		FROM once_entries
		WHERE id = $1`

	entry, err := scanEntry(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.handlePostgresError("get entry", err)
	}
	return entry, nil
}

// MarkServed flips pending to served in a single conditional UPDATE, so
// only one concurrent caller sees a row affected.
func (r *Repository) MarkServed(ctx context.Context, id string, servedAt time.Time) error {
	query := `
		UPDATE once_entries
		SET state = 'served', served_at = $2
		WHERE id = $1 AND state = 'pending'`

	tag, err := r.db.Exec(ctx, query, id, servedAt)
	if err != nil {
		return r.handlePostgresError("mark served", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM once_entries WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return r.handlePostgresError("mark served", err)
	}
	if !exists {
		return once.ErrEntryNotFound
	}
	return once.ErrEntryAlreadyServed
}

func (r *Repository) ListEntriesByState(ctx context.Context, state once.EntryState) ([]*once.Entry, error) {
	query := `
		SELECT id, object_name, state, created_at, served_at
		FROM once_entries
		WHERE state = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, string(state))
	if err != nil {
		return nil, r.handlePostgresError("list entries", err)
	}
	defer rows.Close()

	var entries []*once.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list entries", err)
	}
	return entries, nil
}

func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM once_entries WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete entry", err)
	}
	if tag.RowsAffected() == 0 {
		return once.ErrEntryNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (*once.Entry, error) {
	var (
		entry    once.Entry
		state    string
		servedAt *time.Time
	)
	if err := row.Scan(&entry.ID, &entry.ObjectName, &state, &entry.CreatedAt, &servedAt); err != nil {
		return nil, err
	}
	entry.State = once.EntryState(state)
	entry.ServedAt = servedAt
	return &entry, nil
}
