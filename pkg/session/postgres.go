package session

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresMigrations holds the goose migrations for the Postgres store
// schema. Apply them with postgres.Migrate before first use.
var PostgresMigrations = func() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}()

// PostgresStore persists session records relationally: one row per session,
// one row per attribute, and a principal index table. It has no native TTL;
// pair it with a Sweeper.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed store. The pool's lifecycle is
// owned by the caller; Close on the store never closes it.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*Record, error) {
	rec := &Record{ID: id, Attributes: make(map[string][]byte)}

	var maxInactiveSeconds int64
	err := s.pool.QueryRow(ctx,
		`SELECT created_at, last_accessed_at, max_inactive_seconds FROM sessions WHERE id = $1`,
		id,
	).Scan(&rec.CreationTime, &rec.LastAccessedTime, &maxInactiveSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	rec.MaxInactiveInterval = time.Duration(maxInactiveSeconds) * time.Second

	rows, err := s.pool.Query(ctx,
		`SELECT name, value FROM session_attributes WHERE session_id = $1`, id)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name  string
			value []byte
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		rec.Attributes[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record, _ time.Duration) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, created_at, last_accessed_at, max_inactive_seconds)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET
			     created_at = EXCLUDED.created_at,
			     last_accessed_at = EXCLUDED.last_accessed_at,
			     max_inactive_seconds = EXCLUDED.max_inactive_seconds`,
			rec.ID, rec.CreationTime, rec.LastAccessedTime,
			int64(rec.MaxInactiveInterval/time.Second),
		)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM session_attributes WHERE session_id = $1`, rec.ID); err != nil {
			return err
		}
		for name, value := range rec.Attributes {
			if _, err := tx.Exec(ctx,
				`INSERT INTO session_attributes (session_id, name, value) VALUES ($1, $2, $3)`,
				rec.ID, name, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) Update(ctx context.Context, rec *Record, delta *Delta, _ time.Duration) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if delta.LastAccessedChanged() || delta.IntervalChanged() {
			_, err := tx.Exec(ctx,
				`UPDATE sessions SET last_accessed_at = $2, max_inactive_seconds = $3 WHERE id = $1`,
				rec.ID, rec.LastAccessedTime, int64(rec.MaxInactiveInterval/time.Second))
			if err != nil {
				return err
			}
		}

		for name, change := range delta.Attrs() {
			if change.Removed {
				if _, err := tx.Exec(ctx,
					`DELETE FROM session_attributes WHERE session_id = $1 AND name = $2`,
					rec.ID, name); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO session_attributes (session_id, name, value) VALUES ($1, $2, $3)
				 ON CONFLICT (session_id, name) DO UPDATE SET value = EXCLUDED.value`,
				rec.ID, name, change.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) Rename(ctx context.Context, oldID, newID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET id = $2 WHERE id = $1`, oldID, newID)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) IndexAdd(ctx context.Context, principal, id string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_principals (principal, session_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		principal, id)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) IndexRemove(ctx context.Context, principal, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM session_principals WHERE principal = $1 AND session_id = $2`,
		principal, id)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) IndexMembers(ctx context.Context, principal string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id FROM session_principals WHERE principal = $1`, principal)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (s *PostgresStore) ExpiredIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM sessions
		 WHERE max_inactive_seconds >= 0
		   AND last_accessed_at + make_interval(secs => max_inactive_seconds) <= $1`,
		cutoff)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (s *PostgresStore) SupportsNativeTTL() bool { return false }

// Close is a no-op: the connection pool is owned and closed by the caller.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
