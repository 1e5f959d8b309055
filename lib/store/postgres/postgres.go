// Package postgres implements the store interface for PostgreSQL. Each table is a SQL table with a text primary key
// and a jsonb document, created on first use.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"github.com/tarancss/mcw/lib/store"
)

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db      *sql.DB
	mu      sync.Mutex
	created map[string]bool
}

// New returns a postgres client connection to the specified database in 'connection'.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	return &Postgres{db: db, created: make(map[string]bool)}, nil
}

// Close will close any database connection. Must be called at termination time.
func (p *Postgres) Close(context.Context) error {
	return p.db.Close()
}

// Table implements store.DB.
func (p *Postgres) Table(name string) store.Table {
	return &table{p: p, name: name, ident: pq.QuoteIdentifier(name)}
}

func (p *Postgres) ensure(ctx context.Context, t *table) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.created[t.name] {
		return nil
	}
	q := `CREATE TABLE IF NOT EXISTS ` + t.ident + ` (key TEXT PRIMARY KEY, data JSONB NOT NULL)`
	if _, err := p.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("postgres: creating table %s: %w", t.name, err)
	}
	p.created[t.name] = true
	return nil
}

type table struct {
	p     *Postgres
	name  string
	ident string
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (t *table) Get(ctx context.Context, k store.Key) (store.Record, error) {
	if err := t.p.ensure(ctx, t); err != nil {
		return nil, err
	}
	var b []byte
	err := t.p.db.QueryRowContext(ctx, `SELECT data FROM `+t.ident+` WHERE key = $1`, k.String()).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", k, err)
	}
	var r store.Record
	if err = json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("postgres: decoding %s: %w", k, err)
	}
	return r, nil
}

func (t *table) GetAll(ctx context.Context) ([]store.Record, error) {
	if err := t.p.ensure(ctx, t); err != nil {
		return nil, err
	}
	rows, err := t.p.db.QueryContext(ctx, `SELECT data FROM `+t.ident+` ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("postgres: select %s: %w", t.name, err)
	}
	defer rows.Close()

	var all []store.Record
	for rows.Next() {
		var b []byte
		if err = rows.Scan(&b); err != nil {
			return nil, err
		}
		var r store.Record
		if err = json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("postgres: decoding: %w", err)
		}
		all = append(all, r)
	}
	return all, rows.Err()
}

func (t *table) put(ctx context.Context, ex execer, k store.Key, r store.Record) error {
	if k.IsZero() {
		return store.ErrEmptyKey
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: encoding %s: %w", k, err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO `+t.ident+` (key, data) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data`, k.String(), string(b))
	return err
}

func (t *table) update(ctx context.Context, ex execer, k store.Key, r store.Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: encoding %s: %w", k, err)
	}
	res, err := ex.ExecContext(ctx, `UPDATE `+t.ident+` SET data = data || $2::jsonb WHERE key = $1`,
		k.String(), string(b))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrDataNotFound
	}
	return nil
}

func (t *table) Put(ctx context.Context, k store.Key, r store.Record) error {
	if err := t.p.ensure(ctx, t); err != nil {
		return err
	}
	return t.put(ctx, t.p.db, k, r)
}

func (t *table) Update(ctx context.Context, k store.Key, r store.Record) error {
	if err := t.p.ensure(ctx, t); err != nil {
		return err
	}
	return t.update(ctx, t.p.db, k, r)
}

func (t *table) Delete(ctx context.Context, k store.Key) error {
	if err := t.p.ensure(ctx, t); err != nil {
		return err
	}
	_, err := t.p.db.ExecContext(ctx, `DELETE FROM `+t.ident+` WHERE key = $1`, k.String())
	return err
}

// batch runs fn inside a transaction.
func (t *table) batch(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := t.p.ensure(ctx, t); err != nil {
		return err
	}
	tx, err := t.p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (t *table) BatchPut(ctx context.Context, entries []store.Entry) error {
	return t.batch(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			if err := t.put(ctx, tx, e.Key, e.Record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *table) BatchDelete(ctx context.Context, keys []store.Key) error {
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.String()
	}
	if err := t.p.ensure(ctx, t); err != nil {
		return err
	}
	_, err := t.p.db.ExecContext(ctx, `DELETE FROM `+t.ident+` WHERE key = ANY($1)`, pq.Array(ids))
	return err
}

func (t *table) BatchUpdate(ctx context.Context, entries []store.Entry) error {
	return t.batch(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			if err := t.update(ctx, tx, e.Key, e.Record); err != nil {
				return err
			}
		}
		return nil
	})
}
