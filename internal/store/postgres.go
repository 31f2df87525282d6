package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresCollection stores each document as a jsonb blob keyed by id.
// Dial/ping-with-timeout is grounded on databases/factory.go's newPgPool.
type postgresCollection struct {
	pool  *pgxpool.Pool
	table string
}

func newPostgresCollection(ctx context.Context, dsn, collection string) (Collection, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: DATABASE_DSN required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	table := "mem_" + collection
	if _, err := pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id   TEXT PRIMARY KEY,
			doc  JSONB NOT NULL
		)`, table)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: create table: %w", err)
	}
	return &postgresCollection{pool: pool, table: table}, nil
}

func (c *postgresCollection) Create(ctx context.Context, doc Document) (Document, error) {
	id := doc.ID()
	if id == "" {
		return nil, fmt.Errorf("postgres store: document missing id")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("postgres store: encode: %w", err)
	}
	_, err = c.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, c.table), id, b)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("postgres store: insert: %w", err)
	}
	return copyDocument(doc), nil
}

func (c *postgresCollection) Read(ctx context.Context, id string) (Document, bool, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, c.table), id).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres store: read: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("postgres store: decode: %w", err)
	}
	return doc, true, nil
}

func (c *postgresCollection) Update(ctx context.Context, id string, partial Document) (Document, bool, error) {
	existing, ok, err := c.Read(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	merged := mergeDocument(existing, partial)
	b, err := json.Marshal(merged)
	if err != nil {
		return nil, false, fmt.Errorf("postgres store: encode: %w", err)
	}
	_, err = c.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET doc = $2 WHERE id = $1`, c.table), id, b)
	if err != nil {
		return nil, false, fmt.Errorf("postgres store: update: %w", err)
	}
	return merged, true, nil
}

func (c *postgresCollection) Replace(ctx context.Context, id string, doc Document) (Document, bool, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("postgres store: encode: %w", err)
	}
	tag, err := c.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET doc = $2 WHERE id = $1`, c.table), id, b)
	if err != nil {
		return nil, false, fmt.Errorf("postgres store: replace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, false, nil
	}
	return copyDocument(doc), true, nil
}

func (c *postgresCollection) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := c.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, c.table), id)
	if err != nil {
		return false, fmt.Errorf("postgres store: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (c *postgresCollection) Scan(ctx context.Context) ([]Document, error) {
	rows, err := c.pool.Query(ctx, fmt.Sprintf(`SELECT doc FROM %s`, c.table))
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan: %w", err)
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres store: scan row: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("postgres store: decode row: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: rows: %w", err)
	}
	return out, nil
}

func (c *postgresCollection) Close() error {
	c.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
