// Package warehouse is the CRM data warehouse access layer: HCP account
// lookups and call record persistence over Postgres.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no HCP matches a lookup.
var ErrNotFound = errors.New("warehouse: not found")

// HCP is one healthcare professional account row.
type HCP struct {
	HCPID   string
	Name    string
	HCOID   string
	HCOName string
}

// CallRecord is one saved call report.
type CallRecord struct {
	SessionID       string
	HCPID           string
	HCPName         string
	CallDate        string
	CallTime        string
	Product         string
	DiscussionTopic string
	CallNotes       string
	AdverseEvent    bool
	Noncompliance   bool
}

// Store wraps the warehouse connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the warehouse and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse dsn: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks warehouse liveness.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FetchHCPByName resolves an HCP account by case-insensitive name
// match, preferring exact matches over partial ones.
func (s *Store) FetchHCPByName(ctx context.Context, name string) (*HCP, error) {
	const q = `
		SELECT h.hcp_id, h.full_name, COALESCE(o.hco_id, ''), COALESCE(o.name, '')
		FROM hcp h
		LEFT JOIN hco o ON o.hco_id = h.hco_id
		WHERE h.full_name ILIKE $1 OR h.full_name ILIKE $2
		ORDER BY (lower(h.full_name) = lower($3)) DESC
		LIMIT 1`

	var out HCP
	err := s.pool.QueryRow(ctx, q, name, "%"+name+"%", name).
		Scan(&out.HCPID, &out.Name, &out.HCOID, &out.HCOName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch hcp by name: %w", err)
	}
	return &out, nil
}

// InsertCall persists one call record and returns the generated key.
func (s *Store) InsertCall(ctx context.Context, rec CallRecord) (int64, error) {
	const q = `
		INSERT INTO calls (
			session_id, hcp_id, hcp_name, call_date, call_time, product,
			discussion_topic, call_notes, adverse_event, noncompliance_event
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING call_pk`

	var pk int64
	err := s.pool.QueryRow(ctx, q,
		rec.SessionID, rec.HCPID, rec.HCPName, rec.CallDate, rec.CallTime,
		rec.Product, rec.DiscussionTopic, rec.CallNotes, rec.AdverseEvent, rec.Noncompliance,
	).Scan(&pk)
	if err != nil {
		return 0, fmt.Errorf("insert call: %w", err)
	}
	return pk, nil
}
