/*
Package pgstore is the Postgres-backed persistence mlsharness uses for
key packages and authorized external PSK ids. Connection setup and
error-wrapping style are carried over from internal/db.NewDB; query
shape (QueryRowContext/ExecContext with numbered placeholders, wrapped
errors) from internal/messaging.Service. Neither package's domain
objects (conversations, messages) survive here — mlsharness stores
opaque key-package bytes, not chat content, and builds no wire codec to
interpret them (the group-security core's decode path is out of
scope); rows are addressed by caller-supplied ids and returned as
opaque blobs.
*/
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection, the same pool
// sizing and ping-on-startup internal/db.NewDB used.
func Open(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the tables mlsharness needs if they do not already
// exist. A thin demonstrator has no migration history to track, unlike
// internal/db.RunMigrations's versioned file runner; schema changes
// here are additive CREATE TABLE IF NOT EXISTS statements only.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS key_packages (
			id BYTEA PRIMARY KEY,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS authorized_psk_ids (
			psk_id BYTEA PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

// KeyPackageStore persists the opaque bytes of a joiner's key package,
// addressed by a caller-chosen id (its hash, in a real deployment).
type KeyPackageStore struct {
	db *sql.DB
}

// NewKeyPackageStore wraps db for key-package storage.
func NewKeyPackageStore(db *sql.DB) *KeyPackageStore { return &KeyPackageStore{db: db} }

// Put stores data under id, replacing any previous value.
func (s *KeyPackageStore) Put(ctx context.Context, id, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO key_packages (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		id, data)
	if err != nil {
		return fmt.Errorf("store key package: %w", err)
	}
	return nil
}

// Get returns the bytes stored under id, and whether anything was
// found.
func (s *KeyPackageStore) Get(ctx context.Context, id []byte) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM key_packages WHERE id = $1`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch key package: %w", err)
	}
	return data, true, nil
}

// PskStore is a Postgres-backed identity.ExternalPskIdValidator: a PSK
// id is authorized iff it has been registered via Put.
type PskStore struct {
	db *sql.DB
}

// NewPskStore wraps db for external-PSK-id authorization.
func NewPskStore(db *sql.DB) *PskStore { return &PskStore{db: db} }

// Put registers pskID as authorized.
func (s *PskStore) Put(ctx context.Context, pskID []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO authorized_psk_ids (psk_id) VALUES ($1) ON CONFLICT DO NOTHING`, pskID)
	if err != nil {
		return fmt.Errorf("authorize psk id: %w", err)
	}
	return nil
}

// Validate implements identity.ExternalPskIdValidator.
func (s *PskStore) Validate(ctx context.Context, pskID []byte) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM authorized_psk_ids WHERE psk_id = $1)`, pskID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check psk id authorization: %w", err)
	}
	if !exists {
		return fmt.Errorf("external psk id %x is not authorized", pskID)
	}
	return nil
}
