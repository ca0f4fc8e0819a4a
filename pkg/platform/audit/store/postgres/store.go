// Package postgres persists the audit chain in PostgreSQL. The primary-key
// constraint on block_number makes Append conditional: a duplicate block is a
// unique violation, surfaced as sentinel.ErrConflict.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"medledger/internal/signing"
	audit "medledger/pkg/platform/audit"
	"medledger/pkg/platform/sentinel"
)

// Schema documents the expected table; migrations live with deployment.
//
//	CREATE TABLE audit_entries (
//	    block_number BIGINT PRIMARY KEY,
//	    entry_id     UUID NOT NULL UNIQUE,
//	    event_type   TEXT NOT NULL,
//	    user_id      TEXT NOT NULL,
//	    resource_id  TEXT,
//	    ts           TIMESTAMPTZ NOT NULL,
//	    details_kind TEXT NOT NULL,
//	    details      JSONB NOT NULL,
//	    prev_hash    TEXT NOT NULL,
//	    hash         TEXT NOT NULL,
//	    signature    BYTEA NOT NULL,
//	    signer_key   TEXT NOT NULL,
//	    tx_id        TEXT
//	);

// Store implements audit.Store over PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	detailsRaw, kind, err := audit.MarshalDetailsFor(entry)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	const query = `
		INSERT INTO audit_entries (
			block_number, entry_id, event_type, user_id, resource_id,
			ts, details_kind, details, prev_hash, hash, signature, signer_key, tx_id
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''))
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.BlockNumber,
		entry.EntryID,
		string(entry.EventType),
		entry.UserID,
		entry.ResourceID,
		entry.Timestamp,
		kind,
		detailsRaw,
		entry.PrevHash,
		entry.Hash,
		entry.Signature,
		string(entry.SignerKey),
		entry.TxID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) Last(ctx context.Context) (*audit.Entry, error) {
	const query = selectColumns + ` ORDER BY block_number DESC LIMIT 1`
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return entry, err
}

func (s *Store) Range(ctx context.Context, fromBlock, toBlock uint64) ([]*audit.Entry, error) {
	if fromBlock == 0 {
		fromBlock = 1
	}
	query := selectColumns + ` WHERE block_number >= $1`
	args := []any{fromBlock}
	if toBlock != 0 {
		query += ` AND block_number <= $2`
		args = append(args, toBlock)
	}
	query += ` ORDER BY block_number ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit range: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan audit range: %w", err)
	}
	if len(entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return entries, nil
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

const selectColumns = `
	SELECT block_number, entry_id, event_type, user_id, COALESCE(resource_id, ''),
	       ts, details_kind, details, prev_hash, hash, signature, signer_key,
	       COALESCE(tx_id, '')
	FROM audit_entries`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*audit.Entry, error) {
	var (
		entry       audit.Entry
		eventType   string
		detailsKind string
		detailsRaw  []byte
		signerKey   string
	)
	err := row.Scan(
		&entry.BlockNumber,
		&entry.EntryID,
		&eventType,
		&entry.UserID,
		&entry.ResourceID,
		&entry.Timestamp,
		&detailsKind,
		&detailsRaw,
		&entry.PrevHash,
		&entry.Hash,
		&entry.Signature,
		&signerKey,
		&entry.TxID,
	)
	if err != nil {
		return nil, err
	}
	entry.EventType = audit.EventType(eventType)
	entry.SignerKey = signing.KeyRef(signerKey)
	details, err := audit.UnmarshalDetails(detailsKind, json.RawMessage(detailsRaw))
	if err != nil {
		return nil, fmt.Errorf("decode audit details: %w", err)
	}
	entry.Details = details
	return &entry, nil
}
