package consent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// Schema documents the expected table; migrations live with deployment.
//
//	CREATE TABLE consent_tokens (
//	    token_id             UUID PRIMARY KEY,
//	    patient_id           TEXT NOT NULL,
//	    provider_id          TEXT NOT NULL,
//	    permissions          JSONB NOT NULL,
//	    expiration_time      TIMESTAMPTZ,
//	    is_active            BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at           TIMESTAMPTZ NOT NULL,
//	    revoked_at           TIMESTAMPTZ,
//	    patient_signature    BYTEA NOT NULL,
//	    revocation_signature BYTEA
//	);
//	CREATE INDEX consent_tokens_pair_idx ON consent_tokens (patient_id, provider_id, created_at);

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the same store runs standalone or inside a transaction boundary.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists consent tokens in PostgreSQL.
type PostgresStore struct {
	db querier
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: tx}
}

func (s *PostgresStore) Save(ctx context.Context, token *Token) error {
	perms, err := json.Marshal(token.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	const query = `
		INSERT INTO consent_tokens (
			token_id, patient_id, provider_id, permissions, expiration_time,
			is_active, created_at, patient_signature
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		token.TokenID.String(),
		token.PatientID.String(),
		token.ProviderID.String(),
		perms,
		nullTime(token.ExpirationTime),
		token.IsActive,
		token.CreatedAt,
		token.PatientSignature,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert consent token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tokenID domain.TokenID) (*Token, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE token_id = $1`, tokenID.String())
	token, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return token, err
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]*Token, error) {
	return s.list(ctx, selectColumns+` WHERE patient_id = $1 ORDER BY created_at ASC`, patientID.String())
}

func (s *PostgresStore) ListByProvider(ctx context.Context, providerID domain.ProviderID) ([]*Token, error) {
	return s.list(ctx, selectColumns+` WHERE provider_id = $1 ORDER BY created_at ASC`, providerID.String())
}

func (s *PostgresStore) ListByPair(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID) ([]*Token, error) {
	return s.list(ctx,
		selectColumns+` WHERE patient_id = $1 AND provider_id = $2 ORDER BY created_at ASC`,
		patientID.String(), providerID.String())
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, tokenID domain.TokenID, revokedAt time.Time, requesterSignature []byte) error {
	// The is_active predicate makes the flip conditional: a concurrent or
	// repeated revoke hits zero rows and is distinguished from NotFound below.
	const query = `
		UPDATE consent_tokens
		SET is_active = FALSE, revoked_at = $2, revocation_signature = $3
		WHERE token_id = $1 AND is_active = TRUE
	`
	res, err := s.db.ExecContext(ctx, query, tokenID.String(), revokedAt, requesterSignature)
	if err != nil {
		return fmt.Errorf("revoke consent token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke consent token: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, tokenID); errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, tokenID domain.TokenID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM consent_tokens WHERE token_id = $1`, tokenID.String())
	if err != nil {
		return fmt.Errorf("delete consent token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete consent token: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Reinstate(ctx context.Context, tokenID domain.TokenID) error {
	const query = `
		UPDATE consent_tokens
		SET is_active = TRUE, revoked_at = NULL, revocation_signature = NULL
		WHERE token_id = $1
	`
	res, err := s.db.ExecContext(ctx, query, tokenID.String())
	if err != nil {
		return fmt.Errorf("reinstate consent token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reinstate consent token: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Token, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query consent tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan consent tokens: %w", err)
	}
	return tokens, nil
}

const selectColumns = `
	SELECT token_id, patient_id, provider_id, permissions, expiration_time,
	       is_active, created_at, revoked_at, patient_signature, revocation_signature
	FROM consent_tokens`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*Token, error) {
	var (
		token      Token
		tokenID    string
		patientID  string
		providerID string
		permsRaw   []byte
		expiration sql.NullTime
		revokedAt  sql.NullTime
		revocSig   []byte
	)
	err := row.Scan(
		&tokenID,
		&patientID,
		&providerID,
		&permsRaw,
		&expiration,
		&token.IsActive,
		&token.CreatedAt,
		&revokedAt,
		&token.PatientSignature,
		&revocSig,
	)
	if err != nil {
		return nil, err
	}
	token.TokenID = domain.TokenID(tokenID)
	token.PatientID = domain.PatientID(patientID)
	token.ProviderID = domain.ProviderID(providerID)
	token.RevocationSignature = revocSig
	if err := json.Unmarshal(permsRaw, &token.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if expiration.Valid {
		exp := expiration.Time
		token.ExpirationTime = &exp
	}
	if revokedAt.Valid {
		ra := revokedAt.Time
		token.RevokedAt = &ra
	}
	return &token, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
