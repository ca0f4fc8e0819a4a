package main

import (
	"context"
	"database/sql"
	"time"

	"medledger/internal/consent"
	"medledger/internal/consent/service"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

const defaultConsentTxTimeout = 5 * time.Second

// consentPostgresTx runs consent mutations inside a database transaction. A
// transaction-scoped advisory lock on the patient-provider pair serializes
// concurrent mutations on that pair across every node sharing the database.
type consentPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newConsentPostgresTx(db *sql.DB) *consentPostgresTx {
	return &consentPostgresTx{db: db}
}

func (t *consentPostgresTx) RunInTx(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID, fn func(store consent.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultConsentTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, pairLockKey(patientID, providerID)); err != nil {
		return err
	}

	if err := fn(consent.NewPostgresTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// pairLockKey hashes the pair into the signed 64-bit space advisory locks use.
func pairLockKey(patientID domain.PatientID, providerID domain.ProviderID) int64 {
	const (
		fnvOffset = 14695981039346656037
		fnvPrime  = 1099511628211
	)
	h := uint64(fnvOffset)
	for _, b := range []byte(patientID.String() + "\x00" + providerID.String()) {
		h ^= uint64(b)
		h *= fnvPrime
	}
	return int64(h)
}

var _ service.ConsentTx = (*consentPostgresTx)(nil)
