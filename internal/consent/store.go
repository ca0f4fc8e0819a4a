package consent

import (
	"context"
	"time"

	"medledger/pkg/domain"
)

// Store persists consent tokens with strong consistency on writes. The
// consent service is the single writer; handlers and evaluators only read.
//
// Stores return sentinel errors: ErrNotFound for unknown tokens,
// ErrInvalidState for a revoke of an already-revoked token.
type Store interface {
	// Save persists a newly granted token.
	Save(ctx context.Context, token *Token) error
	// Get returns a token by ID.
	Get(ctx context.Context, tokenID domain.TokenID) (*Token, error)
	// ListByPatient returns all of a patient's tokens, createdAt ascending.
	ListByPatient(ctx context.Context, patientID domain.PatientID) ([]*Token, error)
	// ListByProvider returns all tokens granted to a provider, createdAt ascending.
	ListByProvider(ctx context.Context, providerID domain.ProviderID) ([]*Token, error)
	// ListByPair returns every token (active or not) for a patient-provider
	// pair, createdAt ascending. The evaluator applies lazy expiration on top.
	ListByPair(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID) ([]*Token, error)
	// MarkRevoked flips a token inactive and records the requester signature.
	MarkRevoked(ctx context.Context, tokenID domain.TokenID, revokedAt time.Time, requesterSignature []byte) error
	// Delete removes a token entirely. Compensating rollback of a grant whose
	// audit emission failed is the only caller; tokens are otherwise never
	// physically deleted.
	Delete(ctx context.Context, tokenID domain.TokenID) error
	// Reinstate undoes a MarkRevoked. Compensating rollback of a revoke whose
	// audit emission failed is the only caller.
	Reinstate(ctx context.Context, tokenID domain.TokenID) error
}

// GrantSource is the read surface the evaluator and cache layer share.
type GrantSource interface {
	ListByPair(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID) ([]*Token, error)
}

// FindActiveGrants filters a pair's tokens down to those that authorize
// anything at the given instant. Applied at read time on every call, so
// correctness never depends on a cleanup job having run.
func FindActiveGrants(ctx context.Context, source GrantSource, patientID domain.PatientID, providerID domain.ProviderID, now time.Time) ([]*Token, error) {
	tokens, err := source.ListByPair(ctx, patientID, providerID)
	if err != nil {
		return nil, err
	}
	active := make([]*Token, 0, len(tokens))
	for _, t := range tokens {
		if t.ActiveAt(now) {
			active = append(active, t)
		}
	}
	return active, nil
}
