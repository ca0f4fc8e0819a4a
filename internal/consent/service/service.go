package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"medledger/internal/consent"
	"medledger/internal/platform/metrics"
	"medledger/internal/signing"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/audit"
	"medledger/pkg/platform/sentinel"
	"medledger/pkg/requestcontext"
)

// AuditLog is the append surface of the audit ledger the service emits to.
type AuditLog interface {
	Append(ctx context.Context, eventType audit.EventType, userID, resourceID string, details audit.Details, signerKey signing.KeyRef) (*audit.Entry, error)
}

// Invalidator drops cached grant lists for a pair. Invalidation runs
// synchronously before a mutation is acknowledged so no caller can observe
// a stale decision after their own write.
type Invalidator interface {
	Invalidate(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID) error
}

// Service owns the consent token lifecycle: grant and revoke, each paired
// with its audit entry. A mutation whose audit emission fails is rolled back;
// the store and the ledger never disagree about what happened.
type Service struct {
	tx       ConsentTx
	store    consent.Store
	auditLog AuditLog
	auditKey signing.KeyRef
	verifier signing.Verifier
	cache    Invalidator
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(tx ConsentTx, store consent.Store, auditLog AuditLog, auditKey signing.KeyRef, verifier signing.Verifier, cache Invalidator, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		tx:       tx,
		store:    store,
		auditLog: auditLog,
		auditKey: auditKey,
		verifier: verifier,
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

// GrantRequest carries everything a patient submits when delegating access.
type GrantRequest struct {
	PatientID        domain.PatientID
	ProviderID       domain.ProviderID
	Permissions      []consent.Permission
	ExpirationTime   *time.Time
	PatientSignature []byte
}

// Grant validates and persists a new consent token, then records the grant in
// the audit ledger. The token only becomes visible to evaluators once both
// writes have succeeded.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*consent.Token, error) {
	if req.PatientID.IsNil() || req.ProviderID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "patient and provider ids are required")
	}
	if err := consent.ValidatePermissions(req.Permissions); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if req.ExpirationTime != nil && !req.ExpirationTime.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidExpiration, "expiration time must be in the future")
	}
	if len(req.PatientSignature) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "patient signature is required")
	}
	ok, err := s.verifier.Verify(ctx, signing.KeyRef(req.PatientID), GrantSigningPayload(req.PatientID, req.ProviderID, req.Permissions, req.ExpirationTime), req.PatientSignature)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "signature verification unavailable")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeDenied, "patient signature verification failed")
	}

	token := &consent.Token{
		TokenID:          domain.NewTokenID(),
		PatientID:        req.PatientID,
		ProviderID:       req.ProviderID,
		Permissions:      req.Permissions,
		ExpirationTime:   req.ExpirationTime,
		IsActive:         true,
		CreatedAt:        now,
		PatientSignature: req.PatientSignature,
	}

	err = s.tx.RunInTx(ctx, req.PatientID, req.ProviderID, func(store consent.Store) error {
		if err := store.Save(ctx, token); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent token")
		}
		details := audit.ConsentDetails{
			TokenID:     token.TokenID.String(),
			PatientID:   token.PatientID.String(),
			ProviderID:  token.ProviderID.String(),
			Permissions: permissionsSummary(token.Permissions),
		}
		if token.ExpirationTime != nil {
			details.ExpiresAt = token.ExpirationTime.UTC().Format(time.RFC3339Nano)
		}
		_, auditErr := s.auditLog.Append(ctx, audit.EventConsentGranted, token.PatientID.String(), token.TokenID.String(), details, s.auditKey)
		s.metrics.ObserveAudit(auditErr)
		if auditErr != nil {
			if delErr := store.Delete(ctx, token.TokenID); delErr != nil {
				s.logger.Error("grant rollback failed, orphaned consent token",
					"token_id", token.TokenID.String(),
					"audit_error", auditErr,
					"rollback_error", delErr)
			}
			return dErrors.Wrap(auditErr, dErrors.CodeUnavailable, "consent grant could not be recorded")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, token.PatientID, token.ProviderID); err != nil {
		s.logger.Warn("grant cache invalidation failed",
			"patient_id", token.PatientID.String(),
			"provider_id", token.ProviderID.String(),
			"error", err)
	}
	if s.metrics != nil {
		s.metrics.ConsentGrants.Inc()
	}
	return token, nil
}

// Revoke deactivates a token. Only the granting patient may revoke (anyone
// else sees not-found), the revocation takes effect before the call returns,
// and a token is never audited as revoked twice.
func (s *Service) Revoke(ctx context.Context, tokenID domain.TokenID, requesterID domain.PatientID, requesterSignature []byte) (*consent.RevocationResult, error) {
	if len(requesterSignature) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "requester signature is required")
	}
	token, err := s.store.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent token not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent token")
	}
	if token.PatientID != requesterID {
		// Same shape as an unknown token. A distinct denial would confirm
		// to a non-owner that the token ID exists.
		return nil, dErrors.New(dErrors.CodeNotFound, "consent token not found")
	}
	ok, err := s.verifier.Verify(ctx, signing.KeyRef(requesterID), RevokeSigningPayload(tokenID, requesterID), requesterSignature)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "signature verification unavailable")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeDenied, "requester signature verification failed")
	}
	if !token.IsActive {
		return nil, dErrors.New(dErrors.CodeAlreadyRevoked, "consent token is already revoked")
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, token.PatientID, token.ProviderID, func(store consent.Store) error {
		if err := store.MarkRevoked(ctx, tokenID, now, requesterSignature); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				return dErrors.New(dErrors.CodeNotFound, "consent token not found")
			case errors.Is(err, sentinel.ErrInvalidState):
				// Lost the race to another revoke of the same token.
				return dErrors.New(dErrors.CodeAlreadyRevoked, "consent token is already revoked")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent token")
		}
		details := audit.ConsentDetails{
			TokenID:    tokenID.String(),
			PatientID:  token.PatientID.String(),
			ProviderID: token.ProviderID.String(),
		}
		_, auditErr := s.auditLog.Append(ctx, audit.EventConsentRevoked, token.PatientID.String(), tokenID.String(), details, s.auditKey)
		s.metrics.ObserveAudit(auditErr)
		if auditErr != nil {
			if reErr := store.Reinstate(ctx, tokenID); reErr != nil {
				s.logger.Error("revoke rollback failed, token revoked without audit entry",
					"token_id", tokenID.String(),
					"audit_error", auditErr,
					"rollback_error", reErr)
			}
			return dErrors.Wrap(auditErr, dErrors.CodeUnavailable, "consent revocation could not be recorded")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, token.PatientID, token.ProviderID); err != nil {
		s.logger.Warn("grant cache invalidation failed",
			"patient_id", token.PatientID.String(),
			"provider_id", token.ProviderID.String(),
			"error", err)
	}
	if s.metrics != nil {
		s.metrics.ConsentRevokes.Inc()
	}
	return &consent.RevocationResult{TokenID: tokenID, RevokedAt: now}, nil
}

// Get returns a token by ID.
func (s *Service) Get(ctx context.Context, tokenID domain.TokenID) (*consent.Token, error) {
	token, err := s.store.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent token not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent token")
	}
	return token, nil
}

// ListByPatient returns every token a patient has ever granted, including
// revoked and expired ones, so patients can review their full history.
func (s *Service) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]*consent.Token, error) {
	return s.store.ListByPatient(ctx, patientID)
}

// ListByProvider returns every token granted to a provider.
func (s *Service) ListByProvider(ctx context.Context, providerID domain.ProviderID) ([]*consent.Token, error) {
	return s.store.ListByProvider(ctx, providerID)
}

// FindActiveGrants returns the tokens authorizing anything for a pair at the
// request's reference time.
func (s *Service) FindActiveGrants(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID) ([]*consent.Token, error) {
	return consent.FindActiveGrants(ctx, s.store, patientID, providerID, requestcontext.Now(ctx))
}

// GrantSigningPayload is the canonical byte string a patient signs when
// granting. Field order is fixed; clients must produce the same bytes.
func GrantSigningPayload(patientID domain.PatientID, providerID domain.ProviderID, perms []consent.Permission, expiration *time.Time) []byte {
	payload := struct {
		Op          string               `json:"op"`
		PatientID   string               `json:"patient_id"`
		ProviderID  string               `json:"provider_id"`
		Permissions []consent.Permission `json:"permissions"`
		ExpiresAt   string               `json:"expires_at,omitempty"`
	}{
		Op:          "consent.grant",
		PatientID:   patientID.String(),
		ProviderID:  providerID.String(),
		Permissions: perms,
	}
	if expiration != nil {
		payload.ExpiresAt = expiration.UTC().Format(time.RFC3339Nano)
	}
	b, _ := json.Marshal(payload)
	return b
}

// RevokeSigningPayload is the canonical byte string a patient signs when
// revoking.
func RevokeSigningPayload(tokenID domain.TokenID, patientID domain.PatientID) []byte {
	payload := struct {
		Op        string `json:"op"`
		TokenID   string `json:"token_id"`
		PatientID string `json:"patient_id"`
	}{
		Op:        "consent.revoke",
		TokenID:   tokenID.String(),
		PatientID: patientID.String(),
	}
	b, _ := json.Marshal(payload)
	return b
}

func permissionsSummary(perms []consent.Permission) string {
	b, _ := json.Marshal(perms)
	return string(b)
}
