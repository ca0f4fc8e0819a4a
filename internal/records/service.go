package records

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medledger/internal/access"
	"medledger/internal/blobstore"
	"medledger/internal/platform/metrics"
	"medledger/internal/signing"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/audit"
	"medledger/pkg/platform/sentinel"
	"medledger/pkg/requestcontext"
)

// ConsentEvaluator is the decision surface the orchestrator consults. The
// cache layer sits behind it transparently.
type ConsentEvaluator interface {
	Evaluate(ctx context.Context, providerID domain.ProviderID, patientID domain.PatientID, rt domain.ResourceType, al domain.AccessLevel, now time.Time) (access.Decision, error)
}

// AuditLog is the append surface of the audit ledger.
type AuditLog interface {
	Append(ctx context.Context, eventType audit.EventType, userID, resourceID string, details audit.Details, signerKey signing.KeyRef) (*audit.Entry, error)
}

// Service orchestrates record reads and writes. It is the only component that
// touches the blob store, and every access attempt lands in the audit ledger
// whether it succeeds or not.
type Service struct {
	metadata MetadataStore
	blobs    blobstore.Store
	eval     ConsentEvaluator
	auditLog AuditLog
	auditKey signing.KeyRef
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(metadata MetadataStore, blobs blobstore.Store, eval ConsentEvaluator, auditLog AuditLog, auditKey signing.KeyRef, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		metadata: metadata,
		blobs:    blobs,
		eval:     eval,
		auditLog: auditLog,
		auditKey: auditKey,
		metrics:  m,
		logger:   logger,
	}
}

// AccessRecord returns a record's ciphertext to an authorized requester.
//
// A missing record and a denied request both surface as the same denial:
// whether a patient has records at all is itself protected information.
// The audit ledger keeps the distinction.
func (s *Service) AccessRecord(ctx context.Context, recordID domain.RecordID, requesterID domain.ProviderID) (*AccessResult, error) {
	now := requestcontext.Now(ctx)

	meta, err := s.metadata.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			details := audit.AccessDetails{Outcome: "not_found", RecordID: recordID.String()}
			if err := s.appendAccess(ctx, requesterID, recordID, details); err != nil {
				return nil, err
			}
			// A distinct reason label: record absence is not a consent
			// outcome and must not pollute the NO_CONSENT series.
			s.metrics.ObserveDecision(false, "not_found")
			return nil, dErrors.New(dErrors.CodeDenied, "access denied")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "record metadata unavailable")
	}

	decision, err := s.eval.Evaluate(ctx, requesterID, meta.PatientID, meta.ResourceType, domain.AccessRead, now)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDecision(decision.Granted, decision.Reason.String())

	if !decision.Granted {
		details := audit.AccessDetails{
			Outcome:      "denied",
			Reason:       decision.Reason.String(),
			RecordID:     recordID.String(),
			ResourceType: meta.ResourceType.String(),
		}
		if err := s.appendAccess(ctx, requesterID, recordID, details); err != nil {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeDenied, "access denied")
	}

	// The granted audit entry is written after the fetch because its content
	// depends on the fetch outcome, and it is written even when the fetch
	// fails: an authorized-but-failed access is evidence that must not be
	// lost.
	ciphertext, fetchErr := s.blobs.Get(ctx, meta.ContentHash)

	details := audit.AccessDetails{
		Outcome:        "granted",
		MatchedTokenID: decision.MatchedTokenID.String(),
		RecordID:       recordID.String(),
		ResourceType:   meta.ResourceType.String(),
	}
	if err := s.appendAccess(ctx, requesterID, recordID, details); err != nil {
		return nil, err
	}

	if fetchErr != nil {
		s.logger.Error("blob fetch failed after granted decision",
			"record_id", recordID.String(),
			"content_hash", meta.ContentHash.String(),
			"error", fetchErr)
		return nil, dErrors.Wrap(fetchErr, dErrors.CodeUnavailable, "record storage unavailable")
	}
	return &AccessResult{Ciphertext: ciphertext, Metadata: meta}, nil
}

// CreateRecordRequest carries a provider's submission of a new encrypted
// record for a patient.
type CreateRecordRequest struct {
	PatientID    domain.PatientID
	ProviderID   domain.ProviderID
	ResourceType domain.ResourceType
	Ciphertext   []byte
}

// CreateRecord stores a new record on behalf of a provider holding write
// consent for the resource type.
func (s *Service) CreateRecord(ctx context.Context, req CreateRecordRequest) (*Metadata, error) {
	if req.PatientID.IsNil() || req.ProviderID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "patient and provider ids are required")
	}
	if !req.ResourceType.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid resource type: "+req.ResourceType.String())
	}
	if len(req.Ciphertext) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "record content must not be empty")
	}
	now := requestcontext.Now(ctx)

	decision, err := s.eval.Evaluate(ctx, req.ProviderID, req.PatientID, req.ResourceType, domain.AccessWrite, now)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDecision(decision.Granted, decision.Reason.String())
	if !decision.Granted {
		details := audit.AccessDetails{
			Outcome:      "denied",
			Reason:       decision.Reason.String(),
			ResourceType: req.ResourceType.String(),
		}
		if err := s.appendAccess(ctx, req.ProviderID, "", details); err != nil {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeDenied, "access denied")
	}

	hash, err := s.blobs.Put(ctx, req.Ciphertext)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "record storage unavailable")
	}

	meta := &Metadata{
		RecordID:     domain.NewRecordID(),
		PatientID:    req.PatientID,
		ProviderID:   req.ProviderID,
		ResourceType: req.ResourceType,
		ContentHash:  hash,
		CreatedAt:    now,
	}
	if err := s.metadata.Save(ctx, meta); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save record metadata")
	}

	details := audit.RecordDetails{
		RecordID:     meta.RecordID.String(),
		PatientID:    meta.PatientID.String(),
		ResourceType: meta.ResourceType.String(),
		ContentHash:  meta.ContentHash.String(),
	}
	_, auditErr := s.auditLog.Append(ctx, audit.EventRecordCreated, req.ProviderID.String(), meta.RecordID.String(), details, s.auditKey)
	s.metrics.ObserveAudit(auditErr)
	if auditErr != nil {
		// The blob stays: content-addressed and harmless without metadata.
		if delErr := s.metadata.Delete(ctx, meta.RecordID); delErr != nil {
			s.logger.Error("record create rollback failed, orphaned metadata",
				"record_id", meta.RecordID.String(),
				"audit_error", auditErr,
				"rollback_error", delErr)
		}
		return nil, dErrors.Wrap(auditErr, dErrors.CodeUnavailable, "record creation could not be recorded")
	}
	return meta, nil
}

// GetMetadata returns record metadata without touching the blob store. The
// caller is expected to have authorized the read; handlers use this only for
// patient self-service listings.
func (s *Service) GetMetadata(ctx context.Context, recordID domain.RecordID) (*Metadata, error) {
	meta, err := s.metadata.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "record metadata unavailable")
	}
	return meta, nil
}

// ListByPatient returns a patient's record metadata.
func (s *Service) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]*Metadata, error) {
	return s.metadata.ListByPatient(ctx, patientID)
}

func (s *Service) appendAccess(ctx context.Context, requesterID domain.ProviderID, recordID domain.RecordID, details audit.AccessDetails) error {
	_, err := s.auditLog.Append(ctx, audit.EventRecordAccessed, requesterID.String(), recordID.String(), details, s.auditKey)
	s.metrics.ObserveAudit(err)
	if err != nil {
		// No audit entry means no access: the ledger is not best-effort.
		s.logger.Error("audit append failed for record access",
			"record_id", recordID.String(),
			"outcome", details.Outcome,
			"error", err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "access could not be recorded")
	}
	return nil
}
