package records

import (
	"context"

	"medledger/pkg/domain"
)

// MetadataStore persists record metadata. Implementations return
// sentinel.ErrNotFound for unknown records.
type MetadataStore interface {
	// Save persists metadata for a newly created record.
	Save(ctx context.Context, meta *Metadata) error
	// Get returns metadata by record ID.
	Get(ctx context.Context, recordID domain.RecordID) (*Metadata, error)
	// ListByPatient returns all of a patient's record metadata, createdAt
	// ascending.
	ListByPatient(ctx context.Context, patientID domain.PatientID) ([]*Metadata, error)
	// Delete removes metadata. Compensating rollback of a create whose audit
	// emission failed is the only caller.
	Delete(ctx context.Context, recordID domain.RecordID) error
}
