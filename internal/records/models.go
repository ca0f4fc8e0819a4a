package records

import (
	"time"

	"medledger/internal/blobstore"
	"medledger/pkg/domain"
)

// Metadata describes one stored record. The payload itself lives in the blob
// store under ContentHash; metadata never contains medical content.
type Metadata struct {
	RecordID     domain.RecordID       `json:"record_id"`
	PatientID    domain.PatientID      `json:"patient_id"`
	ProviderID   domain.ProviderID     `json:"provider_id"`
	ResourceType domain.ResourceType   `json:"resource_type"`
	ContentHash  blobstore.ContentHash `json:"content_hash"`
	CreatedAt    time.Time             `json:"created_at"`
}

// AccessResult is a successful read: the encrypted payload plus its metadata.
// The ciphertext is returned as stored; decryption happens client-side with
// keys this service never holds.
type AccessResult struct {
	Ciphertext []byte
	Metadata   *Metadata
}
