package domain

import (
	"github.com/google/uuid"

	dErrors "medledger/pkg/domain-errors"
)

// Identity references are opaque strings issued by the identity collaborator.
// The core never interprets them beyond equality checks, but typed wrappers
// keep patient and provider identifiers from being swapped at call sites.

// PatientID identifies the patient who owns records and signs consent grants.
type PatientID string

func (id PatientID) String() string { return string(id) }
func (id PatientID) IsNil() bool    { return id == "" }

// ProviderID identifies the healthcare provider requesting access.
type ProviderID string

func (id ProviderID) String() string { return string(id) }
func (id ProviderID) IsNil() bool    { return id == "" }

// TokenID identifies a consent token. Assigned at grant time.
type TokenID string

// NewTokenID generates a fresh consent token identifier.
func NewTokenID() TokenID { return TokenID(uuid.NewString()) }

// ParseTokenID validates external input as a token identifier.
func ParseTokenID(s string) (TokenID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid token id")
	}
	return TokenID(s), nil
}

func (id TokenID) String() string { return string(id) }
func (id TokenID) IsNil() bool    { return id == "" }

// RecordID identifies a medical record's metadata entry.
type RecordID string

// NewRecordID generates a fresh record identifier.
func NewRecordID() RecordID { return RecordID(uuid.NewString()) }

func (id RecordID) String() string { return string(id) }
func (id RecordID) IsNil() bool    { return id == "" }
