// Package audit implements the append-only, tamper-evident event ledger.
// Every consent grant/revoke and every record access decision produces exactly
// one Entry. Entries are hash-chained: each entry's content hash covers the
// previous entry's hash, so modifying or deleting any historical entry is
// detectable by VerifyIntegrity.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"medledger/internal/signing"
)

// EventType classifies audit events.
type EventType string

const (
	EventUserRegistration EventType = "user_registration"
	EventUserApproval     EventType = "user_approval"
	EventRecordCreated    EventType = "record_created"
	EventRecordAccessed   EventType = "record_accessed"
	EventConsentGranted   EventType = "consent_granted"
	EventConsentRevoked   EventType = "consent_revoked"
	EventLoginAttempt     EventType = "login_attempt"
)

var validEventTypes = map[EventType]bool{
	EventUserRegistration: true,
	EventUserApproval:     true,
	EventRecordCreated:    true,
	EventRecordAccessed:   true,
	EventConsentGranted:   true,
	EventConsentRevoked:   true,
	EventLoginAttempt:     true,
}

// IsValid checks the event type against the supported enumeration.
func (e EventType) IsValid() bool { return validEventTypes[e] }

// Details is the typed per-event payload. Each event type carries a struct
// variant rather than an untyped map so required fields are enforced at
// compile time. All variants are flat structs of scalar fields, which keeps
// json.Marshal field order deterministic for reproducible hashing.
type Details interface {
	// Kind tags the variant for serialization.
	Kind() string
}

// ConsentDetails accompanies consent_granted and consent_revoked events.
type ConsentDetails struct {
	TokenID     string `json:"token_id"`
	PatientID   string `json:"patient_id"`
	ProviderID  string `json:"provider_id"`
	Permissions string `json:"permissions,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

func (ConsentDetails) Kind() string { return "consent" }

// AccessDetails accompanies record_accessed events, for granted and denied
// outcomes alike. Outcome is one of granted, denied, not_found.
type AccessDetails struct {
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
	MatchedTokenID string `json:"matched_token_id,omitempty"`
	RecordID       string `json:"record_id,omitempty"`
	ResourceType   string `json:"resource_type,omitempty"`
}

func (AccessDetails) Kind() string { return "access" }

// RecordDetails accompanies record_created events.
type RecordDetails struct {
	RecordID     string `json:"record_id"`
	PatientID    string `json:"patient_id"`
	ResourceType string `json:"resource_type"`
	ContentHash  string `json:"content_hash"`
}

func (RecordDetails) Kind() string { return "record" }

// AuthDetails accompanies user_registration, user_approval, and login_attempt
// events.
type AuthDetails struct {
	Outcome string `json:"outcome"`
	Method  string `json:"method,omitempty"`
	Role    string `json:"role,omitempty"`
}

func (AuthDetails) Kind() string { return "auth" }

// Entry is one immutable line in the audit ledger.
type Entry struct {
	EntryID     string
	EventType   EventType
	UserID      string
	ResourceID  string
	Timestamp   time.Time
	Details     Details
	PrevHash    string
	Hash        string
	Signature   []byte
	SignerKey   signing.KeyRef
	BlockNumber uint64
	// TxID anchors the entry to a ledger transaction when the deployment
	// commits the chain through the ledger collaborator. Local chain stores
	// leave it empty; it is not covered by the content hash.
	TxID string
}

// entryJSON is the storage/wire representation. Details are wrapped in a
// kind-tagged envelope so the variant survives a round trip.
type entryJSON struct {
	EntryID     string          `json:"entry_id"`
	EventType   EventType       `json:"event_type"`
	UserID      string          `json:"user_id"`
	ResourceID  string          `json:"resource_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	DetailsKind string          `json:"details_kind"`
	Details     json.RawMessage `json:"details"`
	PrevHash    string          `json:"prev_hash"`
	Hash        string          `json:"hash"`
	Signature   []byte          `json:"signature"`
	SignerKey   string          `json:"signer_key"`
	BlockNumber uint64          `json:"block_number"`
	TxID        string          `json:"tx_id,omitempty"`
}

// MarshalJSON serializes the entry with its tagged details variant.
func (e *Entry) MarshalJSON() ([]byte, error) {
	detailsRaw, kind, err := marshalDetails(e.Details)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entryJSON{
		EntryID:     e.EntryID,
		EventType:   e.EventType,
		UserID:      e.UserID,
		ResourceID:  e.ResourceID,
		Timestamp:   e.Timestamp,
		DetailsKind: kind,
		Details:     detailsRaw,
		PrevHash:    e.PrevHash,
		Hash:        e.Hash,
		Signature:   e.Signature,
		SignerKey:   string(e.SignerKey),
		BlockNumber: e.BlockNumber,
		TxID:        e.TxID,
	})
}

// UnmarshalJSON reconstructs the entry including its details variant.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var ej entryJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return err
	}
	details, err := unmarshalDetails(ej.DetailsKind, ej.Details)
	if err != nil {
		return err
	}
	*e = Entry{
		EntryID:     ej.EntryID,
		EventType:   ej.EventType,
		UserID:      ej.UserID,
		ResourceID:  ej.ResourceID,
		Timestamp:   ej.Timestamp,
		Details:     details,
		PrevHash:    ej.PrevHash,
		Hash:        ej.Hash,
		Signature:   ej.Signature,
		SignerKey:   signing.KeyRef(ej.SignerKey),
		BlockNumber: ej.BlockNumber,
		TxID:        ej.TxID,
	}
	return nil
}

// MarshalDetailsFor serializes an entry's details with its kind tag. Store
// implementations use it to persist the variant in a queryable column.
func MarshalDetailsFor(e *Entry) (json.RawMessage, string, error) {
	return marshalDetails(e.Details)
}

// UnmarshalDetails reconstructs a details variant from its kind tag.
func UnmarshalDetails(kind string, raw json.RawMessage) (Details, error) {
	return unmarshalDetails(kind, raw)
}

func marshalDetails(d Details) (json.RawMessage, string, error) {
	if d == nil {
		return json.RawMessage("null"), "", nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, "", fmt.Errorf("marshal details: %w", err)
	}
	return raw, d.Kind(), nil
}

func unmarshalDetails(kind string, raw json.RawMessage) (Details, error) {
	switch kind {
	case "":
		return nil, nil
	case "consent":
		var d ConsentDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case "access":
		var d AccessDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case "record":
		var d RecordDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case "auth":
		var d AuthDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown details kind %q", kind)
	}
}
