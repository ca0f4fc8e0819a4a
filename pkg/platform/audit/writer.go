package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"medledger/internal/signing"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/sentinel"
)

// Writer is the single owner of the audit chain: it alone assigns block
// numbers and constructs entries. Append serializes under a mutex so the
// block sequence is one global monotonic counter; the store's conditional
// append is a second line of defense.
type Writer struct {
	mu     sync.Mutex
	store  Store
	signer signing.Signer
}

// NewWriter builds the ledger writer over a chain store and the signing
// collaborator.
func NewWriter(store Store, signer signing.Signer) *Writer {
	return &Writer{store: store, signer: signer}
}

// hashPayload is the exact content covered by an entry's hash. It is a flat
// struct (no maps) so json.Marshal field order is deterministic and the hash
// is reproducible at verification time.
type hashPayload struct {
	EventType   EventType       `json:"event_type"`
	UserID      string          `json:"user_id"`
	ResourceID  string          `json:"resource_id"`
	Timestamp   string          `json:"timestamp"`
	DetailsKind string          `json:"details_kind"`
	Details     json.RawMessage `json:"details"`
	PrevHash    string          `json:"prev_hash"`
}

// ContentHash computes the hash an entry's content should carry. Exposed for
// the verifier, which recomputes it from stored content.
func ContentHash(e *Entry) (string, error) {
	detailsRaw, kind, err := marshalDetails(e.Details)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(hashPayload{
		EventType:   e.EventType,
		UserID:      e.UserID,
		ResourceID:  e.ResourceID,
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
		DetailsKind: kind,
		Details:     detailsRaw,
		PrevHash:    e.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("marshal hash payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Append creates, signs, and persists the next entry in the chain. On any
// failure nothing is persisted and the block sequence is unchanged: the next
// block number is always derived from the store's current head, never from a
// writer-side counter that could drift.
func (w *Writer) Append(ctx context.Context, eventType EventType, userID, resourceID string, details Details, signerKey signing.KeyRef) (*Entry, error) {
	if !eventType.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid audit event type: "+string(eventType))
	}
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "audit entry requires a user id")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	prevHash := ""
	var blockNumber uint64 = 1
	last, err := w.store.Last(ctx)
	switch {
	case err == nil:
		prevHash = last.Hash
		blockNumber = last.BlockNumber + 1
	case errors.Is(err, sentinel.ErrNotFound):
		// Genesis entry: empty prev hash, block 1.
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit store head unavailable")
	}

	entry := &Entry{
		EntryID:     uuid.NewString(),
		EventType:   eventType,
		UserID:      userID,
		ResourceID:  resourceID,
		Timestamp:   time.Now().UTC(),
		Details:     details,
		PrevHash:    prevHash,
		SignerKey:   signerKey,
		BlockNumber: blockNumber,
	}

	hash, err := ContentHash(entry)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hash audit entry")
	}
	entry.Hash = hash

	sig, err := w.signer.Sign(ctx, signerKey, []byte(hash))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "sign audit entry")
	}
	entry.Signature = sig

	if err := w.store.Append(ctx, entry); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "audit chain head moved")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "persist audit entry")
	}
	return entry, nil
}
