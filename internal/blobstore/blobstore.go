// Package blobstore holds encrypted record payloads addressed by the SHA-256
// hex digest of their content. The core stores and returns ciphertext only;
// decryption keys never pass through this process.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash addresses a blob by its own content.
type ContentHash string

// HashOf computes the content address for a payload.
func HashOf(data []byte) ContentHash {
	sum := sha256.Sum256(data)
	return ContentHash(hex.EncodeToString(sum[:]))
}

func (h ContentHash) String() string { return string(h) }

// Store is the content-addressed blob collaborator.
type Store interface {
	// Put stores the payload and returns its content hash. Storing the same
	// bytes twice is a no-op returning the same hash.
	Put(ctx context.Context, data []byte) (ContentHash, error)
	// Get retrieves a payload by content hash. Returns sentinel.ErrNotFound
	// when the hash is unknown.
	Get(ctx context.Context, hash ContentHash) ([]byte, error)
	// Exists reports whether the hash is present without fetching the payload.
	Exists(ctx context.Context, hash ContentHash) (bool, error)
}
