// Package signing is the boundary to the cryptography collaborator. The core
// treats signatures and digests as opaque verifiable tokens; key management and
// the actual signature scheme (a post-quantum algorithm in production) live
// behind these interfaces.
package signing

import "context"

// KeyRef names a signing key held by the collaborator. The core never sees
// key material.
type KeyRef string

// Signer produces a signature over a byte payload with the referenced key.
type Signer interface {
	Sign(ctx context.Context, key KeyRef, data []byte) ([]byte, error)
}

// Verifier checks a signature against a public key reference and payload.
type Verifier interface {
	Verify(ctx context.Context, key KeyRef, data, signature []byte) (bool, error)
}

// Hasher computes a content digest. Used for audit chain hashes and
// content-addressed blob keys.
type Hasher interface {
	Hash(data []byte) []byte
}
