package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSigner is the reference implementation used in development and tests.
// It derives a per-KeyRef key from a root secret, so distinct signers produce
// distinct signatures without any key registry. Production wires a real
// signature scheme here instead; nothing in the core depends on this choice.
type HMACSigner struct {
	root []byte
}

// NewHMACSigner builds a signer/verifier pair keyed from the root secret.
func NewHMACSigner(rootKey []byte) *HMACSigner {
	return &HMACSigner{root: rootKey}
}

func (s *HMACSigner) derive(key KeyRef) []byte {
	mac := hmac.New(sha256.New, s.root)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Sign produces an HMAC-SHA256 tag over data with the derived key.
func (s *HMACSigner) Sign(ctx context.Context, key KeyRef, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, s.derive(key))
	mac.Write(data)
	return mac.Sum(nil), nil
}

// Verify recomputes the tag and compares in constant time.
func (s *HMACSigner) Verify(ctx context.Context, key KeyRef, data, signature []byte) (bool, error) {
	expected, err := s.Sign(ctx, key, data)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, signature), nil
}

// SHA256Hasher is the default content hasher.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
