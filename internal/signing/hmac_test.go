package signing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSigner_RoundTrip(t *testing.T) {
	signer := NewHMACSigner([]byte("test-root-key"))
	ctx := context.Background()

	sig, err := signer.Sign(ctx, "audit-writer", []byte("payload"))
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	ok, err := signer.Verify(ctx, "audit-writer", []byte("payload"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHMACSigner_RejectsTamperedPayload(t *testing.T) {
	signer := NewHMACSigner([]byte("test-root-key"))
	ctx := context.Background()

	sig, err := signer.Sign(ctx, "audit-writer", []byte("payload"))
	require.NoError(t, err)

	ok, err := signer.Verify(ctx, "audit-writer", []byte("tampered"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHMACSigner_KeysAreIndependent(t *testing.T) {
	signer := NewHMACSigner([]byte("test-root-key"))
	ctx := context.Background()

	sig, err := signer.Sign(ctx, "patient-1", []byte("payload"))
	require.NoError(t, err)

	ok, err := signer.Verify(ctx, "patient-2", []byte("payload"), sig)
	require.NoError(t, err)
	assert.False(t, ok, "signature from one key must not verify under another")
}

func TestHMACSigner_CancelledContext(t *testing.T) {
	signer := NewHMACSigner([]byte("test-root-key"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := signer.Sign(ctx, "audit-writer", []byte("payload"))
	assert.Error(t, err)
}
