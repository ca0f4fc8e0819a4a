package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medledger/internal/consent"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

func token(patientID, providerID string, perms []consent.Permission, opts ...func(*consent.Token)) *consent.Token {
	t := &consent.Token{
		TokenID:          domain.NewTokenID(),
		PatientID:        domain.PatientID(patientID),
		ProviderID:       domain.ProviderID(providerID),
		Permissions:      perms,
		IsActive:         true,
		CreatedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PatientSignature: []byte("sig"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func revoked(at time.Time) func(*consent.Token) {
	return func(t *consent.Token) {
		t.IsActive = false
		t.RevokedAt = &at
	}
}

func expiring(at time.Time) func(*consent.Token) {
	return func(t *consent.Token) { t.ExpirationTime = &at }
}

func createdAt(at time.Time) func(*consent.Token) {
	return func(t *consent.Token) { t.CreatedAt = at }
}

func readDiagnosis() []consent.Permission {
	return []consent.Permission{{ResourceType: domain.ResourceDiagnosis, AccessLevel: domain.AccessRead}}
}

func TestDecide_NoTokens(t *testing.T) {
	d := Decide(nil, domain.ResourceDiagnosis, domain.AccessRead, time.Now())
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonNoConsent, d.Reason)
	assert.True(t, d.MatchedTokenID.IsNil())
}

func TestDecide_MatchingActiveToken(t *testing.T) {
	now := time.Now()
	tok := token("p1", "d1", readDiagnosis())

	d := Decide([]*consent.Token{tok}, domain.ResourceDiagnosis, domain.AccessRead, now)
	assert.True(t, d.Granted)
	assert.Equal(t, ReasonOK, d.Reason)
	assert.Equal(t, tok.TokenID, d.MatchedTokenID)
}

func TestDecide_RevokedTokenIsInvisible(t *testing.T) {
	now := time.Now()
	tok := token("p1", "d1", readDiagnosis(), revoked(now.Add(-time.Hour)))

	d := Decide([]*consent.Token{tok}, domain.ResourceDiagnosis, domain.AccessRead, now)
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonNoConsent, d.Reason)
}

func TestDecide_ExpiredToken(t *testing.T) {
	now := time.Now()

	t.Run("expired matching token reports expiry", func(t *testing.T) {
		tok := token("p1", "d1", readDiagnosis(), expiring(now.Add(-time.Minute)))
		d := Decide([]*consent.Token{tok}, domain.ResourceDiagnosis, domain.AccessRead, now)
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonExpired, d.Reason)
	})

	t.Run("expiration boundary is exclusive", func(t *testing.T) {
		tok := token("p1", "d1", readDiagnosis(), expiring(now))
		d := Decide([]*consent.Token{tok}, domain.ResourceDiagnosis, domain.AccessRead, now)
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonExpired, d.Reason)
	})

	t.Run("one nanosecond before expiry still grants", func(t *testing.T) {
		tok := token("p1", "d1", readDiagnosis(), expiring(now.Add(time.Nanosecond)))
		d := Decide([]*consent.Token{tok}, domain.ResourceDiagnosis, domain.AccessRead, now)
		assert.True(t, d.Granted)
	})

	t.Run("expired token with non-matching permissions is no consent", func(t *testing.T) {
		tok := token("p1", "d1", readDiagnosis(), expiring(now.Add(-time.Minute)))
		d := Decide([]*consent.Token{tok}, domain.ResourceImaging, domain.AccessRead, now)
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonNoConsent, d.Reason)
	})
}

func TestDecide_PermissionMismatches(t *testing.T) {
	now := time.Now()

	t.Run("different resource type", func(t *testing.T) {
		tok := token("p1", "d1", readDiagnosis())
		d := Decide([]*consent.Token{tok}, domain.ResourceLabResult, domain.AccessRead, now)
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonWrongResourceType, d.Reason)
	})

	t.Run("write does not imply read", func(t *testing.T) {
		tok := token("p1", "d1", []consent.Permission{
			{ResourceType: domain.ResourceDiagnosis, AccessLevel: domain.AccessWrite},
		})
		d := Decide([]*consent.Token{tok}, domain.ResourceDiagnosis, domain.AccessRead, now)
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonWrongAccessLevel, d.Reason)
	})

	t.Run("read does not imply write", func(t *testing.T) {
		tok := token("p1", "d1", readDiagnosis())
		d := Decide([]*consent.Token{tok}, domain.ResourceDiagnosis, domain.AccessWrite, now)
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonWrongAccessLevel, d.Reason)
	})

	t.Run("multi-permission token matches exactly one entry", func(t *testing.T) {
		tok := token("p1", "d1", []consent.Permission{
			{ResourceType: domain.ResourceDiagnosis, AccessLevel: domain.AccessRead},
			{ResourceType: domain.ResourceLabResult, AccessLevel: domain.AccessWrite},
		})
		d := Decide([]*consent.Token{tok}, domain.ResourceLabResult, domain.AccessWrite, now)
		assert.True(t, d.Granted)
		d = Decide([]*consent.Token{tok}, domain.ResourceLabResult, domain.AccessRead, now)
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonWrongAccessLevel, d.Reason)
	})
}

// Conflicting concurrent grants resolve deterministically: when several
// active tokens match, the most recently created one is reported as the
// matched token. This is a documented design decision, not an accident of
// iteration order.
func TestDecide_LatestGrantWinsOnMultipleMatches(t *testing.T) {
	now := time.Now()
	older := token("p1", "d1", readDiagnosis(), createdAt(now.Add(-2*time.Hour)))
	newer := token("p1", "d1", readDiagnosis(), createdAt(now.Add(-time.Hour)))

	for _, order := range [][]*consent.Token{{older, newer}, {newer, older}} {
		d := Decide(order, domain.ResourceDiagnosis, domain.AccessRead, now)
		require.True(t, d.Granted)
		assert.Equal(t, newer.TokenID, d.MatchedTokenID)
	}
}

func TestDecide_MixedTokenStates(t *testing.T) {
	now := time.Now()
	revokedTok := token("p1", "d1", readDiagnosis(), revoked(now.Add(-time.Hour)))
	expiredTok := token("p1", "d1", readDiagnosis(), expiring(now.Add(-time.Minute)))
	wrongType := token("p1", "d1", []consent.Permission{
		{ResourceType: domain.ResourceImaging, AccessLevel: domain.AccessRead},
	})
	liveMatch := token("p1", "d1", readDiagnosis())

	t.Run("live match wins over every degraded token", func(t *testing.T) {
		d := Decide([]*consent.Token{revokedTok, expiredTok, wrongType, liveMatch}, domain.ResourceDiagnosis, domain.AccessRead, now)
		require.True(t, d.Granted)
		assert.Equal(t, liveMatch.TokenID, d.MatchedTokenID)
	})

	t.Run("expired match outranks active mismatch as a reason", func(t *testing.T) {
		d := Decide([]*consent.Token{expiredTok, wrongType}, domain.ResourceDiagnosis, domain.AccessRead, now)
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonExpired, d.Reason)
	})
}

func TestDecide_IsPure(t *testing.T) {
	now := time.Now()
	tok := token("p1", "d1", readDiagnosis())
	tokens := []*consent.Token{tok}

	first := Decide(tokens, domain.ResourceDiagnosis, domain.AccessRead, now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Decide(tokens, domain.ResourceDiagnosis, domain.AccessRead, now))
	}
	assert.True(t, tok.IsActive)
	assert.Nil(t, tok.RevokedAt)
}

func TestEvaluator_Evaluate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := consent.NewInMemoryStore()
	eval := NewEvaluator(store)

	tok := token("p1", "d1", readDiagnosis())
	require.NoError(t, store.Save(ctx, tok))

	d, err := eval.Evaluate(ctx, "d1", "p1", domain.ResourceDiagnosis, domain.AccessRead, now)
	require.NoError(t, err)
	assert.True(t, d.Granted)

	d, err = eval.Evaluate(ctx, "d2", "p1", domain.ResourceDiagnosis, domain.AccessRead, now)
	require.NoError(t, err)
	assert.False(t, d.Granted)
	assert.Equal(t, ReasonNoConsent, d.Reason)
}

type failingSource struct{}

func (failingSource) ListByPair(context.Context, domain.PatientID, domain.ProviderID) ([]*consent.Token, error) {
	return nil, context.DeadlineExceeded
}

func TestEvaluator_StoreFailureIsUnavailable(t *testing.T) {
	eval := NewEvaluator(failingSource{})
	_, err := eval.Evaluate(context.Background(), "d1", "p1", domain.ResourceDiagnosis, domain.AccessRead, time.Now())
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
}
