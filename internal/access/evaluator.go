// Package access holds the pure consent evaluation logic. No I/O happens in
// Decide; the Evaluator only reads grants through a GrantSource, so repeated
// evaluation (retries, dry runs) is always safe.
package access

import (
	"context"
	"time"

	"medledger/internal/consent"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// Evaluator answers access questions against current consent state. It never
// mutates anything and never writes audit entries; callers own side effects.
type Evaluator struct {
	grants consent.GrantSource
}

func NewEvaluator(grants consent.GrantSource) *Evaluator {
	return &Evaluator{grants: grants}
}

// Evaluate loads the pair's consent tokens and decides. The reference time
// comes from the caller so a single request sees one consistent clock.
func (e *Evaluator) Evaluate(ctx context.Context, providerID domain.ProviderID, patientID domain.PatientID, rt domain.ResourceType, al domain.AccessLevel, now time.Time) (Decision, error) {
	tokens, err := e.grants.ListByPair(ctx, patientID, providerID)
	if err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store unavailable")
	}
	return Decide(tokens, rt, al, now), nil
}

// Decide is the pure decision function. Revoked tokens are treated as if they
// never existed; expiration is applied lazily against now.
//
// A pair normally carries at most one live grant, but nothing enforces that,
// so ties are broken deterministically: when several active tokens match, the
// latest createdAt wins. Most recently granted intent prevails.
func Decide(tokens []*consent.Token, rt domain.ResourceType, al domain.AccessLevel, now time.Time) Decision {
	var (
		matched          *consent.Token
		sawActive        bool
		sawExpiredMatch  bool
		sawResourceMatch bool
	)
	for _, t := range tokens {
		if !t.IsActive {
			// Revoked. Contributes nothing, not even a denial reason.
			continue
		}
		if t.Expired(now) {
			if t.Allows(rt, al) {
				sawExpiredMatch = true
			}
			continue
		}
		sawActive = true
		if t.Allows(rt, al) {
			if matched == nil || t.CreatedAt.After(matched.CreatedAt) {
				matched = t
			}
			continue
		}
		for _, p := range t.Permissions {
			if p.ResourceType == rt {
				sawResourceMatch = true
			}
		}
	}

	switch {
	case matched != nil:
		return Decision{Granted: true, Reason: ReasonOK, MatchedTokenID: matched.TokenID}
	case sawExpiredMatch:
		return Decision{Granted: false, Reason: ReasonExpired}
	case !sawActive:
		return Decision{Granted: false, Reason: ReasonNoConsent}
	case sawResourceMatch:
		return Decision{Granted: false, Reason: ReasonWrongAccessLevel}
	default:
		return Decision{Granted: false, Reason: ReasonWrongResourceType}
	}
}
