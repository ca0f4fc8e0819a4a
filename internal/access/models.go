package access

import "medledger/pkg/domain"

// Reason explains an access decision. OK accompanies granted decisions; the
// rest name the first obstacle the evaluator found.
type Reason string

const (
	ReasonOK                Reason = "OK"
	ReasonNoConsent         Reason = "NO_CONSENT"
	ReasonExpired           Reason = "EXPIRED"
	ReasonRevoked           Reason = "REVOKED"
	ReasonWrongResourceType Reason = "WRONG_RESOURCE_TYPE"
	ReasonWrongAccessLevel  Reason = "WRONG_ACCESS_LEVEL"
)

func (r Reason) String() string { return string(r) }

// Decision is the evaluator's verdict for one (provider, patient, resource
// type, access level) question at one instant.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  Reason `json:"reason"`
	// MatchedTokenID is set only when Granted, naming the consent token that
	// authorized the access.
	MatchedTokenID domain.TokenID `json:"matched_token_id,omitempty"`
}
