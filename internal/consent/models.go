package consent

import (
	"time"

	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// Permission pairs a resource type with the access level granted over it.
// Access levels are not hierarchical: write does not imply read.
type Permission struct {
	ResourceType domain.ResourceType `json:"resource_type"`
	AccessLevel  domain.AccessLevel  `json:"access_level"`
}

// Token is a patient's signed, time-bounded grant of specific permissions to
// one provider. Permissions and parties are immutable after creation; the only
// permitted mutation is revocation. Tokens are never physically deleted.
type Token struct {
	TokenID          domain.TokenID    `json:"token_id"`
	PatientID        domain.PatientID  `json:"patient_id"`
	ProviderID       domain.ProviderID `json:"provider_id"`
	Permissions      []Permission      `json:"permissions"`
	ExpirationTime   *time.Time        `json:"expiration_time,omitempty"`
	IsActive         bool              `json:"is_active"`
	CreatedAt        time.Time         `json:"created_at"`
	RevokedAt        *time.Time        `json:"revoked_at,omitempty"`
	PatientSignature []byte            `json:"patient_signature"`
	// RevocationSignature is recorded at revoke time so the revoke request
	// itself stays verifiable. The store does not validate ownership; the
	// orchestrating layer does that before calling Revoke.
	RevocationSignature []byte `json:"revocation_signature,omitempty"`
}

// ActiveAt reports whether the token authorizes anything at the given instant.
// Expiration is evaluated lazily here, on every read: a token past its
// expiration is inactive even if no cleanup has flipped IsActive yet.
func (t *Token) ActiveAt(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.ExpirationTime != nil && !now.Before(*t.ExpirationTime) {
		return false
	}
	return true
}

// Expired reports whether the token has passed its expiration time,
// independent of revocation.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpirationTime != nil && !now.Before(*t.ExpirationTime)
}

// Allows reports whether the token's permission set covers the exact
// resource type and access level requested.
func (t *Token) Allows(rt domain.ResourceType, al domain.AccessLevel) bool {
	for _, p := range t.Permissions {
		if p.ResourceType == rt && p.AccessLevel == al {
			return true
		}
	}
	return false
}

// ValidatePermissions enforces the grant-time constraints on a permission set.
func ValidatePermissions(perms []Permission) error {
	if len(perms) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "permissions must not be empty")
	}
	for _, p := range perms {
		if !p.ResourceType.IsValid() {
			return dErrors.New(dErrors.CodeBadRequest, "invalid resource type: "+p.ResourceType.String())
		}
		if !p.AccessLevel.IsValid() {
			return dErrors.New(dErrors.CodeBadRequest, "invalid access level: "+p.AccessLevel.String())
		}
	}
	return nil
}

// RevocationResult reports a completed revoke.
type RevocationResult struct {
	TokenID   domain.TokenID `json:"token_id"`
	RevokedAt time.Time      `json:"revoked_at"`
}
