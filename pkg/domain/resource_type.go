package domain

import dErrors "medledger/pkg/domain-errors"

// ResourceType is a domain value that identifies a category of medical record.
// Invariant: the value must be one of the supported resource types.
//
// Usage: construct via ParseResourceType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ResourceType string

// Supported resource types.
const (
	ResourceDiagnosis        ResourceType = "diagnosis"
	ResourcePrescription     ResourceType = "prescription"
	ResourceLabResult        ResourceType = "lab_result"
	ResourceImaging          ResourceType = "imaging"
	ResourceConsultationNote ResourceType = "consultation_note"
)

// validResourceTypes is the single source of truth for valid resource types.
var validResourceTypes = map[ResourceType]bool{
	ResourceDiagnosis:        true,
	ResourcePrescription:     true,
	ResourceLabResult:        true,
	ResourceImaging:          true,
	ResourceConsultationNote: true,
}

// ParseResourceType constructs a ResourceType from external input.
//
// Errors: returns CodeBadRequest when the value is empty or unsupported.
func ParseResourceType(s string) (ResourceType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "resource type cannot be empty")
	}
	rt := ResourceType(s)
	if !rt.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid resource type: "+s)
	}
	return rt, nil
}

// IsValid checks if the resource type is one of the supported enum values.
func (rt ResourceType) IsValid() bool {
	return validResourceTypes[rt]
}

// String returns the string representation of the resource type.
func (rt ResourceType) String() string {
	return string(rt)
}

// AccessLevel is the capability a consent grant conveys over a resource type.
// Levels are deliberately non-hierarchical: write does not imply read, because
// the ability to create related records is a distinct capability from reading
// existing ones.
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
)

var validAccessLevels = map[AccessLevel]bool{
	AccessRead:  true,
	AccessWrite: true,
}

// ParseAccessLevel constructs an AccessLevel from external input.
func ParseAccessLevel(s string) (AccessLevel, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "access level cannot be empty")
	}
	al := AccessLevel(s)
	if !al.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid access level: "+s)
	}
	return al, nil
}

// IsValid checks if the access level is one of the supported enum values.
func (al AccessLevel) IsValid() bool {
	return validAccessLevels[al]
}

// String returns the string representation of the access level.
func (al AccessLevel) String() string {
	return string(al)
}
