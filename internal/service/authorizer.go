package service

import "strings"

// Capability names one thing a caller may be allowed to do. Handlers resolve
// the caller's identity from the JWT; services gate on capabilities so the
// role table lives in exactly one place.
type Capability string

// Known capabilities.
const (
	CapabilityEditPipeline       Capability = "edit-pipeline"
	CapabilityEvaluateAsStaff    Capability = "evaluate-as-staff"
	CapabilityViewAnalytics      Capability = "view-analytics"
	CapabilityUpdateOrganization Capability = "update-organization"
	CapabilityManagePresets      Capability = "manage-presets"
)

// Identity is the authenticated caller as seen by the service layer.
type Identity struct {
	UserID uint
	Role   string
}

// Authorizer answers capability checks for an identity.
type Authorizer interface {
	Can(identity Identity, capability Capability) bool
}

type roleAuthorizer struct {
	grants map[string]map[Capability]struct{}
}

// NewRoleAuthorizer builds the static role-to-capability table. Students hold
// no capabilities; they can only submit their own work.
func NewRoleAuthorizer() Authorizer {
	teacher := map[Capability]struct{}{
		CapabilityEditPipeline:    {},
		CapabilityEvaluateAsStaff: {},
		CapabilityViewAnalytics:   {},
	}
	admin := map[Capability]struct{}{
		CapabilityEditPipeline:       {},
		CapabilityEvaluateAsStaff:    {},
		CapabilityViewAnalytics:      {},
		CapabilityUpdateOrganization: {},
		CapabilityManagePresets:      {},
	}
	return &roleAuthorizer{grants: map[string]map[Capability]struct{}{
		"teacher": teacher,
		"admin":   admin,
	}}
}

func (a *roleAuthorizer) Can(identity Identity, capability Capability) bool {
	role := strings.ToLower(strings.TrimSpace(identity.Role))
	caps, ok := a.grants[role]
	if !ok {
		return false
	}
	_, granted := caps[capability]
	return granted
}
