package models

import "sort"

// Role is the closed set of principal roles accepted by profiles_role_check.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCollege Role = "college"
	RoleStudent Role = "student"
)

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCollege, RoleStudent:
		return true
	}
	return false
}

// Capability names a permission granted to a role.
type Capability string

const (
	CapCreateEvent            Capability = "create_event"
	CapApproveEvent           Capability = "approve_event"
	CapRejectEvent            Capability = "reject_event"
	CapCompleteEvent          Capability = "complete_event"
	CapEditAny                Capability = "edit_any"
	CapDeleteAny              Capability = "delete_any"
	CapOverrideRole           Capability = "override_role"
	CapEditOwnPendingEvent    Capability = "edit_own_pending_event"
	CapCreateSubEventOwnEvent Capability = "create_sub_event_for_own_approved_event"
	CapEditOwnSubEvent        Capability = "edit_own_sub_event"
	CapRegister               Capability = "register"
)

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Any reports whether the set contains at least one of caps.
func (s CapabilitySet) Any(caps ...Capability) bool {
	for _, c := range caps {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// List returns the capabilities sorted by name.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Each role's set is spelled out in full; no role inherits from another.
var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapCreateEvent, CapApproveEvent, CapRejectEvent, CapCompleteEvent,
		CapEditAny, CapDeleteAny, CapOverrideRole,
	},
	RoleCollege: {
		CapCreateEvent, CapEditOwnPendingEvent, CapCreateSubEventOwnEvent, CapEditOwnSubEvent,
	},
	RoleStudent: {
		CapRegister,
	},
}

// CapabilitiesFor returns a fresh capability set for role. ok is false when the
// role is outside the closed set.
func CapabilitiesFor(role Role) (CapabilitySet, bool) {
	caps, ok := roleCapabilities[role]
	if !ok {
		return nil, false
	}
	return NewCapabilitySet(caps...), true
}
