// Package permission defines the seam Manager's queue_item_add path calls
// before insertion (see SPEC_FULL.md §3's user_group supplement). The
// concrete permissions loader described in original_source (plans_allowed/
// devices_allowed exclude/include lists keyed by group) is out of scope —
// spec.md §1 names it an external collaborator — so only the interface and
// an always-allow default live here.
package permission

// Checker gates queue_item_add and answers plans_allowed/devices_allowed
// queries for a submitting group.
type Checker interface {
	// AllowPlan reports whether userGroup may submit a plan named name.
	AllowPlan(userGroup, name string) bool

	// PlansAllowed lists the plan names userGroup may submit.
	PlansAllowed(userGroup string) []string

	// DevicesAllowed lists the device names userGroup may reference.
	DevicesAllowed(userGroup string) []string
}

// AllowAll is the default Checker: every group may submit every plan and
// reference every device. It's the right default for a core that does not
// define plan semantics or device models (spec.md §1's Non-goals).
type AllowAll struct{}

// AllowPlan always returns true.
func (AllowAll) AllowPlan(userGroup, name string) bool { return true }

// PlansAllowed returns nil: no enumerable allow-list, everything is allowed.
func (AllowAll) PlansAllowed(userGroup string) []string { return nil }

// DevicesAllowed returns nil: no enumerable allow-list, everything is allowed.
func (AllowAll) DevicesAllowed(userGroup string) []string { return nil }

var _ Checker = AllowAll{}
