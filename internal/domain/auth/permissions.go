package auth

// Capability names an action gated by role.
type Capability string

const (
	CapCreatePost             Capability = "create_post"
	CapViewOwnPosts           Capability = "view_own_posts"
	CapViewPendingSubmissions Capability = "view_pending_submissions"
	CapAcceptRejectSubmission Capability = "accept_reject_submissions"
	CapUploadDesignedVersion  Capability = "upload_designed_version"
	CapApproveDesigns         Capability = "approve_designs"
	CapDownloadOriginalFiles  Capability = "download_original_files"
	CapPublishPost            Capability = "publish_post"
	CapDeletePost             Capability = "delete_post"
	CapManageUsers            Capability = "manage_users"
	CapAssignEditors          Capability = "assign_editors"
	CapViewSecurityLogs       Capability = "view_security_logs"
)

var (
	everyone   = []Role{RoleUser, RoleEditor, RolePublisher, RoleAdmin}
	editorial  = []Role{RoleEditor, RolePublisher, RoleAdmin}
	publishers = []Role{RolePublisher, RoleAdmin}
	adminsOnly = []Role{RoleAdmin}
)

// capabilityOrder fixes the order used when listing capabilities.
var capabilityOrder = []Capability{
	CapCreatePost,
	CapViewOwnPosts,
	CapViewPendingSubmissions,
	CapAcceptRejectSubmission,
	CapUploadDesignedVersion,
	CapApproveDesigns,
	CapDownloadOriginalFiles,
	CapPublishPost,
	CapDeletePost,
	CapManageUsers,
	CapAssignEditors,
	CapViewSecurityLogs,
}

var capabilityRoles = map[Capability][]Role{
	CapCreatePost:             everyone,
	CapViewOwnPosts:           everyone,
	CapViewPendingSubmissions: editorial,
	CapAcceptRejectSubmission: editorial,
	CapUploadDesignedVersion:  editorial,
	CapApproveDesigns:         editorial,
	CapDownloadOriginalFiles:  editorial,
	CapPublishPost:            publishers,
	CapDeletePost:             adminsOnly,
	CapManageUsers:            adminsOnly,
	CapAssignEditors:          adminsOnly,
	CapViewSecurityLogs:       adminsOnly,
}

// AllCapabilities returns every known capability.
func AllCapabilities() []Capability {
	return append([]Capability(nil), capabilityOrder...)
}

// ParseCapability returns the capability named s and whether it is known.
func ParseCapability(s string) (Capability, bool) {
	c := Capability(s)
	_, ok := capabilityRoles[c]
	return c, ok
}

// isAdmin is the single place where the admin override is decided.
// Every other predicate in this file consults it first.
func isAdmin(roles []Role) bool {
	for _, r := range roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

func holds(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// HasPermission reports whether any role in roles grants capability.
// Unknown capabilities are denied to everyone but admin.
func HasPermission(roles []Role, capability Capability) bool {
	if isAdmin(roles) {
		return true
	}
	for _, allowed := range capabilityRoles[capability] {
		if holds(roles, allowed) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether roles grant at least one of caps.
func HasAnyPermission(roles []Role, caps ...Capability) bool {
	if isAdmin(roles) {
		return true
	}
	for _, c := range caps {
		if HasPermission(roles, c) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether roles grant every capability in caps.
func HasAllPermissions(roles []Role, caps ...Capability) bool {
	if isAdmin(roles) {
		return true
	}
	for _, c := range caps {
		if !HasPermission(roles, c) {
			return false
		}
	}
	return true
}

// HasRole reports whether roles contains want.
func HasRole(roles []Role, want Role) bool {
	return isAdmin(roles) || holds(roles, want)
}

// HasAnyRole reports whether roles contains at least one of want.
func HasAnyRole(roles []Role, want ...Role) bool {
	if isAdmin(roles) {
		return true
	}
	for _, w := range want {
		if holds(roles, w) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether roles contains every role in want.
func HasAllRoles(roles []Role, want ...Role) bool {
	if isAdmin(roles) {
		return true
	}
	for _, w := range want {
		if !holds(roles, w) {
			return false
		}
	}
	return true
}

// HighestLevel returns the largest hierarchy level in roles, 0 when empty.
func HighestLevel(roles []Role) int {
	highest := 0
	for _, r := range roles {
		if l := r.Level(); l > highest {
			highest = l
		}
	}
	return highest
}

// CanManageRole reports whether a holder of assigner may grant target.
// Non-admins must sit strictly above the target role.
func CanManageRole(assigner []Role, target Role) bool {
	if isAdmin(assigner) {
		return true
	}
	return HighestLevel(assigner) > target.Level()
}

// CanManageRoles applies CanManageRole to the highest role in targets.
func CanManageRoles(assigner, targets []Role) bool {
	if isAdmin(assigner) {
		return true
	}
	return HighestLevel(assigner) > HighestLevel(targets)
}

// PrimaryRole returns the highest role in roles, or user when empty.
// It is for display only.
func PrimaryRole(roles []Role) Role {
	primary := RoleUser
	for _, r := range roles {
		if r.Level() > primary.Level() {
			primary = r
		}
	}
	return primary
}

// PermissionsFor lists the capabilities granted to roles.
func PermissionsFor(roles []Role) []Capability {
	out := make([]Capability, 0, len(capabilityOrder))
	for _, c := range capabilityOrder {
		if HasPermission(roles, c) {
			out = append(out, c)
		}
	}
	return out
}
