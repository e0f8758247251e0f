// ABOUTME: Permission guard deciding whether a principal may use a route
// ABOUTME: Checks literal membership in the route's declared permission set

package auth

import "github.com/bluemedia/timechamp/internal/store"

// PermissionSet is the set of permissions a route accepts.
type PermissionSet []store.Permission

// Common route permission sets.
var (
	AnyPermission    = PermissionSet{store.PermissionRead, store.PermissionReadWrite, store.PermissionManage}
	WritePermission  = PermissionSet{store.PermissionReadWrite, store.PermissionManage}
	ManagePermission = PermissionSet{store.PermissionManage}
)

// Authorize reports whether perm is a member of required. An empty set
// allows nothing.
func Authorize(perm store.Permission, required PermissionSet) bool {
	return perm.Valid() && perm.In(required...)
}

// CanGrant reports whether a caller holding granter may hand out target.
// Only MANAGE may grant MANAGE; every other level may be granted by anyone.
func CanGrant(granter, target store.Permission) bool {
	if target == store.PermissionManage {
		return granter == store.PermissionManage
	}
	return true
}
