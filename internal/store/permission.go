// ABOUTME: Permission levels shared by users and API keys
// ABOUTME: Ordered READ < READ_WRITE < MANAGE with explicit comparison helpers

package store

import (
	"encoding/json"
	"fmt"
)

// Permission is the privilege level of a user or API key.
type Permission string

const (
	PermissionRead      Permission = "read"
	PermissionReadWrite Permission = "read_write"
	PermissionManage    Permission = "manage"
)

// ValidPermissions lists all permissions in ascending order.
var ValidPermissions = []Permission{
	PermissionRead,
	PermissionReadWrite,
	PermissionManage,
}

// ParsePermission converts a wire value into a Permission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}

// Valid reports whether p is one of the known levels.
func (p Permission) Valid() bool {
	return p.rank() > 0
}

func (p Permission) rank() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionReadWrite:
		return 2
	case PermissionManage:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether p is the same as or higher than min.
// Unknown permissions never satisfy anything.
func (p Permission) AtLeast(min Permission) bool {
	return p.Valid() && p.rank() >= min.rank()
}

// In reports whether p is literally one of the given permissions.
func (p Permission) In(set ...Permission) bool {
	for _, candidate := range set {
		if p == candidate {
			return true
		}
	}
	return false
}

func (p Permission) String() string {
	return string(p)
}

// UnmarshalJSON rejects unknown permission values.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("permission must be a string: %w", err)
	}
	parsed, err := ParsePermission(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
