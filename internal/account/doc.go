// Package account owns user accounts: password login, user creation and
// deletion, password and permission changes, and per-user settings.
//
// Business rules that involve the caller live here rather than in handlers:
// a caller never changes its own permission, never deletes itself, and only a
// MANAGE caller hands out MANAGE. Each administrative change is written to the
// audit log.
package account
