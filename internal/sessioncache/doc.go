// Package sessioncache keeps recently validated sessions in memory so that
// most authenticated requests avoid a database read.
//
// Entries are keyed by the opaque session key. The cache is size-limited with
// insertion-ordered eviction and an optional freshness TTL. Eviction never ends
// a session: a missing entry is simply reloaded from the store.
package sessioncache
