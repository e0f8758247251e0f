// Package auth provides authentication and authorization for timechamp.
//
// # Credentials
//
// Two kinds of credentials identify a caller:
//
//   - Sessions: a browser logs in with username and password and receives an
//     opaque 128-character session key in the "tsess" cookie. Sessions have no
//     time-based expiry; they end on logout, explicit revoke, a permission
//     change of the owner, or deletion of the owner.
//
//   - API keys: long-lived 64-character secrets sent as
//     "X-API-Key: Bearer <secret>". Each key carries its own permission, which
//     may be lower than the owner's.
//
// Both are opaque strings looked up in the store, so revoking a row revokes
// the credential immediately.
//
// # Permissions
//
// Permissions are ordered READ < READ_WRITE < MANAGE (see store.Permission).
// Routes declare the literal set of permissions they accept; Authorize checks
// set membership rather than an implied hierarchy.
//
// # Request Pipeline
//
// Authenticator exposes two middlewares that are attached per route:
//
//	auth.Chain(handler,
//		authn.RequireAuthentication(),
//		authn.RequirePermission(store.PermissionReadWrite, store.PermissionManage),
//	)
//
// RequireAuthentication resolves a Principal (API key header first, then the
// session cookie) and stores it in the request context. RequirePermission
// then authorizes it. Failures short-circuit with 401 or 403.
//
// # Errors
//
// Lookups distinguish three outcomes: found, ErrUnauthenticated (unknown or
// malformed credential) and ErrStoreUnavailable (the database failed). A
// database failure is never reported as an authentication failure.
package auth
