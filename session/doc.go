// Package session owns the client-side authentication state: the issued
// token, the cached user profile and the short-lived handoff slot that
// carries the email address between the login and verification steps.
//
// # Storage capability
//
// State is written through a [Storage] capability (get/set/delete with
// TTL). [NewRedisStorage] backs it with Redis; [NewMemoryStorage] is an
// in-process fake whose expiry follows an injected clock.
//
// # Keys
//
// Per client scope the [Store] writes:
//
//	<scope>:auth_token   opaque token string        (persistent storage)
//	<scope>:user_data    JSON-encoded [User]        (persistent storage)
//	<scope>:auth_email   pending email address      (session-scoped storage)
//
// A [Session] is considered present only when both persistent keys decode.
//
// # What this package must NOT do
//
//   - Import goOTP, jwt or mockapi (no upward imports).
//   - Decide whether a token is still valid; callers detect expiry.
package session
