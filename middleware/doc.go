// Package middleware adapts goOTP.Engine to net/http.
//
// # Handlers
//
//   - [Scope] assigns every browser a client scope cookie and stores the
//     scope in the request context.
//   - [Client] records the caller IP and device on the context for session
//     listings and per-IP throttling.
//   - [Guard] applies Engine.Guard to each request and answers denied
//     requests with a 303 redirect.
//
// # What this package must NOT do
//
//   - Read or write session storage directly (Engine handles I/O).
//   - Make routing decisions beyond what Engine.Guard returns.
package middleware
