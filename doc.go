// Package goOTP drives the sign-in lifecycle of a small dashboard: email
// one-time codes, a password variant, registration, token refresh and the
// route guard in front of the protected area.
//
// An [Engine] is built once with [Builder]. Each client scope (a browser, a
// test, a CLI user) gets a [Flow], the controller that walks
// Unauthenticated → OtpRequested → Verifying → Authenticated and back on
// logout or detected expiry. A Flow never runs two operations at once; a
// second call while one is in flight fails with [ErrRequestInFlight].
//
// Client state lives in a session.Store: auth_token and user_data for the
// signed-in identity, and the short-lived auth_email handoff slot that lets
// the verify step survive a reload. Remote calls go through a [Backend];
// mockapi.Server is the simulated one.
//
// Timers (resend countdown, refresh ahead of token expiry) run on the
// injected clock.Clock, so tests fast-forward them with clock.Fake.
//
// # What this package must NOT do
//
//   - Trust a token it did not receive from the Backend; expiry is only
//     peeked to schedule refreshes.
//   - Hold the Flow state lock across a Backend call.
package goOTP
