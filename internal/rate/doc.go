// Package rate provides Redis fixed-window throttles for the mock backend.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on first hit. Key prefixes:
//   - ro:  - one-time code requests per email
//   - roi: - one-time code requests per IP
//   - al:  - failed password logins per email
//
// Counters never reset early except the login counter, which a successful
// login clears.
package rate
