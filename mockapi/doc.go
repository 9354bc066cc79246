// Package mockapi simulates the remote auth backend the dashboard talks to.
//
// Every endpoint first sleeps the configured latency on the injected clock,
// then works against Redis: a user directory, one-time code records with
// atomic consume, fixed-window throttles and a session registry indexed per
// user. Tokens are JWTs minted by the jwt package. In mock mode every issued
// code is the fixed test code (123456 by default).
//
// Keys, under the configured prefix:
//
//	<prefix>:user:<email>   JSON user record with password hash
//	<prefix>:uid:<id>       email index for profile lookups
//	<prefix>:sess:<sid>     JSON session record
//	<prefix>:usess:<uid>    set of session IDs for a user
//
// Expected failures are returned as the sentinel errors in this package.
// Redis failures are wrapped with an oops code and still match
// [ErrUnavailable] through errors.Is.
package mockapi
