// Package jwt issues and verifies the session tokens handed out by the mock
// backend, and lets clients read a token's expiry without verifying it so
// they can schedule a refresh ahead of time.
package jwt
