// Package internal holds helpers private to goOTP: one-time code generation,
// code hashing and email normalization.
//
// Sub-packages:
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis fixed-window throttles for the mock backend
//   - stores: Redis one-time code records with atomic consume
package internal
