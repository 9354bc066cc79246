// Package stores keeps short-lived one-time code records in Redis.
//
// A record is a compact binary blob with a TTL. [CodeStore.Consume] runs a
// single Lua script that reads, checks expiry, compares the code hash and
// either deletes the record (match) or bumps its failure counter, so two
// concurrent verifications can never both succeed. Codes are stored only as
// hashes and compared in constant time on the Go side as well.
//
// This package does not generate codes, throttle requests or create
// sessions; the mock backend owns those decisions.
package stores
