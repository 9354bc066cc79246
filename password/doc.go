// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Passwords are hashed as raw bytes, without Unicode normalization, and must be
// at least [MinLength] bytes long. [Hasher.NeedsRehash] reports hashes produced
// with weaker parameters than the current configuration.
package password
