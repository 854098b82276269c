// Package adminkey hashes and verifies the operator API key that guards the
// admin HTTP routes and mutating CLI commands.
//
// Hashes use Argon2id in the PHC-like format
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Hash strings are untrusted input during Verify: parameters far above the
// configured cost are refused.
package adminkey
