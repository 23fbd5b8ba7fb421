// Package keys provides the signing keys used to sign canonical messages.
//
// Stable:
//   - Pure, deterministic primitives: issuer-key formatting, role-seed
//     derivation, digests, Sign and Verify for ed25519 and dilithium3.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore and related functions).
//     These are local-first utilities and may change.
package keys
