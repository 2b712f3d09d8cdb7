// Package ir provides identity types for the rxstore runtime.
//
// This package contains the addressing layer only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Every stored value is addressed by a Key, either positional (derived
//     from the position in a nested call tree) or content-addressed (a
//     64-bit hash over a call site plus its argument tuple)
//   - Content hashing runs over a canonical encoding (RFC 8785 style) so that
//     structurally equal arguments always hash identically
//   - NO float arguments in content keys - use int64 (breaks determinism)
//   - Hashes are domain separated so positional and content keys never collide
package ir
