// Package auth authenticates API callers against the accounts listed in the
// configuration and issues short-lived JWT bearer tokens.
//
// Three roles exist:
//   - viewer reads registers, presets, sync status and the audit trail
//   - operator also writes registers and applies presets
//   - admin also saves, imports and deletes presets, resets the cache and
//     triggers probes
//
// Passwords are stored as Argon2id PHC strings; tokens are HS256 JWTs that
// are validated by signature alone.
package auth
