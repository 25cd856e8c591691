// Package tokenstore provides persistent storage abstractions for the API
// key this proxy uses to authenticate itself to the session broker.
//
// Supports storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Env: Read-only environment variable access (requires external secret management)
//   - Keyring: OS-native secure credential storage
//
// Write is only exercised by the file and keyring backends; env storage is
// read-only, which is fine here since the broker API key is never rotated
// by this process (unlike the old per-session OAuth refresh tokens it used
// to store).
package tokenstore
