package tokenstore

import "context"

// TokenStore reads and writes the broker API key to persistent storage.
//
// The key is static and set once at deploy time, so a read-only backend
// (env) is a valid choice alongside the writable ones (file, keyring).
type TokenStore interface {
	// Read returns the stored token. Returns error if token is missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the token to storage. Returns error if storage backend
	// is read-only (e.g., environment variables) or if write operation fails.
	Write(ctx context.Context, token string) error
}
