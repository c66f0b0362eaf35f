// Package db provides the persistence layer for the Steris client library.
// It encapsulates all interactions with the underlying SQLite database, holding
// the durable session cache: the access token, the refresh token, and the
// serialized user profile.
//
// This package is responsible for:
// - Establishing and managing the database connection (`db.go`).
// - Implementing the `domain.CredentialRepository` interface (`credential_repo.go`).
// - Keeping the token pair write atomic: both halves are written by one statement,
//   so a crash can never leave one half persisted without the other.
// - Managing database migrations (`migrations/`).
package db
