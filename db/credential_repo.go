package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tfkr-ae/steris/domain"
)

var _ domain.CredentialRepository = (*Repository)(nil)

// dbCredential represents the token pair as stored in the database.
type dbCredential struct {
	AccessToken  string `db:"access_token"`  // The signed access token, empty when logged out.
	RefreshToken string `db:"refresh_token"` // The opaque refresh token, empty when logged out.
}

// toDomainPair converts a dbCredential to a domain.TokenPair.
func toDomainPair(cred *dbCredential) domain.TokenPair {
	return domain.TokenPair{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
	}
}

// GetTokens implements the domain.CredentialRepository interface.
// It retrieves the stored token pair from the 'credential' table. An empty pair
// means no credential is currently persisted.
func (repo *Repository) GetTokens() (domain.TokenPair, error) {
	var cred dbCredential
	query := `SELECT access_token, refresh_token FROM credential WHERE id = 1`
	err := repo.dbConn.Get(&cred, query)

	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("getting tokens: %w", err)
	}

	return toDomainPair(&cred), nil
}

// SetTokens implements the domain.CredentialRepository interface.
// Both halves of the pair are written by a single statement so the store can never
// hold one half without the other.
func (repo *Repository) SetTokens(pair domain.TokenPair) error {
	query := `UPDATE credential SET access_token = ?, refresh_token = ?, updated_at = ? WHERE id = 1`
	_, err := repo.dbConn.Exec(query, pair.AccessToken, pair.RefreshToken, time.Now())

	if err != nil {
		return fmt.Errorf("setting tokens: %w", err)
	}

	return nil
}

// ClearTokens implements the domain.CredentialRepository interface.
// It resets both token columns to the empty string.
func (repo *Repository) ClearTokens() error {
	query := `UPDATE credential SET access_token = '', refresh_token = '', updated_at = ? WHERE id = 1`
	_, err := repo.dbConn.Exec(query, time.Now())

	if err != nil {
		return fmt.Errorf("clearing tokens: %w", err)
	}

	return nil
}

// GetProfile implements the domain.CredentialRepository interface.
// It retrieves the cached user profile, which is stored as a JSON string,
// and unmarshals it into a domain.UserProfile. A nil profile (no error) means
// nothing is cached.
func (repo *Repository) GetProfile() (*domain.UserProfile, error) {
	var record sql.NullString
	query := `SELECT record FROM profile WHERE id = 1`
	err := repo.dbConn.Get(&record, query)

	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}

	if !record.Valid || record.String == "" {
		return nil, nil
	}

	var profile domain.UserProfile
	err = json.Unmarshal([]byte(record.String), &profile)

	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile JSON: %w", err)
	}

	return &profile, nil
}

// SetProfile implements the domain.CredentialRepository interface.
// It marshals the provided profile into a JSON string and updates the
// 'record' column in the 'profile' table.
func (repo *Repository) SetProfile(profile *domain.UserProfile) error {
	marshalledProfile, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	query := `UPDATE profile SET record = ?, updated_at = ? WHERE id = 1`
	_, err = repo.dbConn.Exec(query, string(marshalledProfile), time.Now())

	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	return nil
}

// ClearProfile implements the domain.CredentialRepository interface.
// It resets the cached profile record to NULL.
func (repo *Repository) ClearProfile() error {
	query := `UPDATE profile SET record = NULL, updated_at = ? WHERE id = 1`
	_, err := repo.dbConn.Exec(query, time.Now())

	if err != nil {
		return fmt.Errorf("clearing profile: %w", err)
	}

	return nil
}

// Clear implements the domain.CredentialRepository interface.
// Tokens and profile are removed inside one transaction since a forced logout
// must never leave a partially cleared session behind.
func (repo *Repository) Clear() error {
	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return fmt.Errorf("starting clear transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	_, err = tx.Exec(`UPDATE credential SET access_token = '', refresh_token = '', updated_at = ? WHERE id = 1`, now)
	if err != nil {
		return fmt.Errorf("clearing tokens: %w", err)
	}

	_, err = tx.Exec(`UPDATE profile SET record = NULL, updated_at = ? WHERE id = 1`, now)
	if err != nil {
		return fmt.Errorf("clearing profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear transaction: %w", err)
	}

	return nil
}
