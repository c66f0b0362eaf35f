package domain

// TokenPair is the credential unit issued by the auth service. The access token is a
// signed structure carrying an expiry claim; the refresh token is opaque. The pair is
// always persisted as a unit, never one half without the other.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether no credential is held at all.
func (p TokenPair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// UserProfile is a cached projection of the server-side user record. It is used to
// populate the UI immediately after startup or login and may be stale until the
// authoritative profile fetch resolves.
type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	AgencyID  string `json:"agencyId"`
}

// SessionState is the derived authentication state exposed to observers. It is
// recomputed whenever the token pair or the cached profile changes, never stored
// on its own. Authenticated is an optimistic, client-only determination; the
// server remains authoritative and may still reject a locally-valid token.
type SessionState struct {
	User          *UserProfile
	Authenticated bool
}

// CredentialRepository defines the interface for the durable token and profile cache.
// It provides the persistence contract consumed by the session manager, which is the
// only component that writes through it.
type CredentialRepository interface {
	// GetTokens retrieves the stored token pair. An empty pair (no error) means
	// no credential is currently persisted.
	GetTokens() (TokenPair, error)
	// SetTokens persists both halves of the pair in a single write.
	SetTokens(pair TokenPair) error
	// ClearTokens removes the stored token pair.
	ClearTokens() error
	// GetProfile retrieves the cached user profile, nil when none is stored.
	GetProfile() (*UserProfile, error)
	// SetProfile caches the user profile record.
	SetProfile(profile *UserProfile) error
	// ClearProfile removes the cached user profile.
	ClearProfile() error
	// Clear removes tokens and profile together. Used by logout and by forced
	// session clearance after a failed refresh.
	Clear() error
	// Close releases the underlying storage.
	Close() error
}
