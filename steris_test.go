package steris

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tfkr-ae/steris/domain"
)

// memRepo is an in-memory domain.CredentialRepository so the core can be exercised
// without touching SQLite.
type memRepo struct {
	mu      sync.Mutex
	tokens  domain.TokenPair
	profile *domain.UserProfile
}

func (r *memRepo) GetTokens() (domain.TokenPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens, nil
}

func (r *memRepo) SetTokens(pair domain.TokenPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = pair
	return nil
}

func (r *memRepo) ClearTokens() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = domain.TokenPair{}
	return nil
}

func (r *memRepo) GetProfile() (*domain.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profile, nil
}

func (r *memRepo) SetProfile(profile *domain.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profile = profile
	return nil
}

func (r *memRepo) ClearProfile() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profile = nil
	return nil
}

func (r *memRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = domain.TokenPair{}
	r.profile = nil
	return nil
}

func (r *memRepo) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeToken signs a minimal access token whose only claim is the expiry.
func makeToken(t *testing.T, exp time.Time) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test token : %v", err)
	}

	return token
}

func newTestClient(t *testing.T, baseURL string, repo domain.CredentialRepository, extra ...func(*Client) error) *Client {
	t.Helper()

	options := append([]func(*Client) error{
		WithRepo(repo),
		WithBaseURL(baseURL),
		WithLogger(discardLogger()),
	}, extra...)

	client, err := New(options...)
	if err != nil {
		t.Fatalf("steris.New() failed: %v", err)
	}

	return client
}

// waitFor polls a condition until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, want string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("\nwanted:\n%s\ngot:\ntimeout after %s", want, timeout)
}
