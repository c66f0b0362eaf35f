package steris

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tfkr-ae/steris/domain"
)

// Credentials is the payload for a password login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the payload for account creation.
type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// SessionManager owns the authentication state machine. It is the sole writer of the
// credential repository: the request authorizer and the realtime manager only ever
// read tokens or trigger the public Refresh operation.
type SessionManager struct {
	repo    domain.CredentialRepository
	logger  *slog.Logger
	baseURL string
	client  *http.Client

	// group collapses concurrent refresh attempts into a single network call.
	group singleflight.Group

	mu     sync.RWMutex
	tokens domain.TokenPair
	user   *domain.UserProfile

	state *Observable[domain.SessionState]
}

// NewSessionManager constructs a SessionManager on top of a credential repository.
// The initial observable state is derived from whatever is currently persisted,
// an optimistic local check that the server only corrects once a protected call
// round-trips.
func NewSessionManager(repo domain.CredentialRepository, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}

	s := &SessionManager{
		repo:   repo,
		logger: logger,
	}

	tokens, err := repo.GetTokens()
	if err != nil {
		logger.Warn("could not load persisted tokens", "err", err)
	} else {
		s.tokens = tokens
	}

	user, err := repo.GetProfile()
	if err != nil {
		logger.Warn("could not load cached profile", "err", err)
	} else {
		s.user = user
	}

	s.state = NewObservable(domain.SessionState{
		User:          s.user,
		Authenticated: tokenUsable(s.tokens.AccessToken),
	})

	return s
}

// bind attaches the HTTP client and API base once the transport chain referencing
// this manager has been built.
func (s *SessionManager) bind(client *http.Client, baseURL string) {
	s.client = client
	s.baseURL = baseURL
}

// Login authenticates with the given credentials. On success the token pair is
// persisted, the state becomes authenticated, and the user profile is fetched in the
// background; a profile failure never rolls back the login. On failure the state is
// left unauthenticated and the error is surfaced unchanged.
func (s *SessionManager) Login(ctx context.Context, creds Credentials) (domain.TokenPair, error) {
	var pair domain.TokenPair
	if err := s.doJSON(ctx, http.MethodPost, "/auth/login", creds, &pair); err != nil {
		return domain.TokenPair{}, err
	}

	if err := s.storeTokens(pair); err != nil {
		return domain.TokenPair{}, err
	}

	go s.loadProfile(context.WithoutCancel(ctx))

	return pair, nil
}

// Signup creates an account and establishes a session with the returned tokens,
// following the same persistence and profile-fetch path as Login.
func (s *SessionManager) Signup(ctx context.Context, req SignupRequest) (domain.TokenPair, error) {
	var pair domain.TokenPair
	if err := s.doJSON(ctx, http.MethodPost, "/auth/signup", req, &pair); err != nil {
		return domain.TokenPair{}, err
	}

	if err := s.storeTokens(pair); err != nil {
		return domain.TokenPair{}, err
	}

	go s.loadProfile(context.WithoutCancel(ctx))

	return pair, nil
}

// ForgotPassword requests a password-reset email. The endpoint is an auth bootstrap
// path and never carries a bearer token.
func (s *SessionManager) ForgotPassword(ctx context.Context, email string) error {
	payload := struct {
		Email string `json:"email"`
	}{Email: email}
	return s.doJSON(ctx, http.MethodPost, "/auth/forgot-password", payload, nil)
}

// ResetPassword completes a password reset using the emailed reset token.
func (s *SessionManager) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	payload := struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}{Token: resetToken, Password: newPassword}
	return s.doJSON(ctx, http.MethodPost, "/auth/reset-password", payload, nil)
}

// Refresh exchanges the stored refresh token for a new pair. Concurrent callers share
// a single network call; every waiter observes the same outcome. A refresh with no
// stored refresh token fails immediately with ErrNoRefreshToken and issues no network
// call. Every refresh failure, including that one, clears all session state (forced
// logout) before the error propagates; it is never silently retried.
func (s *SessionManager) Refresh(ctx context.Context) (domain.TokenPair, error) {
	// The surviving flight must not die with the first caller that gives up.
	ctx = context.WithoutCancel(ctx)

	result, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	return result.(domain.TokenPair), nil
}

func (s *SessionManager) refresh(ctx context.Context) (domain.TokenPair, error) {
	s.mu.RLock()
	refreshToken := s.tokens.RefreshToken
	s.mu.RUnlock()

	if refreshToken == "" {
		// Nothing to refresh with: the session is dead and gets the same
		// global clearance as a rejected refresh.
		s.Clear()
		return domain.TokenPair{}, ErrNoRefreshToken
	}

	payload := struct {
		RefreshToken string `json:"refresh_token"`
	}{RefreshToken: refreshToken}

	var pair domain.TokenPair
	if err := s.doJSON(ctx, http.MethodPost, "/auth/refresh", payload, &pair); err != nil {
		s.Clear()
		return domain.TokenPair{}, fmt.Errorf("%w : %w", ErrRefreshFailed, err)
	}

	if err := s.storeTokens(pair); err != nil {
		return domain.TokenPair{}, err
	}

	return pair, nil
}

// Logout notifies the server (best effort) and unconditionally clears the local
// session, even if the network call fails.
func (s *SessionManager) Logout(ctx context.Context) {
	if err := s.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		s.logger.Warn("logout call failed, clearing locally anyway", "err", err)
	}
	s.Clear()
}

// GlobalLogout revokes the session on every device (best effort) and unconditionally
// clears the local session.
func (s *SessionManager) GlobalLogout(ctx context.Context) {
	if err := s.doJSON(ctx, http.MethodPost, "/auth/global-logout", nil, nil); err != nil {
		s.logger.Warn("global logout call failed, clearing locally anyway", "err", err)
	}
	s.Clear()
}

// Clear wipes the persisted and in-memory session state and publishes the
// unauthenticated state. It is the single global failure path for "the session is no
// longer valid".
func (s *SessionManager) Clear() {
	if err := s.repo.Clear(); err != nil {
		s.logger.Error("clearing credential store", "err", err)
	}

	s.mu.Lock()
	s.tokens = domain.TokenPair{}
	s.user = nil
	s.mu.Unlock()

	s.publish()
}

// HasValidToken reports whether a locally-parseable, unexpired access token exists.
// This is a pure, synchronous check; any parse failure counts as invalid.
func (s *SessionManager) HasValidToken() bool {
	s.mu.RLock()
	token := s.tokens.AccessToken
	s.mu.RUnlock()
	return tokenUsable(token)
}

// AccessToken returns the current access token, empty when logged out.
func (s *SessionManager) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken
}

// CurrentUser returns the cached user profile, nil when none is available.
func (s *SessionManager) CurrentUser() *domain.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// State exposes the session state observable. New subscribers immediately receive
// the current value.
func (s *SessionManager) State() *Observable[domain.SessionState] {
	return s.state
}

// tokenUsable is the fail-closed local expiry check.
func tokenUsable(token string) bool {
	if token == "" {
		return false
	}
	exp, err := tokenExpiry(token)
	if err != nil {
		return false
	}
	return exp.After(time.Now())
}

func (s *SessionManager) storeTokens(pair domain.TokenPair) error {
	if err := s.repo.SetTokens(pair); err != nil {
		return fmt.Errorf("persisting tokens : %w", err)
	}

	s.mu.Lock()
	s.tokens = pair
	s.mu.Unlock()

	s.publish()
	return nil
}

// loadProfile fetches the authoritative user record and caches it. Failures only log;
// the session stays valid on a cached or absent profile.
func (s *SessionManager) loadProfile(ctx context.Context) {
	var profile domain.UserProfile
	if err := s.doJSON(ctx, http.MethodGet, "/user/profile", nil, &profile); err != nil {
		s.logger.Warn("could not fetch user profile", "err", err)
		return
	}

	if err := s.repo.SetProfile(&profile); err != nil {
		s.logger.Warn("could not cache user profile", "err", err)
	}

	s.mu.Lock()
	s.user = &profile
	s.mu.Unlock()

	s.publish()
}

func (s *SessionManager) publish() {
	s.mu.RLock()
	state := domain.SessionState{
		User:          s.user,
		Authenticated: tokenUsable(s.tokens.AccessToken),
	}
	s.mu.RUnlock()

	s.state.Set(state)
}

// doJSON issues a request against the API base with a JSON body and decodes a JSON
// response into out when provided. Failures arrive already normalized by the
// transport chain.
func (s *SessionManager) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s body : %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s request : %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req = ContextWithRequestID(req, uuid.New())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s : %w", path, err)
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response : %w", path, err)
	}

	return nil
}
