package steris

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// exemptPaths are the authentication-bootstrap endpoints that never carry a bearer
// token. The refresh path is included so a rejected refresh can never trigger a
// second refresh recursively.
var exemptPaths = []string{
	"/auth/login",
	"/auth/signup",
	"/auth/refresh",
	"/auth/forgot-password",
	"/auth/reset-password",
	"/auth/lead/login",
	"/auth/lead/signup",
}

// authTransport attaches the current access token to every outgoing request and, on
// an authorization failure, drives a single coordinated refresh before resending the
// request exactly once. The single-flight guarantee lives in SessionManager.Refresh:
// no matter how many concurrent requests observe a 401 at the same time, at most one
// refresh network call is outstanding.
type authTransport struct {
	base    http.RoundTripper
	session *SessionManager
	logger  *slog.Logger
}

// isExempt reports whether the request path targets an auth bootstrap endpoint.
func isExempt(path string) bool {
	for _, exempt := range exemptPaths {
		if strings.HasSuffix(path, exempt) {
			return true
		}
	}
	return false
}

// RoundTrip satisfies http.RoundTripper.
func (a *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isExempt(req.URL.Path) || SkipAuthFromContext(req.Context()) {
		return a.base.RoundTrip(req)
	}

	if token := a.session.AccessToken(); token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// A request whose body cannot be replayed is not retried; the 401 stands.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	pair, err := a.session.Refresh(req.Context())
	if err != nil {
		if errors.Is(err, ErrNoRefreshToken) {
			err = fmt.Errorf("%w : %w", ErrAuthenticationFailed, err)
		}
		// Refresh clears the session on every failure path, including a missing
		// refresh token. The original 401 is replaced by the refresh outcome.
		resp.Body.Close()
		if id, ok := RequestIDFromContext(req.Context()); ok {
			a.logger.Warn("authorization retry abandoned", "request_id", id, "err", err)
		}
		return nil, fmt.Errorf("refreshing session after 401 : %w", err)
	}

	resp.Body.Close()

	retry, err := cloneForRetry(req)
	if err != nil {
		return nil, fmt.Errorf("replaying request after refresh : %w", err)
	}
	retry.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	return a.base.RoundTrip(retry)
}

// cloneForRetry rebuilds the request with a fresh body for the single post-refresh
// resend.
func cloneForRetry(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body : %w", err)
		}
		retry.Body = body
	}
	return retry, nil
}
