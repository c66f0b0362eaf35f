// Package steris provides the session and realtime connectivity core shared by the
// Steris client applications (the marketing site and the agency admin dashboard).
// It is designed to be decoupled from UI implementations and exposes the building
// blocks those applications drive their screens with.
//
// The core functionality includes:
//   - A bearer-token session kept valid across many concurrent outgoing requests,
//     with a single-flight refresh guarantee on authorization failure
//   - Uniform normalization of transport and status failures into one error shape
//   - A push-notification channel with keepalive and bounded, cooperative recovery
//   - A durable SQLite cache for the token pair and the user profile
//   - Observable session and connection state with replay of the latest value
package steris

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tfkr-ae/steris/domain"
)

// Client is the main struct that orchestrates the connectivity core. It wires the
// credential repository, the session manager, the transport chain, and the realtime
// manager together, and is the single instance the embedding application holds on to.
type Client struct {
	ConfigDir string                      // The configuration directory
	Config    *Config                     // The steris client configuration (separate from the GUI config)
	Repo      domain.CredentialRepository // Durable token and profile cache
	Logger    *slog.Logger                // Structured logger shared by all components
	Session   *SessionManager             // Authentication state machine
	Realtime  *RealtimeManager            // Push-notification channel
	HTTP      *http.Client                // Authorized client used for all API traffic
	BaseURL   string                      // API base every path is resolved against

	transport     http.RoundTripper // Base transport underneath the middleware chain
	socketFactory SocketFactory     // Socket constructor for the realtime channel
}

// New creates a new Client instance with default configuration and applies any
// provided options. It then builds the transport chain (error normalizer over
// request authorizer) and wires the session and realtime managers on top of it.
//
// Parameters:
//   - options: Variadic list of option functions to configure the client
//
// Returns:
//   - *Client: Configured client instance
//   - error: First error encountered during configuration
func New(options ...func(*Client) error) (*Client, error) {
	client := &Client{
		Config: &Config{
			PingInterval:         defaultPingInterval,
			ReconnectDelay:       defaultReconnectDelay,
			ReconnectMaxAttempts: defaultMaxReconnects,
		},
		Logger:    slog.Default(),
		transport: http.DefaultTransport,
	}

	if err := client.WithOptions(options...); err != nil {
		return nil, err
	}

	if client.BaseURL == "" {
		client.BaseURL = client.Config.APIBaseURL
	}
	if client.BaseURL == "" {
		return nil, errors.New("api base url is not configured")
	}
	if client.Repo == nil {
		return nil, errors.New("credential repository is not configured, use WithConfigDir or WithRepo")
	}

	session := NewSessionManager(client.Repo, client.Logger)

	chain := &normalizerTransport{
		base: &authTransport{
			base:    client.transport,
			session: session,
			logger:  client.Logger,
		},
		logger: client.Logger,
	}
	httpClient := &http.Client{Transport: chain}
	session.bind(httpClient, client.BaseURL)

	realtime := NewRealtimeManager(httpClient, client.BaseURL, client.Logger, client.socketFactory)
	if client.Config.PingInterval > 0 {
		realtime.pingInterval = client.Config.PingInterval
	}
	if client.Config.ReconnectDelay > 0 {
		realtime.reconnectDelay = client.Config.ReconnectDelay
	}
	if client.Config.ReconnectMaxAttempts > 0 {
		realtime.maxReconnects = client.Config.ReconnectMaxAttempts
	}

	client.HTTP = httpClient
	client.Session = session
	client.Realtime = realtime

	return client, nil
}

// Close disconnects the realtime channel and releases the credential store.
func (client *Client) Close() error {
	client.Realtime.Disconnect()
	if err := client.Repo.Close(); err != nil {
		return err
	}
	return nil
}
