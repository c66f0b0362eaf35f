package steris

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tfkr-ae/steris/domain"
)

const (
	// keepalivePayload is the literal outbound ping text; it is not JSON.
	keepalivePayload = "ping"
	// keepaliveAck is the literal inbound acknowledgment, discarded on arrival.
	keepaliveAck = "pong"

	defaultPingInterval   = 30 * time.Second
	defaultReconnectDelay = 3 * time.Second
	defaultMaxReconnects  = 5
)

// RealtimeManager keeps the push-notification channel alive over an unreliable
// transport. It obtains the connection endpoint through an authorized request,
// maintains a fixed-interval keepalive while connected, and recovers from drops
// with bounded, strictly sequential reconnect attempts. The socket handle is owned
// exclusively by this manager.
type RealtimeManager struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
	factory SocketFactory

	pingInterval   time.Duration
	reconnectDelay time.Duration
	maxReconnects  int

	stateObs *Observable[domain.ConnectionState]

	mu             sync.Mutex
	state          domain.ConnectionState
	socket         Socket
	attempts       int
	manualClose    bool
	keepaliveStop  chan struct{}
	reconnectTimer *time.Timer
	subs           []subscriber
}

// subscriber pairs a notification callback with a handle for cancellation.
type subscriber struct {
	id uuid.UUID
	fn func(domain.Notification)
}

// NewRealtimeManager constructs a RealtimeManager on top of the authorized HTTP
// client. The factory is invoked once per connection attempt.
func NewRealtimeManager(client *http.Client, baseURL string, logger *slog.Logger, factory SocketFactory) *RealtimeManager {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = NewWebSocket
	}

	return &RealtimeManager{
		client:         client,
		baseURL:        baseURL,
		logger:         logger,
		factory:        factory,
		pingInterval:   defaultPingInterval,
		reconnectDelay: defaultReconnectDelay,
		maxReconnects:  defaultMaxReconnects,
		stateObs:       NewObservable(domain.Disconnected),
	}
}

// Connect establishes the push channel. It is a no-op when a connection is already
// open or being established. An endpoint-fetch or dial failure abandons the attempt
// and is returned to the caller; no implicit retry happens on this path. An explicit
// Connect also resets the reconnect counter, so a channel that exhausted its
// automatic attempts can be revived.
func (m *RealtimeManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.Disconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = domain.Connecting
	m.manualClose = false
	m.attempts = 0
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.mu.Unlock()
	m.stateObs.Set(domain.Connecting)

	endpoint, err := m.fetchEndpoint(ctx)
	if err != nil {
		m.setState(domain.Disconnected)
		return fmt.Errorf("fetching websocket endpoint : %w", err)
	}

	if err := m.open(ctx, endpoint); err != nil {
		m.setState(domain.Disconnected)
		return fmt.Errorf("opening websocket : %w", err)
	}

	return nil
}

// Disconnect tears the channel down and suppresses the automatic-reconnect path that
// the resulting close event would otherwise trigger. Any pending reconnect timer is
// cancelled.
func (m *RealtimeManager) Disconnect() {
	m.mu.Lock()
	m.manualClose = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.keepaliveStop != nil {
		close(m.keepaliveStop)
		m.keepaliveStop = nil
	}
	sock := m.socket
	m.socket = nil
	m.state = domain.Disconnected
	m.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	m.stateObs.Set(domain.Disconnected)
}

// IsConnected reports whether the channel is currently open.
func (m *RealtimeManager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == domain.Connected
}

// State exposes the connection state observable. New subscribers immediately receive
// the current value.
func (m *RealtimeManager) State() *Observable[domain.ConnectionState] {
	return m.stateObs
}

// Notify registers a subscriber for inbound notifications. Subscribers are invoked
// in registration order; events published before registration are not replayed. The
// returned function cancels the subscription.
func (m *RealtimeManager) Notify(fn func(domain.Notification)) func() {
	sub := subscriber{id: uuid.New(), fn: fn}

	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs = slices.DeleteFunc(m.subs, func(s subscriber) bool {
			return s.id == sub.id
		})
	}
}

// fetchEndpoint asks the API for the websocket endpoint of the current user. The
// response is a bare string, possibly quoted.
func (m *RealtimeManager) fetchEndpoint(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/user/websocket", nil)
	if err != nil {
		return "", fmt.Errorf("building endpoint request : %w", err)
	}
	req = ContextWithRequestID(req, uuid.New())

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("reading endpoint response : %w", err)
	}

	endpoint := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if endpoint == "" {
		return "", fmt.Errorf("empty websocket endpoint")
	}

	return upgradeEndpoint(endpoint, m.baseURL)
}

// upgradeEndpoint promotes a non-secure endpoint scheme to its secure variant when
// the API base itself is served over TLS, so the channel is never rejected as mixed
// content.
func upgradeEndpoint(endpoint, base string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme != "https" {
		return endpoint, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing websocket endpoint %q : %w", endpoint, err)
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "https"
	}

	return u.String(), nil
}

// open dials a fresh socket and, on success, transitions to Connected, resets the
// reconnect counter, and starts the keepalive and read loops.
func (m *RealtimeManager) open(ctx context.Context, endpoint string) error {
	sock := m.factory()
	if err := sock.Open(ctx, endpoint); err != nil {
		return err
	}

	m.mu.Lock()
	if m.manualClose {
		// Disconnected while the dial was in flight.
		m.mu.Unlock()
		sock.Close()
		return nil
	}
	m.socket = sock
	m.state = domain.Connected
	m.attempts = 0
	stop := make(chan struct{})
	m.keepaliveStop = stop
	m.mu.Unlock()
	m.stateObs.Set(domain.Connected)
	m.logger.Info("realtime channel connected")

	go m.keepalive(sock, stop)
	go m.readLoop(sock)

	return nil
}

// keepalive sends the literal ping text at a fixed interval for as long as the
// connection stays open.
func (m *RealtimeManager) keepalive(sock Socket, stop <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := sock.Send([]byte(keepalivePayload)); err != nil {
				m.logger.Debug("keepalive ping failed", "err", err)
			}
		}
	}
}

// readLoop consumes inbound frames until the socket drops, then runs the close
// handling for that connection.
func (m *RealtimeManager) readLoop(sock Socket) {
	for frame := range sock.Frames() {
		m.handleFrame(frame)
	}
	m.handleClose(sock)
}

// handleFrame filters and republishes one inbound payload. The keepalive ack is
// discarded, unparseable frames are logged and dropped, and only the recognized
// notification type reaches subscribers.
func (m *RealtimeManager) handleFrame(frame []byte) {
	if string(frame) == keepaliveAck {
		return
	}

	var note domain.Notification
	if err := json.Unmarshal(frame, &note); err != nil {
		m.logger.Debug("dropping unparseable frame", "err", err)
		return
	}

	if note.Type != domain.NotificationTypeMessage {
		return
	}

	m.mu.Lock()
	subs := slices.Clone(m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.fn(note)
	}
}

// handleClose reacts to the socket dropping. An explicit Disconnect has already
// detached the socket and is not treated as a loss; anything else schedules a
// reconnect attempt.
func (m *RealtimeManager) handleClose(sock Socket) {
	m.mu.Lock()
	if m.socket != sock {
		// A close from a connection this manager already replaced or detached.
		m.mu.Unlock()
		return
	}
	m.socket = nil
	if m.keepaliveStop != nil {
		close(m.keepaliveStop)
		m.keepaliveStop = nil
	}
	m.state = domain.Disconnected
	manual := m.manualClose
	m.mu.Unlock()
	m.stateObs.Set(domain.Disconnected)

	if manual {
		return
	}

	m.logger.Info("realtime channel lost")
	m.scheduleReconnect()
}

// scheduleReconnect arms the next attempt after the fixed delay. The counter
// persists across consecutive failures and only resets on a successful open or an
// explicit Connect; at the cap, automatic reconnection stops for good.
func (m *RealtimeManager) scheduleReconnect() {
	m.mu.Lock()
	if m.manualClose {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.maxReconnects {
		m.mu.Unlock()
		m.logger.Warn("automatic reconnection stopped", "attempts", m.maxReconnects, "err", ErrConnectionExhausted)
		return
	}
	m.attempts++
	attempt := m.attempts
	m.reconnectTimer = time.AfterFunc(m.reconnectDelay, func() {
		m.reconnect(attempt)
	})
	m.mu.Unlock()
}

// reconnect is one timed attempt. Attempts are strictly sequential: the next one is
// only armed after this one has failed.
func (m *RealtimeManager) reconnect(attempt int) {
	m.mu.Lock()
	if m.manualClose || m.state != domain.Disconnected {
		m.mu.Unlock()
		return
	}
	m.state = domain.Connecting
	m.reconnectTimer = nil
	m.mu.Unlock()
	m.stateObs.Set(domain.Connecting)
	m.logger.Info("reconnecting realtime channel", "attempt", attempt)

	ctx := context.Background()
	endpoint, err := m.fetchEndpoint(ctx)
	if err == nil {
		err = m.open(ctx, endpoint)
	}
	if err != nil {
		m.logger.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
		m.setState(domain.Disconnected)
		m.scheduleReconnect()
	}
}

func (m *RealtimeManager) setState(state domain.ConnectionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.stateObs.Set(state)
}
