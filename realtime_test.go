package steris

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/tfkr-ae/steris/domain"
)

// fakeSocket is a controllable Socket implementation for exercising the reconnect
// and keepalive logic without a network.
type fakeSocket struct {
	mu       sync.Mutex
	frames   chan []byte
	sent     [][]byte
	closed   bool
	endpoint string
	openErr  error
}

func (f *fakeSocket) Open(ctx context.Context, endpoint string) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.mu.Lock()
	f.endpoint = endpoint
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("socket closed")
	}
	f.sent = append(f.sent, slices.Clone(payload))
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}

func (f *fakeSocket) Frames() <-chan []byte { return f.frames }

// push delivers an inbound frame.
func (f *fakeSocket) push(frame string) { f.frames <- []byte(frame) }

// drop simulates a server-initiated close or network drop.
func (f *fakeSocket) drop() { f.Close() }

func (f *fakeSocket) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSocket) openedWith() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endpoint
}

// fakeFactory creates fakeSocket instances and records every connection attempt.
type fakeFactory struct {
	mu       sync.Mutex
	sockets  []*fakeSocket
	failOpen bool
}

func (ff *fakeFactory) new() Socket {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	s := &fakeSocket{frames: make(chan []byte, 16)}
	if ff.failOpen {
		s.openErr = errors.New("dial refused")
	}
	ff.sockets = append(ff.sockets, s)
	return s
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.sockets)
}

func (ff *fakeFactory) socket(i int) *fakeSocket {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.sockets[i]
}

func (ff *fakeFactory) setFailOpen(fail bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.failOpen = fail
}

func newRealtimeTestClient(t *testing.T, endpointStatus int) (*Client, *fakeFactory, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/websocket", func(w http.ResponseWriter, r *http.Request) {
		if endpointStatus != http.StatusOK {
			w.WriteHeader(endpointStatus)
			return
		}
		w.Write([]byte(`"ws://push.steris.app/channel"`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ff := &fakeFactory{}
	client := newTestClient(t, srv.URL, &memRepo{}, WithSocketFactory(ff.new))
	client.Realtime.reconnectDelay = 10 * time.Millisecond
	client.Realtime.pingInterval = 20 * time.Millisecond

	return client, ff, srv
}

func TestRealtimeManager_Connect(t *testing.T) {
	t.Run("opens the channel with the fetched endpoint", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusOK)
		defer client.Realtime.Disconnect()

		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !client.Realtime.IsConnected() {
			t.Fatalf("\nwanted:\nconnected state\ngot:\n%v", client.Realtime.State().Get())
		}

		// The surrounding quotes from the endpoint response are stripped.
		if got := ff.socket(0).openedWith(); got != "ws://push.steris.app/channel" {
			t.Fatalf("\nwanted:\nws://push.steris.app/channel\ngot:\n%q", got)
		}
	})

	t.Run("is a no-op when already connected", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusOK)
		defer client.Realtime.Disconnect()

		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got := ff.count(); got != 1 {
			t.Fatalf("\nwanted:\n1 socket\ngot:\n%d", got)
		}
	})

	t.Run("abandons the attempt when the endpoint fetch fails", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusInternalServerError)

		if err := client.Realtime.Connect(context.Background()); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}

		if client.Realtime.IsConnected() {
			t.Fatalf("\nwanted:\ndisconnected state\ngot:\nconnected")
		}

		// No implicit retry at this layer.
		time.Sleep(50 * time.Millisecond)
		if got := ff.count(); got != 0 {
			t.Fatalf("\nwanted:\n0 sockets\ngot:\n%d", got)
		}
	})
}

func TestRealtimeManager_Keepalive(t *testing.T) {
	t.Run("sends the literal ping text on a fixed interval", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusOK)
		defer client.Realtime.Disconnect()

		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		sock := ff.socket(0)
		waitFor(t, time.Second, func() bool { return sock.sentCount() >= 2 }, "at least 2 keepalive pings")

		sock.mu.Lock()
		first := string(sock.sent[0])
		sock.mu.Unlock()
		if first != "ping" {
			t.Fatalf("\nwanted:\nping\ngot:\n%q", first)
		}
	})

	t.Run("stops after disconnect", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusOK)

		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		client.Realtime.Disconnect()

		sock := ff.socket(0)
		count := sock.sentCount()
		time.Sleep(60 * time.Millisecond)
		if got := sock.sentCount(); got != count {
			t.Fatalf("\nwanted:\nno pings after disconnect\ngot:\n%d new", got-count)
		}
	})
}

func TestRealtimeManager_Frames(t *testing.T) {
	t.Run("republishes only recognized notifications", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusOK)
		defer client.Realtime.Disconnect()

		var mu sync.Mutex
		var received []domain.Notification
		cancel := client.Realtime.Notify(func(n domain.Notification) {
			mu.Lock()
			received = append(received, n)
			mu.Unlock()
		})
		defer cancel()

		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		sock := ff.socket(0)
		sock.push(`pong`)
		sock.push(`{"type":"Heartbeat"}`)
		sock.push(`{not json`)
		sock.push(`{"type":"NewMessageNotification","payload":{"body":"hello","sender":"usr-2","conversationId":"conv-1"}}`)

		waitFor(t, time.Second, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == 1
		}, "exactly one republished notification")

		mu.Lock()
		got := received[0]
		mu.Unlock()

		if got.Payload.Body != "hello" || got.Payload.ConversationID != "conv-1" {
			t.Fatalf("\nwanted:\nforwarded payload\ngot:\n%+v", got.Payload)
		}
	})

	t.Run("delivers to subscribers in registration order", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusOK)
		defer client.Realtime.Disconnect()

		var mu sync.Mutex
		var order []string
		client.Realtime.Notify(func(domain.Notification) {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
		})
		client.Realtime.Notify(func(domain.Notification) {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
		})

		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		ff.socket(0).push(`{"type":"NewMessageNotification","payload":{"body":"x"}}`)

		waitFor(t, time.Second, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(order) == 2
		}, "both subscribers invoked")

		mu.Lock()
		defer mu.Unlock()
		if order[0] != "first" || order[1] != "second" {
			t.Fatalf("\nwanted:\n[first second]\ngot:\n%v", order)
		}
	})
}

func TestRealtimeManager_Reconnect(t *testing.T) {
	t.Run("disconnect suppresses the automatic reconnect", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusOK)

		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		client.Realtime.Disconnect()

		time.Sleep(60 * time.Millisecond)
		if got := ff.count(); got != 1 {
			t.Fatalf("\nwanted:\nno reconnect after disconnect\ngot:\n%d sockets", got)
		}
		if client.Realtime.IsConnected() {
			t.Fatalf("\nwanted:\ndisconnected state\ngot:\nconnected")
		}
	})

	t.Run("a dropped connection schedules exactly one reconnect", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusOK)
		defer client.Realtime.Disconnect()

		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		ff.socket(0).drop()

		waitFor(t, time.Second, func() bool { return ff.count() == 2 }, "one reconnect attempt")
		waitFor(t, time.Second, client.Realtime.IsConnected, "connected after reconnect")

		// A successful reconnect must not leave further attempts queued.
		time.Sleep(50 * time.Millisecond)
		if got := ff.count(); got != 2 {
			t.Fatalf("\nwanted:\n2 sockets\ngot:\n%d", got)
		}
	})

	t.Run("stops at the attempt cap until an explicit connect", func(t *testing.T) {
		client, ff, _ := newRealtimeTestClient(t, http.StatusOK)
		defer client.Realtime.Disconnect()

		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		ff.setFailOpen(true)
		ff.socket(0).drop()

		// Initial socket plus five failed attempts.
		waitFor(t, 2*time.Second, func() bool { return ff.count() == 6 }, "5 reconnect attempts")

		time.Sleep(100 * time.Millisecond)
		if got := ff.count(); got != 6 {
			t.Fatalf("\nwanted:\nno 6th automatic attempt\ngot:\n%d sockets", got)
		}

		// An explicit connect resets the counter and tries again.
		ff.setFailOpen(false)
		if err := client.Realtime.Connect(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !client.Realtime.IsConnected() {
			t.Fatalf("\nwanted:\nconnected after explicit connect\ngot:\ndisconnected")
		}
		if got := ff.count(); got != 7 {
			t.Fatalf("\nwanted:\n7 sockets\ngot:\n%d", got)
		}
	})
}

func TestUpgradeEndpoint(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
		base     string
		want     string
	}{
		{name: "ws upgraded under https base", endpoint: "ws://push.steris.app/channel", base: "https://api.steris.app", want: "wss://push.steris.app/channel"},
		{name: "http upgraded under https base", endpoint: "http://push.steris.app/channel", base: "https://api.steris.app", want: "https://push.steris.app/channel"},
		{name: "wss left alone", endpoint: "wss://push.steris.app/channel", base: "https://api.steris.app", want: "wss://push.steris.app/channel"},
		{name: "ws left alone under http base", endpoint: "ws://push.steris.app/channel", base: "http://localhost:8080", want: "ws://push.steris.app/channel"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := upgradeEndpoint(tc.endpoint, tc.base)
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
			if got != tc.want {
				t.Fatalf("\nwanted:\n%q\ngot:\n%q", tc.want, got)
			}
		})
	}
}
