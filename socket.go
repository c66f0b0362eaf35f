package steris

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Socket is the capability surface the realtime manager needs from a websocket
// implementation. Frames delivers inbound payloads and is closed when the connection
// drops, whether by the server, the network, or an explicit Close. Abstracting the
// native socket keeps the reconnect and keepalive logic testable against a fake
// transport.
type Socket interface {
	// Open dials the endpoint and starts delivering inbound frames.
	Open(ctx context.Context, endpoint string) error
	// Send writes one outbound text payload.
	Send(payload []byte) error
	// Close tears the connection down, which also closes the Frames channel.
	Close() error
	// Frames is the inbound payload stream.
	Frames() <-chan []byte
}

// SocketFactory produces a fresh Socket for each connection attempt.
type SocketFactory func() Socket

// gorillaSocket adapts a gorilla/websocket connection to the Socket interface.
type gorillaSocket struct {
	conn    *websocket.Conn
	frames  chan []byte
	writeMu sync.Mutex // gorilla allows at most one concurrent writer
}

// NewWebSocket returns the production Socket implementation.
func NewWebSocket() Socket {
	return &gorillaSocket{frames: make(chan []byte, 16)}
}

// Open satisfies the Socket interface.
func (s *gorillaSocket) Open(ctx context.Context, endpoint string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing %s : %w", endpoint, err)
	}

	s.conn = conn
	go s.readPump()
	return nil
}

// readPump feeds inbound messages into the frames channel until the connection
// errors out, then signals the drop by closing the channel.
func (s *gorillaSocket) readPump() {
	defer close(s.frames)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.frames <- payload
	}
}

// Send satisfies the Socket interface.
func (s *gorillaSocket) Send(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("writing frame : %w", err)
	}
	return nil
}

// Close satisfies the Socket interface.
func (s *gorillaSocket) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("closing socket : %w", err)
	}
	return nil
}

// Frames satisfies the Socket interface.
func (s *gorillaSocket) Frames() <-chan []byte {
	return s.frames
}
