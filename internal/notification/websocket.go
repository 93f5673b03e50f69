package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
	wsMaxMessage   = 4096
)

// WebSocketListener pushes events to one connected browser.
type WebSocketListener struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewWebSocketListener wraps an upgraded connection.
func NewWebSocketListener(conn *websocket.Conn) *WebSocketListener {
	return &WebSocketListener{
		id:   "ws:" + uuid.NewString(),
		conn: conn,
	}
}

// ID returns the listener's unique ID.
func (l *WebSocketListener) ID() string {
	return l.id
}

// Send writes the event as a JSON text frame.
func (l *WebSocketListener) Send(ctx context.Context, event Event) error {
	return l.write(ctx, func() error { return l.conn.WriteJSON(event) })
}

func (l *WebSocketListener) write(ctx context.Context, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrListenerClosed
	}

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		l.closeLocked()
		return fmt.Errorf("%w: %v", ErrListenerClosed, err)
	}
	if err := fn(); err != nil {
		l.closeLocked()
		return fmt.Errorf("%w: %v", ErrListenerClosed, err)
	}
	return nil
}

// Serve keeps the connection alive until the client goes away or ctx is
// cancelled. Inbound messages are echoed back as text.
func (l *WebSocketListener) Serve(ctx context.Context) {
	defer l.Close()

	l.conn.SetReadLimit(wsMaxMessage)
	_ = l.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := l.conn.ReadMessage()
			if err != nil {
				return
			}
			_ = l.write(ctx, func() error {
				return l.conn.WriteMessage(websocket.TextMessage, append([]byte("Echo: "), data...))
			})
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			err := l.write(ctx, func() error { return l.conn.WriteMessage(websocket.PingMessage, nil) })
			if err != nil {
				return
			}
		}
	}
}

// Close closes the underlying connection. It is safe to call more than once.
func (l *WebSocketListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *WebSocketListener) closeLocked() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.conn.Close()
}
