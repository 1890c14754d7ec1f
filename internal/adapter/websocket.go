package adapter

import (
	"context"
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// SocketConn defines an interface for a single websocket connection to enable mocking
type SocketConn interface {
	// ReadJSON reads the next message and unmarshals it into v
	ReadJSON(ctx context.Context, v interface{}) error
	// WriteJSON marshals v and writes it as a text message
	WriteJSON(ctx context.Context, v interface{}) error
	// Close performs the websocket close handshake
	Close() error
}

// SocketDialer defines an interface for opening websocket connections to enable mocking
type SocketDialer interface {
	// Dial opens a websocket connection to url.
	// The returned status is the HTTP status of the handshake response
	// (0 when no response was received), reported even on error so callers
	// can distinguish payment-required rejections from transport failures.
	Dial(ctx context.Context, url string, header http.Header) (SocketConn, int, error)
}

// RealSocketDialer implements SocketDialer using nhooyr.io/websocket
type RealSocketDialer struct {
	subprotocols []string
}

// NewSocketDialer creates a new real websocket dialer
func NewSocketDialer(subprotocols ...string) SocketDialer {
	return &RealSocketDialer{subprotocols: subprotocols}
}

func (d *RealSocketDialer) Dial(ctx context.Context, url string, header http.Header) (SocketConn, int, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader:   header,
		Subprotocols: d.subprotocols,
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if err != nil {
		return nil, status, err
	}

	// Feed messages can be large batches of events
	conn.SetReadLimit(1 << 22)

	return &realSocketConn{conn: conn}, status, nil
}

type realSocketConn struct {
	conn *websocket.Conn
}

func (c *realSocketConn) ReadJSON(ctx context.Context, v interface{}) error {
	return wsjson.Read(ctx, c.conn, v)
}

func (c *realSocketConn) WriteJSON(ctx context.Context, v interface{}) error {
	return wsjson.Write(ctx, c.conn, v)
}

func (c *realSocketConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
