package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokenlens/mint-indexer/internal/adapter"
	"github.com/tokenlens/mint-indexer/internal/credentials"
	"github.com/tokenlens/mint-indexer/internal/domain"
	"github.com/tokenlens/mint-indexer/internal/logger"
)

// Subscription protocol message types
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgStart          = "start"
	msgData           = "data"
	msgError          = "error"
	msgStop           = "stop"
	msgKeepAlive      = "ka"
)

// subscriptionID is the deterministic id used for the single subscription
const subscriptionID = "1"

// Envelope is the JSON message envelope exchanged with the feed
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// State is the connection state machine state
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingAck
	StateSubscribed
	StateClosing
	// StateExhausted is entered when the credential pool is empty after reload.
	// It is fatal-until-retry: the connection idles and periodically reloads
	// the pool, since an operator may provision new tokens.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAck:
		return "awaiting_ack"
	case StateSubscribed:
		return "subscribed"
	case StateClosing:
		return "closing"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ConnectionConfig holds configuration for a feed connection
type ConnectionConfig struct {
	// URL is the websocket endpoint of the subscription feed
	URL string
	// Query is the subscription query document sent with the start message
	Query string
	// MaxReconnectAttempts is how many plain reconnects are tried before
	// falling back to credential rotation
	MaxReconnectAttempts int
	// ReconnectDelay is the fixed delay between reconnect attempts
	ReconnectDelay time.Duration
	// AckTimeout bounds the wait for the connection_ack handshake reply
	AckTimeout time.Duration
	// ExhaustedRetryDelay is how long to idle before reloading an empty pool
	ExhaustedRetryDelay time.Duration
}

// Connection is a single persistent subscription connection to the feed.
// It owns the reconnect and credential rotation policy. The Run loop is the
// only goroutine touching the transport, which guarantees at most one live
// transport per instance and serializes rotation.
type Connection struct {
	id     string
	config ConnectionConfig
	dialer adapter.SocketDialer
	pool   *credentials.Pool
	buffer *IngestBuffer
	clock  adapter.Clock
	state  atomic.Int32
}

// NewConnection creates a feed connection pushing received events into buffer
func NewConnection(
	config ConnectionConfig,
	dialer adapter.SocketDialer,
	pool *credentials.Pool,
	buffer *IngestBuffer,
	clock adapter.Clock,
) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		config: config,
		dialer: dialer,
		pool:   pool,
		buffer: buffer,
		clock:  clock,
	}
}

// State returns the current connection state
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(ctx context.Context, s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		logger.DebugCtx(ctx, "Feed connection state change",
			zap.String("connection_id", c.id),
			zap.String("from", old.String()),
			zap.String("to", s.String()))
	}
}

// Run drives the connection until ctx is done. Reconnects use a fixed delay
// up to MaxReconnectAttempts, after which the credential is rotated and the
// attempt counter reset. Quota signals rotate immediately, bypassing backoff.
func (c *Connection) Run(ctx context.Context) error {
	attempts := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cred, err := c.pool.Current()
		if errors.Is(err, domain.ErrNoCredential) {
			c.setState(ctx, StateExhausted)
			logger.WarnCtx(ctx, "Credential pool exhausted, idling before reload",
				zap.String("connection_id", c.id),
				zap.Duration("retry_delay", c.config.ExhaustedRetryDelay))
			if !c.sleep(ctx, c.config.ExhaustedRetryDelay) {
				return ctx.Err()
			}
			if err := c.pool.Load(ctx); err != nil {
				logger.ErrorCtx(ctx, err)
			}
			continue
		}

		err = c.session(ctx, cred.Token)
		c.setState(ctx, StateIdle)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, domain.ErrQuotaExceeded) {
			logger.WarnCtx(ctx, "Quota signal from feed, rotating credential immediately",
				zap.String("connection_id", c.id))
			if derr := c.pool.DisableCurrent(ctx); derr != nil {
				logger.ErrorCtx(ctx, derr)
			}
			if rerr := c.pool.Rotate(ctx); rerr != nil {
				logger.ErrorCtx(ctx, rerr)
			}
			attempts = 0
			continue
		}

		if err != nil {
			logger.WarnCtx(ctx, "Feed session ended",
				zap.String("connection_id", c.id),
				zap.Error(err),
				zap.Int("attempt", attempts+1))
		}

		attempts++
		if attempts >= c.config.MaxReconnectAttempts {
			// Plain reconnects were unproductive, rotation is the fallback
			logger.WarnCtx(ctx, "Reconnect attempts exhausted, rotating credential",
				zap.String("connection_id", c.id),
				zap.Int("attempts", attempts))
			if rerr := c.pool.Rotate(ctx); rerr != nil {
				logger.ErrorCtx(ctx, rerr)
			}
			attempts = 0
			continue
		}

		if !c.sleep(ctx, c.config.ReconnectDelay) {
			return ctx.Err()
		}
	}
}

// session runs one connect/handshake/subscribe/receive cycle and returns
// when the transport fails or ctx is done
func (c *Connection) session(ctx context.Context, token string) error {
	c.setState(ctx, StateConnecting)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, status, err := c.dialer.Dial(ctx, c.config.URL, header)
	if err != nil {
		if status == http.StatusPaymentRequired {
			return fmt.Errorf("dial rejected with status %d: %w", status, domain.ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to dial feed: %w", err)
	}

	defer func() {
		c.setState(ctx, StateClosing)
		// Best-effort stop: the session context may already be canceled
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.WriteJSON(stopCtx, Envelope{Type: msgStop, ID: subscriptionID})
		_ = conn.Close()
	}()

	c.setState(ctx, StateAwaitingAck)

	initPayload, _ := json.Marshal(map[string]string{"token": token})
	if err := conn.WriteJSON(ctx, Envelope{Type: msgConnectionInit, Payload: initPayload}); err != nil {
		return fmt.Errorf("failed to send connection_init: %w", err)
	}

	if err := c.awaitAck(ctx, conn); err != nil {
		return err
	}

	startPayload, _ := json.Marshal(map[string]string{"query": c.config.Query})
	if err := conn.WriteJSON(ctx, Envelope{Type: msgStart, ID: subscriptionID, Payload: startPayload}); err != nil {
		return fmt.Errorf("failed to send start: %w", err)
	}

	c.setState(ctx, StateSubscribed)
	c.pool.MarkUsed(ctx)
	logger.InfoCtx(ctx, "Subscribed to feed",
		zap.String("connection_id", c.id),
		zap.String("url", c.config.URL))

	return c.receive(ctx, conn)
}

// awaitAck waits for connection_ack, bounded by AckTimeout
func (c *Connection) awaitAck(ctx context.Context, conn adapter.SocketConn) error {
	ackCtx, cancel := context.WithTimeout(ctx, c.config.AckTimeout)
	defer cancel()

	for {
		var env Envelope
		if err := conn.ReadJSON(ackCtx, &env); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("handshake timed out: %w", domain.ErrSubscriptionFailed)
			}
			return fmt.Errorf("failed to read handshake reply: %w", err)
		}

		switch env.Type {
		case msgConnectionAck:
			return nil
		case msgKeepAlive:
			continue
		case msgError:
			return c.classifyError(env.Payload)
		default:
			logger.DebugCtx(ctx, "Ignoring message while awaiting ack",
				zap.String("type", env.Type))
		}
	}
}

// receive is the subscribed read loop
func (c *Connection) receive(ctx context.Context, conn adapter.SocketConn) error {
	for {
		var env Envelope
		if err := conn.ReadJSON(ctx, &env); err != nil {
			return fmt.Errorf("transport closed: %w", err)
		}

		switch env.Type {
		case msgData:
			c.handleData(ctx, env.Payload)
		case msgKeepAlive:
			// no-op
		case msgError:
			if err := c.classifyError(env.Payload); errors.Is(err, domain.ErrQuotaExceeded) {
				return err
			} else if err != nil {
				logger.WarnCtx(ctx, "Feed error message", zap.Error(err))
			}
		default:
			logger.DebugCtx(ctx, "Unhandled feed message", zap.String("type", env.Type))
		}
	}
}

// dataPayload is the shape of a data envelope payload
type dataPayload struct {
	Data struct {
		TokenCreations []struct {
			Mint      string `json:"mint"`
			Signer    string `json:"signer"`
			BlockTime int64  `json:"blockTime"`
			Name      string `json:"name"`
			Symbol    string `json:"symbol"`
			URI       string `json:"uri"`
		} `json:"tokenCreations"`
	} `json:"data"`
}

// handleData parses a data payload and pushes its events into the buffer
func (c *Connection) handleData(ctx context.Context, payload json.RawMessage) {
	var data dataPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to decode data payload: %w", err))
		return
	}

	for _, tc := range data.Data.TokenCreations {
		event := domain.TokenCreationEvent{
			MintAddress:   tc.Mint,
			SignerAddress: tc.Signer,
			BlockTime:     time.Unix(tc.BlockTime, 0).UTC(),
			Name:          tc.Name,
			Symbol:        tc.Symbol,
			MetadataURI:   tc.URI,
		}
		if err := c.buffer.Push(event); err != nil {
			logger.WarnCtx(ctx, "Dropping event, buffer closed",
				zap.String("mint", tc.Mint))
		}
	}
}

// classifyError maps an error envelope payload to a pipeline error.
// Payment and quota signals get the immediate-rotate treatment; everything
// else is an ordinary protocol error.
func (c *Connection) classifyError(payload json.RawMessage) error {
	text := strings.ToLower(string(payload))
	for _, marker := range []string{"payment required", "quota", "credits", "insufficient funds"} {
		if strings.Contains(text, marker) {
			return fmt.Errorf("feed error %q: %w", string(payload), domain.ErrQuotaExceeded)
		}
	}
	if len(payload) == 0 {
		return fmt.Errorf("feed error without payload: %w", domain.ErrSubscriptionFailed)
	}
	return fmt.Errorf("feed error: %s", string(payload))
}

// sleep waits for d, returning false when ctx was done first
func (c *Connection) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}
