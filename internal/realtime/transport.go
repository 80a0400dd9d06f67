package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrTransportClosed is returned by Send after Close.
var ErrTransportClosed = errors.New("realtime: transport closed")

// Transport carries realtime events to and from the remote endpoint.
type Transport interface {
	Send(ev Event) error
	// Events is closed when the transport stops reading; Err then reports why.
	Events() <-chan Event
	Err() error
	Close() error
}

// Dialer opens a transport for a subject.
type Dialer interface {
	Dial(ctx context.Context, subject string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, subject string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, subject string) (Transport, error) {
	return f(ctx, subject)
}

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// WebSocketTransport is a Transport over a gorilla websocket connection.
type WebSocketTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger

	events    chan Event
	closeCh   chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error
}

var _ Transport = (*WebSocketTransport)(nil)

// DialWebSocket connects to rawURL and starts the read loop.
func DialWebSocket(ctx context.Context, rawURL string, header http.Header, logger *zap.Logger) (*WebSocketTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: connect failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: connect: %w", err)
	}
	return newWebSocketTransport(conn, logger), nil
}

func newWebSocketTransport(conn *websocket.Conn, logger *zap.Logger) *WebSocketTransport {
	conn.SetReadLimit(maxMessageSize)
	t := &WebSocketTransport{
		conn:    conn,
		logger:  logger,
		events:  make(chan Event, 64),
		closeCh: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *WebSocketTransport) readLoop() {
	defer close(t.events)

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closeCh:
			default:
				t.setErr(fmt.Errorf("realtime: read: %w", err))
			}
			return
		}

		ev, err := ParseEvent(message)
		if err != nil {
			t.logger.Warn("Dropping malformed realtime event", zap.Error(err))
			continue
		}

		select {
		case <-t.closeCh:
			return
		case t.events <- ev:
		}
	}
}

func (t *WebSocketTransport) setErr(err error) {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

// Send writes one event. Safe for concurrent use.
func (t *WebSocketTransport) Send(ev Event) error {
	select {
	case <-t.closeCh:
		return ErrTransportClosed
	default:
	}
	if ev.EventID == "" {
		ev.EventID = NewEventID()
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("realtime: write %s: %w", ev.Type, err)
	}
	return nil
}

func (t *WebSocketTransport) Events() <-chan Event {
	return t.events
}

// Err returns the read error that ended the transport, or nil after a local Close.
func (t *WebSocketTransport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// Close sends a close frame and releases the connection. Idempotent.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closeCh)
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// TokenResponse is returned by the realtime session broker.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	URL       string    `json:"url"`
}

// BrokerDialer asks the session broker for a short-lived token and dials the
// websocket URL it returns.
type BrokerDialer struct {
	// BrokerURL is the realtime-session function endpoint.
	BrokerURL  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

var _ Dialer = (*BrokerDialer)(nil)

func (d *BrokerDialer) Dial(ctx context.Context, subject string) (Transport, error) {
	token, err := d.FetchToken(ctx, subject)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(token.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: invalid session url %q: %w", token.URL, err)
	}
	q := u.Query()
	q.Set("token", token.Token)
	u.RawQuery = q.Encode()

	return DialWebSocket(ctx, u.String(), nil, d.Logger)
}

// FetchToken requests a realtime token for subject.
func (d *BrokerDialer) FetchToken(ctx context.Context, subject string) (*TokenResponse, error) {
	body, err := json.Marshal(map[string]string{"subject": subject})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BrokerURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("realtime: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("realtime: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("realtime: token broker returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("realtime: decode token response: %w", err)
	}
	if token.Token == "" || token.URL == "" {
		return nil, errors.New("realtime: token broker returned an empty token")
	}
	return &token, nil
}
