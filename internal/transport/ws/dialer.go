// Package ws is the network transport: it logs in over HTTP and then keeps a
// websocket open to the relay.
package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/transport"
)

// Dialer connects to a relay at a base URL such as http://localhost:5222.
type Dialer struct {
	baseURL    string
	httpClient *http.Client
	log        *zerolog.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

// Option configures a Dialer.
type Option func(*Dialer)

// WithHTTPClient sets the client used for login and the websocket upgrade.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dialer) { d.httpClient = c }
}

// WithLogger sets the logger for connection diagnostics.
func WithLogger(logger *zerolog.Logger) Option {
	return func(d *Dialer) { d.log = logger }
}

// NewDialer returns a dialer for the relay at baseURL.
func NewDialer(baseURL string, opts ...Option) *Dialer {
	nop := zerolog.Nop()
	d := &Dialer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		log:        &nop,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BaseURL derives the relay URL from client configuration.
func BaseURL(cfg config.Config) string {
	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Dial logs in and opens the websocket. Unreachable relays and protocol
// failures wrap transport.ErrConnect; rejected credentials wrap
// transport.ErrAuth.
func (d *Dialer) Dial(ctx context.Context, creds transport.Credentials) (transport.Handle, error) {
	token, err := d.login(ctx, creds)
	if err != nil {
		return nil, err
	}

	wsURL := "ws" + strings.TrimPrefix(d.baseURL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: d.httpClient})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %v", wsURL, transport.ErrConnect, err)
	}

	if err := hello(ctx, conn, token); err != nil {
		conn.Close(websocket.StatusNormalClosure, "handshake failed")
		return nil, err
	}

	d.log.Debug().Str("user", creds.Username).Str("url", wsURL).Msg("websocket connected")
	return newHandle(conn, d.log), nil
}

func (d *Dialer) login(ctx context.Context, creds transport.Credentials) (string, error) {
	body, err := json.Marshal(loginRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return "", fmt.Errorf("encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build login request: %w: %v", transport.ErrConnect, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w: %v", transport.ErrConnect, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "", fmt.Errorf("login %q: %w", creds.Username, transport.ErrAuth)
	default:
		return "", fmt.Errorf("login: unexpected status %d: %w", resp.StatusCode, transport.ErrConnect)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Token == "" {
		return "", fmt.Errorf("login: malformed response: %w", transport.ErrConnect)
	}
	return out.Token, nil
}

func hello(ctx context.Context, conn *websocket.Conn, token string) error {
	data, err := json.Marshal(proto.HelloData{Token: token, Protocol: proto.ProtocolVersion})
	if err != nil {
		return fmt.Errorf("encode hello: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeHello, Data: data}); err != nil {
		return fmt.Errorf("send hello: %w: %v", transport.ErrConnect, err)
	}

	var frame proto.OutboundFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		return fmt.Errorf("await ready: %w: %v", transport.ErrConnect, err)
	}
	switch {
	case frame.Type == proto.OutboundTypeReady:
		return nil
	case frame.Error != nil && frame.Error.Code == "unauthorized":
		return fmt.Errorf("hello rejected: %w", transport.ErrAuth)
	case frame.Error != nil:
		return fmt.Errorf("hello rejected: %w: %v", transport.ErrConnect, frame.Error)
	default:
		return fmt.Errorf("unexpected %q frame: %w", frame.Type, transport.ErrConnect)
	}
}

// requestError unwraps to the relay's protocol error.
type requestError struct {
	op  string
	err *proto.Error
}

func (e *requestError) Error() string { return e.op + ": " + e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

// ProtocolError extracts the relay error code, if err carries one.
func ProtocolError(err error) (*proto.Error, bool) {
	var pe *proto.Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
