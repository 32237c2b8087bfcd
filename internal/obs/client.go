package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/autocam/internal/log"
)

// DefaultTimeout bounds the handshake and each request when the caller's
// context has no deadline.
const DefaultTimeout = 5 * time.Second

var (
	// ErrNotConnected is returned by requests on a closed or broken client.
	ErrNotConnected = errors.New("obs: not connected")
	// ErrAuthRequired is returned when the server wants a password and none is configured.
	ErrAuthRequired = errors.New("obs: server requires authentication")
)

// RequestError is a request that obs-websocket answered with a failure status.
type RequestError struct {
	Type    string
	Code    int
	Comment string
}

func (e *RequestError) Error() string {
	if e.Comment == "" {
		return fmt.Sprintf("obs: %s failed with code %d", e.Type, e.Code)
	}
	return fmt.Sprintf("obs: %s failed with code %d: %s", e.Type, e.Code, e.Comment)
}

// Config holds the connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	Timeout  time.Duration
}

// URL returns the websocket address.
func (c Config) URL() string {
	return "ws://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Client is an identified obs-websocket session. Requests are serialized;
// one request is in flight at a time.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.Mutex
	broken bool
}

// Dial connects to obs-websocket and completes the Hello/Identify handshake.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	logger := log.WithComponent("obs")
	timeout := cfg.timeout()

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     []string{Subprotocol},
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL(), err)
	}

	c := &Client{
		conn:    conn,
		timeout: timeout,
		logger:  logger,
	}
	if err := c.identify(ctx, cfg.Password); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info().Str("url", cfg.URL()).Msg("connected to obs websocket")
	return c, nil
}

func (c *Client) identify(ctx context.Context, password string) error {
	c.setDeadline(ctx)
	defer c.conn.SetReadDeadline(time.Time{})

	var msg message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if msg.Op != OpHello {
		return fmt.Errorf("expected hello, got op %d", msg.Op)
	}
	var h hello
	if err := json.Unmarshal(msg.D, &h); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	id := identify{RPCVersion: RPCVersion}
	if h.Authentication != nil {
		if password == "" {
			return ErrAuthRequired
		}
		id.Authentication = AuthResponse(password, h.Authentication.Salt, h.Authentication.Challenge)
	}
	if err := c.write(OpIdentify, id); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}

	if err := c.conn.ReadJSON(&msg); err != nil {
		// obs closes the socket with 4009 on a bad password.
		if websocket.IsCloseError(err, 4009) {
			return fmt.Errorf("identify: authentication failed: %w", err)
		}
		return fmt.Errorf("read identified: %w", err)
	}
	if msg.Op != OpIdentified {
		return fmt.Errorf("expected identified, got op %d", msg.Op)
	}
	var ack identified
	if err := json.Unmarshal(msg.D, &ack); err != nil {
		return fmt.Errorf("decode identified: %w", err)
	}

	c.logger.Debug().
		Str("server_version", h.ObsWebSocketVersion).
		Int("rpc_version", ack.NegotiatedRPCVersion).
		Msg("identified")
	return nil
}

// Request sends a request and waits for its response. When out is non-nil the
// responseData is decoded into it. Events received meanwhile are dropped.
func (c *Client) Request(ctx context.Context, requestType string, data any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return ErrNotConnected
	}

	err := c.roundTrip(ctx, requestType, data, out)
	if err != nil {
		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			c.broken = true
			c.conn.Close()
		}
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, requestType string, data any, out any) error {
	id := uuid.NewString()
	c.setDeadline(ctx)
	defer c.conn.SetReadDeadline(time.Time{})

	if err := c.write(OpRequest, request{RequestType: requestType, RequestID: id, RequestData: data}); err != nil {
		return fmt.Errorf("send %s: %w", requestType, err)
	}

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("await %s: %w", requestType, err)
		}
		if msg.Op != OpRequestResponse {
			continue
		}

		var resp requestResponse
		if err := json.Unmarshal(msg.D, &resp); err != nil {
			return fmt.Errorf("decode %s response: %w", requestType, err)
		}
		if resp.RequestID != id {
			c.logger.Debug().Str("request_id", resp.RequestID).Msg("dropping stale response")
			continue
		}
		if !resp.RequestStatus.Result {
			return &RequestError{
				Type:    requestType,
				Code:    resp.RequestStatus.Code,
				Comment: resp.RequestStatus.Comment,
			}
		}
		if out != nil && len(resp.ResponseData) > 0 {
			if err := json.Unmarshal(resp.ResponseData, out); err != nil {
				return fmt.Errorf("decode %s data: %w", requestType, err)
			}
		}
		return nil
	}
}

func (c *Client) write(op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.conn.WriteJSON(message{Op: op, D: raw})
}

func (c *Client) setDeadline(ctx context.Context) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	c.conn.SetWriteDeadline(deadline)
}

// Healthy reports whether the session can still carry requests.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.broken
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil
	}
	c.broken = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// SceneInfo is one entry of GetSceneList.
type SceneInfo struct {
	Name  string `json:"sceneName"`
	Index int    `json:"sceneIndex"`
}

// SetCurrentProgramScene switches the program output to the named scene.
func (c *Client) SetCurrentProgramScene(ctx context.Context, name string) error {
	return c.Request(ctx, "SetCurrentProgramScene", map[string]string{"sceneName": name}, nil)
}

// GetCurrentProgramScene returns the name of the scene on program.
func (c *Client) GetCurrentProgramScene(ctx context.Context) (string, error) {
	var resp struct {
		Name string `json:"currentProgramSceneName"`
	}
	if err := c.Request(ctx, "GetCurrentProgramScene", nil, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// GetSceneList returns all scenes known to OBS.
func (c *Client) GetSceneList(ctx context.Context) ([]SceneInfo, error) {
	var resp struct {
		Scenes []SceneInfo `json:"scenes"`
	}
	if err := c.Request(ctx, "GetSceneList", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Scenes, nil
}
