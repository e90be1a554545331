package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/optimize"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/validation"
)

var frameBuffers = optimize.NewBufferPool(optimize.DefaultMaxBufferSize)

type SocketConfig struct {
	URL            string
	Participant    domain.ParticipantID
	Token          string // sent as a bearer token when set
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// SocketTransport is a websocket client of the relay Server.
type SocketTransport struct {
	cfg    SocketConfig
	dialer *websocket.Dialer
	logger *zap.SugaredLogger

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{} // closed when the read loop of conn exits
	handler ports.SignalHandler
	onLost  func(err error)
	closed  bool

	writeMu sync.Mutex
}

var _ ports.SignalingTransport = (*SocketTransport)(nil)

func NewSocketTransport(cfg SocketConfig, logger *zap.SugaredLogger) *SocketTransport {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &SocketTransport{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With("transport", "socket", "participant_id", cfg.Participant),
	}
}

func (t *SocketTransport) endpoint() (string, error) {
	if err := validation.ValidateSignalURL(t.cfg.URL); err != nil {
		return "", err
	}
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("participant_id", string(t.cfg.Participant))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the relay and starts the read and ping loops.
func (t *SocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrTransportClosed
	}
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	endpoint, err := t.endpoint()
	if err != nil {
		return fmt.Errorf("signal url: %w", err)
	}
	header := http.Header{}
	if t.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	conn, resp, err := t.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial %s: %w (status %d)", t.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("websocket dial %s: %w", t.cfg.URL, err)
	}
	if t.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(t.cfg.MaxMessageSize)
	}

	t.mu.Lock()
	if closed := t.closed; closed || t.conn != nil {
		t.mu.Unlock()
		conn.Close()
		if closed {
			return domain.ErrTransportClosed
		}
		return nil
	}
	done := make(chan struct{})
	t.conn = conn
	t.done = done
	t.mu.Unlock()

	t.logger.Infow("connected to signaling relay", "url", t.cfg.URL)
	go t.readLoop(conn, done)
	if t.cfg.PingInterval > 0 {
		go t.pingLoop(conn, done)
	}
	return nil
}

// OnDisconnect registers fn to run when an established connection drops
// without Close. Connect may be called again afterwards.
func (t *SocketTransport) OnDisconnect(fn func(err error)) {
	t.mu.Lock()
	t.onLost = fn
	t.mu.Unlock()
}

// Connected reports whether a relay connection is currently up.
func (t *SocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *SocketTransport) JoinRoom(ctx context.Context, roomID domain.RoomID, self domain.ParticipantID) error {
	msg, err := domain.NewSignalMessage(domain.SignalJoinRoom, roomID, self, nil)
	if err != nil {
		return err
	}
	return t.write(ctx, msg)
}

func (t *SocketTransport) LeaveRoom(ctx context.Context, roomID domain.RoomID) error {
	msg, err := domain.NewSignalMessage(domain.SignalLeaveRoom, roomID, t.cfg.Participant, nil)
	if err != nil {
		return err
	}
	return t.write(ctx, msg)
}

func (t *SocketTransport) Send(ctx context.Context, roomID domain.RoomID, msg domain.SignalMessage) error {
	msg.RoomID = roomID
	return t.write(ctx, msg)
}

func (t *SocketTransport) OnMessage(handler ports.SignalHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

func (t *SocketTransport) write(ctx context.Context, msg domain.SignalMessage) error {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()
	if closed {
		return domain.ErrTransportClosed
	}
	if conn == nil {
		return fmt.Errorf("%w: not connected", domain.ErrTransportClosed)
	}

	deadline := time.Now().Add(t.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	return frameBuffers.EncodeJSON(msg, func(data []byte) error {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		_ = conn.SetWriteDeadline(deadline)
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("send %s: %w", msg.Type, err)
		}
		return nil
	})
}

func (t *SocketTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	if t.cfg.PongTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.cfg.PongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.cfg.PongTimeout))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.lost(conn, err)
			return
		}
		if t.cfg.PongTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(t.cfg.PongTimeout))
		}

		var msg domain.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Warnw("dropping undecodable signal frame", "error", err)
			continue
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
	}
}

// lost forgets conn unless it was already replaced or the transport is closing.
func (t *SocketTransport) lost(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.closed || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.done = nil
	onLost := t.onLost
	t.mu.Unlock()

	conn.Close()
	t.logger.Warnw("signaling connection lost", "error", err)
	if onLost != nil {
		onLost(err)
	}
}

func (t *SocketTransport) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debugw("ping failed", "error", err)
				return
			}
		}
	}
}

// Close is idempotent. It sends a close frame and waits for the read loop to stop.
func (t *SocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn, done := t.conn, t.done
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(t.cfg.WriteTimeout))
	t.writeMu.Unlock()

	select {
	case <-done:
	case <-time.After(t.cfg.WriteTimeout):
	}
	return conn.Close()
}
