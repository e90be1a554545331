package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/services"
	"github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/middleware"
	apperrors "github.com/YelllowSunray/xsimwink-sub000/pkg/errors"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/tracing"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/validation"
)

type ServerConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	MessagesPerSecond float64 // 0 disables the per-connection limiter
	Burst             int
	SendBuffer        int
	AllowedOrigins    []string // empty allows any origin
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		PingInterval:      20 * time.Second,
		PongTimeout:       45 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    64 * 1024,
		MessagesPerSecond: 50,
		Burst:             100,
		SendBuffer:        64,
	}
}

// RoomMirror records room membership outside the process.
type RoomMirror interface {
	AddMember(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
	RemoveMember(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
}

type RelayMetrics interface {
	ClientConnected()
	ClientDisconnected()
	RoomCount(n int)
	MessageRelayed(typ domain.SignalType)
	MessageRejected(reason string)
}

type nopRelayMetrics struct{}

func (nopRelayMetrics) ClientConnected() {}
func (nopRelayMetrics) ClientDisconnected() {}
func (nopRelayMetrics) RoomCount(int) {}
func (nopRelayMetrics) MessageRelayed(domain.SignalType) {}
func (nopRelayMetrics) MessageRejected(string) {}

type ServerOption func(*Server)

func WithRoomMirror(m RoomMirror) ServerOption {
	return func(s *Server) { s.mirror = m }
}

func WithRelayMetrics(m RelayMetrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

type errorPayload struct {
	Message string `json:"message"`
}

// Server relays SignalMessage envelopes between the members of a room.
type Server struct {
	cfg      ServerConfig
	upgrader websocket.Upgrader
	mirror   RoomMirror
	metrics  RelayMetrics
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[domain.ParticipantID]*client
	rooms   map[domain.RoomID]map[domain.ParticipantID]*client
}

type client struct {
	id      domain.ParticipantID
	scope   domain.RoomID // non-empty when the token is bound to one room
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	rooms   map[domain.RoomID]struct{} // guarded by Server.mu

	done      chan struct{}
	closeOnce sync.Once
}

// close reports whether this call closed the client.
func (c *client) close() bool {
	closed := false
	c.closeOnce.Do(func() {
		close(c.done)
		closed = true
	})
	return closed
}

func NewServer(cfg ServerConfig, logger *zap.SugaredLogger, opts ...ServerOption) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultServerConfig().SendBuffer
	}
	s := &Server{
		cfg:     cfg,
		metrics: nopRelayMetrics{},
		logger:  logger,
		clients: make(map[domain.ParticipantID]*client),
		rooms:   make(map[domain.RoomID]map[domain.ParticipantID]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// RegisterRoutes mounts the relay endpoints. guard, when non-nil, runs before the upgrade.
func (s *Server) RegisterRoutes(r gin.IRouter, guard gin.HandlerFunc) {
	if guard != nil {
		r.GET("/ws", guard, s.HandleWebSocket)
	} else {
		r.GET("/ws", s.HandleWebSocket)
	}
	r.GET("/health", s.HandleHealth)
	r.GET("/rooms/:id", s.HandleRoom)
}

// HandleWebSocket upgrades the request. The participant id comes from the auth
// guard when present, otherwise from the participant_id query parameter.
func (s *Server) HandleWebSocket(c *gin.Context) {
	id := c.GetString(middleware.ParticipantKey)
	if id == "" {
		id = c.Query("participant_id")
	}
	if err := validation.ValidateParticipantID(id); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		c.Abort()
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "participant_id", id, "error", err)
		return
	}

	cl := &client{
		id:    domain.ParticipantID(id),
		scope: domain.RoomID(c.GetString(middleware.RoomKey)),
		conn:  conn,
		send:  make(chan []byte, s.cfg.SendBuffer),
		rooms: make(map[domain.RoomID]struct{}),
		done:  make(chan struct{}),
	}
	if s.cfg.MessagesPerSecond > 0 {
		cl.limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}

	s.mu.Lock()
	old, reconnect := s.clients[cl.id]
	s.clients[cl.id] = cl
	s.mu.Unlock()
	if reconnect {
		s.logger.Infow("closing old connection for reconnecting participant", "participant_id", cl.id)
		s.disconnect(old)
	}

	s.metrics.ClientConnected()
	s.logger.Infow("participant connected", "participant_id", cl.id, "reconnect", reconnect)

	go s.writePump(cl)
	s.readPump(cl)
}

func (s *Server) readPump(cl *client) {
	defer s.disconnect(cl)

	conn := cl.conn
	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading from participant", "participant_id", cl.id, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if cl.limiter != nil && !cl.limiter.Allow() {
			s.metrics.MessageRejected("rate_limited")
			s.sendError(cl, "", "rate limit exceeded")
			continue
		}

		var msg domain.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.metrics.MessageRejected("malformed")
			s.sendError(cl, "", "invalid message: "+err.Error())
			continue
		}
		if err := s.handleMessage(cl, msg); err != nil {
			s.logger.Debugw("rejected message", "participant_id", cl.id, "type", msg.Type, "error", err)
			s.sendError(cl, msg.RoomID, err.Error())
		}
	}
}

func (s *Server) writePump(cl *client) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case data := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Infow("error writing to participant", "participant_id", cl.id, "error", err)
				cl.close()
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.close()
				return
			}
		case <-cl.done:
			_ = cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.cfg.WriteTimeout))
			return
		}
	}
}

func (s *Server) handleMessage(cl *client, msg domain.SignalMessage) (err error) {
	ctx, span := tracing.TraceRelayMessage(context.Background(), string(msg.Type), string(msg.RoomID), string(cl.id))
	defer func() {
		tracing.RecordError(ctx, err)
		span.End()
	}()

	if msg.From != "" && msg.From != cl.id {
		s.metrics.MessageRejected("spoofed")
		return fmt.Errorf("from mismatch: connected as %s", cl.id)
	}
	msg.From = cl.id
	if err := services.ValidateSignal(msg); err != nil {
		s.metrics.MessageRejected("malformed")
		return err
	}

	switch msg.Type {
	case domain.SignalJoinRoom:
		return s.join(ctx, cl, msg.RoomID)
	case domain.SignalLeaveRoom:
		return s.leave(ctx, cl, msg.RoomID)
	case domain.SignalOffer, domain.SignalAnswer, domain.SignalICECandidate:
		return s.relay(cl, msg)
	default:
		s.metrics.MessageRejected("unsupported")
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}
}

func (s *Server) join(ctx context.Context, cl *client, room domain.RoomID) error {
	if err := validation.ValidateRoomID(string(room)); err != nil {
		return err
	}
	if cl.scope != "" && cl.scope != room {
		s.metrics.MessageRejected("forbidden")
		return fmt.Errorf("token is not valid for room %s", room)
	}

	s.mu.Lock()
	members := s.rooms[room]
	if members == nil {
		members = make(map[domain.ParticipantID]*client)
		s.rooms[room] = members
	}
	_, already := members[cl.id]
	members[cl.id] = cl
	cl.rooms[room] = struct{}{}
	others := peersExcept(members, cl.id)
	roomCount := len(s.rooms)
	s.mu.Unlock()

	s.metrics.RoomCount(roomCount)
	if s.mirror != nil {
		if err := s.mirror.AddMember(ctx, room, cl.id); err != nil {
			s.logger.Warnw("room mirror add failed", "room_id", room, "participant_id", cl.id, "error", err)
		}
	}
	s.logger.Infow("participant joined room", "room_id", room, "participant_id", cl.id, "members", len(others)+1)

	if already {
		return nil
	}
	s.notify(others, domain.SignalUserJoined, room, cl.id)
	s.metrics.MessageRelayed(domain.SignalJoinRoom)
	return nil
}

func (s *Server) leave(ctx context.Context, cl *client, room domain.RoomID) error {
	others, ok, roomCount := s.removeMember(cl, room)
	if !ok {
		return nil
	}
	s.afterLeave(ctx, cl, room, others, roomCount)
	return nil
}

// removeMember drops cl from room and reports the remaining members.
func (s *Server) removeMember(cl *client, room domain.RoomID) ([]*client, bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.rooms[room]
	if members[cl.id] != cl {
		return nil, false, len(s.rooms)
	}
	delete(members, cl.id)
	delete(cl.rooms, room)
	if len(members) == 0 {
		delete(s.rooms, room)
	}
	return peersExcept(members, cl.id), true, len(s.rooms)
}

func (s *Server) afterLeave(ctx context.Context, cl *client, room domain.RoomID, others []*client, roomCount int) {
	s.metrics.RoomCount(roomCount)
	if s.mirror != nil {
		if err := s.mirror.RemoveMember(ctx, room, cl.id); err != nil {
			s.logger.Warnw("room mirror remove failed", "room_id", room, "participant_id", cl.id, "error", err)
		}
	}
	s.logger.Infow("participant left room", "room_id", room, "participant_id", cl.id)
	s.notify(others, domain.SignalUserLeft, room, cl.id)
}

func (s *Server) relay(cl *client, msg domain.SignalMessage) error {
	s.mu.RLock()
	members := s.rooms[msg.RoomID]
	if members[cl.id] != cl {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %s", domain.ErrNotInRoom, msg.RoomID)
	}
	var targets []*client
	if msg.To != "" {
		if to, ok := members[msg.To]; ok {
			targets = append(targets, to)
		}
	} else {
		targets = peersExcept(members, cl.id)
	}
	s.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	for _, t := range targets {
		s.enqueue(t, data)
	}
	s.metrics.MessageRelayed(msg.Type)
	return nil
}

func (s *Server) notify(targets []*client, typ domain.SignalType, room domain.RoomID, from domain.ParticipantID) {
	if len(targets) == 0 {
		return
	}
	msg, err := domain.NewSignalMessage(typ, room, from, nil)
	if err != nil {
		s.logger.Errorw("failed to build notification", "type", typ, "error", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Errorw("failed to encode notification", "type", typ, "error", err)
		return
	}
	for _, t := range targets {
		s.enqueue(t, data)
	}
}

// enqueue never blocks. A participant whose buffer is full is disconnected.
func (s *Server) enqueue(cl *client, data []byte) {
	select {
	case <-cl.done:
		return
	default:
	}
	select {
	case cl.send <- data:
	default:
		s.logger.Warnw("send buffer full, dropping participant", "participant_id", cl.id)
		s.metrics.MessageRejected("slow_consumer")
		cl.close()
	}
}

func (s *Server) sendError(cl *client, room domain.RoomID, message string) {
	msg, err := domain.NewSignalMessage(domain.SignalError, room, "", errorPayload{Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.enqueue(cl, data)
}

// disconnect removes cl from every room and closes it. Safe to call more than once.
func (s *Server) disconnect(cl *client) {
	s.mu.Lock()
	if s.clients[cl.id] == cl {
		delete(s.clients, cl.id)
	}
	rooms := make([]domain.RoomID, 0, len(cl.rooms))
	for room := range cl.rooms {
		rooms = append(rooms, room)
	}
	s.mu.Unlock()

	for _, room := range rooms {
		if others, ok, roomCount := s.removeMember(cl, room); ok {
			s.afterLeave(context.Background(), cl, room, others, roomCount)
		}
	}

	if cl.close() {
		s.metrics.ClientDisconnected()
		s.logger.Infow("participant disconnected", "participant_id", cl.id)
	}
}

// Participants lists the members of room in id order.
func (s *Server) Participants(room domain.RoomID) []domain.ParticipantID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]domain.ParticipantID, 0, len(s.rooms[room]))
	for id := range s.rooms[room] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Server) Stats() (rooms, connections int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms), len(s.clients)
}

func (s *Server) HandleRoom(c *gin.Context) {
	room := c.Param("id")
	if err := validation.ValidateRoomID(room); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room_id":      room,
		"participants": s.Participants(domain.RoomID(room)),
	})
}

func (s *Server) HandleHealth(c *gin.Context) {
	rooms, connections := s.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"rooms":       rooms,
		"connections": connections,
	})
}

// Shutdown disconnects every participant.
func (s *Server) Shutdown() {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, cl := range s.clients {
		clients = append(clients, cl)
	}
	s.mu.RUnlock()

	for _, cl := range clients {
		s.disconnect(cl)
	}
}

func peersExcept(members map[domain.ParticipantID]*client, self domain.ParticipantID) []*client {
	out := make([]*client, 0, len(members))
	for id, c := range members {
		if id != self {
			out = append(out, c)
		}
	}
	return out
}
