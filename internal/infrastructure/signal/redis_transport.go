package signal

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
	redisrepo "github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/repositories/redis"
)

// RoomStore is the document store behind RedisTransport.
type RoomStore interface {
	Ping(ctx context.Context) error
	AddMember(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
	RemoveMember(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
	AppendSignal(ctx context.Context, msg domain.SignalMessage) error
	Announce(ctx context.Context, msg domain.SignalMessage) error
	Signals(ctx context.Context, room domain.RoomID) ([]domain.SignalMessage, error)
	Subscribe(ctx context.Context, room domain.RoomID) (*redisrepo.RoomSubscription, error)
}

var _ RoomStore = (*redisrepo.RoomRepository)(nil)

// RedisTransport signals through per-room documents. Joining replays the
// documents already in the room, then follows new ones as they are announced.
type RedisTransport struct {
	store  RoomStore
	logger *zap.SugaredLogger

	mu      sync.Mutex
	handler ports.SignalHandler
	self    domain.ParticipantID
	subs    map[domain.RoomID]*redisrepo.RoomSubscription
	closed  bool
}

var _ ports.SignalingTransport = (*RedisTransport)(nil)

func NewRedisTransport(store RoomStore, logger *zap.SugaredLogger) *RedisTransport {
	return &RedisTransport{
		store:  store,
		logger: logger.With("transport", "redis"),
		subs:   make(map[domain.RoomID]*redisrepo.RoomSubscription),
	}
}

func (t *RedisTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return domain.ErrTransportClosed
	}
	return t.store.Ping(ctx)
}

func (t *RedisTransport) JoinRoom(ctx context.Context, roomID domain.RoomID, self domain.ParticipantID) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrTransportClosed
	}
	if _, ok := t.subs[roomID]; ok {
		t.mu.Unlock()
		return nil
	}
	t.self = self
	t.mu.Unlock()

	if err := t.store.AddMember(ctx, roomID, self); err != nil {
		return err
	}
	sub, err := t.store.Subscribe(ctx, roomID)
	if err != nil {
		_ = t.store.RemoveMember(ctx, roomID, self)
		return err
	}
	backlog, err := t.store.Signals(ctx, roomID)
	if err != nil {
		_ = sub.Close()
		_ = t.store.RemoveMember(ctx, roomID, self)
		return err
	}

	t.mu.Lock()
	t.subs[roomID] = sub
	t.mu.Unlock()

	joined, err := domain.NewSignalMessage(domain.SignalUserJoined, roomID, self, nil)
	if err != nil {
		return err
	}
	if err := t.store.Announce(ctx, joined); err != nil {
		t.logger.Warnw("failed to announce join", "room_id", roomID, "error", err)
	}

	t.logger.Infow("joined room", "room_id", roomID, "participant_id", self, "backlog", len(backlog))
	go t.pump(roomID, sub, backlog)
	return nil
}

// pump replays the backlog, then forwards announcements until the
// subscription closes. Own messages are skipped.
func (t *RedisTransport) pump(room domain.RoomID, sub *redisrepo.RoomSubscription, backlog []domain.SignalMessage) {
	for _, msg := range backlog {
		t.dispatch(room, sub, msg)
	}
	for msg := range sub.Messages() {
		t.dispatch(room, sub, msg)
	}
}

func (t *RedisTransport) dispatch(room domain.RoomID, sub *redisrepo.RoomSubscription, msg domain.SignalMessage) {
	t.mu.Lock()
	handler, self := t.handler, t.self
	active := t.subs[room] == sub
	t.mu.Unlock()

	if !active || handler == nil || msg.From == self {
		return
	}
	if msg.To != "" && msg.To != self {
		return
	}
	handler(msg)
}

func (t *RedisTransport) LeaveRoom(ctx context.Context, roomID domain.RoomID) error {
	t.mu.Lock()
	sub, ok := t.subs[roomID]
	delete(t.subs, roomID)
	self := t.self
	t.mu.Unlock()
	if !ok {
		return nil
	}

	_ = sub.Close()
	left, err := domain.NewSignalMessage(domain.SignalUserLeft, roomID, self, nil)
	if err != nil {
		return err
	}
	if err := t.store.Announce(ctx, left); err != nil {
		t.logger.Warnw("failed to announce leave", "room_id", roomID, "error", err)
	}
	if err := t.store.RemoveMember(ctx, roomID, self); err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}
	return nil
}

func (t *RedisTransport) Send(ctx context.Context, roomID domain.RoomID, msg domain.SignalMessage) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return domain.ErrTransportClosed
	}
	msg.RoomID = roomID
	return t.store.AppendSignal(ctx, msg)
}

func (t *RedisTransport) OnMessage(handler ports.SignalHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Close leaves every room. The redis client stays open.
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	rooms := make([]domain.RoomID, 0, len(t.subs))
	for room := range t.subs {
		rooms = append(rooms, room)
	}
	t.mu.Unlock()

	for _, room := range rooms {
		if err := t.LeaveRoom(context.Background(), room); err != nil {
			t.logger.Warnw("leave on close failed", "room_id", room, "error", err)
		}
	}
	return nil
}
