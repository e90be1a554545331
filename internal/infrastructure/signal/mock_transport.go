package signal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

const mockPeerID = domain.ParticipantID("mock-peer")

// MockTransport is the offline signaling path. Sends go nowhere; after a join
// a remote participant appears once the configured delay has passed.
type MockTransport struct {
	delay  time.Duration
	logger *zap.SugaredLogger

	mu      sync.Mutex
	handler ports.SignalHandler
	timers  map[domain.RoomID]*time.Timer
	sent    []domain.SignalMessage
	closed  bool
}

var _ ports.SignalingTransport = (*MockTransport)(nil)

func NewMockTransport(delay time.Duration, logger *zap.SugaredLogger) *MockTransport {
	return &MockTransport{
		delay:  delay,
		logger: logger.With("transport", "mock"),
		timers: make(map[domain.RoomID]*time.Timer),
	}
}

func (t *MockTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrTransportClosed
	}
	return nil
}

// simulatedPeer picks the other participant named by the room key.
func simulatedPeer(room domain.RoomID, self domain.ParticipantID) domain.ParticipantID {
	for _, id := range room.Participants() {
		if id != self {
			return id
		}
	}
	return mockPeerID
}

func (t *MockTransport) JoinRoom(ctx context.Context, roomID domain.RoomID, self domain.ParticipantID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrTransportClosed
	}
	if old := t.timers[roomID]; old != nil {
		old.Stop()
	}

	remote := simulatedPeer(roomID, self)
	var timer *time.Timer
	timer = time.AfterFunc(t.delay, func() {
		msg, err := domain.NewSignalMessage(domain.SignalUserJoined, roomID, remote, nil)
		if err != nil {
			return
		}
		t.mu.Lock()
		handler := t.handler
		active := !t.closed && t.timers[roomID] == timer
		if active {
			delete(t.timers, roomID)
		}
		t.mu.Unlock()
		if active && handler != nil {
			t.logger.Infow("simulating remote join", "room_id", roomID, "remote", remote)
			handler(msg)
		}
	})
	t.timers[roomID] = timer
	return nil
}

func (t *MockTransport) LeaveRoom(ctx context.Context, roomID domain.RoomID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer := t.timers[roomID]; timer != nil {
		timer.Stop()
		delete(t.timers, roomID)
	}
	return nil
}

func (t *MockTransport) Send(ctx context.Context, roomID domain.RoomID, msg domain.SignalMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrTransportClosed
	}
	t.sent = append(t.sent, msg)
	t.logger.Debugw("mock send", "room_id", roomID, "type", msg.Type)
	return nil
}

func (t *MockTransport) OnMessage(handler ports.SignalHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Sent returns everything passed to Send.
func (t *MockTransport) Sent() []domain.SignalMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.SignalMessage(nil), t.sent...)
}

func (t *MockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for room, timer := range t.timers {
		timer.Stop()
		delete(t.timers, room)
	}
	return nil
}
