package signal

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

const hubInboxSize = 256

// Hub relays signals between transports in the same process. Each transport
// delivers on its own goroutine, so handlers never run on the sender's stack.
type Hub struct {
	logger *zap.SugaredLogger

	mu    sync.Mutex
	rooms map[domain.RoomID]map[domain.ParticipantID]*HubTransport
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		logger: logger.With("transport", "hub"),
		rooms:  make(map[domain.RoomID]map[domain.ParticipantID]*HubTransport),
	}
}

func (h *Hub) Transport(self domain.ParticipantID) *HubTransport {
	return &HubTransport{
		hub:   h,
		self:  self,
		inbox: make(chan domain.SignalMessage, hubInboxSize),
		done:  make(chan struct{}),
	}
}

func (h *Hub) add(room domain.RoomID, t *HubTransport) []*HubTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members == nil {
		members = make(map[domain.ParticipantID]*HubTransport)
		h.rooms[room] = members
	}
	members[t.self] = t
	return h.othersLocked(room, t.self)
}

func (h *Hub) remove(room domain.RoomID, t *HubTransport) ([]*HubTransport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members[t.self] != t {
		return nil, false
	}
	delete(members, t.self)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	return h.othersLocked(room, t.self), true
}

func (h *Hub) members(room domain.RoomID, self domain.ParticipantID) []*HubTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.othersLocked(room, self)
}

func (h *Hub) othersLocked(room domain.RoomID, self domain.ParticipantID) []*HubTransport {
	var out []*HubTransport
	for id, t := range h.rooms[room] {
		if id != self {
			out = append(out, t)
		}
	}
	return out
}

type HubTransport struct {
	hub   *Hub
	self  domain.ParticipantID
	inbox chan domain.SignalMessage

	mu      sync.Mutex
	handler ports.SignalHandler
	started bool
	closed  bool
	rooms   []domain.RoomID

	done chan struct{}
}

var _ ports.SignalingTransport = (*HubTransport)(nil)

func (t *HubTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrTransportClosed
	}
	if !t.started {
		t.started = true
		go t.deliverLoop()
	}
	return nil
}

func (t *HubTransport) deliverLoop() {
	for {
		select {
		case <-t.done:
			return
		case msg := <-t.inbox:
			t.mu.Lock()
			handler := t.handler
			t.mu.Unlock()
			if handler != nil {
				handler(msg)
			}
		}
	}
}

func (t *HubTransport) enqueue(msg domain.SignalMessage) {
	select {
	case <-t.done:
	case t.inbox <- msg:
	default:
		t.hub.logger.Warnw("inbox full, dropping signal", "participant_id", t.self, "type", msg.Type)
	}
}

func (t *HubTransport) JoinRoom(ctx context.Context, roomID domain.RoomID, self domain.ParticipantID) error {
	if err := t.Connect(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	t.rooms = append(t.rooms, roomID)
	t.mu.Unlock()

	others := t.hub.add(roomID, t)
	msg, err := domain.NewSignalMessage(domain.SignalUserJoined, roomID, t.self, nil)
	if err != nil {
		return err
	}
	for _, o := range others {
		o.enqueue(msg)
	}
	return nil
}

func (t *HubTransport) LeaveRoom(ctx context.Context, roomID domain.RoomID) error {
	t.mu.Lock()
	for i, r := range t.rooms {
		if r == roomID {
			t.rooms = append(t.rooms[:i], t.rooms[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	others, ok := t.hub.remove(roomID, t)
	if !ok {
		return nil
	}
	msg, err := domain.NewSignalMessage(domain.SignalUserLeft, roomID, t.self, nil)
	if err != nil {
		return err
	}
	for _, o := range others {
		o.enqueue(msg)
	}
	return nil
}

func (t *HubTransport) Send(ctx context.Context, roomID domain.RoomID, msg domain.SignalMessage) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return domain.ErrTransportClosed
	}
	msg.RoomID = roomID
	for _, o := range t.hub.members(roomID, t.self) {
		if msg.To == "" || msg.To == o.self {
			o.enqueue(msg)
		}
	}
	return nil
}

func (t *HubTransport) OnMessage(handler ports.SignalHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Close leaves every joined room.
func (t *HubTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	rooms := append([]domain.RoomID(nil), t.rooms...)
	t.mu.Unlock()

	for _, room := range rooms {
		_ = t.LeaveRoom(context.Background(), room)
	}
	close(t.done)
	return nil
}
