package testutil

import (
	"context"
	"sync"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

// Relay is a synchronous in-memory signaling server. Messages go to every
// other member of the room that is present at send time. Holding a message
// lets a test reorder or drop delivery.
type Relay struct {
	mu      sync.Mutex
	members map[domain.RoomID]map[domain.ParticipantID]*RelayTransport
	hold    bool
	held    []heldMessage
}

type heldMessage struct {
	to  *RelayTransport
	msg domain.SignalMessage
}

func NewRelay() *Relay {
	return &Relay{members: make(map[domain.RoomID]map[domain.ParticipantID]*RelayTransport)}
}

func (r *Relay) Transport(self domain.ParticipantID) *RelayTransport {
	return &RelayTransport{relay: r, self: self}
}

// Hold queues deliveries until Flush.
func (r *Relay) Hold() {
	r.mu.Lock()
	r.hold = true
	r.mu.Unlock()
}

// Flush releases held messages in the given order of indices, or in send
// order when none are given, and stops holding.
func (r *Relay) Flush(order ...int) {
	r.mu.Lock()
	held := r.held
	r.held = nil
	r.hold = false
	r.mu.Unlock()

	if len(order) == 0 {
		for _, h := range held {
			h.to.deliver(h.msg)
		}
		return
	}
	for _, i := range order {
		held[i].to.deliver(held[i].msg)
	}
}

// Held returns the queued messages in send order.
func (r *Relay) Held() []domain.SignalMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SignalMessage, len(r.held))
	for i, h := range r.held {
		out[i] = h.msg
	}
	return out
}

func (r *Relay) route(room domain.RoomID, from *RelayTransport, msg domain.SignalMessage) {
	r.mu.Lock()
	var targets []*RelayTransport
	for id, t := range r.members[room] {
		if id != from.self {
			targets = append(targets, t)
		}
	}
	if r.hold {
		for _, t := range targets {
			r.held = append(r.held, heldMessage{to: t, msg: msg})
		}
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	for _, t := range targets {
		t.deliver(msg)
	}
}

type RelayTransport struct {
	relay *Relay
	self  domain.ParticipantID

	mu      sync.Mutex
	handler ports.SignalHandler
	sent    []domain.SignalMessage
	closed  int
	JoinErr error
}

func (t *RelayTransport) Connect(ctx context.Context) error { return nil }

func (t *RelayTransport) JoinRoom(ctx context.Context, room domain.RoomID, self domain.ParticipantID) error {
	if t.JoinErr != nil {
		return t.JoinErr
	}
	r := t.relay
	r.mu.Lock()
	if r.members[room] == nil {
		r.members[room] = make(map[domain.ParticipantID]*RelayTransport)
	}
	r.members[room][self] = t
	r.mu.Unlock()

	joined, err := domain.NewSignalMessage(domain.SignalUserJoined, room, self, nil)
	if err != nil {
		return err
	}
	r.route(room, t, joined)
	return nil
}

func (t *RelayTransport) LeaveRoom(ctx context.Context, room domain.RoomID) error {
	r := t.relay
	r.mu.Lock()
	delete(r.members[room], t.self)
	r.mu.Unlock()

	left, err := domain.NewSignalMessage(domain.SignalUserLeft, room, t.self, nil)
	if err != nil {
		return err
	}
	r.route(room, t, left)
	return nil
}

func (t *RelayTransport) Send(ctx context.Context, room domain.RoomID, msg domain.SignalMessage) error {
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()
	t.relay.route(room, t, msg)
	return nil
}

func (t *RelayTransport) OnMessage(h ports.SignalHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *RelayTransport) Close() error {
	t.mu.Lock()
	t.closed++
	t.mu.Unlock()
	return nil
}

// Deliver hands msg to the registered handler as if it came from the relay.
func (t *RelayTransport) Deliver(msg domain.SignalMessage) { t.deliver(msg) }

func (t *RelayTransport) deliver(msg domain.SignalMessage) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// Sent returns the messages sent through this transport, optionally of one type.
func (t *RelayTransport) Sent(types ...domain.SignalType) []domain.SignalMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.SignalMessage
	for _, m := range t.sent {
		if len(types) == 0 {
			out = append(out, m)
			continue
		}
		for _, typ := range types {
			if m.Type == typ {
				out = append(out, m)
			}
		}
	}
	return out
}

func (t *RelayTransport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
