package webrtc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

// Negotiated channel ids. Both peers create the same pair.
const (
	reliableChannelID uint16 = 0
	lossyChannelID    uint16 = 1
)

type envelope struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// channelMux carries topics over a reliable ordered channel and an
// unordered channel without retransmits.
type channelMux struct {
	reliable *webrtc.DataChannel
	lossy    *webrtc.DataChannel
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	handlers map[string]map[int]func([]byte)
	nextID   int
}

var _ ports.DataChannel = (*channelMux)(nil)

func newChannelMux(pc *webrtc.PeerConnection, logger *zap.SugaredLogger) (*channelMux, error) {
	negotiated := true
	ordered := false
	var retransmits uint16

	reliableID := reliableChannelID
	reliable, err := pc.CreateDataChannel("gestures", &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &reliableID,
	})
	if err != nil {
		return nil, fmt.Errorf("create reliable channel: %w", err)
	}

	lossyID := lossyChannelID
	lossy, err := pc.CreateDataChannel("gestures-lossy", &webrtc.DataChannelInit{
		Negotiated:     &negotiated,
		ID:             &lossyID,
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
	})
	if err != nil {
		return nil, fmt.Errorf("create lossy channel: %w", err)
	}

	m := &channelMux{
		reliable: reliable,
		lossy:    lossy,
		logger:   logger,
		handlers: make(map[string]map[int]func([]byte)),
	}
	reliable.OnMessage(m.receive)
	lossy.OnMessage(m.receive)
	return m, nil
}

func (m *channelMux) Publish(topic string, payload []byte, reliable bool) error {
	dc := m.lossy
	if reliable {
		dc = m.reliable
	}
	if dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("%w: %s is %s", domain.ErrDataChannelUnavailable, dc.Label(), dc.ReadyState())
	}
	data, err := json.Marshal(envelope{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	return dc.Send(data)
}

func (m *channelMux) Subscribe(topic string, handler func(payload []byte)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers[topic] == nil {
		m.handlers[topic] = make(map[int]func([]byte))
	}
	id := m.nextID
	m.nextID++
	m.handlers[topic][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.handlers[topic], id)
			m.mu.Unlock()
		})
	}
}

func (m *channelMux) receive(msg webrtc.DataChannelMessage) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		m.logger.Debugw("dropping undecodable data channel message", "error", err)
		return
	}

	m.mu.Lock()
	handlers := make([]func([]byte), 0, len(m.handlers[env.Topic]))
	for _, h := range m.handlers[env.Topic] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(env.Payload)
	}
}
