package testutil

import (
	"sync"
)

// Published is one payload captured by a ChannelEnd.
type Published struct {
	Topic    string
	Payload  []byte
	Reliable bool
}

// ChannelEnd is one side of an in-memory data channel pair. Publishes are
// delivered synchronously to the peer end's subscribers.
type ChannelEnd struct {
	mu        sync.Mutex
	peer      *ChannelEnd
	handlers  map[string]map[int]func([]byte)
	nextID    int
	published []Published
	PublishErr error
}

// NewChannelPair returns two connected ends.
func NewChannelPair() (*ChannelEnd, *ChannelEnd) {
	a := &ChannelEnd{handlers: make(map[string]map[int]func([]byte))}
	b := &ChannelEnd{handlers: make(map[string]map[int]func([]byte))}
	a.peer, b.peer = b, a
	return a, b
}

func (c *ChannelEnd) Publish(topic string, payload []byte, reliable bool) error {
	c.mu.Lock()
	if c.PublishErr != nil {
		err := c.PublishErr
		c.mu.Unlock()
		return err
	}
	c.published = append(c.published, Published{Topic: topic, Payload: append([]byte(nil), payload...), Reliable: reliable})
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		peer.Inject(topic, payload)
	}
	return nil
}

func (c *ChannelEnd) Subscribe(topic string, handler func([]byte)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[topic] == nil {
		c.handlers[topic] = make(map[int]func([]byte))
	}
	id := c.nextID
	c.nextID++
	c.handlers[topic][id] = handler
	return func() {
		c.mu.Lock()
		delete(c.handlers[topic], id)
		c.mu.Unlock()
	}
}

// Inject delivers payload to local subscribers as if the peer sent it.
func (c *ChannelEnd) Inject(topic string, payload []byte) {
	c.mu.Lock()
	var hs []func([]byte)
	for _, h := range c.handlers[topic] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (c *ChannelEnd) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

func (c *ChannelEnd) Subscribers(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[topic])
}
