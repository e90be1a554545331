package ports

// DataChannel multiplexes topics over a peer connection. Unreliable publishes
// are best effort and may be dropped or reordered.
type DataChannel interface {
	Publish(topic string, payload []byte, reliable bool) error
	Subscribe(topic string, handler func(payload []byte)) (unsubscribe func())
}
