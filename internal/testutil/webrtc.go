// Package testutil holds in-memory fakes for the call and gesture ports.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

var ErrInvalidState = errors.New("invalid signaling state")

// FakePeerConnection tracks the signaling state machine of a real peer
// connection without any media. Event handlers only fire when the test
// calls the Fire* helpers.
type FakePeerConnection struct {
	Name string

	mu         sync.Mutex
	state      domain.SignalingState
	local      *domain.SessionDescription
	remote     *domain.SessionDescription
	offers     int
	candidates []domain.ICECandidate
	tracks     []ports.MediaTrack
	closed     int
	channel    ports.DataChannel
	restarts   int

	onCandidate  func(*domain.ICECandidate)
	onICEState   func(domain.ICEConnectionState)
	onConnState  func(domain.ConnectionState)
	onTrack      func(ports.MediaTrack)
	onNegotiate  func()
	AddTrackErr  error
	CandidateErr error
}

func NewFakePeerConnection(name string) *FakePeerConnection {
	return &FakePeerConnection{Name: name, state: domain.SignalingStateStable}
}

func (f *FakePeerConnection) CreateOffer(opts ports.OfferOptions) (domain.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	if opts.ICERestart {
		f.restarts++
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: fmt.Sprintf("offer-%s-%d", f.Name, f.offers)}, nil
}

func (f *FakePeerConnection) CreateAnswer() (domain.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != domain.SignalingStateHaveRemoteOffer {
		return domain.SessionDescription{}, ErrInvalidState
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "answer-" + f.Name}, nil
}

func (f *FakePeerConnection) SetLocalDescription(desc domain.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch desc.Type {
	case domain.SDPTypeOffer:
		if f.state != domain.SignalingStateStable && f.state != domain.SignalingStateHaveLocalOffer {
			return ErrInvalidState
		}
		f.state = domain.SignalingStateHaveLocalOffer
	case domain.SDPTypeAnswer:
		if f.state != domain.SignalingStateHaveRemoteOffer {
			return ErrInvalidState
		}
		f.state = domain.SignalingStateStable
	case domain.SDPTypeRollback:
		if f.state != domain.SignalingStateHaveLocalOffer {
			return ErrInvalidState
		}
		f.state = domain.SignalingStateStable
		f.local = nil
		return nil
	default:
		return ErrInvalidState
	}
	d := desc
	f.local = &d
	return nil
}

func (f *FakePeerConnection) SetRemoteDescription(desc domain.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch desc.Type {
	case domain.SDPTypeOffer:
		if f.state != domain.SignalingStateStable {
			return ErrInvalidState
		}
		f.state = domain.SignalingStateHaveRemoteOffer
	case domain.SDPTypeAnswer:
		if f.state != domain.SignalingStateHaveLocalOffer {
			return ErrInvalidState
		}
		f.state = domain.SignalingStateStable
	default:
		return ErrInvalidState
	}
	d := desc
	f.remote = &d
	return nil
}

func (f *FakePeerConnection) AddICECandidate(c domain.ICECandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return ErrInvalidState
	}
	if f.CandidateErr != nil {
		return f.CandidateErr
	}
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *FakePeerConnection) LocalDescription() *domain.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local
}

func (f *FakePeerConnection) RemoteDescription() *domain.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote
}

func (f *FakePeerConnection) SignalingState() domain.SignalingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakePeerConnection) AddTrack(t ports.MediaTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddTrackErr != nil {
		return f.AddTrackErr
	}
	f.tracks = append(f.tracks, t)
	return nil
}

func (f *FakePeerConnection) SetDataChannel(dc ports.DataChannel) {
	f.mu.Lock()
	f.channel = dc
	f.mu.Unlock()
}

func (f *FakePeerConnection) DataChannel() ports.DataChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel
}

func (f *FakePeerConnection) OnICECandidate(fn func(*domain.ICECandidate)) {
	f.mu.Lock()
	f.onCandidate = fn
	f.mu.Unlock()
}

func (f *FakePeerConnection) OnICEConnectionStateChange(fn func(domain.ICEConnectionState)) {
	f.mu.Lock()
	f.onICEState = fn
	f.mu.Unlock()
}

func (f *FakePeerConnection) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	f.mu.Lock()
	f.onConnState = fn
	f.mu.Unlock()
}

func (f *FakePeerConnection) OnTrack(fn func(ports.MediaTrack)) {
	f.mu.Lock()
	f.onTrack = fn
	f.mu.Unlock()
}

func (f *FakePeerConnection) OnNegotiationNeeded(fn func()) {
	f.mu.Lock()
	f.onNegotiate = fn
	f.mu.Unlock()
}

func (f *FakePeerConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.state = domain.SignalingStateClosed
	return nil
}

func (f *FakePeerConnection) FireCandidate(c *domain.ICECandidate) {
	f.mu.Lock()
	fn := f.onCandidate
	f.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (f *FakePeerConnection) FireICEState(s domain.ICEConnectionState) {
	f.mu.Lock()
	fn := f.onICEState
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *FakePeerConnection) FireConnectionState(s domain.ConnectionState) {
	f.mu.Lock()
	fn := f.onConnState
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *FakePeerConnection) FireTrack(t ports.MediaTrack) {
	f.mu.Lock()
	fn := f.onTrack
	f.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (f *FakePeerConnection) FireNegotiationNeeded() {
	f.mu.Lock()
	fn := f.onNegotiate
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *FakePeerConnection) Candidates() []domain.ICECandidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ICECandidate(nil), f.candidates...)
}

func (f *FakePeerConnection) Tracks() []ports.MediaTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.MediaTrack(nil), f.tracks...)
}

func (f *FakePeerConnection) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakePeerConnection) OffersCreated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offers
}

func (f *FakePeerConnection) ICERestarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

// FakeFactory hands out FakePeerConnections and remembers them.
type FakeFactory struct {
	Name string
	Err  error

	mu      sync.Mutex
	created []*FakePeerConnection
}

func (f *FakeFactory) NewPeerConnection(ctx context.Context) (ports.PeerConnection, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pc := NewFakePeerConnection(fmt.Sprintf("%s%d", f.Name, len(f.created)+1))
	f.created = append(f.created, pc)
	return pc, nil
}

// Last returns the most recently created connection or nil.
func (f *FakeFactory) Last() *FakePeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func (f *FakeFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}
