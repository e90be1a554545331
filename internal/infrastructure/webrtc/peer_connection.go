package webrtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

var ErrUnsupportedTrack = errors.New("track was not created by this package")

// PeerConnection adapts a pion connection to ports.PeerConnection.
type PeerConnection struct {
	pc       *webrtc.PeerConnection
	channels *channelMux
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	remote    []*RemoteTrack
	closeOnce sync.Once
	closeErr  error
}

var _ ports.PeerConnection = (*PeerConnection)(nil)

func newPeerConnection(pc *webrtc.PeerConnection, channels *channelMux, logger *zap.SugaredLogger) *PeerConnection {
	return &PeerConnection{pc: pc, channels: channels, logger: logger}
}

func toPion(desc domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(string(desc.Type)), SDP: desc.SDP}
}

func fromPion(desc *webrtc.SessionDescription) *domain.SessionDescription {
	if desc == nil {
		return nil
	}
	return &domain.SessionDescription{Type: domain.SDPType(desc.Type.String()), SDP: desc.SDP}
}

func (p *PeerConnection) CreateOffer(opts ports.OfferOptions) (domain.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: opts.ICERestart})
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return *fromPion(&offer), nil
}

func (p *PeerConnection) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return *fromPion(&answer), nil
}

// pion parses the SDP of every description, rollbacks included, so an empty
// rollback reuses the pending description it discards.
func rollbackSDP(desc domain.SessionDescription, pending *webrtc.SessionDescription) domain.SessionDescription {
	if desc.Type == domain.SDPTypeRollback && desc.SDP == "" && pending != nil {
		desc.SDP = pending.SDP
	}
	return desc
}

func (p *PeerConnection) SetLocalDescription(desc domain.SessionDescription) error {
	desc = rollbackSDP(desc, p.pc.PendingLocalDescription())
	return p.pc.SetLocalDescription(toPion(desc))
}

func (p *PeerConnection) SetRemoteDescription(desc domain.SessionDescription) error {
	desc = rollbackSDP(desc, p.pc.PendingRemoteDescription())
	return p.pc.SetRemoteDescription(toPion(desc))
}

func (p *PeerConnection) AddICECandidate(c domain.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *PeerConnection) LocalDescription() *domain.SessionDescription {
	return fromPion(p.pc.LocalDescription())
}

func (p *PeerConnection) RemoteDescription() *domain.SessionDescription {
	return fromPion(p.pc.RemoteDescription())
}

func (p *PeerConnection) SignalingState() domain.SignalingState {
	return domain.SignalingState(p.pc.SignalingState().String())
}

// AddTrack attaches a LocalTrack and drains RTCP from its sender so the
// interceptors keep receiving reports.
func (p *PeerConnection) AddTrack(track ports.MediaTrack) error {
	local, ok := track.(*LocalTrack)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedTrack, track)
	}
	sender, err := p.pc.AddTrack(local.pionTrack())
	if err != nil {
		return fmt.Errorf("add %s track: %w", local.Kind(), err)
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *PeerConnection) DataChannel() ports.DataChannel {
	return p.channels
}

func (p *PeerConnection) OnICECandidate(fn func(candidate *domain.ICECandidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&domain.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (p *PeerConnection) OnICEConnectionStateChange(fn func(state domain.ICEConnectionState)) {
	p.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		fn(domain.ICEConnectionState(s.String()))
	})
}

func (p *PeerConnection) OnConnectionStateChange(fn func(state domain.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(domain.ConnectionState(s.String()))
	})
}

func (p *PeerConnection) OnTrack(fn func(track ports.MediaTrack)) {
	p.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t := newRemoteTrack(remote, p.pc, p.logger)
		p.mu.Lock()
		p.remote = append(p.remote, t)
		p.mu.Unlock()
		p.logger.Infow("remote track",
			"track", remote.ID(),
			"kind", remote.Kind().String(),
			"codec", remote.Codec().MimeType)
		fn(t)
	})
}

func (p *PeerConnection) OnNegotiationNeeded(fn func()) {
	p.pc.OnNegotiationNeeded(fn)
}

// RemoteTracks returns every track received so far.
func (p *PeerConnection) RemoteTracks() []*RemoteTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*RemoteTrack(nil), p.remote...)
}

// Close is idempotent and stops every remote track.
func (p *PeerConnection) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
		for _, t := range p.RemoteTracks() {
			t.Stop()
		}
	})
	return p.closeErr
}
