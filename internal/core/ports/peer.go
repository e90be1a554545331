package ports

import (
	"context"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

type OfferOptions struct {
	ICERestart bool
}

// PeerConnection is the subset of a WebRTC peer connection the call core drives.
type PeerConnection interface {
	CreateOffer(opts OfferOptions) (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	SetRemoteDescription(desc domain.SessionDescription) error
	AddICECandidate(candidate domain.ICECandidate) error
	LocalDescription() *domain.SessionDescription
	RemoteDescription() *domain.SessionDescription
	SignalingState() domain.SignalingState
	AddTrack(track MediaTrack) error
	DataChannel() DataChannel

	// OnICECandidate receives nil once gathering completes.
	OnICECandidate(fn func(candidate *domain.ICECandidate))
	OnICEConnectionStateChange(fn func(state domain.ICEConnectionState))
	OnConnectionStateChange(fn func(state domain.ConnectionState))
	OnTrack(fn func(track MediaTrack))
	OnNegotiationNeeded(fn func())

	Close() error
}

type PeerConnectionFactory interface {
	NewPeerConnection(ctx context.Context) (PeerConnection, error)
}
