package domain

import (
	"sort"
	"strings"
)

type RoomID string
type ParticipantID string

type ConnectionState string

const (
	ConnectionStateNew          ConnectionState = "new"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateFailed       ConnectionState = "failed"
	ConnectionStateClosed       ConnectionState = "closed"
)

type SignalingState string

const (
	SignalingStateStable             SignalingState = "stable"
	SignalingStateHaveLocalOffer     SignalingState = "have-local-offer"
	SignalingStateHaveRemoteOffer    SignalingState = "have-remote-offer"
	SignalingStateHaveLocalPranswer  SignalingState = "have-local-pranswer"
	SignalingStateHaveRemotePranswer SignalingState = "have-remote-pranswer"
	SignalingStateClosed             SignalingState = "closed"
)

type ICEConnectionState string

const (
	ICEConnectionStateNew          ICEConnectionState = "new"
	ICEConnectionStateChecking     ICEConnectionState = "checking"
	ICEConnectionStateConnected    ICEConnectionState = "connected"
	ICEConnectionStateCompleted    ICEConnectionState = "completed"
	ICEConnectionStateDisconnected ICEConnectionState = "disconnected"
	ICEConnectionStateFailed       ICEConnectionState = "failed"
	ICEConnectionStateClosed       ICEConnectionState = "closed"
)

const roomKeySeparator = "_"

// Participants splits a room key such as "userA_userB" into its participant ids.
func (r RoomID) Participants() []ParticipantID {
	parts := strings.Split(string(r), roomKeySeparator)
	out := make([]ParticipantID, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, ParticipantID(p))
		}
	}
	return out
}

// Initiator returns the lexicographically first participant in the room key.
func (r RoomID) Initiator() (ParticipantID, bool) {
	ids := r.Participants()
	if len(ids) == 0 {
		return "", false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[0], true
}

// Contains reports whether id is one of the room key's participants.
func (r RoomID) Contains(id ParticipantID) bool {
	for _, p := range r.Participants() {
		if p == id {
			return true
		}
	}
	return false
}
