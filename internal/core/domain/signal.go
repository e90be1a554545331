package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
	SignalJoinRoom     SignalType = "join-room"
	SignalLeaveRoom    SignalType = "leave-room"
	SignalUserJoined   SignalType = "user-joined"
	SignalUserLeft     SignalType = "user-left"
	SignalError        SignalType = "error"
)

// SignalMessage is the envelope exchanged over every signaling transport.
type SignalMessage struct {
	ID     string          `json:"id" validate:"required"`
	Type   SignalType      `json:"type" validate:"required,oneof=offer answer ice-candidate join-room leave-room user-joined user-left error"`
	RoomID RoomID          `json:"roomId" validate:"required"`
	From   ParticipantID   `json:"from,omitempty"`
	To     ParticipantID   `json:"to,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewSignalMessage stamps a fresh id and encodes data as the payload.
func NewSignalMessage(typ SignalType, room RoomID, from ParticipantID, data interface{}) (SignalMessage, error) {
	msg := SignalMessage{
		ID:     uuid.NewString(),
		Type:   typ,
		RoomID: room,
		From:   from,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return SignalMessage{}, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m SignalMessage) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: empty %s payload", ErrMalformedPayload, m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedPayload, m.Type, err)
	}
	return nil
}

type SDPType string

const (
	SDPTypeOffer    SDPType = "offer"
	SDPTypeAnswer   SDPType = "answer"
	SDPTypePranswer SDPType = "pranswer"
	SDPTypeRollback SDPType = "rollback"
)

type SessionDescription struct {
	Type SDPType `json:"type" validate:"required,oneof=offer answer pranswer rollback"`
	SDP  string  `json:"sdp"`
}

type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}
