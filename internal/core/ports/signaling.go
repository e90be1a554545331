package ports

import (
	"context"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

type SignalHandler func(msg domain.SignalMessage)

// SignalingTransport carries SignalMessages between the participants of a room.
// Delivery is at-least-once; ordering between message types is not guaranteed.
type SignalingTransport interface {
	Connect(ctx context.Context) error
	JoinRoom(ctx context.Context, roomID domain.RoomID, self domain.ParticipantID) error
	LeaveRoom(ctx context.Context, roomID domain.RoomID) error
	Send(ctx context.Context, roomID domain.RoomID, msg domain.SignalMessage) error
	OnMessage(handler SignalHandler)
	Close() error
}
