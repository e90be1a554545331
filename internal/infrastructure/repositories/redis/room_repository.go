package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

// RoomRepository stores the signal documents of a room as a list, announces
// each one on a pub/sub channel and tracks the room's participants in a set.
type RoomRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomRepository(client *redis.Client, ttl time.Duration) *RoomRepository {
	return &RoomRepository{client: client, ttl: ttl}
}

func signalsKey(room domain.RoomID) string {
	return fmt.Sprintf("room:%s:signals", room)
}

func peersKey(room domain.RoomID) string {
	return fmt.Sprintf("room:%s:peers", room)
}

func notifyChannel(room domain.RoomID) string {
	return fmt.Sprintf("room:%s:notify", room)
}

func (r *RoomRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *RoomRepository) AddMember(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, peersKey(room), string(id))
		pipe.Expire(ctx, peersKey(room), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add %s to room %s: %w", id, room, err)
	}
	return nil
}

// RemoveMember drops id from the room. The last one out deletes the room's
// signal documents so the next call starts clean.
func (r *RoomRepository) RemoveMember(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	var remaining *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, peersKey(room), string(id))
		remaining = pipe.SCard(ctx, peersKey(room))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s from room %s: %w", id, room, err)
	}
	if remaining.Val() == 0 {
		if err := r.client.Del(ctx, signalsKey(room), peersKey(room)).Err(); err != nil {
			return fmt.Errorf("failed to clear room %s: %w", room, err)
		}
	}
	return nil
}

func (r *RoomRepository) Members(ctx context.Context, room domain.RoomID) ([]domain.ParticipantID, error) {
	ids, err := r.client.SMembers(ctx, peersKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get members of room %s: %w", room, err)
	}
	out := make([]domain.ParticipantID, len(ids))
	for i, id := range ids {
		out[i] = domain.ParticipantID(id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// AppendSignal stores msg as a room document and announces it.
func (r *RoomRepository) AppendSignal(ctx context.Context, msg domain.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, signalsKey(msg.RoomID), data)
		pipe.Expire(ctx, signalsKey(msg.RoomID), r.ttl)
		pipe.Publish(ctx, notifyChannel(msg.RoomID), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append signal to room %s: %w", msg.RoomID, err)
	}
	return nil
}

// Announce publishes msg without storing it.
func (r *RoomRepository) Announce(ctx context.Context, msg domain.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	if err := r.client.Publish(ctx, notifyChannel(msg.RoomID), data).Err(); err != nil {
		return fmt.Errorf("failed to announce in room %s: %w", msg.RoomID, err)
	}
	return nil
}

// Signals returns the stored documents in append order. Undecodable entries are skipped.
func (r *RoomRepository) Signals(ctx context.Context, room domain.RoomID) ([]domain.SignalMessage, error) {
	raw, err := r.client.LRange(ctx, signalsKey(room), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read signals of room %s: %w", room, err)
	}
	out := make([]domain.SignalMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.SignalMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// RoomSubscription delivers the announcements of one room.
type RoomSubscription struct {
	pubsub *redis.PubSub
	out    chan domain.SignalMessage
	done   chan struct{}
	once   sync.Once
}

// Subscribe returns once the subscription is confirmed by the server.
func (r *RoomRepository) Subscribe(ctx context.Context, room domain.RoomID) (*RoomSubscription, error) {
	pubsub := r.client.Subscribe(ctx, notifyChannel(room))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", room, err)
	}

	sub := &RoomSubscription{pubsub: pubsub, out: make(chan domain.SignalMessage, 64), done: make(chan struct{})}
	go sub.decode()
	return sub, nil
}

func (s *RoomSubscription) decode() {
	defer close(s.out)
	for m := range s.pubsub.Channel() {
		var msg domain.SignalMessage
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			continue
		}
		select {
		case s.out <- msg:
		case <-s.done:
			return
		}
	}
}

// Messages is closed after Close.
func (s *RoomSubscription) Messages() <-chan domain.SignalMessage {
	return s.out
}

func (s *RoomSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
