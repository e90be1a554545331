package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

// newTestRepository connects to XSIMWINK_TEST_REDIS_ADDR or skips.
func newTestRepository(t *testing.T) *RoomRepository {
	t.Helper()
	addr := os.Getenv("XSIMWINK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("XSIMWINK_TEST_REDIS_ADDR not set")
	}
	client, err := NewClient(context.Background(), Options{Address: addr, PoolSize: 4}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(client) })
	return NewRoomRepository(client, time.Minute)
}

func testRoom() domain.RoomID {
	return domain.RoomID("alice_" + uuid.NewString()[:8])
}

func TestRoomRepository_Membership(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	room := testRoom()

	require.NoError(t, repo.AddMember(ctx, room, "bob"))
	require.NoError(t, repo.AddMember(ctx, room, "alice"))
	require.NoError(t, repo.AddMember(ctx, room, "alice"))

	members, err := repo.Members(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{"alice", "bob"}, members)

	msg, err := domain.NewSignalMessage(domain.SignalOffer, room, "alice", domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0"})
	require.NoError(t, err)
	require.NoError(t, repo.AppendSignal(ctx, msg))

	require.NoError(t, repo.RemoveMember(ctx, room, "alice"))
	signals, err := repo.Signals(ctx, room)
	require.NoError(t, err)
	assert.Len(t, signals, 1, "documents survive while someone remains")

	require.NoError(t, repo.RemoveMember(ctx, room, "bob"))
	signals, err = repo.Signals(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, signals)
	members, err = repo.Members(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRoomRepository_SubscribeReceivesAppends(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	room := testRoom()

	sub, err := repo.Subscribe(ctx, room)
	require.NoError(t, err)
	defer sub.Close()

	msg, err := domain.NewSignalMessage(domain.SignalICECandidate, room, "alice", domain.ICECandidate{Candidate: "candidate:1"})
	require.NoError(t, err)
	require.NoError(t, repo.AppendSignal(ctx, msg))

	select {
	case got := <-sub.Messages():
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, domain.SignalICECandidate, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no announcement received")
	}

	stored, err := repo.Signals(ctx, room)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.JSONEq(t, string(msg.Data), string(stored[0].Data))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	_, open := <-sub.Messages()
	assert.False(t, open)
}
