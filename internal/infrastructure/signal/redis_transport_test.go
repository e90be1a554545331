package signal

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
	redisrepo "github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/repositories/redis"
)

func newRedisStore(t *testing.T) *redisrepo.RoomRepository {
	t.Helper()
	addr := os.Getenv("XSIMWINK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("XSIMWINK_TEST_REDIS_ADDR not set")
	}
	client, err := redisrepo.NewClient(context.Background(), redisrepo.Options{Address: addr, PoolSize: 4}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisrepo.Close(client) })
	return redisrepo.NewRoomRepository(client, time.Minute)
}

func TestRedisTransport_ReplaysAndFollowsRoom(t *testing.T) {
	store := newRedisStore(t)
	logger := zaptest.NewLogger(t).Sugar()
	ctx := context.Background()
	room := domain.RoomID("alice_" + uuid.NewString()[:8])
	bobID := room.Participants()[1]

	alice := NewRedisTransport(store, logger)
	bob := NewRedisTransport(store, logger)
	t.Cleanup(func() {
		_ = alice.Close()
		_ = bob.Close()
	})
	aliceIn, bobIn := &inbox{}, &inbox{}
	alice.OnMessage(aliceIn.handle)
	bob.OnMessage(bobIn.handle)

	require.NoError(t, alice.Connect(ctx))
	require.NoError(t, alice.JoinRoom(ctx, room, "alice"))

	offer, err := domain.NewSignalMessage(domain.SignalOffer, room, "alice", domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0"})
	require.NoError(t, err)
	require.NoError(t, alice.Send(ctx, room, offer))

	require.NoError(t, bob.JoinRoom(ctx, room, bobID))
	require.Eventually(t, func() bool { return len(bobIn.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, offer.ID, bobIn.all()[0].ID, "backlog is replayed on join")

	require.Eventually(t, func() bool { return len(aliceIn.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.SignalUserJoined, aliceIn.all()[0].Type)

	answer, err := domain.NewSignalMessage(domain.SignalAnswer, room, bobID, domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0"})
	require.NoError(t, err)
	answer.To = "alice"
	require.NoError(t, bob.Send(ctx, room, answer))
	require.Eventually(t, func() bool { return len(aliceIn.all()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, answer.ID, aliceIn.all()[1].ID)

	require.NoError(t, bob.LeaveRoom(ctx, room))
	require.Eventually(t, func() bool { return len(aliceIn.all()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.SignalUserLeft, aliceIn.all()[2].Type)
	assert.Len(t, bobIn.all(), 1, "own messages are never delivered back")

	require.NoError(t, alice.Close())
	members, err := store.Members(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.ErrorIs(t, alice.Send(ctx, room, offer), domain.ErrTransportClosed)
}
