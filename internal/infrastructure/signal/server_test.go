package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/middleware"
)

const relayRoom = domain.RoomID("alice_bob")

type fakeMirror struct {
	mu     sync.Mutex
	events []string
}

func (m *fakeMirror) AddMember(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "+"+string(room)+"/"+string(id))
	return nil
}

func (m *fakeMirror) RemoveMember(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "-"+string(room)+"/"+string(id))
	return nil
}

func (m *fakeMirror) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

type relayHarness struct {
	server *Server
	http   *httptest.Server
	mirror *fakeMirror
}

func testServerConfig() ServerConfig {
	cfg := DefaultServerConfig()
	cfg.PingInterval = time.Second
	cfg.PongTimeout = 5 * time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

func newRelay(t *testing.T, cfg ServerConfig, guard gin.HandlerFunc) *relayHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()

	h := &relayHarness{mirror: &fakeMirror{}}
	h.server = NewServer(cfg, logger, WithRoomMirror(h.mirror))
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	h.server.RegisterRoutes(router, guard)
	h.http = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Shutdown()
		h.http.Close()
	})
	return h
}

func (h *relayHarness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
}

type rawClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (h *relayHarness) dial(t *testing.T, id string) *rawClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL()+"?participant_id="+id, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &rawClient{t: t, conn: conn}
}

func (c *rawClient) send(msg domain.SignalMessage) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

func (c *rawClient) sendType(typ domain.SignalType, room domain.RoomID, data interface{}) domain.SignalMessage {
	c.t.Helper()
	msg, err := domain.NewSignalMessage(typ, room, "", data)
	require.NoError(c.t, err)
	c.send(msg)
	return msg
}

func (c *rawClient) read() domain.SignalMessage {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg domain.SignalMessage
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

// expectSilence asserts nothing arrives within d.
func (c *rawClient) expectSilence(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected frame %s", data)
}

func errorText(t *testing.T, msg domain.SignalMessage) string {
	t.Helper()
	require.Equal(t, domain.SignalError, msg.Type)
	var p errorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	return p.Message
}

// joinPair connects alice then bob and consumes the user-joined alice sees.
func (h *relayHarness) joinPair(t *testing.T) (*rawClient, *rawClient) {
	t.Helper()
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")
	alice.sendType(domain.SignalJoinRoom, relayRoom, nil)
	require.Eventually(t, func() bool { return len(h.server.Participants(relayRoom)) == 1 }, time.Second, 5*time.Millisecond)
	bob.sendType(domain.SignalJoinRoom, relayRoom, nil)

	joined := alice.read()
	require.Equal(t, domain.SignalUserJoined, joined.Type)
	require.Equal(t, domain.ParticipantID("bob"), joined.From)
	return alice, bob
}

func TestServer_RelaysToOtherMembers(t *testing.T) {
	h := newRelay(t, testServerConfig(), nil)
	alice, bob := h.joinPair(t)

	offer := alice.sendType(domain.SignalOffer, relayRoom, domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0"})
	got := bob.read()
	assert.Equal(t, offer.ID, got.ID)
	assert.Equal(t, domain.SignalOffer, got.Type)
	assert.Equal(t, domain.ParticipantID("alice"), got.From, "relay stamps the sender")
	assert.JSONEq(t, string(offer.Data), string(got.Data))

	alice.expectSilence(50 * time.Millisecond)
	assert.Equal(t, []domain.ParticipantID{"alice", "bob"}, h.server.Participants(relayRoom))
	assert.ElementsMatch(t, []string{"+alice_bob/alice", "+alice_bob/bob"}, h.mirror.Events())
}

func TestServer_AddressedMessageReachesOnlyTarget(t *testing.T) {
	h := newRelay(t, testServerConfig(), nil)
	alice, bob := h.joinPair(t)
	carol := h.dial(t, "carol")
	carol.sendType(domain.SignalJoinRoom, relayRoom, nil)
	assert.Equal(t, domain.ParticipantID("carol"), alice.read().From)
	assert.Equal(t, domain.ParticipantID("carol"), bob.read().From)

	msg, err := domain.NewSignalMessage(domain.SignalICECandidate, relayRoom, "", domain.ICECandidate{Candidate: "candidate:1"})
	require.NoError(t, err)
	msg.To = "carol"
	alice.send(msg)

	assert.Equal(t, msg.ID, carol.read().ID)
	bob.expectSilence(50 * time.Millisecond)
}

func TestServer_RejectsInvalidFrames(t *testing.T) {
	h := newRelay(t, testServerConfig(), nil)
	alice, _ := h.joinPair(t)

	t.Run("not json", func(t *testing.T) {
		require.NoError(t, alice.conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
		assert.Contains(t, errorText(t, alice.read()), "invalid message")
	})

	t.Run("spoofed sender", func(t *testing.T) {
		msg, err := domain.NewSignalMessage(domain.SignalOffer, relayRoom, "bob", domain.SessionDescription{Type: domain.SDPTypeOffer})
		require.NoError(t, err)
		alice.send(msg)
		assert.Contains(t, errorText(t, alice.read()), "from mismatch")
	})

	t.Run("not a member", func(t *testing.T) {
		alice.sendType(domain.SignalOffer, "alice_carol", domain.SessionDescription{Type: domain.SDPTypeOffer})
		assert.Contains(t, errorText(t, alice.read()), domain.ErrNotInRoom.Error())
	})

	t.Run("server-only type", func(t *testing.T) {
		alice.sendType(domain.SignalUserLeft, relayRoom, nil)
		assert.Contains(t, errorText(t, alice.read()), "unsupported")
	})

	t.Run("invalid room", func(t *testing.T) {
		alice.sendType(domain.SignalJoinRoom, "_bad", nil)
		assert.Contains(t, errorText(t, alice.read()), "empty participant segment")
	})
}

func TestServer_LeaveAndDisconnectNotifyOthers(t *testing.T) {
	h := newRelay(t, testServerConfig(), nil)
	alice, bob := h.joinPair(t)

	bob.sendType(domain.SignalLeaveRoom, relayRoom, nil)
	left := alice.read()
	assert.Equal(t, domain.SignalUserLeft, left.Type)
	assert.Equal(t, domain.ParticipantID("bob"), left.From)

	bob.sendType(domain.SignalJoinRoom, relayRoom, nil)
	assert.Equal(t, domain.SignalUserJoined, alice.read().Type)

	require.NoError(t, bob.conn.Close())
	left = alice.read()
	assert.Equal(t, domain.SignalUserLeft, left.Type)
	assert.Equal(t, domain.ParticipantID("bob"), left.From)

	require.Eventually(t, func() bool {
		_, connections := h.server.Stats()
		return connections == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.ParticipantID{"alice"}, h.server.Participants(relayRoom))
	assert.Contains(t, h.mirror.Events(), "-alice_bob/bob")
}

func TestServer_ReconnectReplacesOldConnection(t *testing.T) {
	h := newRelay(t, testServerConfig(), nil)
	alice, first := h.joinPair(t)

	second := h.dial(t, "bob")
	assert.Equal(t, domain.SignalUserLeft, alice.read().Type)

	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.conn.ReadMessage()
	assert.Error(t, err, "old connection is closed")

	second.sendType(domain.SignalJoinRoom, relayRoom, nil)
	assert.Equal(t, domain.SignalUserJoined, alice.read().Type)
}

func TestServer_RateLimitsPerConnection(t *testing.T) {
	cfg := testServerConfig()
	cfg.MessagesPerSecond = 1
	cfg.Burst = 2
	h := newRelay(t, cfg, nil)

	alice := h.dial(t, "alice")
	alice.sendType(domain.SignalJoinRoom, relayRoom, nil)
	alice.sendType(domain.SignalLeaveRoom, relayRoom, nil)
	alice.sendType(domain.SignalJoinRoom, relayRoom, nil)

	assert.Equal(t, "rate limit exceeded", errorText(t, alice.read()))
}

func TestServer_TokenScopeLimitsRooms(t *testing.T) {
	guard := func(c *gin.Context) {
		c.Set(middleware.ParticipantKey, "alice")
		c.Set(middleware.RoomKey, string(relayRoom))
		c.Next()
	}
	h := newRelay(t, testServerConfig(), guard)

	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL()+"?participant_id=mallory", nil)
	require.NoError(t, err)
	defer conn.Close()
	alice := &rawClient{t: t, conn: conn}

	alice.sendType(domain.SignalJoinRoom, "alice_carol", nil)
	assert.Contains(t, errorText(t, alice.read()), "not valid for room")

	alice.sendType(domain.SignalJoinRoom, relayRoom, nil)
	require.Eventually(t, func() bool {
		return len(h.server.Participants(relayRoom)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.ParticipantID{"alice"}, h.server.Participants(relayRoom))
}

func TestServer_HTTPEndpoints(t *testing.T) {
	h := newRelay(t, testServerConfig(), nil)
	h.joinPair(t)

	resp, err := http.Get(h.http.URL + "/rooms/alice_bob")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var room struct {
		RoomID       string   `json:"room_id"`
		Participants []string `json:"participants"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	assert.Equal(t, []string{"alice", "bob"}, room.Participants)

	bad, err := http.Get(h.http.URL + "/rooms/_x")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	health, err := http.Get(h.http.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(health.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["rooms"])
	assert.EqualValues(t, 2, body["connections"])
}

func TestServer_RejectsMissingParticipant(t *testing.T) {
	h := newRelay(t, testServerConfig(), nil)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
