package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/cache"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/tracing"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/validation"
)

const (
	defaultDedupTTL    = 2 * time.Minute
	defaultSendTimeout = 5 * time.Second
)

type ManagerOption func(*PeerManager)

func WithManagerMetrics(m ports.CallMetrics) ManagerOption {
	return func(pm *PeerManager) { pm.metrics = m }
}

// WithDedupTTL sets how long a signal message id is remembered.
func WithDedupTTL(ttl time.Duration) ManagerOption {
	return func(pm *PeerManager) { pm.dedupTTL = ttl }
}

func WithSendTimeout(d time.Duration) ManagerOption {
	return func(pm *PeerManager) { pm.sendTimeout = d }
}

// remoteStream collects the tracks received from the remote peer.
type remoteStream struct {
	mu     sync.Mutex
	id     string
	tracks []ports.MediaTrack
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) Tracks() []ports.MediaTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.MediaTrack(nil), s.tracks...)
}

func (s *remoteStream) add(track ports.MediaTrack) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.ID() == track.ID() {
			return false
		}
	}
	s.tracks = append(s.tracks, track)
	return true
}

func stopTracks(stream ports.MediaStream) {
	for _, t := range stream.Tracks() {
		t.Stop()
	}
}

// PeerManager owns one peer-to-peer call. Negotiation follows the polite peer
// pattern: the initiator is impolite and ignores colliding offers, the other
// side rolls back and answers. Remote ICE candidates that arrive before a
// remote description are queued and replayed in order once it is set.
//
// Handlers are serialized by mu. Signaling sends and observer callbacks run
// after mu is released.
type PeerManager struct {
	self      domain.ParticipantID
	transport ports.SignalingTransport
	factory   ports.PeerConnectionFactory
	device    ports.MediaDevice
	observer  ports.CallObserver
	metrics   ports.CallMetrics
	logger    *zap.SugaredLogger

	dedupTTL    time.Duration
	sendTimeout time.Duration
	seen        *cache.Cache[string, struct{}]

	mu              sync.Mutex
	roomID          domain.RoomID
	inRoom          bool
	joined          bool
	initiator       bool
	roleDecided     bool
	remotePeer      domain.ParticipantID
	pc              ports.PeerConnection
	localStream     ports.MediaStream
	remote          *remoteStream
	makingOffer     bool
	ignoreOffer     bool
	pending         []domain.ICECandidate
	lastOffer       *domain.SignalMessage
	state           domain.ConnectionState
	transportClosed bool
}

func NewPeerManager(
	self domain.ParticipantID,
	transport ports.SignalingTransport,
	factory ports.PeerConnectionFactory,
	device ports.MediaDevice,
	observer ports.CallObserver,
	logger *zap.SugaredLogger,
	opts ...ManagerOption,
) *PeerManager {
	if observer == nil {
		observer = CallObserverFuncs{}
	}
	m := &PeerManager{
		self:        self,
		transport:   transport,
		factory:     factory,
		device:      device,
		observer:    observer,
		metrics:     NopMetrics{},
		logger:      logger.With("participant_id", self),
		dedupTTL:    defaultDedupTTL,
		sendTimeout: defaultSendTimeout,
		state:       domain.ConnectionStateNew,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.seen = cache.New[string, struct{}](m.dedupTTL)
	transport.OnMessage(m.HandleSignal)
	return m
}

// InitializeLocalStream acquires camera and microphone. Failures are returned
// as *domain.MediaAccessError and also reported through OnError.
func (m *PeerManager) InitializeLocalStream(ctx context.Context, constraints domain.MediaConstraints) (ports.MediaStream, error) {
	stream, err := m.device.GetUserMedia(ctx, constraints)
	if err != nil {
		var accessErr *domain.MediaAccessError
		if !errors.As(err, &accessErr) {
			accessErr = domain.NewMediaAccessError(err)
		}
		m.logger.Errorw("failed to acquire local media", "kind", accessErr.Kind, "error", err)
		m.observer.OnError(accessErr)
		return nil, accessErr
	}

	m.mu.Lock()
	previous := m.localStream
	m.localStream = stream
	pc := m.pc
	var attachErr error
	if pc != nil {
		for _, t := range stream.Tracks() {
			if err := pc.AddTrack(t); err != nil {
				attachErr = err
				break
			}
		}
	}
	m.mu.Unlock()

	if previous != nil && previous != stream {
		stopTracks(previous)
	}
	if attachErr != nil {
		m.logger.Warnw("failed to attach new local tracks", "error", attachErr)
	}
	m.logger.Infow("local stream initialized", "stream_id", stream.ID(), "tracks", len(stream.Tracks()))
	return stream, nil
}

// JoinRoom builds the peer connection for roomID and joins its signaling room.
// The initiator, the lexicographically first participant of the room key,
// sends the first offer.
func (m *PeerManager) JoinRoom(ctx context.Context, roomID domain.RoomID) error {
	ctx, span := tracing.TraceNegotiation(ctx, "join_room", string(roomID), string(m.self))
	defer span.End()

	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRoom, err)
	}

	m.mu.Lock()
	if m.inRoom {
		m.mu.Unlock()
		return domain.ErrAlreadyInRoom
	}

	pc, err := m.factory.NewPeerConnection(ctx)
	if err != nil {
		m.mu.Unlock()
		err = fmt.Errorf("create peer connection: %w", err)
		tracing.RecordError(ctx, err)
		m.observer.OnError(err)
		return err
	}
	m.wire(pc)

	if m.localStream != nil {
		for _, t := range m.localStream.Tracks() {
			if err := pc.AddTrack(t); err != nil {
				m.mu.Unlock()
				_ = pc.Close()
				err = fmt.Errorf("attach local %s track: %w", t.Kind(), err)
				m.observer.OnError(err)
				return err
			}
		}
	} else {
		m.logger.Warnw("joining without a local stream", "room_id", roomID)
	}

	m.pc = pc
	m.roomID = roomID
	m.inRoom = true
	m.joined = false
	m.initiator, m.roleDecided = m.decideRole(roomID)
	m.remotePeer = ""
	m.remote = nil
	m.pending = nil
	m.makingOffer = false
	m.ignoreOffer = false
	m.lastOffer = nil
	m.state = domain.ConnectionStateNew
	initiator, decided := m.initiator, m.roleDecided
	m.mu.Unlock()

	tracing.AddSpanAttributes(ctx, tracing.InitiatorKey.Bool(initiator))
	m.logger.Infow("joining room", "room_id", roomID, "initiator", initiator, "role_decided", decided)

	if err := m.transport.JoinRoom(ctx, roomID, m.self); err != nil {
		m.abandonJoin(pc)
		err = fmt.Errorf("join signaling room: %w", err)
		tracing.RecordError(ctx, err)
		m.observer.OnError(err)
		return err
	}

	m.mu.Lock()
	if m.pc == pc {
		m.joined = true
	}
	m.mu.Unlock()

	if initiator {
		if _, err := m.makeOffer(ctx, ports.OfferOptions{}, true); err != nil {
			tracing.RecordError(ctx, err)
			return err
		}
	}
	return nil
}

// decideRole must run under mu. When the local id is not part of the room key
// the role stays undecided until the remote participant shows up.
func (m *PeerManager) decideRole(roomID domain.RoomID) (initiator, decided bool) {
	if !roomID.Contains(m.self) {
		return false, false
	}
	first, _ := roomID.Initiator()
	return first == m.self, true
}

func (m *PeerManager) wire(pc ports.PeerConnection) {
	pc.OnICECandidate(func(c *domain.ICECandidate) { m.onLocalCandidate(pc, c) })
	pc.OnICEConnectionStateChange(func(s domain.ICEConnectionState) { m.onICEState(pc, s) })
	pc.OnConnectionStateChange(func(s domain.ConnectionState) { m.setState(pc, s) })
	pc.OnTrack(func(t ports.MediaTrack) { m.onRemoteTrack(pc, t) })
	pc.OnNegotiationNeeded(func() {
		if err := m.Renegotiate(context.Background()); err != nil {
			m.logger.Warnw("renegotiation failed", "error", err)
		}
	})
}

// makeOffer creates, applies and sends an offer. With onlyIfStable it is a
// no-op unless this side is the initiator and the signaling state is stable.
func (m *PeerManager) makeOffer(ctx context.Context, opts ports.OfferOptions, onlyIfStable bool) (bool, error) {
	m.mu.Lock()
	if !m.inRoom || m.pc == nil {
		m.mu.Unlock()
		return false, domain.ErrNotInRoom
	}
	pc := m.pc
	if onlyIfStable && (!m.joined || !m.initiator || pc.SignalingState() != domain.SignalingStateStable) {
		m.mu.Unlock()
		return false, nil
	}

	m.makingOffer = true
	offer, err := pc.CreateOffer(opts)
	if err == nil {
		err = pc.SetLocalDescription(offer)
	}
	m.makingOffer = false
	if err != nil {
		m.mu.Unlock()
		return false, fmt.Errorf("make offer: %w", err)
	}
	if local := pc.LocalDescription(); local != nil {
		offer = *local
	}

	msg, err := domain.NewSignalMessage(domain.SignalOffer, m.roomID, m.self, offer)
	if err != nil {
		m.mu.Unlock()
		return false, err
	}
	msg.To = m.remotePeer
	m.lastOffer = &msg
	room := m.roomID
	m.mu.Unlock()

	m.logger.Debugw("sending offer", "room_id", room, "ice_restart", opts.ICERestart)
	if err := m.transport.Send(ctx, room, msg); err != nil {
		return false, fmt.Errorf("send offer: %w", err)
	}
	return true, nil
}

// Renegotiate sends a fresh offer when tracks change. Only the initiator
// renegotiates and only from the stable state.
func (m *PeerManager) Renegotiate(ctx context.Context) error {
	sent, err := m.makeOffer(ctx, ports.OfferOptions{}, true)
	if errors.Is(err, domain.ErrNotInRoom) {
		return nil
	}
	if err == nil && !sent {
		m.logger.Debugw("renegotiation skipped")
	}
	return err
}

// RestartICE sends an ICE-restart offer. Recovery from a failed connection is
// never automatic; callers invoke this explicitly.
func (m *PeerManager) RestartICE(ctx context.Context) error {
	m.mu.Lock()
	room := m.roomID
	m.mu.Unlock()

	ctx, span := tracing.TraceNegotiation(ctx, "restart_ice", string(room), string(m.self))
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.ICERestartKey.Bool(true))

	if _, err := m.makeOffer(ctx, ports.OfferOptions{ICERestart: true}, false); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	m.logger.Infow("ICE restart offer sent", "room_id", room)
	return nil
}

// HandleSignal processes one inbound signaling message. Failures are logged
// and never propagate to the transport.
func (m *PeerManager) HandleSignal(msg domain.SignalMessage) {
	if err := ValidateSignal(msg); err != nil {
		m.logger.Warnw("dropping malformed signal", "error", err)
		return
	}
	if msg.From == m.self {
		return
	}
	if !m.seen.Add(msg.ID, struct{}{}) {
		m.logger.Debugw("dropping duplicate signal", "id", msg.ID, "type", msg.Type)
		return
	}

	m.mu.Lock()
	current := m.inRoom && msg.RoomID == m.roomID
	m.mu.Unlock()
	if !current {
		m.logger.Debugw("ignoring signal for another room", "room_id", msg.RoomID, "type", msg.Type)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case domain.SignalOffer:
		err = m.handleOffer(ctx, msg)
	case domain.SignalAnswer:
		err = m.handleAnswer(ctx, msg)
	case domain.SignalICECandidate:
		err = m.handleCandidate(msg)
	case domain.SignalUserJoined:
		err = m.handleUserJoined(ctx, msg)
	case domain.SignalUserLeft:
		m.handleUserLeft(msg)
	case domain.SignalError:
		m.logger.Warnw("signaling server reported an error", "data", string(msg.Data))
	default:
		m.logger.Debugw("ignoring signal", "type", msg.Type)
	}
	if err != nil {
		m.logger.Warnw("signal handling failed", "type", msg.Type, "from", msg.From, "error", err)
	}
}

func (m *PeerManager) handleOffer(ctx context.Context, msg domain.SignalMessage) error {
	ctx, span := tracing.TraceNegotiation(ctx, "handle_offer", string(msg.RoomID), string(m.self))
	defer span.End()

	desc, err := decodeDescription(msg)
	if err != nil {
		return err
	}
	if desc.Type != domain.SDPTypeOffer {
		return fmt.Errorf("%w: offer message carries %s", domain.ErrMalformedPayload, desc.Type)
	}

	m.mu.Lock()
	pc := m.pc
	if pc == nil {
		m.mu.Unlock()
		return domain.ErrNotInRoom
	}
	if m.remotePeer == "" {
		m.remotePeer = msg.From
	}
	if !m.roleDecided {
		m.initiator = m.self < msg.From
		m.roleDecided = true
	}
	polite := !m.initiator
	collision := m.makingOffer || pc.SignalingState() != domain.SignalingStateStable
	m.ignoreOffer = !polite && collision
	if m.ignoreOffer {
		m.mu.Unlock()
		m.metrics.GlareResolved(false)
		m.logger.Infow("ignoring colliding offer", "from", msg.From)
		return nil
	}

	if collision {
		if err := pc.SetLocalDescription(domain.SessionDescription{Type: domain.SDPTypeRollback}); err != nil {
			m.mu.Unlock()
			tracing.RecordError(ctx, err)
			return fmt.Errorf("rollback local offer: %w", err)
		}
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		m.mu.Unlock()
		tracing.RecordError(ctx, err)
		return fmt.Errorf("set remote offer: %w", err)
	}
	drained := m.drainPendingLocked(pc)

	answer, err := pc.CreateAnswer()
	if err == nil {
		err = pc.SetLocalDescription(answer)
	}
	if err != nil {
		m.mu.Unlock()
		tracing.RecordError(ctx, err)
		return fmt.Errorf("answer offer: %w", err)
	}
	if local := pc.LocalDescription(); local != nil {
		answer = *local
	}
	reply, err := domain.NewSignalMessage(domain.SignalAnswer, m.roomID, m.self, answer)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	reply.To = msg.From
	room := m.roomID
	m.mu.Unlock()

	if collision {
		m.metrics.GlareResolved(true)
		m.logger.Infow("rolled back local offer for remote offer", "from", msg.From)
	}
	if drained > 0 {
		m.metrics.CandidatesDrained(drained)
	}
	return m.transport.Send(ctx, room, reply)
}

func (m *PeerManager) handleAnswer(ctx context.Context, msg domain.SignalMessage) error {
	ctx, span := tracing.TraceNegotiation(ctx, "handle_answer", string(msg.RoomID), string(m.self))
	defer span.End()

	desc, err := decodeDescription(msg)
	if err != nil {
		return err
	}
	if desc.Type != domain.SDPTypeAnswer {
		return fmt.Errorf("%w: answer message carries %s", domain.ErrMalformedPayload, desc.Type)
	}

	m.mu.Lock()
	pc := m.pc
	if pc == nil {
		m.mu.Unlock()
		return domain.ErrNotInRoom
	}
	if state := pc.SignalingState(); state != domain.SignalingStateHaveLocalOffer {
		m.mu.Unlock()
		m.logger.Debugw("dropping answer outside have-local-offer", "state", state, "from", msg.From)
		return nil
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		m.mu.Unlock()
		tracing.RecordError(ctx, err)
		return fmt.Errorf("set remote answer: %w", err)
	}
	if m.remotePeer == "" {
		m.remotePeer = msg.From
	}
	drained := m.drainPendingLocked(pc)
	m.mu.Unlock()

	if drained > 0 {
		m.metrics.CandidatesDrained(drained)
	}
	return nil
}

func (m *PeerManager) handleCandidate(msg domain.SignalMessage) error {
	c, err := decodeCandidate(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pc := m.pc
	if pc == nil {
		return domain.ErrNotInRoom
	}
	if pc.RemoteDescription() == nil {
		m.pending = append(m.pending, c)
		m.logger.Debugw("queued remote ICE candidate", "pending", len(m.pending))
		return nil
	}
	if err := pc.AddICECandidate(c); err != nil {
		if m.ignoreOffer {
			return nil
		}
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

// drainPendingLocked applies queued candidates in arrival order and clears
// the queue. Must run under mu right after a remote description is set.
func (m *PeerManager) drainPendingLocked(pc ports.PeerConnection) int {
	queued := m.pending
	m.pending = nil
	for _, c := range queued {
		if err := pc.AddICECandidate(c); err != nil && !m.ignoreOffer {
			m.logger.Warnw("queued ICE candidate rejected", "error", err)
		}
	}
	return len(queued)
}

func (m *PeerManager) handleUserJoined(ctx context.Context, msg domain.SignalMessage) error {
	m.mu.Lock()
	pc := m.pc
	if pc == nil {
		m.mu.Unlock()
		return domain.ErrNotInRoom
	}
	m.remotePeer = msg.From
	freshOffer := false
	var resend *domain.SignalMessage
	switch {
	case !m.roleDecided:
		m.initiator = m.self < msg.From
		m.roleDecided = true
		freshOffer = m.initiator
	case m.initiator && pc.SignalingState() == domain.SignalingStateHaveLocalOffer && m.lastOffer != nil:
		cp := *m.lastOffer
		resend = &cp
	case m.initiator && pc.SignalingState() == domain.SignalingStateStable && pc.RemoteDescription() == nil:
		freshOffer = true
	}
	room := m.roomID
	m.mu.Unlock()

	m.logger.Infow("remote participant joined", "remote", msg.From)
	m.observer.OnUserJoined(msg.From)

	if resend != nil {
		return m.transport.Send(ctx, room, *resend)
	}
	if freshOffer {
		_, err := m.makeOffer(ctx, ports.OfferOptions{}, true)
		return err
	}
	return nil
}

func (m *PeerManager) handleUserLeft(msg domain.SignalMessage) {
	m.mu.Lock()
	if m.remotePeer == msg.From {
		m.remotePeer = ""
		m.remote = nil
	}
	m.mu.Unlock()

	m.logger.Infow("remote participant left", "remote", msg.From)
	m.observer.OnUserLeft(msg.From)
}

func (m *PeerManager) onLocalCandidate(pc ports.PeerConnection, c *domain.ICECandidate) {
	if c == nil {
		return
	}
	m.mu.Lock()
	if m.pc != pc || !m.inRoom {
		m.mu.Unlock()
		return
	}
	room, to := m.roomID, m.remotePeer
	m.mu.Unlock()

	msg, err := domain.NewSignalMessage(domain.SignalICECandidate, room, m.self, c)
	if err != nil {
		m.logger.Warnw("failed to encode local ICE candidate", "error", err)
		return
	}
	msg.To = to

	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()
	if err := m.transport.Send(ctx, room, msg); err != nil {
		m.logger.Warnw("failed to send local ICE candidate", "error", err)
	}
}

func (m *PeerManager) onICEState(pc ports.PeerConnection, s domain.ICEConnectionState) {
	m.logger.Debugw("ICE connection state changed", "state", s)
	switch s {
	case domain.ICEConnectionStateChecking:
		m.setState(pc, domain.ConnectionStateConnecting)
	case domain.ICEConnectionStateConnected, domain.ICEConnectionStateCompleted:
		m.setState(pc, domain.ConnectionStateConnected)
	case domain.ICEConnectionStateDisconnected:
		m.setState(pc, domain.ConnectionStateDisconnected)
	case domain.ICEConnectionStateFailed:
		m.setState(pc, domain.ConnectionStateFailed)
	}
}

// setState reports a transition once; repeats and events from a replaced
// connection are dropped.
func (m *PeerManager) setState(pc ports.PeerConnection, s domain.ConnectionState) {
	m.mu.Lock()
	if m.pc != pc || m.state == s || m.state == domain.ConnectionStateClosed {
		m.mu.Unlock()
		return
	}
	m.state = s
	room := m.roomID
	m.mu.Unlock()

	m.metrics.ConnectionStateChanged(s)
	m.logger.Infow("connection state changed", "room_id", room, "state", s)
	m.observer.OnConnectionStateChange(s)
}

func (m *PeerManager) onRemoteTrack(pc ports.PeerConnection, t ports.MediaTrack) {
	m.mu.Lock()
	if m.pc != pc {
		m.mu.Unlock()
		return
	}
	if m.remote == nil {
		m.remote = &remoteStream{id: "remote-" + string(m.roomID)}
	}
	stream := m.remote
	m.mu.Unlock()

	if stream.add(t) {
		m.logger.Infow("remote track received", "kind", t.Kind(), "track_id", t.ID())
		m.observer.OnRemoteStream(stream)
	}
}

// ToggleVideo enables or disables local video without renegotiating.
func (m *PeerManager) ToggleVideo(enabled bool) error {
	return m.toggle(ports.TrackKindVideo, enabled)
}

// ToggleAudio enables or disables local audio without renegotiating.
func (m *PeerManager) ToggleAudio(enabled bool) error {
	return m.toggle(ports.TrackKindAudio, enabled)
}

func (m *PeerManager) toggle(kind ports.TrackKind, enabled bool) error {
	m.mu.Lock()
	stream := m.localStream
	m.mu.Unlock()
	if stream == nil {
		return domain.ErrNoLocalStream
	}
	for _, t := range stream.Tracks() {
		if t.Kind() == kind {
			t.SetEnabled(enabled)
		}
	}
	return nil
}

// LeaveRoom closes the call and stops local tracks. Calling it again is a no-op.
func (m *PeerManager) LeaveRoom(ctx context.Context) error {
	return m.teardown(ctx, false)
}

// Disconnect is LeaveRoom plus closing the signaling transport.
func (m *PeerManager) Disconnect(ctx context.Context) error {
	err := m.teardown(ctx, true)
	m.seen.Stop()
	return err
}

func (m *PeerManager) teardown(ctx context.Context, closeTransport bool) error {
	m.mu.Lock()
	pc := m.pc
	room := m.roomID
	joined := m.joined
	stream := m.localStream
	emitClosed := pc != nil && m.state != domain.ConnectionStateClosed
	closeNow := closeTransport && !m.transportClosed

	m.resetRoomLocked()
	m.localStream = nil
	if pc != nil {
		m.state = domain.ConnectionStateClosed
	}
	if closeNow {
		m.transportClosed = true
	}
	m.mu.Unlock()

	if joined {
		if err := m.transport.LeaveRoom(ctx, room); err != nil {
			m.logger.Debugw("leaving signaling room failed", "room_id", room, "error", err)
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			m.logger.Debugw("closing peer connection failed", "error", err)
		}
	}
	if stream != nil {
		stopTracks(stream)
	}
	if closeNow {
		if err := m.transport.Close(); err != nil {
			m.logger.Debugw("closing signaling transport failed", "error", err)
		}
	}
	if emitClosed {
		m.metrics.ConnectionStateChanged(domain.ConnectionStateClosed)
		m.logger.Infow("left room", "room_id", room)
		m.observer.OnConnectionStateChange(domain.ConnectionStateClosed)
	}
	return nil
}

// abandonJoin undoes a JoinRoom whose signaling join failed. The local stream
// stays so the join can be retried without acquiring media again.
func (m *PeerManager) abandonJoin(pc ports.PeerConnection) {
	m.mu.Lock()
	if m.pc != pc {
		m.mu.Unlock()
		return
	}
	m.resetRoomLocked()
	m.state = domain.ConnectionStateNew
	m.mu.Unlock()

	if err := pc.Close(); err != nil {
		m.logger.Debugw("closing peer connection failed", "error", err)
	}
}

// resetRoomLocked clears the per-room state. Callers hold mu.
func (m *PeerManager) resetRoomLocked() {
	m.pc = nil
	m.roomID = ""
	m.inRoom = false
	m.joined = false
	m.initiator = false
	m.roleDecided = false
	m.remotePeer = ""
	m.remote = nil
	m.makingOffer = false
	m.ignoreOffer = false
	m.pending = nil
	m.lastOffer = nil
}

func (m *PeerManager) ConnectionState() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *PeerManager) IsInitiator() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initiator
}

func (m *PeerManager) RoomID() domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

// PendingCandidates is the number of remote candidates waiting for a remote description.
func (m *PeerManager) PendingCandidates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *PeerManager) LocalStream() ports.MediaStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localStream
}

// RemoteStream returns nil until a remote track arrives.
func (m *PeerManager) RemoteStream() ports.MediaStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remote == nil {
		return nil
	}
	return m.remote
}

// DataChannel exposes the current connection's channel for the gesture feed.
func (m *PeerManager) DataChannel() (ports.DataChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pc == nil {
		return nil, domain.ErrNotInRoom
	}
	dc := m.pc.DataChannel()
	if dc == nil {
		return nil, domain.ErrDataChannelUnavailable
	}
	return dc, nil
}
