package signal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/circuitbreaker"
	apperrors "github.com/YelllowSunray/xsimwink-sub000/pkg/errors"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/retry"
)

// FallbackTransport connects the primary transport with retries behind a
// circuit breaker and degrades to the offline transport when that fails.
type FallbackTransport struct {
	primary  ports.SignalingTransport
	offline  ports.SignalingTransport
	retry    retry.Config
	breaker  *circuitbreaker.CircuitBreaker
	timeout  time.Duration
	logger   *zap.SugaredLogger
	degraded func(err error)

	mu         sync.Mutex
	active     ports.SignalingTransport
	handler    ports.SignalHandler
	rooms      map[domain.RoomID]domain.ParticipantID
	recovering bool
	closed     bool

	stop   context.Context
	cancel context.CancelFunc
}

var _ ports.SignalingTransport = (*FallbackTransport)(nil)

// disconnectNotifier is implemented by transports whose connection can drop
// after Connect succeeded.
type disconnectNotifier interface {
	OnDisconnect(fn func(err error))
}

type FallbackOption func(*FallbackTransport)

func WithRetry(cfg retry.Config) FallbackOption {
	return func(f *FallbackTransport) { f.retry = cfg }
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) FallbackOption {
	return func(f *FallbackTransport) { f.breaker = cb }
}

// WithConnectTimeout bounds each connect attempt.
func WithConnectTimeout(d time.Duration) FallbackOption {
	return func(f *FallbackTransport) { f.timeout = d }
}

// WithDegradedHandler is told when the offline path takes over.
func WithDegradedHandler(fn func(err error)) FallbackOption {
	return func(f *FallbackTransport) { f.degraded = fn }
}

func NewFallbackTransport(primary, offline ports.SignalingTransport, logger *zap.SugaredLogger, opts ...FallbackOption) *FallbackTransport {
	f := &FallbackTransport{
		primary: primary,
		offline: offline,
		retry:   retry.DefaultConfig(),
		breaker: circuitbreaker.New("signaling", circuitbreaker.DefaultConfig()),
		timeout: 5 * time.Second,
		logger:  logger,
		active:  primary,
		rooms:   make(map[domain.RoomID]domain.ParticipantID),
	}
	f.stop, f.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(f)
	}
	primary.OnMessage(f.dispatch)
	offline.OnMessage(f.dispatch)
	if n, ok := primary.(disconnectNotifier); ok {
		n.OnDisconnect(f.primaryLost)
	}
	return f
}

func (f *FallbackTransport) dispatch(msg domain.SignalMessage) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// Connect never fails because of the primary transport: an unreachable relay
// switches to the offline path and reports a connectivity warning.
func (f *FallbackTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	if len(f.rooms) > 0 || f.recovering {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	_, err := f.connect(ctx)
	return err
}

// connect tries the primary and falls back to the offline transport,
// returning whichever became active.
func (f *FallbackTransport) connect(ctx context.Context) (ports.SignalingTransport, error) {
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, f.retry, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			return f.primary.Connect(attemptCtx)
		}, func(attempt int, err error, next time.Duration) {
			f.logger.Debugw("signaling connect failed, retrying", "attempt", attempt, "next", next, "error", err)
		})
	})
	if err == nil {
		f.mu.Lock()
		f.active = f.primary
		f.mu.Unlock()
		return f.primary, nil
	}

	if offErr := f.offline.Connect(ctx); offErr != nil {
		return nil, apperrors.NewSignalingUnavailableError(offErr)
	}
	f.mu.Lock()
	f.active = f.offline
	f.mu.Unlock()

	f.logger.Warnw("signaling unavailable, continuing offline",
		"error", err, "breaker", f.breaker.State().String())
	if f.degraded != nil {
		f.degraded(apperrors.NewSignalingUnavailableError(err))
	}
	return f.offline, nil
}

// primaryLost reconnects after the primary dropped and rejoins every room
// that was joined through it. Rooms move to the offline path if the primary
// stays down.
func (f *FallbackTransport) primaryLost(err error) {
	f.mu.Lock()
	if f.closed || f.recovering || f.active != f.primary {
		f.mu.Unlock()
		return
	}
	f.recovering = true
	f.mu.Unlock()

	f.logger.Warnw("signaling connection dropped, reconnecting", "error", err)
	go f.reconnect()
}

func (f *FallbackTransport) reconnect() {
	defer func() {
		f.mu.Lock()
		f.recovering = false
		f.mu.Unlock()
	}()

	target, err := f.connect(f.stop)
	if err != nil {
		f.logger.Errorw("signaling recovery failed", "error", err)
		return
	}

	f.mu.Lock()
	rooms := make(map[domain.RoomID]domain.ParticipantID, len(f.rooms))
	for room, self := range f.rooms {
		rooms[room] = self
	}
	f.mu.Unlock()

	for room, self := range rooms {
		if err := target.JoinRoom(f.stop, room, self); err != nil {
			f.logger.Warnw("failed to rejoin room", "room_id", room, "error", err)
		}
	}
	f.logger.Infow("signaling recovered", "degraded", target == f.offline, "rooms", len(rooms))
}

// Degraded reports whether the offline path is active.
func (f *FallbackTransport) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active == f.offline
}

func (f *FallbackTransport) current() ports.SignalingTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *FallbackTransport) JoinRoom(ctx context.Context, roomID domain.RoomID, self domain.ParticipantID) error {
	if err := f.current().JoinRoom(ctx, roomID, self); err != nil {
		return err
	}
	f.mu.Lock()
	f.rooms[roomID] = self
	f.mu.Unlock()
	return nil
}

func (f *FallbackTransport) LeaveRoom(ctx context.Context, roomID domain.RoomID) error {
	f.mu.Lock()
	delete(f.rooms, roomID)
	f.mu.Unlock()
	return f.current().LeaveRoom(ctx, roomID)
}

func (f *FallbackTransport) Send(ctx context.Context, roomID domain.RoomID, msg domain.SignalMessage) error {
	return f.current().Send(ctx, roomID, msg)
}

func (f *FallbackTransport) OnMessage(handler ports.SignalHandler) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

func (f *FallbackTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cancel()

	errPrimary := f.primary.Close()
	errOffline := f.offline.Close()
	if errPrimary != nil {
		return errPrimary
	}
	return errOffline
}
