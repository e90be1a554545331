package inference

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/circuitbreaker"
	apperrors "github.com/YelllowSunray/xsimwink-sub000/pkg/errors"
)

const maxMessageBytes = 16 << 20

type ModelConfig struct {
	Address        string
	CallTimeout    time.Duration // used when the caller's context has no deadline
	ConnectTimeout time.Duration
}

func DefaultModelConfig(address string) ModelConfig {
	return ModelConfig{Address: address, CallTimeout: time.Second, ConnectTimeout: 10 * time.Second}
}

// GRPCModel runs detection on a remote landmark service. Calls go through a
// circuit breaker so a dead detector fails fast instead of stalling ticks.
type GRPCModel struct {
	conn    *grpc.ClientConn
	cfg     ModelConfig
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
	closed  atomic.Bool
}

var _ ports.LandmarkModel = (*GRPCModel)(nil)

func NewGRPCModel(cfg ModelConfig, logger *zap.SugaredLogger, opts ...grpc.DialOption) (*GRPCModel, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageBytes),
			grpc.MaxCallSendMsgSize(maxMessageBytes),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	conn, err := grpc.NewClient(cfg.Address, append(dialOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("could not create landmark client for %s: %w", cfg.Address, err)
	}
	return &GRPCModel{
		conn:    conn,
		cfg:     cfg,
		breaker: circuitbreaker.New("landmarks", circuitbreaker.DefaultConfig()),
		logger:  logger.With("component", "inference", "address", cfg.Address),
	}, nil
}

// Loader dials the detector and waits until the connection is ready.
func Loader(cfg ModelConfig, logger *zap.SugaredLogger, opts ...grpc.DialOption) ports.ModelLoader {
	return func(ctx context.Context) (ports.LandmarkModel, error) {
		m, err := NewGRPCModel(cfg, logger, opts...)
		if err != nil {
			return nil, err
		}
		if cfg.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
			defer cancel()
		}
		if err := m.WaitReady(ctx); err != nil {
			_ = m.Close()
			return nil, apperrors.NewInferenceUnavailableError(err)
		}
		m.logger.Infow("connected to landmark service")
		return m, nil
	}
}

func (m *GRPCModel) WaitReady(ctx context.Context) error {
	m.conn.Connect()
	for {
		state := m.conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return domain.ErrModelReleased
		}
		if !m.conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("%w: landmark service %s: %v", domain.ErrModelNotReady, m.cfg.Address, ctx.Err())
		}
	}
}

func (m *GRPCModel) Detect(ctx context.Context, frame ports.Frame, ts time.Time) (domain.Landmarks, error) {
	if m.closed.Load() {
		return domain.Landmarks{}, domain.ErrModelReleased
	}
	req, err := encodeFrame(frame, ts)
	if err != nil {
		return domain.Landmarks{}, err
	}
	if _, ok := ctx.Deadline(); !ok && m.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	err = m.breaker.Execute(ctx, func(ctx context.Context) error {
		return m.conn.Invoke(ctx, detectMethod, req, resp)
	})
	if err != nil {
		return domain.Landmarks{}, fmt.Errorf("could not detect landmarks: %w", err)
	}
	return decodeLandmarks(resp)
}

// Close is idempotent. Detect fails with domain.ErrModelReleased afterwards.
func (m *GRPCModel) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.conn.Close()
}
