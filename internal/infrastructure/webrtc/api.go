package webrtc

import (
	"context"
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/config"
)

// Config selects ICE servers and the local UDP port range.
type Config struct {
	ICEServers []config.ICEServer
	PortMin    uint16
	PortMax    uint16
}

// ConfigFrom extracts the webrtc section of the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ICEServers: cfg.WebRTC.ICEServers,
		PortMin:    cfg.WebRTC.PortRange.Min,
		PortMax:    cfg.WebRTC.PortRange.Max,
	}
}

func newAPI(cfg Config) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	s := webrtc.SettingEngine{}
	if cfg.PortMin > 0 && cfg.PortMax > 0 {
		if err := s.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(s),
	), nil
}

func iceServers(in []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(in))
	for _, s := range in {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out
}

// Factory builds pion peer connections that share one API instance.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *zap.SugaredLogger
}

var _ ports.PeerConnectionFactory = (*Factory)(nil)

func NewFactory(cfg Config, logger *zap.SugaredLogger) (*Factory, error) {
	api, err := newAPI(cfg)
	if err != nil {
		return nil, err
	}
	return &Factory{
		api:    api,
		config: webrtc.Configuration{ICEServers: iceServers(cfg.ICEServers)},
		logger: logger.With("component", "webrtc"),
	}, nil
}

// NewPeerConnection creates a connection with the gesture data channels
// already negotiated, so both sides open them without an extra round trip.
func (f *Factory) NewPeerConnection(ctx context.Context) (ports.PeerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	channels, err := newChannelMux(pc, f.logger)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	f.logger.Debugw("peer connection created", "ice_servers", len(f.config.ICEServers))
	return newPeerConnection(pc, channels, f.logger), nil
}
