package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/services"
	"github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/inference"
	"github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/middleware"
	"github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/monitoring"
	redisrepo "github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/repositories/redis"
	relay "github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/signal"
	"github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/webrtc"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/config"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/logger"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/retry"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/scheduler"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/tracing"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/utils"
)

const attentionReportInterval = 10 * time.Second

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("XSIMWINK_CONFIG"); path != "" {
		return config.Load(path)
	}
	for _, path := range []string{"configs/config.yaml", "config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	return config.Load("")
}

func debounceConfig(w config.GestureWindow) services.DebounceConfig {
	return services.DebounceConfig{
		Onset:    w.Onset,
		Release:  w.Release,
		MinHold:  w.MinHold,
		MaxHold:  w.MaxHold,
		Cooldown: w.Cooldown,
	}
}

func engineConfig(cfg *config.Config) services.EngineConfig {
	return services.EngineConfig{
		DetectionInterval: cfg.Engine.DetectionInterval,
		CloseGrace:        cfg.Engine.CloseGrace,
		InferenceTimeout:  cfg.Engine.InferenceTimeout,
		LookThreshold:     cfg.Engine.LookThreshold,
		GlobalCooldown:    cfg.Engine.GlobalCooldown,
		Wink:              debounceConfig(cfg.Engine.Wink),
		TongueOut:         debounceConfig(cfg.Engine.TongueOut),
		VTongue:           debounceConfig(cfg.Engine.VTongue),
	}
}

func attentionConfig(cfg *config.Config) services.AttentionConfig {
	return services.AttentionConfig{
		HistorySize:    cfg.Attention.HistorySize,
		FullAttention:  cfg.Attention.FullAttention,
		MediumInterest: cfg.Attention.MediumInterest,
		HighInterest:   cfg.Attention.HighInterest,
	}
}

// modelLoader prefers a remote landmark service over a recorded replay.
func modelLoader(cfg *config.Config, log *zap.SugaredLogger) ports.ModelLoader {
	switch {
	case cfg.Engine.ModelAddress != "":
		mc := inference.DefaultModelConfig(cfg.Engine.ModelAddress)
		mc.CallTimeout = cfg.Engine.InferenceTimeout
		return inference.Loader(mc, log.With("component", "inference"))
	case cfg.Engine.ReplayFile != "":
		return inference.ReplayLoader(cfg.Engine.ReplayFile)
	default:
		return nil
	}
}

type closer func() error

// buildTransport returns the primary transport wrapped with an offline mock fallback.
func buildTransport(ctx context.Context, cfg *config.Config, self domain.ParticipantID, room domain.RoomID, log *zap.SugaredLogger) (ports.SignalingTransport, closer, error) {
	mock := relay.NewMockTransport(cfg.Signal.MockJoinDelay, log)

	var primary ports.SignalingTransport
	var release closer
	switch cfg.Signal.Transport {
	case config.TransportMock:
		return mock, nil, nil
	case config.TransportRedis:
		client, err := redisrepo.NewClient(ctx, redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, log)
		if err != nil {
			log.Warnw("Redis unavailable, signaling offline", "error", err)
			return mock, nil, nil
		}
		primary = relay.NewRedisTransport(redisrepo.NewRoomRepository(client, cfg.Redis.SignalTTL), log)
		release = func() error { return redisrepo.Close(client) }
	default:
		sc := relay.SocketConfig{
			URL:            cfg.Signal.URL,
			Participant:    self,
			PingInterval:   cfg.Signal.PingInterval,
			PongTimeout:    cfg.Signal.PongTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxMessageSize: cfg.Signal.MaxMessageSizeBytes,
		}
		if cfg.Auth.JWTSecret != "" {
			token, err := middleware.IssueRelayToken([]byte(cfg.Auth.JWTSecret), string(self), string(room), cfg.Auth.TokenTTL)
			if err != nil {
				return nil, nil, err
			}
			sc.Token = token
		}
		primary = relay.NewSocketTransport(sc, log)
	}

	rc := retry.DefaultConfig()
	if cfg.Signal.ConnectAttempts > 0 {
		rc.MaxAttempts = cfg.Signal.ConnectAttempts
	}
	transport := relay.NewFallbackTransport(primary, mock, log,
		relay.WithRetry(rc),
		relay.WithConnectTimeout(cfg.Signal.ConnectTimeout),
		relay.WithDegradedHandler(func(err error) {
			log.Warnw("Signaling degraded to offline mode", "error", err)
		}),
	)
	return transport, release, nil
}

func main() {
	_ = godotenv.Load()

	participant := flag.String("id", os.Getenv("XSIMWINK_PARTICIPANT"), "local participant id, generated when empty")
	room := flag.String("room", os.Getenv("XSIMWINK_ROOM"), "room id")
	with := flag.String("with", "", "remote participant id; derives the room when -room is empty")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		zap.NewExample().Sugar().Fatalw("failed to load config", "error", err)
	}

	zapLogger, err := logger.FromConfig(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		zap.NewExample().Sugar().Fatalw("failed to create logger", "error", err)
	}
	defer zapLogger.Sync()

	if *participant == "" {
		*participant = utils.GenerateParticipantID()
	}
	if *room == "" && *with != "" {
		*room = utils.RoomKey(*participant, *with)
	}
	if *room == "" {
		zapLogger.Sugar().Fatal("either -room or -with is required")
	}
	self := domain.ParticipantID(*participant)
	roomID := domain.RoomID(*room)

	callCtx := logger.WithTraceID(logger.WithRoom(context.Background(), *room, *participant), utils.GenerateTraceID())
	log := logger.NewContextLogger(zapLogger).For(callCtx)

	tp, err := tracing.Init(cfg.Tracing)
	if err != nil {
		log.Fatalw("failed to init tracing", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *monitoring.PrometheusCollector
	var managerOpts []services.ManagerOption
	var engineOpts []services.EngineOption
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(nil)
		managerOpts = append(managerOpts, services.WithManagerMetrics(metrics))
		engineOpts = append(engineOpts, services.WithEngineMetrics(metrics))
	}
	if cfg.Signal.DedupTTL > 0 {
		managerOpts = append(managerOpts, services.WithDedupTTL(cfg.Signal.DedupTTL))
	}

	transport, releaseTransport, err := buildTransport(ctx, cfg, self, roomID, log)
	if err != nil {
		log.Fatalw("failed to build signaling transport", "error", err)
	}

	factory, err := webrtc.NewFactory(webrtc.ConfigFrom(cfg), log.With("component", "webrtc"))
	if err != nil {
		log.Fatalw("failed to create peer connection factory", "error", err)
	}

	attention := services.NewAttentionTracker(attentionConfig(cfg))
	manager := services.NewPeerManager(self, transport, factory, webrtc.NewSyntheticDevice(log), services.CallObserverFuncs{
		RemoteStream: func(stream ports.MediaStream) {
			log.Infow("Remote stream attached", "tracks", len(stream.Tracks()))
		},
		ConnectionStateChange: func(state domain.ConnectionState) {
			log.Infow("Connection state changed", "state", state)
			if state != domain.ConnectionStateConnected {
				attention.Pause()
			}
		},
		UserJoined: func(id domain.ParticipantID) { log.Infow("Participant joined", "peer_id", id) },
		UserLeft:   func(id domain.ParticipantID) { log.Infow("Participant left", "peer_id", id) },
		Error:      func(err error) { log.Errorw("Call error", "error", err) },
	}, log, managerOpts...)

	constraints := domain.DefaultConstraints(cfg.WebRTC.Mobile)
	if _, err := manager.InitializeLocalStream(ctx, constraints); err != nil {
		log.Warnw("Continuing receive-only", "error", err)
	}
	if err := manager.JoinRoom(ctx, roomID); err != nil {
		log.Fatalw("failed to join room", "room_id", roomID, "error", err)
	}

	var feed *services.GestureFeed
	if dc, err := manager.DataChannel(); err != nil {
		log.Warnw("Gesture feed disabled", "error", err)
	} else {
		feed = services.NewGestureFeed(self, dc, attention, services.FeedObserverFuncs{
			RemoteSample: func(s domain.GazeSample) {
				log.Debugw("Remote sample", "looking", s.IsLooking)
			},
			ComeCloser: func(active bool) { log.Infow("Come closer", "active", active) },
		}, cfg.Engine.ComeCloserTimeout, log.With("component", "feed"))
		feed.Start()
		engineOpts = append(engineOpts, services.WithSampleSink(feed))
	}

	var engine *services.GestureEngine
	ticker := scheduler.NewTicker(cfg.Engine.FrameInterval)
	if loader := modelLoader(cfg, log); loader != nil {
		source := inference.StaticFrameSource{Width: constraints.Video.Width, Height: constraints.Video.Height}
		engine = services.NewGestureEngine(engineConfig(cfg), source, loader, ticker, services.GestureObserverFuncs{
			Gesture: func(event domain.GestureEvent) {
				log.Infow("Gesture", "type", event.Type, "side", event.Side, "held_for", event.HeldFor)
			},
		}, log.With("component", "gestures"), engineOpts...)
		engine.Start(ctx)
	} else {
		log.Info("No landmark model configured, gestures disabled")
	}

	report := time.NewTicker(attentionReportInterval)
	defer report.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-report.C:
			m := attention.Metrics()
			if metrics != nil {
				metrics.ObserveAttention(m)
			}
			log.Infow("Attention",
				"local", m.LocalScore,
				"remote", m.RemoteScore,
				"interest", m.InterestLevel,
				"mutual", utils.FormatDuration(m.MutualAttentionTime),
				"call", utils.FormatDuration(m.TotalCallTime),
			)
		}
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if engine != nil {
		if err := engine.Close(); err != nil {
			log.Errorw("Error closing gesture engine", "error", err)
		}
	}
	ticker.Stop()
	if feed != nil {
		feed.Close()
	}
	if err := manager.Disconnect(shutdownCtx); err != nil {
		log.Errorw("Error disconnecting", "error", err)
	}
	if releaseTransport != nil {
		if err := releaseTransport(); err != nil {
			log.Errorw("Error closing redis", "error", err)
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error flushing traces", "error", err)
	}
}
