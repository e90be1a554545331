package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/YelllowSunray/xsimwink-sub000/pkg/tracing"
)

const (
	TransportSocket = "socket"
	TransportRedis  = "redis"
	TransportMock   = "mock"
)

// GestureWindow tunes one debounced facial gesture.
type GestureWindow struct {
	Onset    float64       `yaml:"onset"`
	Release  float64       `yaml:"release"`
	MinHold  time.Duration `yaml:"min_hold"`
	MaxHold  time.Duration `yaml:"max_hold"`
	Cooldown time.Duration `yaml:"cooldown"`
}

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		URL                 string        `yaml:"url"`
		Transport           string        `yaml:"transport"`
		PingInterval        time.Duration `yaml:"ping_interval"`
		PongTimeout         time.Duration `yaml:"pong_timeout"`
		MaxMessageSizeBytes int64         `yaml:"max_message_size_bytes"`
		ConnectTimeout      time.Duration `yaml:"connect_timeout"`
		ConnectAttempts     int           `yaml:"connect_attempts"`
		MockJoinDelay       time.Duration `yaml:"mock_join_delay"`
		DedupTTL            time.Duration `yaml:"dedup_ttl"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		Mobile bool `yaml:"mobile"`
	} `yaml:"webrtc"`

	Engine struct {
		DetectionInterval time.Duration `yaml:"detection_interval"`
		FrameInterval     time.Duration `yaml:"frame_interval"`
		CloseGrace        time.Duration `yaml:"close_grace"`
		InferenceTimeout  time.Duration `yaml:"inference_timeout"`
		LookThreshold     float64       `yaml:"look_threshold"`
		GlobalCooldown    time.Duration `yaml:"global_cooldown"`
		ComeCloserTimeout time.Duration `yaml:"come_closer_timeout"`
		ModelAddress      string        `yaml:"model_address"`
		ReplayFile        string        `yaml:"replay_file"`
		Wink              GestureWindow `yaml:"wink"`
		TongueOut         GestureWindow `yaml:"tongue_out"`
		VTongue           GestureWindow `yaml:"v_tongue"`
	} `yaml:"engine"`

	Attention struct {
		HistorySize    int     `yaml:"history_size"`
		FullAttention  float64 `yaml:"full_attention"`
		MediumInterest float64 `yaml:"medium_interest"`
		HighInterest   float64 `yaml:"high_interest"`
	} `yaml:"attention"`

	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Address   string        `yaml:"address"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		PoolSize  int           `yaml:"pool_size"`
		SignalTTL time.Duration `yaml:"signal_ttl"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing tracing.Config `yaml:"tracing"`

	Auth struct {
		Required  bool          `yaml:"required"`
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`
		HTTP    struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`
		WebSocket struct {
			MessagesPerSecond float64 `yaml:"messages_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

func validateWindow(name string, w GestureWindow) error {
	if w.Onset <= 0 || w.Onset > 1 {
		return fmt.Errorf("engine.%s.onset must be in (0, 1]", name)
	}
	if w.Release < 0 || w.Release >= w.Onset {
		return fmt.Errorf("engine.%s.release must be in [0, onset)", name)
	}
	if w.MinHold <= 0 || w.MaxHold < w.MinHold {
		return fmt.Errorf("engine.%s hold window must satisfy 0 < min_hold <= max_hold", name)
	}
	if w.Cooldown < 0 {
		return fmt.Errorf("engine.%s.cooldown must be >= 0", name)
	}
	return nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server timeouts must be > 0")
	}

	switch c.Signal.Transport {
	case TransportSocket:
		if c.Signal.URL == "" {
			return fmt.Errorf("signal.url must not be empty for the socket transport")
		}
	case TransportRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("signal.transport=redis requires redis.enabled=true")
		}
	case TransportMock:
	default:
		return fmt.Errorf("signal.transport must be one of socket, redis, mock (got %q)", c.Signal.Transport)
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must exceed signal.ping_interval")
	}
	if c.Signal.MaxMessageSizeBytes <= 0 {
		return fmt.Errorf("signal.max_message_size_bytes must be > 0")
	}
	if c.Signal.ConnectTimeout <= 0 {
		return fmt.Errorf("signal.connect_timeout must be > 0")
	}
	if c.Signal.ConnectAttempts < 1 {
		return fmt.Errorf("signal.connect_attempts must be >= 1")
	}
	if c.Signal.MockJoinDelay < 0 {
		return fmt.Errorf("signal.mock_join_delay must be >= 0")
	}
	if c.Signal.DedupTTL <= 0 {
		return fmt.Errorf("signal.dedup_ttl must be > 0")
	}

	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	if c.Engine.DetectionInterval <= 0 {
		return fmt.Errorf("engine.detection_interval must be > 0")
	}
	if c.Engine.FrameInterval <= 0 || c.Engine.FrameInterval > c.Engine.DetectionInterval {
		return fmt.Errorf("engine.frame_interval must be in (0, detection_interval]")
	}
	if c.Engine.CloseGrace < 0 {
		return fmt.Errorf("engine.close_grace must be >= 0")
	}
	if c.Engine.InferenceTimeout <= 0 {
		return fmt.Errorf("engine.inference_timeout must be > 0")
	}
	if c.Engine.LookThreshold <= 0 || c.Engine.LookThreshold >= 1 {
		return fmt.Errorf("engine.look_threshold must be in (0, 1)")
	}
	if c.Engine.GlobalCooldown < 0 {
		return fmt.Errorf("engine.global_cooldown must be >= 0")
	}
	if c.Engine.ComeCloserTimeout <= 0 {
		return fmt.Errorf("engine.come_closer_timeout must be > 0")
	}
	for name, w := range map[string]GestureWindow{
		"wink":       c.Engine.Wink,
		"tongue_out": c.Engine.TongueOut,
		"v_tongue":   c.Engine.VTongue,
	} {
		if err := validateWindow(name, w); err != nil {
			return err
		}
	}

	if c.Attention.HistorySize <= 0 {
		return fmt.Errorf("attention.history_size must be > 0")
	}
	if c.Attention.FullAttention <= 0 || c.Attention.FullAttention > 1 {
		return fmt.Errorf("attention.full_attention must be in (0, 1]")
	}
	if c.Attention.MediumInterest <= 0 || c.Attention.HighInterest <= c.Attention.MediumInterest || c.Attention.HighInterest > 1 {
		return fmt.Errorf("attention interest thresholds must satisfy 0 < medium < high <= 1")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.SignalTTL <= 0 {
			return fmt.Errorf("redis.signal_ttl must be > 0 when redis.enabled=true")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Tracing.Enabled && c.Tracing.JaegerURL == "" {
		return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
	}

	if c.Auth.Required {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when auth.required=true")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be > 0 when auth.required=true")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 || c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http requests_per_second and burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from a YAML file over the defaults, then applies
// env overrides. A missing file means defaults plus env.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8081"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Signal.URL = "ws://localhost:8081/ws"
	cfg.Signal.Transport = TransportSocket
	cfg.Signal.PingInterval = 20 * time.Second
	cfg.Signal.PongTimeout = 45 * time.Second
	cfg.Signal.MaxMessageSizeBytes = 64 * 1024
	cfg.Signal.ConnectTimeout = 5 * time.Second
	cfg.Signal.ConnectAttempts = 3
	cfg.Signal.MockJoinDelay = 2 * time.Second
	cfg.Signal.DedupTTL = 2 * time.Minute

	cfg.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

	cfg.Engine.DetectionInterval = 100 * time.Millisecond
	cfg.Engine.FrameInterval = time.Second / 60
	cfg.Engine.CloseGrace = 150 * time.Millisecond
	cfg.Engine.InferenceTimeout = 500 * time.Millisecond
	cfg.Engine.LookThreshold = 0.6
	cfg.Engine.GlobalCooldown = 10 * time.Second
	cfg.Engine.ComeCloserTimeout = 5 * time.Second
	cfg.Engine.Wink = GestureWindow{Onset: 0.5, Release: 0.3, MinHold: 150 * time.Millisecond, MaxHold: 800 * time.Millisecond, Cooldown: 800 * time.Millisecond}
	cfg.Engine.TongueOut = GestureWindow{Onset: 0.5, Release: 0.3, MinHold: 150 * time.Millisecond, MaxHold: 800 * time.Millisecond, Cooldown: 800 * time.Millisecond}
	cfg.Engine.VTongue = cfg.Engine.TongueOut

	cfg.Attention.HistorySize = 100
	cfg.Attention.FullAttention = 0.8
	cfg.Attention.MediumInterest = 0.2
	cfg.Attention.HighInterest = 0.5

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.SignalTTL = 10 * time.Minute

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing = tracing.DefaultConfig()

	cfg.Auth.Required = false
	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = time.Hour

	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("XSIMWINK_SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("XSIMWINK_SIGNAL_URL"); v != "" {
		c.Signal.URL = v
	}
	if v := os.Getenv("XSIMWINK_SIGNAL_TRANSPORT"); v != "" {
		c.Signal.Transport = v
	}
	if v := os.Getenv("XSIMWINK_REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("XSIMWINK_MODEL_ADDRESS"); v != "" {
		c.Engine.ModelAddress = v
	}
	if v := os.Getenv("XSIMWINK_REPLAY_FILE"); v != "" {
		c.Engine.ReplayFile = v
	}
	if v := os.Getenv("XSIMWINK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("XSIMWINK_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}
