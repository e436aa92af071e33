package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the interview server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Signaling SignalingConfig
	WebRTC    WebRTCConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"INTERVUE_PORT" default:"8080"`
	Env             string        `envconfig:"INTERVUE_ENV" default:"development"`
	ShutdownTimeout time.Duration `envconfig:"INTERVUE_SHUTDOWN_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	URL             string        `envconfig:"DATABASE_URL"`
	MaxOpenConns    int           `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"5m"`
	MigrationsDir   string        `envconfig:"DATABASE_MIGRATIONS_DIR" default:"migrations"`
}

type RedisConfig struct {
	URL string `envconfig:"REDIS_URL"`
}

type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `envconfig:"RATE_LIMIT_RPM" default:"120"`
}

// SignalingConfig tunes the signaling relay.
type SignalingConfig struct {
	// PeerWait bounds how long Send waits for the counterpart to advertise.
	PeerWait        time.Duration `envconfig:"SIGNALING_PEER_WAIT" default:"60s"`
	PresenceTTL     time.Duration `envconfig:"SIGNALING_PRESENCE_TTL" default:"15s"`
	StreamMaxLen    int64         `envconfig:"SIGNALING_STREAM_MAXLEN" default:"1000"`
	ReadBlock       time.Duration `envconfig:"SIGNALING_READ_BLOCK" default:"2s"`
	PingInterval    time.Duration `envconfig:"SIGNALING_PING_INTERVAL" default:"20s"`
	DistributedMode bool          `envconfig:"SIGNALING_REDIS" default:"true"`
	AllowedOrigins  []string      `envconfig:"SIGNALING_ALLOWED_ORIGINS"`
}

type WebRTCConfig struct {
	STUNServers  []string `envconfig:"STUN_SERVERS" default:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"`
	TURNURL      string   `envconfig:"TURN_URL"`
	TURNUsername string   `envconfig:"TURN_USERNAME"`
	TURNPassword string   `envconfig:"TURN_PASSWORD"`
}

// AgentConfig configures the headless call agent.
type AgentConfig struct {
	Env          string        `envconfig:"INTERVUE_ENV" default:"development"`
	APIBaseURL   string        `envconfig:"AGENT_API_BASE_URL" default:"http://localhost:8080"`
	Token        string        `envconfig:"AGENT_TOKEN"`
	UserID       string        `envconfig:"AGENT_USER_ID"`
	InterviewID  string        `envconfig:"AGENT_INTERVIEW_ID"`
	HTTPTimeout  time.Duration `envconfig:"AGENT_HTTP_TIMEOUT" default:"10s"`
	TickInterval time.Duration `envconfig:"AGENT_TICK_INTERVAL" default:"1s"`
	// PollInterval is how often a participant checks whether the host has
	// started the call.
	PollInterval time.Duration `envconfig:"AGENT_POLL_INTERVAL" default:"2s"`
	// MaxAttempts bounds how often a transient call failure is retried.
	MaxAttempts int `envconfig:"AGENT_MAX_ATTEMPTS" default:"3"`
	// ConnectWait bounds how long a call may negotiate before it is retried.
	ConnectWait time.Duration `envconfig:"AGENT_CONNECT_WAIT" default:"30s"`
	WebRTC      WebRTCConfig
}

var validEnvs = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
	"test":        true,
}

// Load reads configuration from the environment (and an optional .env file)
// and returns a validated Config. The error names the offending variable.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadAgent reads the call agent configuration.
func LoadAgent() (*AgentConfig, error) {
	_ = godotenv.Load()

	var cfg AgentConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	switch {
	case cfg.Token == "":
		return nil, fmt.Errorf("AGENT_TOKEN is required")
	case cfg.UserID == "":
		return nil, fmt.Errorf("AGENT_USER_ID is required")
	case cfg.InterviewID == "":
		return nil, fmt.Errorf("AGENT_INTERVIEW_ID is required")
	case !isHTTPURL(cfg.APIBaseURL):
		return nil, fmt.Errorf("AGENT_API_BASE_URL must start with http:// or https://, got %q", cfg.APIBaseURL)
	case cfg.TickInterval <= 0:
		return nil, fmt.Errorf("AGENT_TICK_INTERVAL must be positive")
	case cfg.PollInterval <= 0:
		return nil, fmt.Errorf("AGENT_POLL_INTERVAL must be positive")
	case cfg.MaxAttempts < 1:
		return nil, fmt.Errorf("AGENT_MAX_ATTEMPTS must be at least 1")
	case cfg.ConnectWait <= 0:
		return nil, fmt.Errorf("AGENT_CONNECT_WAIT must be positive")
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !validEnvs[c.Server.Env] {
		return fmt.Errorf("INTERVUE_ENV must be one of development, staging, production, test; got %q", c.Server.Env)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("INTERVUE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DATABASE_MAX_OPEN_CONNS must be at least 1")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.Env == "production" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	if c.Signaling.PeerWait <= 0 {
		return fmt.Errorf("SIGNALING_PEER_WAIT must be positive")
	}
	if c.Signaling.PresenceTTL < time.Second {
		return fmt.Errorf("SIGNALING_PRESENCE_TTL must be at least 1s")
	}

	if c.WebRTC.TURNURL != "" && (c.WebRTC.TURNUsername == "" || c.WebRTC.TURNPassword == "") {
		return fmt.Errorf("TURN_USERNAME and TURN_PASSWORD are required when TURN_URL is set")
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
