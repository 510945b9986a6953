package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Version is reported by -version and /health.
const Version = "1.0.0"

// ErrVersionRequested is returned by Load when -version was passed.
var ErrVersionRequested = errors.New("version requested")

// Config holds all configuration for the server
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Realtime (STOMP over WebSocket) configuration
	Realtime RealtimeConfig `json:"realtime"`

	// Security configuration
	Security SecurityConfig `json:"security"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Redis relay configuration
	Redis RedisConfig `json:"redis"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	UploadDir       string        `json:"upload_dir"`
	MaxUploadSize   int64         `json:"max_upload_size"`
	PublicURL       string        `json:"public_url"`
}

// RealtimeConfig holds broker and WebSocket settings
type RealtimeConfig struct {
	PingInterval  time.Duration `json:"ping_interval"`
	PongWait      time.Duration `json:"pong_wait"`
	WriteWait     time.Duration `json:"write_wait"`
	MaxFrameSize  int64         `json:"max_frame_size"`
	SendQueueSize int           `json:"send_queue_size"`
	HeartbeatOut  time.Duration `json:"heartbeat_out"`
	HeartbeatIn   time.Duration `json:"heartbeat_in"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	JWTSecret      string        `json:"-"`
	TokenTTL       time.Duration `json:"token_ttl"`
	EnableCORS     bool          `json:"enable_cors"`
	AllowedOrigins string        `json:"allowed_origins"`
	AdminEmail     string        `json:"admin_email"`
}

// StorageConfig controls the store snapshot
type StorageConfig struct {
	SnapshotFile     string        `json:"snapshot_file"`
	SnapshotInterval time.Duration `json:"snapshot_interval"`
}

// RedisConfig enables the cross-instance relay when URL is set
type RedisConfig struct {
	URL     string `json:"url"`
	Channel string `json:"channel"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig loads configuration from .env, environment variables and
// the process command line.
func LoadConfig() (*Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()
	return Load(os.Args[1:], os.Stderr)
}

// Load parses args on top of environment defaults. Usage output goes to out.
func Load(args []string, out io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("vesta", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		port            = fs.String("port", getEnv("PORT", "8080"), "Server port")
		readTimeout     = fs.Duration("read-timeout", getDurationEnv("READ_TIMEOUT", 10*time.Second), "HTTP read timeout")
		writeTimeout    = fs.Duration("write-timeout", getDurationEnv("WRITE_TIMEOUT", 10*time.Second), "HTTP write timeout")
		idleTimeout     = fs.Duration("idle-timeout", getDurationEnv("IDLE_TIMEOUT", 60*time.Second), "HTTP idle timeout")
		shutdownTimeout = fs.Duration("shutdown-timeout", getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second), "Graceful shutdown timeout")
		uploadDir       = fs.String("upload-dir", getEnv("UPLOAD_DIR", "uploads"), "Directory for uploaded listing images")
		maxUploadSize   = fs.Int64("max-upload-size", getInt64Env("MAX_UPLOAD_SIZE", 10<<20), "Maximum image upload size in bytes")
		publicURL       = fs.String("public-url", getEnv("PUBLIC_URL", ""), "Public base URL used in image links")

		pingInterval  = fs.Duration("ping-interval", getDurationEnv("PING_INTERVAL", 54*time.Second), "WebSocket ping interval")
		pongWait      = fs.Duration("pong-wait", getDurationEnv("PONG_WAIT", 60*time.Second), "WebSocket pong wait timeout")
		writeWait     = fs.Duration("write-wait", getDurationEnv("WRITE_WAIT", 10*time.Second), "WebSocket write wait timeout")
		maxFrameSize  = fs.Int64("max-frame-size", getInt64Env("MAX_FRAME_SIZE", 64*1024), "Maximum inbound STOMP frame size in bytes")
		sendQueueSize = fs.Int("send-queue-size", getIntEnv("SEND_QUEUE_SIZE", 256), "Outbound frames buffered per connection")
		heartbeatOut  = fs.Duration("heartbeat-out", getDurationEnv("HEARTBEAT_OUT", 10*time.Second), "Smallest server heart-beat interval offered")
		heartbeatIn   = fs.Duration("heartbeat-in", getDurationEnv("HEARTBEAT_IN", 10*time.Second), "Smallest client heart-beat interval accepted")

		jwtSecret      = fs.String("jwt-secret", getEnv("JWT_SECRET", ""), "HMAC secret for bearer tokens")
		tokenTTL       = fs.Duration("token-ttl", getDurationEnv("TOKEN_TTL", 24*time.Hour), "Bearer token lifetime")
		enableCORS     = fs.Bool("enable-cors", getBoolEnv("ENABLE_CORS", false), "Enable CORS support")
		allowedOrigins = fs.String("allowed-origins", getEnv("ALLOWED_ORIGINS", "*"), "Comma-separated list of allowed origins")
		adminEmail     = fs.String("admin-email", getEnv("ADMIN_EMAIL", ""), "Account registered with this email becomes admin")

		snapshotFile     = fs.String("snapshot-file", getEnv("SNAPSHOT_FILE", ""), "Store snapshot path (empty disables persistence)")
		snapshotInterval = fs.Duration("snapshot-interval", getDurationEnv("SNAPSHOT_INTERVAL", time.Minute), "Store snapshot interval")

		redisURL     = fs.String("redis-url", getEnv("REDIS_URL", ""), "Redis URL for the cross-instance relay (empty disables it)")
		redisChannel = fs.String("redis-channel", getEnv("REDIS_CHANNEL", "vesta:broker"), "Redis channel used by the relay")

		logLevel  = fs.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
		logFormat = fs.String("log-format", getEnv("LOG_FORMAT", "text"), "Log format (text, json)")

		showVersion = fs.Bool("version", false, "Show version information")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showVersion {
		fmt.Fprintf(out, "Vesta marketplace server v%s\n", Version)
		return nil, ErrVersionRequested
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            *port,
			ReadTimeout:     *readTimeout,
			WriteTimeout:    *writeTimeout,
			IdleTimeout:     *idleTimeout,
			ShutdownTimeout: *shutdownTimeout,
			UploadDir:       *uploadDir,
			MaxUploadSize:   *maxUploadSize,
			PublicURL:       strings.TrimRight(*publicURL, "/"),
		},
		Realtime: RealtimeConfig{
			PingInterval:  *pingInterval,
			PongWait:      *pongWait,
			WriteWait:     *writeWait,
			MaxFrameSize:  *maxFrameSize,
			SendQueueSize: *sendQueueSize,
			HeartbeatOut:  *heartbeatOut,
			HeartbeatIn:   *heartbeatIn,
		},
		Security: SecurityConfig{
			JWTSecret:      *jwtSecret,
			TokenTTL:       *tokenTTL,
			EnableCORS:     *enableCORS,
			AllowedOrigins: *allowedOrigins,
			AdminEmail:     strings.ToLower(strings.TrimSpace(*adminEmail)),
		},
		Storage: StorageConfig{
			SnapshotFile:     *snapshotFile,
			SnapshotInterval: *snapshotInterval,
		},
		Redis: RedisConfig{
			URL:     *redisURL,
			Channel: *redisChannel,
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(*logLevel),
			Format: strings.ToLower(*logFormat),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return errors.New("config: jwt secret is required (JWT_SECRET or -jwt-secret)")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("config: token ttl must be positive, got %s", c.Security.TokenTTL)
	}
	if c.Realtime.SendQueueSize <= 0 {
		return fmt.Errorf("config: send queue size must be positive, got %d", c.Realtime.SendQueueSize)
	}
	if c.Realtime.PingInterval >= c.Realtime.PongWait {
		return fmt.Errorf("config: ping interval %s must be shorter than pong wait %s",
			c.Realtime.PingInterval, c.Realtime.PongWait)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Origins splits AllowedOrigins into a list
func (s SecurityConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
