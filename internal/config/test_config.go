package config

import "time"

// NewTestConfig creates a test configuration with default values
func NewTestConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			UploadDir:       "uploads",
			MaxUploadSize:   1 << 20,
		},
		Realtime: RealtimeConfig{
			PingInterval:  54 * time.Second,
			PongWait:      60 * time.Second,
			WriteWait:     10 * time.Second,
			MaxFrameSize:  64 * 1024,
			SendQueueSize: 64,
			HeartbeatOut:  10 * time.Second,
			HeartbeatIn:   10 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:      "test-secret",
			TokenTTL:       time.Hour,
			EnableCORS:     false,
			AllowedOrigins: "*",
			AdminEmail:     "admin@vesta.test",
		},
		Storage: StorageConfig{
			SnapshotInterval: time.Minute,
		},
		Redis: RedisConfig{
			Channel: "vesta:broker",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// NewTestConfigWithUploadDir points uploads at dir, typically t.TempDir()
func NewTestConfigWithUploadDir(dir string) *Config {
	cfg := NewTestConfig()
	cfg.Server.UploadDir = dir
	return cfg
}
