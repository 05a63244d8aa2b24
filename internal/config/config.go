package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// AuthTimeout bounds how long a connection may stay unauthenticated
	// before it is dropped. Zero disables the timer.
	AuthTimeout time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`

	// SendBuffer is the per-session outbound event buffer. A session whose
	// buffer is full when a broadcast arrives is disconnected.
	SendBuffer int `mapstructure:"send_buffer" yaml:"send_buffer"`

	// ConnectRateLimit caps accepted WebSocket connections per minute.
	// Zero disables the cap.
	ConnectRateLimit int `mapstructure:"connect_rate_limit" yaml:"connect_rate_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "streamdash.db",
		LogLevel:          "info",
		JWTSecret:         "dev-secret-change-me",
		JWTIssuer:         "streamdash",
		JWTAudience:       "streamdash-dashboard",
		AuthTimeout:       0,
		SendBuffer:        16,
		ConnectRateLimit:  0,
	}
}
