package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Realtime RealtimeConfig `mapstructure:"realtime" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// CORSAllowedOrigins lists the browser origins allowed to call the API.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// RateLimitRequests is the number of /auth requests allowed per client IP per window.
	// Zero disables the limiter.
	RateLimitRequests      int `mapstructure:"rate_limit_requests"       validate:"gte=0"`
	RateLimitWindowSeconds int `mapstructure:"rate_limit_window_seconds" validate:"gt=0"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"  validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"            validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                     string `mapstructure:"jwt_secret"                       validate:"required,min=32"`
	TokenLifetimeMinutes          int    `mapstructure:"token_lifetime_minutes"           validate:"gt=0"`
	RefreshTokenLifetimeMinutes   int    `mapstructure:"refresh_token_lifetime_minutes"   validate:"gt=0"`
	WebSocketTokenLifetimeMinutes int    `mapstructure:"websocket_token_lifetime_minutes" validate:"gt=0"`
	BcryptCost                    int    `mapstructure:"bcrypt_cost"                      validate:"gte=4,lte=31"`
}

// RealtimeConfig tunes the live comment stream.
type RealtimeConfig struct {
	// WriteTimeoutSeconds bounds a single frame write to one peer.
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds" validate:"gt=0"`
	// PongTimeoutSeconds is how long a silent peer is kept before it is dropped.
	PongTimeoutSeconds int `mapstructure:"pong_timeout_seconds"  validate:"gt=0"`
	// SendBufferSize is the number of outbound frames queued per connection.
	SendBufferSize  int   `mapstructure:"send_buffer_size"  validate:"gt=0"`
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" validate:"gt=0"`
	// FramesPerSecond and FrameBurst limit inbound frames per connection.
	FramesPerSecond float64 `mapstructure:"frames_per_second" validate:"gt=0"`
	FrameBurst      int     `mapstructure:"frame_burst"       validate:"gt=0"`
}
