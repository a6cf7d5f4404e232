package http

import "time"

type Config struct {
	Port             uint          `mapstructure:"port"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	SecureCookie     bool          `mapstructure:"secure_cookie"`
	LivenessInterval time.Duration `mapstructure:"liveness_interval"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
}
