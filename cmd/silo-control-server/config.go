package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EternisAI/silo-control/internal/api/http"
	"github.com/EternisAI/silo-control/internal/auth"
	"github.com/EternisAI/silo-control/internal/stream"
	"github.com/EternisAI/silo-control/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log    logging.Config
	Http   http.Config
	Auth   auth.Config
	Stream stream.Config
}

var config Config

func ParseCommaSeparated(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/silo-control-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.liveness_interval", 30*time.Second)
	viper.SetDefault("http.shutdown_timeout", 10*time.Second)

	_ = viper.BindEnv("auth.username", "CONTROLLER_USERNAME")
	_ = viper.BindEnv("auth.password", "CONTROLLER_PASSWORD")
	_ = viper.BindEnv("auth.password_hash", "CONTROLLER_PASSWORD_HASH")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	config.Http.AllowedOrigins = ParseCommaSeparated(strings.Join(config.Http.AllowedOrigins, ","))
	if len(config.Http.AllowedOrigins) == 0 {
		config.Http.AllowedOrigins = []string{"*"}
	}

	// Initialize logger with configured log level
	logging.Init(config.Log)

	// Pretty print config as JSON (only at DEBUG level)
	if config.Log.IsDebug() {
		redacted := config
		redacted.Auth.Password = ""
		configJSON, err := json.MarshalIndent(redacted, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
