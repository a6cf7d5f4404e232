package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/EternisAI/silo-control/internal/agent"
	"github.com/EternisAI/silo-control/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log   logging.Config
	Agent agent.Config
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/silo-control-agent")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("agent.server_url", "http://localhost:8080")

	_ = viper.BindEnv("agent.server_url", "SERVER_URL")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	logging.Init(config.Log)

	// Pretty print config as JSON (only at DEBUG level)
	if config.Log.IsDebug() {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
