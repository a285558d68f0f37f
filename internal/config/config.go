package config

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds server settings, read from a .env file or the environment.
type Config struct {
	ListenAddr        string
	JWTSecret         string
	InitialPrice      float64
	BroadcastInterval time.Duration
}

// Load reads configuration with development-friendly defaults.
func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("JWT_SECRET", "dev-secret-change-me")
	viper.SetDefault("INITIAL_PRICE", 50000.0)
	viper.SetDefault("BROADCAST_INTERVAL", 5*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		log.Debug().Err(err).Msg("no config file found, using environment and defaults")
	}

	return &Config{
		ListenAddr:        viper.GetString("LISTEN_ADDR"),
		JWTSecret:         viper.GetString("JWT_SECRET"),
		InitialPrice:      viper.GetFloat64("INITIAL_PRICE"),
		BroadcastInterval: viper.GetDuration("BROADCAST_INTERVAL"),
	}
}
