package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	JWT       JWTConfig
	Pin       PinConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// JWTConfig holds JWT-specific configuration
type JWTConfig struct {
	Secret    string
	ExpiresIn int // seconds
}

// PinConfig holds PIN security configuration. Secret keys the rotating-PIN
// derivation; RotationInterval and the TTLs are design parameters, not
// constants.
type PinConfig struct {
	Secret           string
	RotationInterval time.Duration
	PinTTL           time.Duration
	ClaimTTL         time.Duration
}

// RateLimitConfig holds the verification attempt budget
type RateLimitConfig struct {
	MaxFailures int
	Window      time.Duration
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; environment variables cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	viper.SetDefault("Server.Port", "4000")
	viper.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	viper.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	viper.SetDefault("MongoDB.Database", "instoredealz")
	viper.SetDefault("JWT.ExpiresIn", 24*60*60) // 24 hours
	viper.SetDefault("Pin.RotationInterval", 30*time.Minute)
	viper.SetDefault("Pin.PinTTL", time.Duration(0)) // stored pins do not expire by default
	viper.SetDefault("Pin.ClaimTTL", 24*time.Hour)
	viper.SetDefault("RateLimit.MaxFailures", 5)
	viper.SetDefault("RateLimit.Window", 15*time.Minute)
	viper.SetDefault("LogLevel", "info")
}
