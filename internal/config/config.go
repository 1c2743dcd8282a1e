package config

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"encoding/base64"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Relays    RelayConfig     `json:"relays"`
	Poll      PollConfig      `json:"poll"`
	Identity  IdentityConfig  `json:"identity"`
	Auth      AuthConfig      `json:"auth"`
	Lightning LightningConfig `json:"lightning"`
}

// ServerConfig contains local API server related configurations
type ServerConfig struct {
	Port int `json:"port"`
}

// RelayConfig contains event-relay related configurations
type RelayConfig struct {
	URLs           []string `json:"urls"`
	QueryTimeout   int      `json:"query_timeout"`   // in seconds
	PublishTimeout int      `json:"publish_timeout"` // in seconds
}

// PollConfig contains the polling cadence per data category, in seconds.
// Bids poll fastest, listings slowest.
type PollConfig struct {
	Listings int `json:"listings"`
	Bids     int `json:"bids"`
	Messages int `json:"messages"`
}

// IdentityConfig contains the user's signing identity
type IdentityConfig struct {
	Key string `json:"key"` // hex or nsec private key
}

// AuthConfig contains local API authentication related configurations
type AuthConfig struct {
	JWTSecret       string `json:"jwt_secret"`
	JWTExpiration   int    `json:"jwt_expiration"`   // in hours
	ChallengeExpiry int    `json:"challenge_expiry"` // in minutes
}

// LightningConfig contains Lightning payment provider configurations
type LightningConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

// Load loads the configuration from file and environment
func Load() (*Config, error) {
	// Default config
	cfg := &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Relays: RelayConfig{
			URLs:           []string{"wss://relay.damus.io", "wss://nos.lol"},
			QueryTimeout:   4,
			PublishTimeout: 5,
		},
		Poll: PollConfig{
			Listings: 60,
			Bids:     10,
			Messages: 20,
		},
		Auth: AuthConfig{
			JWTExpiration:   24,
			ChallengeExpiry: 5,
		},
	}

	// Look for config file
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		// Use default config file path
		configFile = filepath.Join("configs", "config.json")
	}

	// Try to load config from file
	if _, err := os.Stat(configFile); err == nil {
		file, err := os.Open(configFile)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables if present
	if port := os.Getenv("SERVER_PORT"); port != "" {
		var serverPort int
		if _, err := fmt.Sscanf(port, "%d", &serverPort); err == nil {
			cfg.Server.Port = serverPort
		}
	}

	if relays := os.Getenv("RELAYS"); relays != "" {
		urls := []string{}
		for _, u := range strings.Split(relays, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) > 0 {
			cfg.Relays.URLs = urls
		}
	}
	if timeout := os.Getenv("QUERY_TIMEOUT"); timeout != "" {
		var seconds int
		if _, err := fmt.Sscanf(timeout, "%d", &seconds); err == nil {
			cfg.Relays.QueryTimeout = seconds
		}
	}

	if key := os.Getenv("NOSTR_KEY"); key != "" {
		cfg.Identity.Key = key
	}

	if endpoint := os.Getenv("LIGHTNING_ENDPOINT"); endpoint != "" {
		cfg.Lightning.Endpoint = endpoint
	}
	if apiKey := os.Getenv("LIGHTNING_API_KEY"); apiKey != "" {
		cfg.Lightning.APIKey = apiKey
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	} else if cfg.Auth.JWTSecret == "" {
		// Generate a random JWT secret if not provided
		randomBytes := make([]byte, 32)
		if _, err := rand.Read(randomBytes); err != nil {
			return nil, err
		}
		cfg.Auth.JWTSecret = base64.StdEncoding.EncodeToString(randomBytes)
	}

	if cfg.Relays.QueryTimeout <= 0 {
		cfg.Relays.QueryTimeout = 4
	}
	if cfg.Relays.PublishTimeout <= 0 {
		cfg.Relays.PublishTimeout = 5
	}

	return cfg, nil
}
