// Package config holds relay configuration loaded from the environment.
package config

import "github.com/kelseyhightower/envconfig"

// RelayConfig holds the relay server configuration.
type RelayConfig struct {
	ListenAddr      string `envconfig:"RELAY_LISTEN_ADDR" default:":5001"`
	WSPath          string `envconfig:"RELAY_WS_PATH" default:"/ws"`
	JWTSecret       string `envconfig:"RELAY_JWT_SECRET" default:"your-secret-key"`
	SendQueueSize   int    `envconfig:"RELAY_SEND_QUEUE_SIZE" default:"256"`
	ReadBufferSize  int    `envconfig:"RELAY_READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int    `envconfig:"RELAY_WRITE_BUFFER_SIZE" default:"1024"`
	// BridgeEnabled turns on the optional Redis cross-instance bridge.
	// Off by default; the relay is single-process unless asked otherwise.
	BridgeEnabled bool `envconfig:"RELAY_BRIDGE_ENABLED" default:"false"`
}

// Load reads the relay configuration from environment variables,
// falling back to defaults for any missing values.
func Load() (RelayConfig, error) {
	var cfg RelayConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}
