// Package config loads node configuration from environment variables
// and an optional .env file, the way the teacher's ws/config.go does.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every setting a meshnode process needs at startup.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Node options (spec.md section 6).
	NodePortNode int  `env:"NODE_PORT_NODE" envDefault:"0"` // 0 = pick free port starting at 4242
	// NodePortPub is validated and logged only: nothing reads it to fill
	// a LocalPublisher's PubInfo.Port (that comes from the port passed to
	// catalog.NewLocalPublisher). This build carries data-plane payloads
	// over the same socket as control frames (internal/node's envelope
	// scheme), so unlike NodePortNode it never backs a second listener.
	NodePortPub int    `env:"NODE_PORT_PUB" envDefault:"0"`
	AllowLocal  bool   `env:"NODE_ALLOW_LOCAL" envDefault:"false"`
	BindHost    string `env:"NODE_BIND_HOST" envDefault:"0.0.0.0"`

	// Discovery (internal/discovery.MulticastConfig).
	DiscoveryGroupAddr string        `env:"MESHNODE_DISCOVERY_GROUP" envDefault:"239.255.77.77:4243"`
	DiscoveryInterval  time.Duration `env:"MESHNODE_DISCOVERY_INTERVAL" envDefault:"2s"`
	DiscoveryTimeout   time.Duration `env:"MESHNODE_DISCOVERY_TIMEOUT" envDefault:"6s"`

	// Event loop timers (internal/node.Config).
	NodeInfoInterval time.Duration `env:"MESHNODE_NODE_INFO_INTERVAL" envDefault:"5s"`
	TickInterval     time.Duration `env:"MESHNODE_TICK_INTERVAL" envDefault:"1s"`

	// Rate limiting (internal/ratelimit).
	SessionPeerRate    float64 `env:"MESHNODE_SESSION_PEER_RATE" envDefault:"1.0"`
	SessionPeerBurst   int     `env:"MESHNODE_SESSION_PEER_BURST" envDefault:"5"`
	SessionGlobalRate  float64 `env:"MESHNODE_SESSION_GLOBAL_RATE" envDefault:"50.0"`
	SessionGlobalBurst int     `env:"MESHNODE_SESSION_GLOBAL_BURST" envDefault:"100"`
	CommandRate        float64 `env:"MESHNODE_COMMAND_RATE" envDefault:"200.0"`
	CommandBurst       int     `env:"MESHNODE_COMMAND_BURST" envDefault:"50"`

	// Monitoring.
	MetricsAddr     string        `env:"MESHNODE_METRICS_ADDR" envDefault:":9242"`
	MetricsInterval time.Duration `env:"MESHNODE_METRICS_INTERVAL" envDefault:"15s"`

	// Logging. UMUNDO_LOGLEVEL is the level named by spec.md section 6
	// (0..4, least to most verbose); LogFormat follows the teacher's
	// LOG_FORMAT convention.
	UmundoLogLevel int    `env:"UMUNDO_LOGLEVEL" envDefault:"2"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from a .env file (if present) and the
// environment. Priority: environment variables > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for out-of-range or nonsensical values.
func (c *Config) Validate() error {
	if c.NodePortNode < 0 || c.NodePortNode > 65535 {
		return fmt.Errorf("NODE_PORT_NODE must be 0-65535, got %d", c.NodePortNode)
	}
	if c.NodePortPub < 0 || c.NodePortPub > 65535 {
		return fmt.Errorf("NODE_PORT_PUB must be 0-65535, got %d", c.NodePortPub)
	}
	if c.UmundoLogLevel < 0 || c.UmundoLogLevel > 4 {
		return fmt.Errorf("UMUNDO_LOGLEVEL must be 0-4, got %d", c.UmundoLogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console (got: %s)", c.LogFormat)
	}
	if c.SessionPeerRate <= 0 {
		return fmt.Errorf("MESHNODE_SESSION_PEER_RATE must be > 0, got %.2f", c.SessionPeerRate)
	}
	if c.CommandRate <= 0 {
		return fmt.Errorf("MESHNODE_COMMAND_RATE must be > 0, got %.2f", c.CommandRate)
	}
	return nil
}

// ZerologLevel translates UMUNDO_LOGLEVEL's 0..4 scale (least to most
// verbose) into a zerolog.Level, the way spec.md section 6 names it.
func (c *Config) ZerologLevel() zerolog.Level {
	switch c.UmundoLogLevel {
	case 0:
		return zerolog.ErrorLevel
	case 1:
		return zerolog.WarnLevel
	case 2:
		return zerolog.InfoLevel
	case 3:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// LogConfig logs the loaded configuration as a structured event.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Int("node_port_node", c.NodePortNode).
		Int("node_port_pub", c.NodePortPub).
		Bool("allow_local", c.AllowLocal).
		Str("discovery_group", c.DiscoveryGroupAddr).
		Dur("node_info_interval", c.NodeInfoInterval).
		Dur("tick_interval", c.TickInterval).
		Str("metrics_addr", c.MetricsAddr).
		Int("umundo_loglevel", c.UmundoLogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
