// Package config loads the CLI configuration from flags, environment
// (PONGNET_*) and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Role represents the user's chosen role.
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
	RoleRelay  Role = "relay" // serve the in-memory relay
)

// Config stores every parameter the CLI runs with.
type Config struct {
	Role           Role          `mapstructure:"role"`
	Name           string        `mapstructure:"name"` // Host: name to register; Client: host to join
	RelayURL       string        `mapstructure:"relay_url"`
	Listen         string        `mapstructure:"listen"` // Relay: listen address
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	Debug          bool          `mapstructure:"debug"`
}

const envPrefix = "PONGNET"

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"role":            "role",
	"name":            "name",
	"relay":           "relay_url",
	"listen":          "listen",
	"poll-interval":   "poll_interval",
	"request-timeout": "request_timeout",
	"ice-server":      "ice_servers",
	"stats-interval":  "stats_interval",
	"debug":           "debug",
}

// RegisterFlags defines the CLI flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("role", "r", "", "role to run: host, client or relay")
	fs.StringP("name", "n", "", "host: name to register (random if empty); client: host name to join")
	fs.String("relay", "", "signaling relay base URL")
	fs.String("listen", "", "relay: address to listen on")
	fs.Duration("poll-interval", 0, "delay between relay polls")
	fs.Duration("request-timeout", 0, "timeout for a single relay request")
	fs.StringSlice("ice-server", nil, "STUN server URL (repeatable)")
	fs.Duration("stats-interval", 0, "traffic report interval")
	fs.BoolP("debug", "d", false, "enable debug logging")
	fs.StringP("config", "c", "", "config file (default ./pongnet.yaml if present)")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay_url", "http://localhost:8000")
	v.SetDefault("listen", ":8000")
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("stats_interval", "10s")
	v.SetDefault("debug", false)
}

// Load resolves the configuration. Only flags the user actually set override
// the environment and the file.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper already knows.
	for _, key := range flagKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var explicit string
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			explicit = f.Value.String()
		}
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("pongnet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if fs != nil {
		for flagName, key := range flagKeys {
			f := fs.Lookup(flagName)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Role = Role(strings.ToLower(string(cfg.Role)))
	cfg.Name = strings.TrimSpace(cfg.Name)
	return &cfg, nil
}

// Validate checks the fields the chosen role needs. An empty role is
// allowed: the CLI asks for it interactively.
func (c *Config) Validate() error {
	switch c.Role {
	case "", RoleHost:
	case RoleClient:
		if c.Name == "" {
			return errors.New("client needs the host name to join (--name)")
		}
	case RoleRelay:
		if c.Listen == "" {
			return errors.New("relay needs a listen address (--listen)")
		}
		return nil
	default:
		return fmt.Errorf("unknown role %q (want host, client or relay)", c.Role)
	}

	if c.RelayURL == "" {
		return errors.New("relay URL required (--relay)")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	return nil
}
