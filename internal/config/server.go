package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Server defaults
const (
	DefaultAddr      = ":3030"
	DefaultRateLimit = 20
	DefaultRateBurst = 60
)

// ServerConfig holds the relay configuration.
type ServerConfig struct {
	Addr           string      `yaml:"addr"`
	STUNURLs       []string    `yaml:"stun_urls"`
	TURNURLs       []string    `yaml:"turn_urls"`
	TURNUsername   string      `yaml:"turn_username"`
	TURNCredential string      `yaml:"turn_credential"`
	ICEServers     []ICEServer `yaml:"ice_servers"`

	// RateLimit is inbound messages per second allowed per connection.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// ICEServersJSON is the raw ICE_SERVERS_JSON value, checked per request.
	ICEServersJSON string `yaml:"-"`
}

// ServerOptions carry flag overrides for the relay.
type ServerOptions struct {
	Addr       string
	ConfigFile string
}

// LoadServer reads relay configuration with the following priority:
// flags, environment, config file, defaults.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	cfg := &ServerConfig{}

	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = normalizeAddr(port)
	}
	if opts.Addr != "" {
		cfg.Addr = normalizeAddr(opts.Addr)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	if v := splitList(os.Getenv("STUN_URLS")); len(v) > 0 {
		cfg.STUNURLs = v
	}
	if v := splitList(os.Getenv("TURN_URLS")); len(v) > 0 {
		cfg.TURNURLs = v
	}
	if v := os.Getenv("TURN_USERNAME"); v != "" {
		cfg.TURNUsername = v
	}
	if v := os.Getenv("TURN_CREDENTIAL"); v != "" {
		cfg.TURNCredential = v
	}
	cfg.ICEServersJSON = os.Getenv("ICE_SERVERS_JSON")

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}

	return cfg, nil
}

// BuildICEServers returns the list served at /config. An explicit JSON array
// wins over the file's ice_servers, which wins over the STUN and TURN lists.
func (c *ServerConfig) BuildICEServers() ([]ICEServer, error) {
	if c.ICEServersJSON != "" {
		servers, ok, err := ParseICEServersJSON(c.ICEServersJSON)
		if err != nil {
			return nil, err
		}
		if ok {
			return servers, nil
		}
	}
	if len(c.ICEServers) > 0 {
		return c.ICEServers, nil
	}

	servers := []ICEServer{}
	if len(c.STUNURLs) > 0 {
		servers = append(servers, ICEServer{URLs: c.STUNURLs})
	}
	if len(c.TURNURLs) > 0 {
		servers = append(servers, ICEServer{
			URLs:       c.TURNURLs,
			Username:   c.TURNUsername,
			Credential: c.TURNCredential,
		})
	}
	return servers, nil
}

// normalizeAddr accepts a bare port as PORT does.
func normalizeAddr(addr string) string {
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
