package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Maolipeng/web-drop/internal/signaling"
)

// Default configuration values
const (
	DefaultServerURL = "ws://localhost:3030/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Config holds the CLI configuration
type Config struct {
	// ServerURL is the relay's websocket endpoint
	ServerURL string

	// Name is shown to peers in the lobby and in chat
	Name string

	// Hash enables SHA-256 verification of outgoing files
	Hash bool

	// ICE servers for WebRTC. Empty STUN and TURN means ask the relay.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL  string
	Name       string
	Hash       bool
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options)
// 2. Environment variables
// 3. Defaults
func Load(opts Options) (*Config, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv("WEBDROP_SERVER"), DefaultServerURL)
	if _, err := ConfigURL(serverURL); err != nil {
		return nil, err
	}

	hash := opts.Hash
	if !hash {
		if v, ok := os.LookupEnv("WEBDROP_HASH"); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				slog.Warn("Ignoring WEBDROP_HASH", "value", v)
			}
			hash = parsed
		}
	}

	return &Config{
		ServerURL:  serverURL,
		Name:       signaling.NormalizeName(firstNonEmpty(opts.Name, os.Getenv("WEBDROP_NAME"))),
		Hash:       hash,
		STUNServer: firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER")),
		TURNServer: firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:   firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:   firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay: opts.ForceRelay,
	}, nil
}

// HasOverrides reports whether ICE servers were given locally.
func (c *Config) HasOverrides() bool {
	return c.STUNServer != "" || c.TURNServer != ""
}

// HasTURN reports whether a relay server is available, locally or from the
// discovered list.
func HasTURN(servers []ICEServer) bool {
	for _, s := range servers {
		for _, u := range s.URLs {
			if strings.HasPrefix(u, "turn") {
				return true
			}
		}
	}
	return false
}

// LocalICEServers builds the ICE server list from flags and environment.
func (c *Config) LocalICEServers() []ICEServer {
	stun := c.STUNServer
	if stun == "" {
		stun = DefaultSTUN
	}
	servers := []ICEServer{{URLs: splitList(stun)}}
	if c.TURNServer != "" {
		servers = append(servers, ICEServer{
			URLs:       splitList(c.TURNServer),
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// ICEServers resolves the ICE server list: local overrides win, then the
// relay's /config, then the public STUN default.
func (c *Config) ICEServers(ctx context.Context) []ICEServer {
	if c.HasOverrides() {
		return c.LocalICEServers()
	}
	servers, err := DiscoverICEServers(ctx, c.ServerURL)
	if err != nil {
		slog.Debug("ICE discovery failed, using default STUN", "error", err)
		return c.LocalICEServers()
	}
	if len(servers) == 0 {
		return c.LocalICEServers()
	}
	return servers
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
