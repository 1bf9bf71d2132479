package config

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WEBDROP_SERVER", "WEBDROP_NAME", "WEBDROP_HASH", "STUN_SERVER", "TURN_SERVER",
		"TURN_USERNAME", "TURN_PASSWORD", "PORT", "STUN_URLS", "TURN_URLS",
		"TURN_CREDENTIAL", "ICE_SERVERS_JSON",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("Expected %s, got %s", DefaultServerURL, cfg.ServerURL)
	}
	if cfg.Name != "Anonymous" {
		t.Errorf("Expected Anonymous, got %s", cfg.Name)
	}
	if cfg.Hash {
		t.Error("Expected hashing off by default")
	}
	if cfg.HasOverrides() {
		t.Error("Expected no ICE overrides")
	}
}

func TestLoadPriority(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEBDROP_SERVER", "wss://env.example/ws")
	t.Setenv("WEBDROP_NAME", "env-name")
	t.Setenv("WEBDROP_HASH", "true")

	cfg, err := Load(Options{ServerURL: "ws://flag.example/ws"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "ws://flag.example/ws" {
		t.Errorf("Expected flag to win, got %s", cfg.ServerURL)
	}
	if cfg.Name != "env-name" {
		t.Errorf("Expected env name, got %s", cfg.Name)
	}
	if !cfg.Hash {
		t.Error("Expected WEBDROP_HASH to enable hashing")
	}
}

func TestLoadRejectsBadScheme(t *testing.T) {
	clearEnv(t)
	if _, err := Load(Options{ServerURL: "ftp://example"}); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestLocalICEServers(t *testing.T) {
	clearEnv(t)
	cfg, _ := Load(Options{TURNServer: "turn:a:3478,turns:a:5349", TURNUser: "u", TURNPass: "p"})

	servers := cfg.LocalICEServers()
	if len(servers) != 2 {
		t.Fatalf("Expected 2 servers, got %d", len(servers))
	}
	if servers[0].URLs[0] != DefaultSTUN {
		t.Errorf("Expected default STUN, got %v", servers[0].URLs)
	}
	if len(servers[1].URLs) != 2 || servers[1].Username != "u" || servers[1].Credential != "p" {
		t.Errorf("Unexpected TURN entry %+v", servers[1])
	}
	if !HasTURN(servers) {
		t.Error("Expected HasTURN to be true")
	}
}

func TestConfigURL(t *testing.T) {
	tests := map[string]string{
		"ws://localhost:3030/ws":    "http://localhost:3030/config",
		"wss://drop.example/ws?x=1": "https://drop.example/config",
	}
	for in, want := range tests {
		got, err := ConfigURL(in)
		if err != nil {
			t.Errorf("ConfigURL(%s) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ConfigURL(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestDiscoverICEServers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/config" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"iceServers":[{"urls":"stun:one"},{"urls":["turn:two"],"username":"u","credential":"c"}]}`))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	servers, err := DiscoverICEServers(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("DiscoverICEServers failed: %v", err)
	}
	want := []ICEServer{
		{URLs: URLList{"stun:one"}},
		{URLs: URLList{"turn:two"}, Username: "u", Credential: "c"},
	}
	if !reflect.DeepEqual(servers, want) {
		t.Errorf("Expected %+v, got %+v", want, servers)
	}
}

func TestLoadServerPriority(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "server.yaml")
	file := `addr: ":9000"
stun_urls: ["stun:file"]
turn_urls: ["turn:file"]
turn_username: fileuser
rate_limit: 5
`
	if err := os.WriteFile(path, []byte(file), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadServer(ServerOptions{ConfigFile: path})
	if err != nil {
		t.Fatalf("LoadServer failed: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.RateLimit != 5 || cfg.RateBurst != DefaultRateBurst {
		t.Errorf("Unexpected file config %+v", cfg)
	}

	t.Setenv("PORT", "4000")
	t.Setenv("STUN_URLS", "stun:a, stun:b ,")
	cfg, _ = LoadServer(ServerOptions{ConfigFile: path})
	if cfg.Addr != ":4000" {
		t.Errorf("Expected PORT to override file, got %s", cfg.Addr)
	}
	if !reflect.DeepEqual(cfg.STUNURLs, []string{"stun:a", "stun:b"}) {
		t.Errorf("Unexpected STUN list %v", cfg.STUNURLs)
	}

	cfg, _ = LoadServer(ServerOptions{ConfigFile: path, Addr: "127.0.0.1:5000"})
	if cfg.Addr != "127.0.0.1:5000" {
		t.Errorf("Expected flag to override PORT, got %s", cfg.Addr)
	}
}

func TestBuildICEServers(t *testing.T) {
	cfg := &ServerConfig{
		STUNURLs:       []string{"stun:a", "stun:b"},
		TURNURLs:       []string{"turn:t"},
		TURNUsername:   "u",
		TURNCredential: "c",
	}

	servers, err := cfg.BuildICEServers()
	if err != nil {
		t.Fatalf("BuildICEServers failed: %v", err)
	}
	want := []ICEServer{
		{URLs: URLList{"stun:a", "stun:b"}},
		{URLs: URLList{"turn:t"}, Username: "u", Credential: "c"},
	}
	if !reflect.DeepEqual(servers, want) {
		t.Errorf("Expected %+v, got %+v", want, servers)
	}

	cfg.ICEServersJSON = `[{"urls":"stun:override"}]`
	servers, _ = cfg.BuildICEServers()
	if len(servers) != 1 || servers[0].URLs[0] != "stun:override" {
		t.Errorf("Expected JSON override, got %+v", servers)
	}

	cfg.ICEServersJSON = `{"not":"a list"}`
	servers, _ = cfg.BuildICEServers()
	if len(servers) != 2 {
		t.Errorf("Expected fallback for non-array JSON, got %+v", servers)
	}

	cfg.ICEServersJSON = `[{`
	if _, err := cfg.BuildICEServers(); !errors.Is(err, ErrInvalidICEServers) {
		t.Errorf("Expected ErrInvalidICEServers, got %v", err)
	}
}

func TestBuildICEServersEmpty(t *testing.T) {
	servers, err := (&ServerConfig{}).BuildICEServers()
	if err != nil || servers == nil || len(servers) != 0 {
		t.Errorf("Expected empty non-nil list, got %v (%v)", servers, err)
	}
}
