package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Maolipeng/web-drop/internal/config"
	"github.com/Maolipeng/web-drop/internal/signaling"
)

func startServer(t *testing.T, cfg *config.ServerConfig) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := signaling.NewHub(signaling.DefaultLimits)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, cfg))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Reading body failed: %v", err)
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	srv := startServer(t, &config.ServerConfig{})

	resp, body := get(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"ok":true}` {
		t.Errorf("Unexpected body %s", body)
	}
}

func TestConfigEndpoint(t *testing.T) {
	cfg := &config.ServerConfig{
		STUNURLs:       []string{"stun:a", "stun:b"},
		TURNURLs:       []string{"turn:t"},
		TURNUsername:   "user",
		TURNCredential: "secret",
	}
	srv := startServer(t, cfg)

	resp, body := get(t, srv.URL+"/config")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var doc struct {
		ICEServers []struct {
			URLs       []string `json:"urls"`
			Username   string   `json:"username"`
			Credential string   `json:"credential"`
		} `json:"iceServers"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("Decoding %s failed: %v", body, err)
	}
	if len(doc.ICEServers) != 2 {
		t.Fatalf("Expected 2 entries, got %s", body)
	}
	if len(doc.ICEServers[0].URLs) != 2 || doc.ICEServers[0].Username != "" {
		t.Errorf("Unexpected STUN entry %+v", doc.ICEServers[0])
	}
	if doc.ICEServers[1].Username != "user" || doc.ICEServers[1].Credential != "secret" {
		t.Errorf("Unexpected TURN entry %+v", doc.ICEServers[1])
	}
}

func TestConfigEndpointEmptyAndInvalid(t *testing.T) {
	srv := startServer(t, &config.ServerConfig{})
	_, body := get(t, srv.URL+"/config")
	if strings.TrimSpace(string(body)) != `{"iceServers":[]}` {
		t.Errorf("Expected empty list, got %s", body)
	}

	srv = startServer(t, &config.ServerConfig{ICEServersJSON: "[oops"})
	resp, body := get(t, srv.URL+"/config")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"error":"Invalid ICE_SERVERS_JSON"}` {
		t.Errorf("Unexpected body %s", body)
	}
}

func TestQR(t *testing.T) {
	srv := startServer(t, &config.ServerConfig{})

	resp, body := get(t, srv.URL+"/qr?code=ab%20c12")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Expected no-store, got %s", cc)
	}
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Decoding PNG failed: %v", err)
	}
	if w := img.Bounds().Dx(); w != QRSize {
		t.Errorf("Expected %dpx, got %d", QRSize, w)
	}

	resp, body = get(t, srv.URL+"/qr?code=%20%20")
	if resp.StatusCode != http.StatusBadRequest || string(body) != "code required" {
		t.Errorf("Expected 400 code required, got %d %s", resp.StatusCode, body)
	}
}

func TestClientsPairThroughRouter(t *testing.T) {
	srv := startServer(t, &config.ServerConfig{})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ctx := context.Background()

	connect := func() (*signaling.Client, *signaling.Handler) {
		client := signaling.NewClient(wsURL)
		if err := client.Connect(ctx); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		t.Cleanup(client.Close)
		handler := signaling.NewHandler(client)
		go handler.Start()
		return client, handler
	}

	alice, aliceEvents := connect()
	bob, bobEvents := connect()

	alice.Send(signaling.MessageTypeJoin, signaling.JoinPayload{Code: " ab12 ", Name: "Alice"})
	select {
	case ack := <-aliceEvents.JoinAck:
		if ack.Role != signaling.RoleCaller || ack.Code != "AB12" {
			t.Errorf("Unexpected ack %+v", ack)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for join-ack")
	}

	bob.Send(signaling.MessageTypeJoin, signaling.JoinPayload{Code: "AB12", Name: "Bob"})
	select {
	case peer := <-aliceEvents.PeerJoined:
		if peer.Name != "Bob" {
			t.Errorf("Expected Bob, got %s", peer.Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for peer-joined")
	}
	<-bobEvents.JoinAck

	alice.Send(signaling.MessageTypeOffer, map[string]any{"offer": map[string]string{"type": "offer", "sdp": "v=0"}})
	select {
	case msg := <-bobEvents.Signal:
		if msg.Type != signaling.MessageTypeOffer || !strings.Contains(string(msg.Payload), `"sdp":"v=0"`) {
			t.Errorf("Unexpected signal %s %s", msg.Type, msg.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for relayed offer")
	}

	alice.Close()
	select {
	case <-bobEvents.PeerLeft:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for peer-left")
	}
}
