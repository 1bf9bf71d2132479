package cmd

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Maolipeng/web-drop/internal/config"
	"github.com/Maolipeng/web-drop/internal/server"
	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/ui"
)

func TestParseRoomInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"k7m2qx", "K7M2QX"},
		{" k7 m2 qx ", "K7M2QX"},
		{"https://drop.example.com/?code=ab12", "AB12"},
		{"https://drop.example.com/room/ab12/", "AB12"},
	}
	for _, tt := range tests {
		got, err := parseRoomInput(tt.input)
		if err != nil {
			t.Errorf("parseRoomInput(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRoomInput(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}

	if _, err := parseRoomInput("   "); !errors.Is(err, signaling.ErrCodeRequired) {
		t.Errorf("Expected ErrCodeRequired, got %v", err)
	}
}

func TestPrepareOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	got, cleanup, err := prepareOutputDir(false, dir)
	if err != nil || got != dir || cleanup != nil {
		t.Fatalf("Unexpected result %s %v", got, err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected output dir to exist: %v", err)
	}

	temp, cleanup, err := prepareOutputDir(true, dir)
	if err != nil || cleanup == nil {
		t.Fatalf("Expected temp dir with cleanup, got %s %v", temp, err)
	}
	cleanup()
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Error("Expected temp dir to be removed")
	}
}

func TestSaveChatImage(t *testing.T) {
	dir := t.TempDir()
	msg := transfer.ChatMessage{
		ImageDataURL: transfer.EncodeDataURL("image/png", []byte{0x89, 'P', 'N', 'G'}),
		Time:         time.UnixMilli(1700000000000),
	}

	path, err := saveChatImage(dir, msg)
	if err != nil {
		t.Fatalf("saveChatImage failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "chat-1700000000000") || filepath.Ext(path) != ".png" {
		t.Errorf("Unexpected path %s", path)
	}

	second, err := saveChatImage(dir, msg)
	if err != nil || second == path {
		t.Errorf("Expected a distinct second file, got %s %v", second, err)
	}

	if _, err := saveChatImage(dir, transfer.ChatMessage{ImageDataURL: "nope"}); !errors.Is(err, transfer.ErrInvalidDataURL) {
		t.Errorf("Expected ErrInvalidDataURL, got %v", err)
	}
}

func startRelay(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := signaling.NewHub(signaling.DefaultLimits)
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewRouter(hub, &config.ServerConfig{}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestJoinReportsRoomFull(t *testing.T) {
	wsURL := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connect := func(name string) *ConnectionContext {
		conn, err := NewConnectionContext(ctx, &config.Config{ServerURL: wsURL, Name: name})
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		t.Cleanup(conn.Close)
		return conn
	}

	ack, err := connect("Alice").join(ctx, "ab12")
	if err != nil || ack.Role != signaling.RoleCaller || ack.Code != "AB12" {
		t.Fatalf("Unexpected first join %+v %v", ack, err)
	}
	if ack, err = connect("Bob").join(ctx, "AB12"); err != nil || ack.Role != signaling.RoleCallee {
		t.Fatalf("Unexpected second join %+v %v", ack, err)
	}

	_, err = connect("Carol").join(ctx, "AB12")
	if !errors.Is(err, transfer.ErrSignaling) || !strings.Contains(err.Error(), "Room full") {
		t.Errorf("Expected Room full, got %v", err)
	}
}

func TestRoomQueuesFilesUntilConnected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	room := NewRoom(&ConnectionContext{Config: &config.Config{}}, RoomOptions{Mode: ui.ModeChat})
	if err := room.SendFiles([]string{path}); err != nil {
		t.Fatalf("SendFiles failed: %v", err)
	}
	if len(room.pending) != 1 {
		t.Errorf("Expected 1 pending source, got %d", len(room.pending))
	}
	if err := room.SendFiles([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected validation error")
	}

	if err := room.Accept(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if _, err := room.SendChat("hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if room.sendSettled() {
		t.Error("Expected an unconnected room to be unsettled")
	}

	room.Quit()
	room.Quit()
}
