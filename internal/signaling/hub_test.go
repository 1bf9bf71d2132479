package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startRelay(t *testing.T) (*Hub, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(Limits{Rate: 1000, Burst: 1000})
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewSession(hub, conn).Start()
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		t.Fatalf("Encoding %s failed: %v", msgType, err)
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Write %s failed: %v", msgType, err)
	}
}

// expect reads frames until one of msgType arrives, skipping lobby broadcasts
// unless a lobby is what the caller waits for.
func expect(t *testing.T, conn *websocket.Conn, msgType string) *Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return &msg
		}
		if msg.Type != MessageTypeLobby {
			t.Fatalf("Expected %s, got %s (%s)", msgType, msg.Type, msg.Payload)
		}
	}
}

func TestRelayPairsTwoSessions(t *testing.T) {
	_, url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)

	send(t, a, MessageTypeJoin, JoinPayload{Code: "abc", Name: "Alice"})
	var ack JoinAckPayload
	expect(t, a, MessageTypeJoinAck).Decode(&ack)
	if ack.Role != RoleCaller || ack.Code != "ABC" {
		t.Errorf("Expected caller in ABC, got %+v", ack)
	}

	send(t, b, MessageTypeJoin, JoinPayload{Code: " a b c ", Name: "Bob"})
	expect(t, b, MessageTypeJoinAck).Decode(&ack)
	if ack.Role != RoleCallee || ack.Code != "ABC" {
		t.Errorf("Expected callee in ABC, got %+v", ack)
	}

	var joined PeerJoinedPayload
	expect(t, a, MessageTypePeerJoined).Decode(&joined)
	if joined.Name != "Bob" {
		t.Errorf("Expected peer name Bob, got %q", joined.Name)
	}
}

func TestRelayForwardsPayloadVerbatim(t *testing.T) {
	_, url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)

	send(t, a, MessageTypeJoin, JoinPayload{Code: "fwd"})
	expect(t, a, MessageTypeJoinAck)
	send(t, b, MessageTypeJoin, JoinPayload{Code: "fwd"})
	expect(t, b, MessageTypeJoinAck)
	expect(t, a, MessageTypePeerJoined)

	raw := json.RawMessage(`{"offer":{"type":"offer","sdp":"v=0\r\n"},"extra":[1,2,3]}`)
	if err := a.WriteJSON(&Message{Type: MessageTypeOffer, Payload: raw}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got := expect(t, b, MessageTypeOffer)
	if string(got.Payload) != string(raw) {
		t.Errorf("Payload changed in transit:\n got %s\nwant %s", got.Payload, raw)
	}
}

func TestRelayRejectsThirdMember(t *testing.T) {
	_, url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)
	c := dial(t, url)

	send(t, a, MessageTypeJoin, JoinPayload{Code: "full"})
	expect(t, a, MessageTypeJoinAck)
	send(t, b, MessageTypeJoin, JoinPayload{Code: "full"})
	expect(t, b, MessageTypeJoinAck)

	send(t, c, MessageTypeJoin, JoinPayload{Code: "FULL"})
	var errPayload ErrorPayload
	expect(t, c, MessageTypeError).Decode(&errPayload)
	if errPayload.Message != ErrRoomFull.Error() {
		t.Errorf("Expected %q, got %q", ErrRoomFull.Error(), errPayload.Message)
	}
}

func TestRelaySignalWithoutRoom(t *testing.T) {
	_, url := startRelay(t)
	a := dial(t, url)

	send(t, a, MessageTypeCandidate, map[string]any{"candidate": "x"})
	var errPayload ErrorPayload
	expect(t, a, MessageTypeError).Decode(&errPayload)
	if errPayload.Message != ErrNotJoined.Error() {
		t.Errorf("Expected %q, got %q", ErrNotJoined.Error(), errPayload.Message)
	}

	send(t, a, MessageTypeJoin, JoinPayload{Code: "  "})
	expect(t, a, MessageTypeError).Decode(&errPayload)
	if errPayload.Message != ErrCodeRequired.Error() {
		t.Errorf("Expected %q, got %q", ErrCodeRequired.Error(), errPayload.Message)
	}
}

func TestRelayNotifiesPeerOnDisconnect(t *testing.T) {
	hub, url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)

	send(t, a, MessageTypeJoin, JoinPayload{Code: "bye"})
	expect(t, a, MessageTypeJoinAck)
	send(t, b, MessageTypeJoin, JoinPayload{Code: "bye"})
	expect(t, b, MessageTypeJoinAck)
	expect(t, a, MessageTypePeerJoined)

	b.Close()
	expect(t, a, MessageTypePeerLeft)

	deadline := time.Now().Add(2 * time.Second)
	for hub.Registry().Size("BYE") != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected room size 1, got %d", hub.Registry().Size("BYE"))
		}
		time.Sleep(10 * time.Millisecond)
	}

	send(t, a, MessageTypeLeave, nil)
	deadline = time.Now().Add(2 * time.Second)
	for hub.Registry().Size("BYE") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected room to be deleted after leave")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLobbyListsWaitingRooms(t *testing.T) {
	_, url := startRelay(t)
	a := dial(t, url)
	watcher := dial(t, url)

	send(t, watcher, MessageTypeLobbySubscribe, NamePayload{Name: "Watcher"})
	var lobby LobbyPayload
	expect(t, watcher, MessageTypeLobby).Decode(&lobby)
	if len(lobby.Rooms) != 0 {
		t.Errorf("Expected empty lobby, got %+v", lobby.Rooms)
	}

	send(t, a, MessageTypeJoin, JoinPayload{Code: "wait", Name: ""})

	deadline := time.Now().Add(2 * time.Second)
	for {
		lobby = LobbyPayload{}
		expect(t, watcher, MessageTypeLobby).Decode(&lobby)
		if len(lobby.Rooms) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Lobby never listed the waiting room")
		}
	}
	want := LobbyEntry{Code: "WAIT", Name: DefaultName}
	if lobby.Rooms[0] != want {
		t.Errorf("Expected %+v, got %+v", want, lobby.Rooms[0])
	}

	send(t, a, MessageTypeLobbyUpdate, NamePayload{Name: "Alice"})
	for {
		lobby = LobbyPayload{}
		expect(t, watcher, MessageTypeLobby).Decode(&lobby)
		if len(lobby.Rooms) == 1 && lobby.Rooms[0].Name == "Alice" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Lobby never picked up the new name")
		}
	}
}

func TestRelayRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(Limits{Rate: 0.001, Burst: 1})
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewSession(hub, conn).Start()
	}))
	defer srv.Close()

	a := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	send(t, a, MessageTypeLobbySubscribe, NamePayload{Name: "a"})
	expect(t, a, MessageTypeLobby)

	send(t, a, MessageTypeLobbySubscribe, NamePayload{Name: "a"})
	var errPayload ErrorPayload
	expect(t, a, MessageTypeError).Decode(&errPayload)
	if errPayload.Message != ErrRateLimited.Error() {
		t.Errorf("Expected %q, got %q", ErrRateLimited.Error(), errPayload.Message)
	}
}
