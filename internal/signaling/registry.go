package signaling

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrCodeRequired = errors.New("Code required")
	ErrRoomFull     = errors.New("Room full")
	ErrNotJoined    = errors.New("Join a room first")
)

// maxMembers is the capacity of every room.
const maxMembers = 2

// Member is a session placed in a room.
type Member struct {
	ID   string
	Name string
}

// Room represents a single room where two peers (caller and callee) can connect.
type Room struct {
	// Code is the normalized pairing code.
	Code string

	// Members are kept in join order; the first one is the caller.
	Members []Member
}

// JoinResult describes the outcome of a successful join.
type JoinResult struct {
	Code string
	Role Role

	// Peer is the other member when the join filled the room.
	Peer *Member
}

// LeaveResult describes the room a session was removed from.
type LeaveResult struct {
	Code string

	// Peer is the member still in the room, nil when the room was deleted.
	Peer *Member
}

// Registry maps pairing codes to rooms of at most two sessions.
// Every mutation happens under a single lock, so concurrent joins to the same
// code can never overfill a room.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	memberOf map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		memberOf: make(map[string]string),
	}
}

// Join places the session in the room for code, creating the room if needed.
// The first member becomes the caller and the second the callee. A session
// already in another room is moved out of it first; the returned LeaveResult
// reports that move so the caller can notify the former peer.
func (r *Registry) Join(code, sessionID, name string) (JoinResult, *LeaveResult, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return JoinResult{}, nil, ErrCodeRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.memberOf[sessionID]; ok && current == normalized {
		return r.rejoin(normalized, sessionID, name), nil, nil
	}

	if room, ok := r.rooms[normalized]; ok && len(room.Members) >= maxMembers {
		return JoinResult{}, nil, ErrRoomFull
	}

	var moved *LeaveResult
	if _, ok := r.memberOf[sessionID]; ok {
		left, _ := r.leaveLocked(sessionID)
		moved = &left
	}

	room, ok := r.rooms[normalized]
	if !ok {
		room = &Room{Code: normalized}
		r.rooms[normalized] = room
	}

	role := RoleCaller
	if len(room.Members) == 1 {
		role = RoleCallee
	}
	room.Members = append(room.Members, Member{ID: sessionID, Name: name})
	r.memberOf[sessionID] = normalized

	result := JoinResult{Code: normalized, Role: role}
	if len(room.Members) == maxMembers {
		peer := room.Members[0]
		result.Peer = &peer
	}
	return result, moved, nil
}

// rejoin answers a repeated join to the room the session is already in.
func (r *Registry) rejoin(code, sessionID, name string) JoinResult {
	room := r.rooms[code]
	result := JoinResult{Code: code, Role: RoleCaller}
	for i := range room.Members {
		if room.Members[i].ID == sessionID {
			room.Members[i].Name = name
			if i == 1 {
				result.Role = RoleCallee
			}
		}
	}
	return result
}

// Leave removes the session from its room. It reports false when the session
// was not in any room. A room left empty is deleted.
func (r *Registry) Leave(sessionID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sessionID)
}

func (r *Registry) leaveLocked(sessionID string) (LeaveResult, bool) {
	code, ok := r.memberOf[sessionID]
	if !ok {
		return LeaveResult{}, false
	}
	delete(r.memberOf, sessionID)

	room := r.rooms[code]
	result := LeaveResult{Code: code}
	kept := room.Members[:0]
	for _, m := range room.Members {
		if m.ID != sessionID {
			kept = append(kept, m)
		}
	}
	room.Members = kept

	if len(room.Members) == 0 {
		delete(r.rooms, code)
		return result, true
	}
	peer := room.Members[0]
	result.Peer = &peer
	return result, true
}

// Peer returns the other member of the session's room. ok is false when the
// session is alone; err is ErrNotJoined when it is in no room at all.
func (r *Registry) Peer(sessionID string) (peer Member, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, joined := r.memberOf[sessionID]
	if !joined {
		return Member{}, false, ErrNotJoined
	}
	for _, m := range r.rooms[code].Members {
		if m.ID != sessionID {
			return m, true, nil
		}
	}
	return Member{}, false, nil
}

// Rename updates the display name of a session inside its room, if any.
// It reports whether the lobby may have changed.
func (r *Registry) Rename(sessionID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.memberOf[sessionID]
	if !ok {
		return false
	}
	room := r.rooms[code]
	for i := range room.Members {
		if room.Members[i].ID == sessionID {
			room.Members[i].Name = name
		}
	}
	return true
}

// CodeOf returns the code of the room the session is in.
func (r *Registry) CodeOf(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.memberOf[sessionID]
	return code, ok
}

// Size returns the number of members in the room for code.
func (r *Registry) Size(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[NormalizeCode(code)]; ok {
		return len(room.Members)
	}
	return 0
}

// ListWaiting returns every room holding exactly one member, sorted by code.
func (r *Registry) ListWaiting() []LobbyEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]LobbyEntry, 0, len(r.rooms))
	for code, room := range r.rooms {
		if len(room.Members) == 1 {
			entries = append(entries, LobbyEntry{Code: code, Name: room.Members[0].Name})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Code < entries[j].Code
	})
	return entries
}
