// Package rooms tracks which connections have joined which rooms.
package rooms

import (
	"sort"
	"sync"

	"github.com/mossy-p/call-signaling/internal/models"
)

// Registry maps room ids to the set of connection ids joined to them.
// It lives only in process memory.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds connID to roomID, creating the room if needed. It reports
// whether the connection was newly added.
func (r *Registry) Join(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}

	joined, ok := r.byConn[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[connID] = joined
	}
	joined[roomID] = struct{}{}
	return true
}

// MembersExcept returns every member of roomID other than connID, in no
// particular order.
func (r *Registry) MembersExcept(roomID, connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]string, 0, len(members))
	for id := range members {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

// Members returns the number of connections in roomID
func (r *Registry) Members(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// LeaveAll removes connID from every room it joined and returns those rooms.
// Rooms left empty are dropped.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byConn[connID]
	delete(r.byConn, connID)

	left := make([]string, 0, len(joined))
	for roomID := range joined {
		members := r.rooms[roomID]
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
		left = append(left, roomID)
	}
	sort.Strings(left)
	return left
}

// Snapshot lists every live room sorted by id
func (r *Registry) Snapshot() []models.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.RoomInfo, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, models.RoomInfo{ID: id, Members: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
