package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beacon/internal/domain"
)

// RoomSummary is a read-only view for the management API.
type RoomSummary struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

// RoomManager owns the live room set. It is shared across every
// connection goroutine and the management API.
type RoomManager struct {
	routers RouterProvider

	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewRoomManager(routers RouterProvider) *RoomManager {
	return &RoomManager{
		routers: routers,
		rooms:   make(map[domain.RoomID]*Room),
	}
}

func (m *RoomManager) Create(name domain.RoomName) (*Room, error) {
	router, err := m.routers.NewRouter()
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	room := newRoom(domain.RoomID(uuid.NewString()), name, router)

	m.mu.Lock()
	m.rooms[room.ID()] = room
	m.mu.Unlock()

	log.Info().Str("module", "core.rooms").Str("room", string(room.ID())).Str("name", string(name)).Msg("room created")
	return room, nil
}

func (m *RoomManager) Get(id domain.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

func (m *RoomManager) List() []RoomSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomSummary, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, RoomSummary{ID: r.ID(), Name: r.Name(), MemberCount: r.Users().Count()})
	}
	return out
}

// Delete removes the room from the index and tears it down, closing
// every subscribed connection.
func (m *RoomManager) Delete(id domain.RoomID) bool {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	room.Delete()
	return true
}
