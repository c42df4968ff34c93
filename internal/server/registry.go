package server

import (
	"sort"
	"sync"

	"github.com/lox/spades/internal/game"
	"github.com/rs/zerolog"
)

// Registry tracks the live rooms of one server. Rooms remove themselves when
// disposed.
type Registry struct {
	logger zerolog.Logger
	mu     sync.RWMutex
	rooms  map[string]*Room
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "registry").Logger(),
		rooms:  make(map[string]*Room),
	}
}

// Open creates a room for a new game, deals the first round and sends the
// opening state to members.
func (g *Registry) Open(state *game.GameState, members []Recipient, config RoomConfig, deps RoomDeps) (*Room, error) {
	onClose := deps.OnClose
	deps.OnClose = func(id string) {
		g.remove(id)
		if onClose != nil {
			onClose(id)
		}
	}
	room, err := newRoom(state, config, deps)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.rooms[room.ID()] = room
	g.mu.Unlock()

	if err := room.begin(members); err != nil {
		room.Close()
		return nil, err
	}
	g.logger.Info().Str("game_id", room.ID()).Int("rooms", g.Len()).Msg("Room opened")
	return room, nil
}

func (g *Registry) remove(id string) {
	g.mu.Lock()
	delete(g.rooms, id)
	g.mu.Unlock()
}

// Get retrieves a room by game id.
func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[id]
	return room, ok
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// List returns summaries of all live rooms ordered by id.
func (g *Registry) List() []RoomSummary {
	g.mu.RLock()
	summaries := make([]RoomSummary, 0, len(g.rooms))
	for _, room := range g.rooms {
		summaries = append(summaries, room.Summary())
	}
	g.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// CloseAll disposes every room.
func (g *Registry) CloseAll() {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.RUnlock()

	for _, room := range rooms {
		room.Close()
	}
}
