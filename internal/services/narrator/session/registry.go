package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Factory creates the coordinator for a room the registry has not seen.
type Factory func(ctx context.Context, roomID string) (*Coordinator, error)

// Registry maps room ids to their coordinators. It is passed by reference to
// every consumer; only the map is guarded, turns are serialized per room by
// the coordinator itself.
type Registry struct {
	factory Factory

	mu    sync.Mutex
	rooms map[string]*Coordinator
}

// NewRegistry returns an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, rooms: make(map[string]*Coordinator)}
}

// Get returns the coordinator for roomID if one is registered.
func (r *Registry) Get(roomID string) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rooms[roomID]
	return c, ok
}

// GetOrCreate returns the registered coordinator or builds one with the
// factory.
func (r *Registry) GetOrCreate(ctx context.Context, roomID string) (*Coordinator, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, errors.New("room id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rooms[roomID]; ok {
		return c, nil
	}
	if r.factory == nil {
		return nil, errors.New("registry has no factory")
	}
	c, err := r.factory(ctx, roomID)
	if err != nil {
		return nil, err
	}
	r.rooms[roomID] = c
	return c, nil
}

// Remove forgets a room.
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
}

// Rooms lists registered room ids in sorted order.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.rooms))
}
