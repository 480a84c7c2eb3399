package service

import (
	"sync"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

// Registry es la fuente de verdad en memoria de las salas activas.
// Todo acceso pasa por el mutex; las salas entran y salen por Clone
// para que ninguna copia en manos de un caller comparta memoria (los
// bans incluidos) con lo que se mutea bajo lock.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]domain.Room
	cleaning map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    map[string]domain.Room{},
		cleaning: map[string]struct{}{},
	}
}

func (g *Registry) Put(rm domain.Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms[rm.ID] = rm.Clone()
}

func (g *Registry) Get(id string) (domain.Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rm, ok := g.rooms[id]
	return rm.Clone(), ok
}

// Remove es idempotente; reporta si la sala existía.
func (g *Registry) Remove(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.rooms[id]
	delete(g.rooms, id)
	delete(g.cleaning, id)
	return ok
}

// Update aplica fn bajo lock. Reporta false si la sala no existe.
func (g *Registry) Update(id string, fn func(*domain.Room)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rm, ok := g.rooms[id]
	if !ok {
		return false
	}
	rm = rm.Clone()
	fn(&rm)
	g.rooms[id] = rm
	return true
}

func (g *Registry) List() []domain.Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		out = append(out, rm.Clone())
	}
	return out
}

func (g *Registry) ListGuild(guildID string) []domain.Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []domain.Room
	for _, rm := range g.rooms {
		if rm.GuildID == guildID {
			out = append(out, rm.Clone())
		}
	}
	return out
}

// OwnerRoom busca la sala del dueño en el guild (una por dueño).
func (g *Registry) OwnerRoom(guildID, ownerID string) (domain.Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, rm := range g.rooms {
		if rm.GuildID == guildID && rm.OwnerID == ownerID {
			return rm.Clone(), true
		}
	}
	return domain.Room{}, false
}

// BeginCleanup marca la sala como "en limpieza". Si otro cleanup ya la
// tomó devuelve false y el caller debe abandonar.
func (g *Registry) BeginCleanup(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.cleaning[id]; busy {
		return false
	}
	g.cleaning[id] = struct{}{}
	return true
}

func (g *Registry) EndCleanup(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cleaning, id)
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
