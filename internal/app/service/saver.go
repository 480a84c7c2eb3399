package service

import (
	"context"
	"log"
	"sync"
	"time"
)

const saveDebounce = 1 * time.Second

// Saver aplana ráfagas de mutaciones en un solo write diferido.
// Hay a lo sumo un flush en vuelo; marcar dirty mientras tanto se
// acumula para el próximo. Flush() es sincrónico para el shutdown.
type Saver struct {
	reg   *Registry
	repo  RoomRepo
	delay time.Duration

	mu      sync.Mutex
	dirty   map[string]struct{}
	gone    map[string]struct{}
	pending bool
}

func NewSaver(reg *Registry, repo RoomRepo) *Saver {
	return &Saver{
		reg:   reg,
		repo:  repo,
		delay: saveDebounce,
		dirty: map[string]struct{}{},
		gone:  map[string]struct{}{},
	}
}

// MarkDirty agenda la persistencia de la sala.
func (s *Saver) MarkDirty(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[id] = struct{}{}
	delete(s.gone, id)
	s.schedule()
}

// MarkDeleted agenda el borrado de la fila.
func (s *Saver) MarkDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gone[id] = struct{}{}
	delete(s.dirty, id)
	s.schedule()
}

// schedule se llama con el lock tomado.
func (s *Saver) schedule() {
	if s.pending {
		return
	}
	s.pending = true
	time.AfterFunc(s.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Flush(ctx); err != nil {
			log.Printf("[saver] flush diferido: %v", err)
		}
	})
}

// Flush persiste todo lo pendiente ahora. Lo que falla queda marcado
// para el próximo intento.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	dirty := s.dirty
	gone := s.gone
	s.dirty = map[string]struct{}{}
	s.gone = map[string]struct{}{}
	s.pending = false
	s.mu.Unlock()

	var firstErr error
	for id := range dirty {
		rm, ok := s.reg.Get(id)
		if !ok {
			continue
		}
		if err := s.repo.Upsert(ctx, rm); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.mu.Lock()
			s.dirty[id] = struct{}{}
			s.mu.Unlock()
		}
	}
	for id := range gone {
		if err := s.repo.Delete(ctx, id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.mu.Lock()
			s.gone[id] = struct{}{}
			s.mu.Unlock()
		}
	}
	return firstErr
}
