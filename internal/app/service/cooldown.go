package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Cooldowns es un token bucket por usuario: 1 acción cada `every`.
// Se usa para el cooldown de knock (300s) y el de creación (30s).
type Cooldowns struct {
	mu     sync.Mutex
	every  time.Duration
	byUser map[string]*rate.Limiter
}

func NewCooldowns(every time.Duration) *Cooldowns {
	return &Cooldowns{every: every, byUser: map[string]*rate.Limiter{}}
}

func (c *Cooldowns) Allow(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.byUser[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.every), 1)
		c.byUser[userID] = l
	}
	return l.Allow()
}

// Reset libera el cooldown (p.ej. cuando el knock fue aceptado).
func (c *Cooldowns) Reset(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byUser, userID)
}

// Prune descarta limiters ya recargados para que el mapa no crezca.
func (c *Cooldowns) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, l := range c.byUser {
		if l.Tokens() >= 1 {
			delete(c.byUser, id)
			n++
		}
	}
	return n
}
