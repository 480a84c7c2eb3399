package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

const (
	hubIdleName = "🔑-join-locked-vcs"

	renameWindow     = 10 * time.Minute
	renameBurst      = 2
	renameBackoffMin = 30 * time.Second
	renameBackoffMax = 300 * time.Second
	renameBatch      = 2
	renameMaxCrashes = 5

	pendingRenamesKey = "pending_renames"
)

// HubNameService mantiene el nombre del canal trigger como espejo del
// estado agregado: con exactamente una sala locked visible el canal se
// llama "🔑-join-<dueño>-vc", si no vuelve al nombre idle.
//
// Discord limita los renames de canal a 2 por 10 minutos; por encima
// de eso la intención queda encolada (last-write-wins por guild) y la
// procesa un worker con backoff. La cola se persiste para sobrevivir
// restarts.
type HubNameService struct {
	reg      *Registry
	platform Platform
	notif    Notifier
	cfg      ConfigRepo

	// hubChannel resuelve el canal trigger del guild
	hubChannel func(guildID string) string
	idleName   string
	window     time.Duration
	burst      int
	backoffMin time.Duration
	backoffMax time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	pending  map[string]string
	procOn   bool
	crashes  int
	// gaveUp queda en true tras demasiados crashes seguidos del worker;
	// sólo un restart del proceso lo revive
	gaveUp bool

	runCtx context.Context
}

func NewHubNameService(reg *Registry, platform Platform, notif Notifier, cfg ConfigRepo, hubChannel func(string) string) *HubNameService {
	return &HubNameService{
		reg:        reg,
		platform:   platform,
		notif:      notif,
		cfg:        cfg,
		hubChannel: hubChannel,
		idleName:   hubIdleName,
		window:     renameWindow,
		burst:      renameBurst,
		backoffMin: renameBackoffMin,
		backoffMax: renameBackoffMax,
		limiters:   map[string]*rate.Limiter{},
		pending:    map[string]string{},
	}
}

// Start fija el contexto raíz del worker y levanta la cola persistida.
func (h *HubNameService) Start(ctx context.Context) {
	h.runCtx = ctx

	raw, err := h.cfg.Get(ctx, pendingRenamesKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Printf("[hub] cargando renames pendientes: %v", err)
		}
		return
	}
	var pend map[string]string
	if err := json.Unmarshal([]byte(raw), &pend); err != nil {
		log.Printf("[hub] renames pendientes corruptos, descartados: %v", err)
		_ = h.cfg.Delete(ctx, pendingRenamesKey)
		return
	}
	h.mu.Lock()
	for g, name := range pend {
		h.pending[g] = name
	}
	n := len(h.pending)
	h.mu.Unlock()
	if n > 0 {
		log.Printf("[hub] %d rename(s) pendientes restaurados", n)
		h.ensureProcessor()
	}
}

// Desired calcula el nombre que el hub debería tener ahora.
func (h *HubNameService) Desired(guildID string) string {
	var owner string
	visible := 0
	for _, rm := range h.reg.ListGuild(guildID) {
		if rm.Mode == domain.ModeLocked {
			visible++
			owner = rm.OwnerID
		}
	}
	if visible != 1 {
		return h.idleName
	}
	clean := domain.SanitizeName(h.notif.DisplayName(guildID, owner), domain.FallbackName(owner))
	return "🔑-join-" + clean + "-vc"
}

// Request intenta el rename inmediato si la ventana lo permite; si no,
// la intención queda para el worker. Last-write-wins por guild.
func (h *HubNameService) Request(ctx context.Context, guildID string) {
	hub := h.hubChannel(guildID)
	if hub == "" {
		return
	}
	desired := h.Desired(guildID)
	if cur, err := h.platform.ChannelName(ctx, hub); err == nil && cur == desired {
		h.mu.Lock()
		delete(h.pending, guildID)
		h.mu.Unlock()
		return
	}

	if h.limiter(guildID).Allow() {
		if err := h.platform.RenameChannel(ctx, hub, desired); err != nil {
			log.Printf("[hub] rename %s -> %q: %v", hub, desired, err)
			h.queueRename(guildID, desired)
			return
		}
		h.mu.Lock()
		delete(h.pending, guildID)
		h.mu.Unlock()
		h.persist(ctx)
		return
	}
	h.queueRename(guildID, desired)
}

// Force renombra ya, fuera de la ventana. Se usa al completar un
// transfer, donde un hub con el dueño viejo confunde a todo el mundo.
func (h *HubNameService) Force(ctx context.Context, guildID string) {
	hub := h.hubChannel(guildID)
	if hub == "" {
		return
	}
	desired := h.Desired(guildID)
	if cur, err := h.platform.ChannelName(ctx, hub); err == nil && cur == desired {
		return
	}
	if err := h.platform.RenameChannel(ctx, hub, desired); err != nil {
		log.Printf("[hub] force rename: %v", err)
		h.queueRename(guildID, desired)
		return
	}
	h.mu.Lock()
	delete(h.pending, guildID)
	h.mu.Unlock()
	h.persist(ctx)
}

func (h *HubNameService) queueRename(guildID, desired string) {
	h.mu.Lock()
	h.pending[guildID] = desired
	h.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.persist(ctx)
	cancel()
	h.ensureProcessor()
}

func (h *HubNameService) limiter(guildID string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[guildID]
	if !ok {
		l = rate.NewLimiter(rate.Every(h.window/time.Duration(h.burst)), h.burst)
		h.limiters[guildID] = l
	}
	return l
}

func (h *HubNameService) persist(ctx context.Context) {
	h.mu.Lock()
	snap := make(map[string]string, len(h.pending))
	for g, n := range h.pending {
		snap[g] = n
	}
	h.mu.Unlock()

	var err error
	if len(snap) == 0 {
		err = h.cfg.Delete(ctx, pendingRenamesKey)
	} else {
		var raw []byte
		raw, err = json.Marshal(snap)
		if err == nil {
			err = h.cfg.Set(ctx, pendingRenamesKey, string(raw))
		}
	}
	if err != nil {
		log.Printf("[hub] persistiendo cola de renames: %v", err)
	}
}

func (h *HubNameService) ensureProcessor() {
	h.mu.Lock()
	if h.procOn || h.gaveUp || h.runCtx == nil {
		h.mu.Unlock()
		return
	}
	h.procOn = true
	h.mu.Unlock()
	go h.processor()
}

func (h *HubNameService) processor() {
	backoff := h.backoffMin
	for {
		before := h.pendingLen()
		done, crashed := h.processorStep(backoff)
		if done {
			return
		}
		if crashed {
			h.mu.Lock()
			h.crashes++
			give := h.crashes >= renameMaxCrashes
			if give {
				h.procOn = false
				h.gaveUp = true
			}
			h.mu.Unlock()
			if give {
				log.Printf("[hub] worker de renames murió %d veces seguidas, abandono hasta el próximo restart", renameMaxCrashes)
				return
			}
			backoff = h.growBackoff(backoff)
			continue
		}
		// una pasada sana corta la racha de crashes
		h.mu.Lock()
		h.crashes = 0
		h.mu.Unlock()
		// progreso resetea el backoff; sin progreso, crece
		if h.pendingLen() < before {
			backoff = h.backoffMin
		} else {
			backoff = h.growBackoff(backoff)
		}
	}
}

func (h *HubNameService) pendingLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// processorStep hace una pasada: espera el backoff, toma hasta
// renameBatch guilds y reintenta. done=true cuando la cola quedó vacía.
func (h *HubNameService) processorStep(backoff time.Duration) (done, crashed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[hub] panic en worker de renames: %v", rec)
			crashed = true
		}
	}()

	select {
	case <-h.runCtx.Done():
		h.mu.Lock()
		h.procOn = false
		h.mu.Unlock()
		return true, false
	case <-time.After(backoff):
	}

	h.mu.Lock()
	batch := make([]string, 0, renameBatch)
	for g := range h.pending {
		batch = append(batch, g)
		if len(batch) == renameBatch {
			break
		}
	}
	h.mu.Unlock()

	if len(batch) == 0 {
		h.mu.Lock()
		h.procOn = false
		h.mu.Unlock()
		return true, false
	}

	ctx, cancel := context.WithTimeout(h.runCtx, 15*time.Second)
	defer cancel()
	for _, g := range batch {
		// la intención puede haber quedado obsoleta: recalcular siempre
		h.Request(ctx, g)
	}
	return false, false
}

func (h *HubNameService) growBackoff(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * 1.5)
	if d > h.backoffMax {
		d = h.backoffMax
	}
	return d
}
