package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

const (
	knockCooldown  = 300 * time.Second
	knockPingEvery = 120 * time.Second
	grantTTL       = 300 * time.Second
)

type pendingKnock struct {
	UserID    string
	At        time.Time
	MessageID string
}

type grant struct {
	userID    string
	messageID string
	timer     *time.Timer
}

// KnockService administra la cola FIFO de admisión por sala. La cola
// vive en memoria: un restart la vacía, igual que los grants vivos.
type KnockService struct {
	reg      *Registry
	platform Platform
	notif    Notifier
	cool     *Cooldowns

	pingEvery time.Duration
	grantTTL  time.Duration

	mu       sync.Mutex
	queues   map[string][]pendingKnock
	grants   map[string]map[string]*grant
	lastPing map[string]time.Time
}

func NewKnockService(reg *Registry, platform Platform, notif Notifier) *KnockService {
	return &KnockService{
		reg:       reg,
		platform:  platform,
		notif:     notif,
		cool:      NewCooldowns(knockCooldown),
		pingEvery: knockPingEvery,
		grantTTL:  grantTTL,
		queues:    map[string][]pendingKnock{},
		grants:    map[string]map[string]*grant{},
		lastPing:  map[string]time.Time{},
	}
}

// Knock encola al usuario. El orden de chequeos importa: primero los
// rechazos definitivos, el cooldown al final para no quemar el token
// en un knock que igual iba a fallar.
func (k *KnockService) Knock(ctx context.Context, roomID, userID string) error {
	rm, ok := k.reg.Get(roomID)
	if !ok {
		return domain.ErrNotFound
	}
	if !rm.Mode.Admission() {
		return domain.ErrInvalidMode
	}
	if rm.OwnerID == userID {
		return domain.ErrAlreadyOwner
	}
	if rm.Banned(userID) {
		return domain.ErrBanned
	}

	k.mu.Lock()
	if g, ok := k.grants[roomID]; ok {
		if _, ok := g[userID]; ok {
			k.mu.Unlock()
			return domain.ErrAlreadyGranted
		}
	}
	for _, p := range k.queues[roomID] {
		if p.UserID == userID {
			k.mu.Unlock()
			return domain.ErrDuplicateKnock
		}
	}
	k.mu.Unlock()

	// overwrite persistente en el canal (VIP o accept previo)
	if has, err := k.platform.HasMemberGrant(ctx, roomID, userID); err == nil && has {
		return domain.ErrAlreadyGranted
	}

	if !k.cool.Allow(userID) {
		return domain.ErrKnockCooldown
	}

	msgID, err := k.notif.NotifyKnock(ctx, &rm, userID)
	if err != nil {
		log.Printf("[knocks] notify sala=%s user=%s: %v", roomID, userID, err)
	}

	k.mu.Lock()
	k.queues[roomID] = append(k.queues[roomID], pendingKnock{
		UserID:    userID,
		At:        time.Now(),
		MessageID: msgID,
	})
	pingDue := !rm.MuteKnockPings && time.Since(k.lastPing[roomID]) >= k.pingEvery
	if pingDue {
		k.lastPing[roomID] = time.Now()
	}
	k.mu.Unlock()

	if pingDue {
		if err := k.notif.PingOwner(ctx, &rm, userID); err != nil {
			log.Printf("[knocks] ping owner sala=%s: %v", roomID, err)
		}
	}
	return nil
}

// Accept saca el primero de la cola y le da acceso. El grant se
// auto-limpia a los 5 minutos si el usuario nunca entra.
func (k *KnockService) Accept(ctx context.Context, roomID string) (string, error) {
	rm, ok := k.reg.Get(roomID)
	if !ok {
		return "", domain.ErrNotFound
	}

	k.mu.Lock()
	q := k.queues[roomID]
	if len(q) == 0 {
		k.mu.Unlock()
		return "", domain.ErrQueueEmpty
	}
	p := q[0]
	k.queues[roomID] = q[1:]
	k.mu.Unlock()

	if err := k.platform.GrantMember(ctx, roomID, p.UserID, false); err != nil {
		// el fallo fue nuestro, no del usuario: conserva su lugar
		k.mu.Lock()
		k.queues[roomID] = append([]pendingKnock{p}, k.queues[roomID]...)
		k.mu.Unlock()
		return p.UserID, err
	}
	k.cool.Reset(p.UserID)
	if p.MessageID != "" && rm.ThreadID != "" {
		_ = k.notif.DeleteThreadMessage(ctx, rm.ThreadID, p.MessageID)
	}

	g := &grant{userID: p.UserID}
	g.timer = time.AfterFunc(k.grantTTL, func() { k.expireGrant(roomID, p.UserID) })
	k.mu.Lock()
	if k.grants[roomID] == nil {
		k.grants[roomID] = map[string]*grant{}
	}
	k.grants[roomID][p.UserID] = g
	k.mu.Unlock()

	return p.UserID, nil
}

// Deny descarta el primero de la cola. El cooldown del usuario queda
// corriendo: denegado no significa "probá de nuevo ya".
func (k *KnockService) Deny(ctx context.Context, roomID string) (string, error) {
	rm, ok := k.reg.Get(roomID)
	if !ok {
		return "", domain.ErrNotFound
	}

	k.mu.Lock()
	q := k.queues[roomID]
	if len(q) == 0 {
		k.mu.Unlock()
		return "", domain.ErrQueueEmpty
	}
	p := q[0]
	k.queues[roomID] = q[1:]
	k.mu.Unlock()

	if p.MessageID != "" && rm.ThreadID != "" {
		_ = k.notif.DeleteThreadMessage(ctx, rm.ThreadID, p.MessageID)
	}
	return p.UserID, nil
}

// Peek devuelve el próximo en la cola sin sacarlo.
func (k *KnockService) Peek(roomID string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	q := k.queues[roomID]
	if len(q) == 0 {
		return "", false
	}
	return q[0].UserID, true
}

func (k *KnockService) QueueLen(roomID string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.queues[roomID])
}

// ConsumeGrant se llama cuando el aceptado efectivamente entró:
// el grant cumplió su función y el overwrite queda.
func (k *KnockService) ConsumeGrant(roomID, userID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if g, ok := k.grants[roomID][userID]; ok {
		g.timer.Stop()
		delete(k.grants[roomID], userID)
	}
}

// expireGrant corre en el timer: si el usuario nunca entró se revoca
// el overwrite para que el accept no quede como acceso permanente.
func (k *KnockService) expireGrant(roomID, userID string) {
	k.mu.Lock()
	g, ok := k.grants[roomID][userID]
	if ok {
		delete(k.grants[roomID], userID)
	}
	k.mu.Unlock()
	if !ok || g == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	v := k.platform.Verify(ctx, roomID)
	if v.Outcome == VerifyExists && v.HasMember(userID) {
		return
	}
	if err := k.platform.RevokeMember(ctx, roomID, userID); err != nil {
		log.Printf("[knocks] revoke grant vencido sala=%s user=%s: %v", roomID, userID, err)
	}
}

// DropRoom descarta cola, grants y estado de ping de una sala.
func (k *KnockService) DropRoom(roomID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, g := range k.grants[roomID] {
		g.timer.Stop()
	}
	delete(k.grants, roomID)
	delete(k.queues, roomID)
	delete(k.lastPing, roomID)
}

// RemoveUser saca al usuario de todas las colas (p.ej. cuando se va
// del guild).
func (k *KnockService) RemoveUser(ctx context.Context, userID string) {
	k.mu.Lock()
	type del struct{ threadID, msgID string }
	var toDelete []del
	for roomID, q := range k.queues {
		kept := q[:0]
		for _, p := range q {
			if p.UserID != userID {
				kept = append(kept, p)
				continue
			}
			if rm, ok := k.reg.Get(roomID); ok && rm.ThreadID != "" && p.MessageID != "" {
				toDelete = append(toDelete, del{rm.ThreadID, p.MessageID})
			}
		}
		k.queues[roomID] = kept
	}
	k.mu.Unlock()

	for _, d := range toDelete {
		_ = k.notif.DeleteThreadMessage(ctx, d.threadID, d.msgID)
	}
}

// GC recolecta colas de salas que ya no están en el registro.
func (k *KnockService) GC() int {
	k.mu.Lock()
	var stale []string
	for roomID := range k.queues {
		if _, ok := k.reg.Get(roomID); !ok {
			stale = append(stale, roomID)
		}
	}
	for roomID := range k.grants {
		if _, ok := k.reg.Get(roomID); !ok {
			stale = append(stale, roomID)
		}
	}
	k.mu.Unlock()

	for _, id := range stale {
		k.DropRoom(id)
	}
	return len(stale)
}

// PruneCooldowns descarta cooldowns ya vencidos.
func (k *KnockService) PruneCooldowns() int { return k.cool.Prune() }
