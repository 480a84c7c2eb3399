package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

const (
	reconcileEvery  = 60 * time.Second
	verifyParallel  = 4
	selfHealCycle   = 5
	timerCheckCycle = 3
	healthCycle     = 10
)

// Reconciler es la red de seguridad: cada 60s compara el registro con
// la realidad remota y repara lo que encuentre. La regla de oro es la
// abstención: un canal que no se pudo verificar no se toca.
type Reconciler struct {
	reg      *Registry
	tasks    *Tasks
	platform Platform
	notif    Notifier
	rooms    *RoomService
	knocks   *KnockService
	hub      *HubNameService
	transfer *TransferService
	saver    *Saver
	repo     RoomRepo

	interval time.Duration
	cycle    int
}

func NewReconciler(
	reg *Registry,
	tasks *Tasks,
	platform Platform,
	notif Notifier,
	rooms *RoomService,
	knocks *KnockService,
	hub *HubNameService,
	transfer *TransferService,
	saver *Saver,
	repo RoomRepo,
) *Reconciler {
	return &Reconciler{
		reg:      reg,
		tasks:    tasks,
		platform: platform,
		notif:    notif,
		rooms:    rooms,
		knocks:   knocks,
		hub:      hub,
		transfer: transfer,
		saver:    saver,
		repo:     repo,
		interval: reconcileEvery,
	}
}

// Restore levanta el estado persistido y lo verifica contra Discord
// antes de que arranquen los loops de fondo.
func (rc *Reconciler) Restore(ctx context.Context) error {
	rows, err := rc.repo.ListAll(ctx)
	if err != nil {
		return err
	}

	restored, dropped := 0, 0
	for _, rm := range rows {
		if rm.Normalize() {
			log.Printf("[reconcile] sala=%s normalizada en restore", rm.ID)
		}
		v := rc.platform.Verify(ctx, rm.ID)
		switch v.Outcome {
		case VerifyDeleted:
			if err := rc.repo.Delete(ctx, rm.ID); err != nil {
				log.Printf("[reconcile] borrando fila de sala muerta=%s: %v", rm.ID, err)
			}
			dropped++
			continue
		case VerifyIndeterminate:
			// no sabemos nada: se conserva el registro y se reintenta
			rc.reg.Put(rm)
			restored++
			continue
		}

		rc.reg.Put(rm)
		restored++

		// re-afirmar el deny de @everyone según el modo
		if err := rc.platform.LockDefault(ctx, rm.GuildID, rm.ID, rm.Mode.Locked()); err != nil {
			log.Printf("[reconcile] reafirmando permisos sala=%s: %v", rm.ID, err)
		}

		switch {
		case v.Humans() == 0:
			rc.rooms.ScheduleEmptyCheck(rm.ID)
		case !v.HasMember(rm.OwnerID):
			if member, err := rc.platform.IsGuildMember(ctx, rm.GuildID, rm.OwnerID); err == nil && !member {
				rc.promoteOrphan(ctx, rm.ID, v)
			}
		}
	}

	log.Printf("[reconcile] restore: %d salas restauradas, %d descartadas", restored, dropped)
	return nil
}

// Run es el loop principal. Corre hasta que el contexto muera.
func (rc *Reconciler) Run(ctx context.Context) {
	t := time.NewTicker(rc.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rc.cycle++
			rc.runCycle(ctx, rc.cycle)
		}
	}
}

func (rc *Reconciler) runCycle(ctx context.Context, n int) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[reconcile] panic en ciclo %d: %v", n, rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, rc.interval)
	defer cancel()

	verified := rc.sweepOrphans(ctx)
	rc.knocks.GC()
	rc.knocks.PruneCooldowns()
	rc.rooms.PruneCreateCooldowns()
	rc.sweepHubMessages(ctx)
	rc.hub.Request(ctx, rc.rooms.Surfaces().GuildID)

	if n%timerCheckCycle == 0 {
		rc.checkEmptyTimers(verified)
	}
	if n%selfHealCycle == 0 {
		rc.selfHeal(ctx)
	}
	if n%healthCycle == 0 {
		rc.healthCheck(ctx, verified)
	}
}

// sweepOrphans verifica todas las salas en paralelo acotado y repara
// huérfanas: canal borrado, dueño desaparecido, sala vacía sin timer.
func (rc *Reconciler) sweepOrphans(ctx context.Context) map[string]Verification {
	rooms := rc.reg.List()
	results := make([]Verification, len(rooms))

	sem := semaphore.NewWeighted(verifyParallel)
	g, gctx := errgroup.WithContext(ctx)
	for i, rm := range rooms {
		i, rm := i, rm
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = rc.platform.Verify(gctx, rm.ID)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Verification, len(rooms))
	for i, rm := range rooms {
		v := results[i]
		out[rm.ID] = v
		switch v.Outcome {
		case VerifyDeleted:
			log.Printf("[reconcile] sala=%s ya no existe, limpiando registro", rm.ID)
			rc.rooms.CleanupDeleted(ctx, rm.ID)
		case VerifyIndeterminate:
			// abstención: próximo ciclo
		case VerifyExists:
			if v.Humans() > 0 {
				rc.reg.Update(rm.ID, func(r *domain.Room) { r.LastSeenOccupied = time.Now() })
			}
			if !v.HasMember(rm.OwnerID) {
				if member, err := rc.platform.IsGuildMember(ctx, rm.GuildID, rm.OwnerID); err == nil && !member {
					rc.promoteOrphan(ctx, rm.ID, v)
				}
			}
		}
	}
	return out
}

// promoteOrphan resuelve una sala cuyo dueño dejó el guild.
func (rc *Reconciler) promoteOrphan(ctx context.Context, roomID string, v Verification) {
	candidate := ""
	for _, m := range v.Members {
		if !m.Bot {
			candidate = m.ID
			break
		}
	}
	if candidate == "" {
		rc.rooms.ScheduleEmptyCheck(roomID)
		return
	}
	log.Printf("[reconcile] sala=%s sin dueño, promoviendo a %s", roomID, candidate)
	if err := rc.transfer.PromoteTo(ctx, roomID, candidate); err != nil {
		log.Printf("[reconcile] promoviendo huérfana sala=%s: %v", roomID, err)
	}
}

// sweepHubMessages borra mensajes de hub que apuntan a salas muertas o
// quedaron desenganchados del registro.
func (rc *Reconciler) sweepHubMessages(ctx context.Context) {
	guildID := rc.rooms.Surfaces().GuildID
	msgs, err := rc.notif.ListHubMessages(ctx, guildID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Printf("[reconcile] listando mensajes de hub: %v", err)
		}
		return
	}
	for msgID, roomID := range msgs {
		rm, ok := rc.reg.Get(roomID)
		if ok && rm.HubMessageID == msgID && rm.Mode == domain.ModeLocked {
			continue
		}
		if err := rc.notif.DeleteHubMessage(ctx, msgID); err != nil {
			log.Printf("[reconcile] borrando mensaje huérfano %s: %v", msgID, err)
		}
	}
}

// checkEmptyTimers asegura que toda sala confirmada vacía tenga su
// timer de gracia vivo. Un timer puede perderse si el proceso se
// reinició entre el evento y el disparo.
func (rc *Reconciler) checkEmptyTimers(verified map[string]Verification) {
	for roomID, v := range verified {
		if v.Outcome != VerifyExists || v.Humans() > 0 {
			continue
		}
		if rc.tasks.Has(roomID, TaskEmptyCheck) || rc.tasks.Has(roomID, TaskTransfer) {
			continue
		}
		log.Printf("[reconcile] sala=%s vacía sin timer, agendando", roomID)
		rc.rooms.ScheduleEmptyCheck(roomID)
	}
}

// selfHeal adopta canales de voz de la categoría que se ven como salas
// del bot pero no están en el registro (p.ej. tras perder la DB).
func (rc *Reconciler) selfHeal(ctx context.Context) {
	surf := rc.rooms.Surfaces()
	chans, err := rc.platform.ListCategoryVoice(ctx, surf.GuildID, surf.CategoryID)
	if err != nil {
		log.Printf("[reconcile] self-heal listando categoría: %v", err)
		return
	}

	for _, ch := range chans {
		if rc.rooms.IsTrigger(ch.ID) {
			continue
		}
		if _, tracked := rc.reg.Get(ch.ID); tracked {
			continue
		}
		humans := 0
		for _, m := range ch.Members {
			if !m.Bot {
				humans++
			}
		}
		if humans == 0 {
			// vacía y sin registro: no adoptamos fantasmas
			continue
		}

		owner := rc.inferOwner(ch)
		if owner == "" {
			continue
		}
		mode := domain.ModeBasic
		if ch.DefaultConnectDenied || domain.HasLockPrefix(ch.Name) {
			mode = domain.ModeLocked
		}

		log.Printf("[reconcile] self-heal adoptando canal=%s dueño=%s modo=%s", ch.ID, owner, mode)
		rc.rooms.AttachRecovered(ctx, domain.Room{
			ID:               ch.ID,
			GuildID:          surf.GuildID,
			OwnerID:          owner,
			Mode:             mode,
			CreatedAt:        time.Now(),
			LastSeenOccupied: time.Now(),
		})
	}
}

// inferOwner elige dueño: primero quien tenga overwrite de
// manage-channels y esté presente, después cualquier holder del
// overwrite, último recurso el primer ocupante no-bot.
func (rc *Reconciler) inferOwner(ch ChannelInfo) string {
	present := map[string]bool{}
	for _, m := range ch.Members {
		if !m.Bot {
			present[m.ID] = true
		}
	}
	for _, id := range ch.ManagerIDs {
		if present[id] {
			return id
		}
	}
	if len(ch.ManagerIDs) > 0 {
		return ch.ManagerIDs[0]
	}
	for _, m := range ch.Members {
		if !m.Bot {
			return m.ID
		}
	}
	return ""
}

// healthCheck repara drift fino: permisos que no matchean el modo,
// superficies que faltan o sobran, dueños que ya no existen.
func (rc *Reconciler) healthCheck(ctx context.Context, verified map[string]Verification) {
	surf := rc.rooms.Surfaces()
	chans, err := rc.platform.ListCategoryVoice(ctx, surf.GuildID, surf.CategoryID)
	if err != nil {
		log.Printf("[reconcile] health listando categoría: %v", err)
		return
	}
	byID := make(map[string]ChannelInfo, len(chans))
	for _, ch := range chans {
		byID[ch.ID] = ch
	}

	for _, rm := range rc.reg.List() {
		v, ok := verified[rm.ID]
		if !ok || v.Outcome != VerifyExists {
			continue
		}
		ch, ok := byID[rm.ID]
		if !ok {
			continue
		}

		if ch.DefaultConnectDenied != rm.Mode.Locked() {
			log.Printf("[reconcile] health: permisos de sala=%s no matchean modo=%s, reparando", rm.ID, rm.Mode)
			if err := rc.platform.LockDefault(ctx, rm.GuildID, rm.ID, rm.Mode.Locked()); err != nil {
				log.Printf("[reconcile] health lock sala=%s: %v", rm.ID, err)
			}
		}
		if rm.Mode.Locked() && !domain.HasLockPrefix(ch.Name) {
			if err := rc.platform.RenameChannel(ctx, rm.ID, domain.LockPrefix+ch.Name); err != nil {
				log.Printf("[reconcile] health candado sala=%s: %v", rm.ID, err)
			}
		}

		if rm.Mode.Admission() && rm.ThreadID == "" {
			if threadID, panelID, err := rc.notif.CreateThread(ctx, &rm); err == nil {
				rc.reg.Update(rm.ID, func(r *domain.Room) {
					r.ThreadID, r.PanelMessageID = threadID, panelID
				})
				rc.saver.MarkDirty(rm.ID)
			}
		}
		switch {
		case rm.Mode == domain.ModeLocked && rm.HubMessageID == "":
			if msgID, err := rc.notif.PostHubMessage(ctx, &rm); err == nil {
				rc.reg.Update(rm.ID, func(r *domain.Room) { r.HubMessageID = msgID })
				rc.saver.MarkDirty(rm.ID)
			}
		case rm.Mode != domain.ModeLocked && rm.HubMessageID != "":
			msgID := rm.HubMessageID
			rc.reg.Update(rm.ID, func(r *domain.Room) { r.HubMessageID = "" })
			rc.saver.MarkDirty(rm.ID)
			_ = rc.notif.DeleteHubMessage(ctx, msgID)
		}
	}
}
