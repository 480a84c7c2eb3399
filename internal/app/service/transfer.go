package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

const (
	transferPollEvery = 1 * time.Second
	transferPollMax   = 30
)

var errOwnerAway = errors.New("dueño ausente")

// TransferService pasa la sala a otro ocupante cuando el dueño se va.
// El dueño tiene una gracia de ~30s para volver; si reaparece el
// transfer se aborta sin ruido.
type TransferService struct {
	reg      *Registry
	tasks    *Tasks
	platform Platform
	notif    Notifier
	hub      *HubNameService
	saver    *Saver

	rooms *RoomService

	pollEvery time.Duration
	pollMax   uint64
}

func NewTransferService(reg *Registry, tasks *Tasks, platform Platform, notif Notifier, hub *HubNameService, saver *Saver) *TransferService {
	return &TransferService{
		reg:       reg,
		tasks:     tasks,
		platform:  platform,
		notif:     notif,
		hub:       hub,
		saver:     saver,
		pollEvery: transferPollEvery,
		pollMax:   transferPollMax,
	}
}

// Bind rompe el ciclo transfer <-> rooms en el wiring de main.
func (t *TransferService) Bind(rooms *RoomService) { t.rooms = rooms }

// OwnerLeft arranca (o reemplaza) la tarea de transfer de la sala.
// Si la sala quedó vacía no hay nada que transferir: va directo al
// monitor de sala vacía.
func (t *TransferService) OwnerLeft(ctx context.Context, roomID string) {
	rm, ok := t.reg.Get(roomID)
	if !ok {
		return
	}
	v := t.platform.Verify(ctx, roomID)
	switch v.Outcome {
	case VerifyDeleted:
		t.rooms.CleanupDeleted(ctx, roomID)
		return
	case VerifyIndeterminate:
		// el reconciler lo retoma
		return
	}
	if v.Humans() == 0 {
		t.rooms.ScheduleEmptyCheck(roomID)
		return
	}

	ownerID := rm.OwnerID
	t.tasks.Start(roomID, TaskTransfer, func(ctx context.Context) {
		t.watch(ctx, roomID, ownerID)
	})
}

// OwnerReturned cancela un transfer en vuelo.
func (t *TransferService) OwnerReturned(roomID string) {
	t.tasks.Cancel(roomID, TaskTransfer)
}

func (t *TransferService) watch(ctx context.Context, roomID, ownerID string) {
	var last Verification

	b := retry.WithMaxRetries(t.pollMax, retry.NewConstant(t.pollEvery))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		v := t.platform.Verify(ctx, roomID)
		switch v.Outcome {
		case VerifyDeleted:
			return errVanished
		case VerifyIndeterminate:
			return retry.RetryableError(domain.ErrIndeterminate)
		}
		if v.HasMember(ownerID) {
			return domain.ErrAborted
		}
		if v.Humans() == 0 {
			return errEmptied
		}
		last = v
		return retry.RetryableError(errOwnerAway)
	})

	switch {
	case err == nil, errors.Is(err, domain.ErrAborted):
		// el dueño volvió, no hay nada que hacer
		return
	case errors.Is(err, errVanished):
		t.rooms.CleanupDeleted(ctx, roomID)
		return
	case errors.Is(err, errEmptied):
		t.rooms.ScheduleEmptyCheck(roomID)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case errors.Is(err, domain.ErrIndeterminate):
		// nunca vimos el canal con claridad: abstenerse
		return
	}

	// gracia agotada con ocupantes: promover al primero no-bot
	candidate := ""
	for _, m := range last.Members {
		if !m.Bot && m.ID != ownerID {
			candidate = m.ID
			break
		}
	}
	if candidate == "" {
		t.rooms.ScheduleEmptyCheck(roomID)
		return
	}
	if err := t.PromoteTo(ctx, roomID, candidate); err != nil {
		log.Printf("[transfer] promoviendo %s en sala=%s: %v", candidate, roomID, err)
	}
}

var (
	errVanished = errors.New("canal desaparecido")
	errEmptied  = errors.New("sala vacía")
)

// PromoteTo hace el cambio de dueño efectivo: overwrites, nombre del
// canal, thread y mensaje de hub pasan al nuevo dueño.
func (t *TransferService) PromoteTo(ctx context.Context, roomID, newOwnerID string) error {
	rm, ok := t.reg.Get(roomID)
	if !ok {
		return domain.ErrNotFound
	}
	oldOwnerID := rm.OwnerID
	if oldOwnerID == newOwnerID {
		return nil
	}

	if err := t.platform.GrantMember(ctx, roomID, newOwnerID, true); err != nil {
		return err
	}
	if err := t.platform.RevokeMember(ctx, roomID, oldOwnerID); err != nil {
		log.Printf("[transfer] revocando dueño anterior %s: %v", oldOwnerID, err)
	}

	t.reg.Update(roomID, func(r *domain.Room) { r.OwnerID = newOwnerID })
	rm, _ = t.reg.Get(roomID)

	clean := domain.SanitizeName(t.notif.DisplayName(rm.GuildID, newOwnerID), domain.FallbackName(newOwnerID))
	if err := t.platform.RenameChannel(ctx, roomID, domain.RoomChannelName(clean, rm.Mode.Locked())); err != nil {
		log.Printf("[transfer] renombrando sala=%s: %v", roomID, err)
	}

	if rm.ThreadID != "" {
		panelID, err := t.notif.RehomeThread(ctx, &rm, oldOwnerID)
		if err != nil {
			log.Printf("[transfer] re-homing thread sala=%s: %v", roomID, err)
		} else {
			t.reg.Update(roomID, func(r *domain.Room) { r.PanelMessageID = panelID })
		}
	}

	// el mensaje de hub nombra al dueño: rehacerlo (sólo locked visible)
	if rm.HubMessageID != "" {
		_ = t.notif.DeleteHubMessage(ctx, rm.HubMessageID)
		t.reg.Update(roomID, func(r *domain.Room) { r.HubMessageID = "" })
	}
	if rm.Mode == domain.ModeLocked {
		rm, _ = t.reg.Get(roomID)
		if msgID, err := t.notif.PostHubMessage(ctx, &rm); err == nil {
			t.reg.Update(roomID, func(r *domain.Room) { r.HubMessageID = msgID })
		} else {
			log.Printf("[transfer] recreando mensaje de hub sala=%s: %v", roomID, err)
		}
	}

	t.hub.Force(ctx, rm.GuildID)
	t.saver.MarkDirty(roomID)
	log.Printf("[transfer] sala=%s %s -> %s", roomID, oldOwnerID, newOwnerID)
	return nil
}
