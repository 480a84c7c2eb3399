package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

const (
	createCooldown   = 30 * time.Second
	emptyGrace       = 60 * time.Second
	renameGuardDelay = 2 * time.Second
	maxCategoryVoice = 49
	defaultPreset    = "default"
)

// Surfaces son los canales fijos del guild que el bot usa como puntos
// de entrada y hub.
type Surfaces struct {
	GuildID         string
	CategoryID      string
	LockedTriggerID string
	BasicTriggerID  string
}

// RoomService es la fachada del ciclo de vida de salas: creación por
// trigger, toggles de modo, limpieza verificada y demás operaciones de
// dueño.
type RoomService struct {
	reg      *Registry
	tasks    *Tasks
	saver    *Saver
	platform Platform
	notif    Notifier
	knocks   *KnockService
	hub      *HubNameService
	transfer *TransferService
	presets  PresetRepo

	surf       Surfaces
	createCool *Cooldowns
	grace      time.Duration
	bitrateCap int
}

func NewRoomService(
	reg *Registry,
	tasks *Tasks,
	saver *Saver,
	platform Platform,
	notif Notifier,
	knocks *KnockService,
	hub *HubNameService,
	transfer *TransferService,
	presets PresetRepo,
	surf Surfaces,
) *RoomService {
	s := &RoomService{
		reg:        reg,
		tasks:      tasks,
		saver:      saver,
		platform:   platform,
		notif:      notif,
		knocks:     knocks,
		hub:        hub,
		transfer:   transfer,
		presets:    presets,
		surf:       surf,
		createCool: NewCooldowns(createCooldown),
		grace:      emptyGrace,
		bitrateCap: 96000,
	}
	transfer.Bind(s)
	return s
}

func (s *RoomService) Surfaces() Surfaces { return s.surf }

// PruneCreateCooldowns descarta cooldowns de creación vencidos.
func (s *RoomService) PruneCreateCooldowns() int { return s.createCool.Prune() }

// IsTrigger reporta si el canal es uno de los triggers de creación.
func (s *RoomService) IsTrigger(channelID string) bool {
	return channelID == s.surf.LockedTriggerID || channelID == s.surf.BasicTriggerID
}

// TriggerJoin crea la sala del usuario y lo mueve adentro. Entrar al
// trigger básico crea una sala sin control de acceso.
func (s *RoomService) TriggerJoin(ctx context.Context, guildID, userID, triggerID string) error {
	basic := triggerID == s.surf.BasicTriggerID

	// una sala por dueño: si ya tiene, lo mandamos ahí
	if rm, ok := s.reg.OwnerRoom(guildID, userID); ok {
		return s.platform.MoveMember(ctx, guildID, userID, rm.ID)
	}

	if !s.createCool.Allow(userID) {
		_ = s.platform.DisconnectMember(ctx, guildID, userID)
		_ = s.notif.DM(ctx, userID, "⏳ Estás creando salas muy rápido. Esperá unos segundos e intentá de nuevo.")
		return domain.ErrRateLimited
	}

	chans, err := s.platform.ListCategoryVoice(ctx, guildID, s.surf.CategoryID)
	if err == nil && len(chans) >= maxCategoryVoice {
		_ = s.platform.DisconnectMember(ctx, guildID, userID)
		_ = s.notif.DM(ctx, userID, "❌ La categoría está llena, no se pueden crear más salas ahora.")
		return fmt.Errorf("categoría llena (%d canales)", len(chans))
	}

	clean := domain.SanitizeName(s.notif.DisplayName(guildID, userID), domain.FallbackName(userID))
	name := domain.RoomChannelName(clean, !basic)
	limit, bitrate := 0, 0
	var bans []string

	if !basic {
		// preset "default" del dueño, si existe
		if p, err := s.presets.Get(ctx, userID, defaultPreset); err == nil {
			p.Clamp(s.bitrateCap)
			if p.RoomName != "" {
				name = domain.RoomChannelName(domain.SanitizeName(p.RoomName, clean), true)
			}
			limit, bitrate = p.UserLimit, p.Bitrate
			bans = append(bans, p.Bans...)
		}
	}

	chID, err := s.platform.CreateVoice(ctx, guildID, CreateVoiceParams{
		Name:        name,
		CategoryID:  s.surf.CategoryID,
		UserLimit:   limit,
		Bitrate:     bitrate,
		LockDefault: !basic,
		OwnerID:     userID,
	})
	if err != nil {
		return fmt.Errorf("creando sala: %w", err)
	}

	mode := domain.ModeLocked
	if basic {
		mode = domain.ModeBasic
	}
	rm := domain.Room{
		ID:               chID,
		GuildID:          guildID,
		OwnerID:          userID,
		Mode:             mode,
		Bans:             bans,
		CreatedAt:        time.Now(),
		LastSeenOccupied: time.Now(),
	}

	if err := s.platform.MoveMember(ctx, guildID, userID, chID); err != nil {
		// sin el dueño adentro la sala nace muerta: deshacer
		_ = s.platform.DeleteChannel(ctx, chID)
		return fmt.Errorf("moviendo al dueño: %w", err)
	}

	if !basic {
		if threadID, panelID, err := s.notif.CreateThread(ctx, &rm); err == nil {
			rm.ThreadID, rm.PanelMessageID = threadID, panelID
		} else {
			log.Printf("[rooms] creando thread sala=%s: %v", chID, err)
		}
		if msgID, err := s.notif.PostHubMessage(ctx, &rm); err == nil {
			rm.HubMessageID = msgID
		} else {
			log.Printf("[rooms] mensaje de hub sala=%s: %v", chID, err)
		}
	}

	s.reg.Put(rm)
	s.saver.MarkDirty(chID)
	s.hub.Request(ctx, guildID)
	log.Printf("[rooms] creada sala=%s dueño=%s modo=%s", chID, userID, mode)
	return nil
}

// MemberJoined actualiza el estado al entrar alguien a una sala.
func (s *RoomService) MemberJoined(ctx context.Context, roomID, userID string) {
	rm, ok := s.reg.Get(roomID)
	if !ok {
		return
	}
	s.tasks.Cancel(roomID, TaskEmptyCheck)
	if userID == rm.OwnerID {
		s.transfer.OwnerReturned(roomID)
	}
	s.knocks.ConsumeGrant(roomID, userID)
	s.reg.Update(roomID, func(r *domain.Room) { r.LastSeenOccupied = time.Now() })
	s.saver.MarkDirty(roomID)
}

// MemberLeft decide entre transfer y monitor de sala vacía.
func (s *RoomService) MemberLeft(ctx context.Context, roomID, userID string) {
	rm, ok := s.reg.Get(roomID)
	if !ok {
		return
	}
	if userID == rm.OwnerID {
		s.transfer.OwnerLeft(ctx, roomID)
		return
	}
	v := s.platform.Verify(ctx, roomID)
	switch v.Outcome {
	case VerifyDeleted:
		s.CleanupDeleted(ctx, roomID)
	case VerifyExists:
		if v.Humans() == 0 {
			s.ScheduleEmptyCheck(roomID)
		}
	}
}

// ScheduleEmptyCheck arma el timer de gracia de sala vacía. Re-agendar
// reemplaza el timer anterior; la destrucción re-verifica al disparar.
func (s *RoomService) ScheduleEmptyCheck(roomID string) {
	grace := s.grace
	s.tasks.Start(roomID, TaskEmptyCheck, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(grace):
		}
		vctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		v := s.platform.Verify(vctx, roomID)
		switch v.Outcome {
		case VerifyDeleted:
			s.CleanupDeleted(vctx, roomID)
		case VerifyExists:
			if v.Humans() == 0 {
				if err := s.Cleanup(vctx, roomID); err != nil {
					log.Printf("[rooms] cleanup sala vacía=%s: %v", roomID, err)
				}
			}
		case VerifyIndeterminate:
			// abstenerse; el reconciler re-agenda
		}
	})
}

// Cleanup destruye la sala previa verificación. Nunca destruye sobre
// un estado indeterminado ni sobre una sala con gente adentro.
func (s *RoomService) Cleanup(ctx context.Context, roomID string) error {
	v := s.platform.Verify(ctx, roomID)
	switch v.Outcome {
	case VerifyIndeterminate:
		return domain.ErrIndeterminate
	case VerifyExists:
		if v.Humans() > 0 {
			return fmt.Errorf("sala=%s con %d ocupantes: %w", roomID, v.Humans(), domain.ErrAborted)
		}
		return s.cleanup(roomID, true)
	default:
		return s.cleanup(roomID, false)
	}
}

// CleanupDeleted limpia cuando el canal ya no existe (evento de borrado
// o verificación previa). No intenta borrar el canal.
func (s *RoomService) CleanupDeleted(ctx context.Context, roomID string) {
	if err := s.cleanup(roomID, false); err != nil {
		log.Printf("[rooms] cleanup sala borrada=%s: %v", roomID, err)
	}
}

// cleanup asume la verificación hecha. Usa su propio contexto porque
// suele correr dentro de una tarea que él mismo cancela.
func (s *RoomService) cleanup(roomID string, deleteChannel bool) error {
	if !s.reg.BeginCleanup(roomID) {
		return nil
	}
	defer s.reg.EndCleanup(roomID)

	rm, ok := s.reg.Get(roomID)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.tasks.CancelAllFor(roomID)

	// el handle se limpia antes del delete remoto: si el delete falla a
	// mitad, el barrido de mensajes huérfanos lo termina
	if msgID := rm.HubMessageID; msgID != "" {
		s.reg.Update(roomID, func(r *domain.Room) { r.HubMessageID = "" })
		if err := s.notif.DeleteHubMessage(ctx, msgID); err != nil {
			log.Printf("[rooms] borrando mensaje de hub sala=%s: %v", roomID, err)
		}
	}
	if rm.ThreadID != "" {
		if err := s.notif.DeleteThread(ctx, rm.ThreadID); err != nil {
			log.Printf("[rooms] borrando thread sala=%s: %v", roomID, err)
		}
	}
	if deleteChannel {
		if err := s.platform.DeleteChannel(ctx, roomID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Printf("[rooms] borrando canal sala=%s: %v", roomID, err)
		}
	}

	s.reg.Remove(roomID)
	s.saver.MarkDeleted(roomID)
	s.knocks.DropRoom(roomID)
	s.hub.Request(ctx, rm.GuildID)
	log.Printf("[rooms] sala=%s limpiada (dueño=%s)", roomID, rm.OwnerID)
	return nil
}

// AttachRecovered registra una sala reconstruida por self-heal y le
// recrea las superficies que el modo exige.
func (s *RoomService) AttachRecovered(ctx context.Context, rm domain.Room) {
	if rm.Mode.Admission() && rm.ThreadID == "" {
		if threadID, panelID, err := s.notif.CreateThread(ctx, &rm); err == nil {
			rm.ThreadID, rm.PanelMessageID = threadID, panelID
		}
	}
	if rm.Mode == domain.ModeLocked && rm.HubMessageID == "" {
		if msgID, err := s.notif.PostHubMessage(ctx, &rm); err == nil {
			rm.HubMessageID = msgID
		}
	}
	s.reg.Put(rm)
	s.saver.MarkDirty(rm.ID)
	log.Printf("[rooms] sala=%s readoptada dueño=%s modo=%s", rm.ID, rm.OwnerID, rm.Mode)
}

// GuardExternalRename re-aplica el candado si alguien renombró el canal
// a mano. Con debounce: los edits de Discord llegan en ráfaga.
func (s *RoomService) GuardExternalRename(roomID, observedName string) {
	rm, ok := s.reg.Get(roomID)
	if !ok || !rm.Mode.Locked() || domain.HasLockPrefix(observedName) {
		return
	}
	s.tasks.Start(roomID, TaskRenameGuard, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(renameGuardDelay):
		}
		rm, ok := s.reg.Get(roomID)
		if !ok || !rm.Mode.Locked() {
			return
		}
		cur, err := s.platform.ChannelName(ctx, roomID)
		if err != nil || domain.HasLockPrefix(cur) {
			return
		}
		if err := s.platform.RenameChannel(ctx, roomID, domain.LockPrefix+cur); err != nil {
			log.Printf("[rooms] reponiendo candado sala=%s: %v", roomID, err)
		}
	})
}

// Rename cambia el nombre visible manteniendo el candado según modo.
func (s *RoomService) Rename(ctx context.Context, roomID, callerID, newName string) error {
	rm, err := s.ownedRoom(roomID, callerID)
	if err != nil {
		return err
	}
	clean := domain.SanitizeName(newName, "")
	if clean == "" {
		return fmt.Errorf("%w: nombre vacío tras sanitizar", domain.ErrInvalidMode)
	}
	name := clean
	if rm.Mode.Locked() {
		name = domain.LockPrefix + clean
	}
	return s.platform.RenameChannel(ctx, roomID, name)
}

// SetLimit ajusta el cupo (0 = sin límite).
func (s *RoomService) SetLimit(ctx context.Context, roomID, callerID string, limit int) error {
	if _, err := s.ownedRoom(roomID, callerID); err != nil {
		return err
	}
	if limit < 0 || limit > 99 {
		return fmt.Errorf("límite fuera de rango: %d", limit)
	}
	return s.platform.EditVoice(ctx, roomID, limit, 0)
}

// Kick desconecta a un ocupante de la sala.
func (s *RoomService) Kick(ctx context.Context, roomID, callerID, targetID string) error {
	rm, err := s.ownedRoom(roomID, callerID)
	if err != nil {
		return err
	}
	if targetID == rm.OwnerID {
		return fmt.Errorf("%w: no podés kickearte a vos mismo", domain.ErrInvalidMode)
	}
	v := s.platform.Verify(ctx, roomID)
	if v.Outcome == VerifyExists && !v.HasMember(targetID) {
		return fmt.Errorf("el usuario no está en la sala: %w", domain.ErrNotFound)
	}
	return s.platform.DisconnectMember(ctx, rm.GuildID, targetID)
}

// MuteKnockPings activa/desactiva los pings de knock al dueño.
func (s *RoomService) MuteKnockPings(ctx context.Context, roomID, callerID string, mute bool) error {
	if _, err := s.ownedRoom(roomID, callerID); err != nil {
		return err
	}
	s.reg.Update(roomID, func(r *domain.Room) { r.MuteKnockPings = mute })
	s.saver.MarkDirty(roomID)
	return nil
}

// TransferTo es el transfer explícito por comando del dueño.
func (s *RoomService) TransferTo(ctx context.Context, roomID, callerID, targetID string) error {
	rm, err := s.ownedRoom(roomID, callerID)
	if err != nil {
		return err
	}
	if rm.Banned(targetID) {
		return domain.ErrBanned
	}
	v := s.platform.Verify(ctx, roomID)
	if v.Outcome != VerifyExists {
		return domain.ErrIndeterminate
	}
	if !v.HasMember(targetID) {
		return fmt.Errorf("el destinatario debe estar en la sala: %w", domain.ErrNotFound)
	}
	return s.transfer.PromoteTo(ctx, roomID, targetID)
}

// OwnerGone maneja al dueño que dejó el guild: mismo camino que si
// hubiera salido del canal.
func (s *RoomService) OwnerGone(ctx context.Context, roomID string) {
	s.transfer.OwnerLeft(ctx, roomID)
}

// RoomOf devuelve la sala cuyo dueño es el usuario.
func (s *RoomService) RoomOf(guildID, ownerID string) (domain.Room, bool) {
	return s.reg.OwnerRoom(guildID, ownerID)
}

// RoomByID es el lookup directo en el registro.
func (s *RoomService) RoomByID(roomID string) (domain.Room, bool) {
	return s.reg.Get(roomID)
}

// RoomByThread busca la sala dueña de un hilo de administración.
func (s *RoomService) RoomByThread(threadID string) (domain.Room, bool) {
	if threadID == "" {
		return domain.Room{}, false
	}
	for _, rm := range s.reg.List() {
		if rm.ThreadID == threadID {
			return rm, true
		}
	}
	return domain.Room{}, false
}

func (s *RoomService) ownedRoom(roomID, callerID string) (domain.Room, error) {
	rm, ok := s.reg.Get(roomID)
	if !ok {
		return domain.Room{}, domain.ErrNotFound
	}
	if rm.OwnerID != callerID {
		return domain.Room{}, domain.ErrForbidden
	}
	return rm, nil
}
