package service

import (
	"context"
	"fmt"
	"log"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

// SetMode cambia el modo de la sala con todos los efectos laterales:
// permisos de @everyone, mensaje de hub, candado en el nombre.
func (s *RoomService) SetMode(ctx context.Context, roomID, callerID string, to domain.Mode) error {
	rm, err := s.ownedRoom(roomID, callerID)
	if err != nil {
		return err
	}
	if !rm.Mode.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidMode, rm.Mode, to)
	}

	switch to {
	case domain.ModeUnlocked:
		if err := s.platform.LockDefault(ctx, rm.GuildID, roomID, false); err != nil {
			return err
		}
		s.dropHubMessage(ctx, roomID, rm.HubMessageID)
		s.renameForMode(ctx, roomID, false)

	case domain.ModeLocked:
		if err := s.platform.LockDefault(ctx, rm.GuildID, roomID, true); err != nil {
			return err
		}
		s.renameForMode(ctx, roomID, true)
		if rm.HubMessageID == "" {
			s.postHubMessage(ctx, roomID)
		}

	case domain.ModeLockedGhost:
		// locked queda, sólo desaparece del hub
		s.dropHubMessage(ctx, roomID, rm.HubMessageID)
	}

	s.reg.Update(roomID, func(r *domain.Room) { r.Mode = to })
	s.saver.MarkDirty(roomID)
	s.hub.Request(ctx, rm.GuildID)
	log.Printf("[rooms] sala=%s modo %s -> %s", roomID, rm.Mode, to)
	return nil
}

func (s *RoomService) dropHubMessage(ctx context.Context, roomID, msgID string) {
	if msgID == "" {
		return
	}
	s.reg.Update(roomID, func(r *domain.Room) { r.HubMessageID = "" })
	if err := s.notif.DeleteHubMessage(ctx, msgID); err != nil {
		log.Printf("[rooms] borrando mensaje de hub sala=%s: %v", roomID, err)
	}
}

func (s *RoomService) postHubMessage(ctx context.Context, roomID string) {
	rm, ok := s.reg.Get(roomID)
	if !ok {
		return
	}
	msgID, err := s.notif.PostHubMessage(ctx, &rm)
	if err != nil {
		log.Printf("[rooms] mensaje de hub sala=%s: %v", roomID, err)
		return
	}
	s.reg.Update(roomID, func(r *domain.Room) { r.HubMessageID = msgID })
}

func (s *RoomService) renameForMode(ctx context.Context, roomID string, locked bool) {
	cur, err := s.platform.ChannelName(ctx, roomID)
	if err != nil {
		return
	}
	want := domain.StripLockPrefix(cur)
	if locked {
		want = domain.LockPrefix + want
	}
	if want == cur {
		return
	}
	if err := s.platform.RenameChannel(ctx, roomID, want); err != nil {
		log.Printf("[rooms] rename por modo sala=%s: %v", roomID, err)
	}
}

// Ban agrega al set y expulsa si está conectado. Idempotente.
func (s *RoomService) Ban(ctx context.Context, roomID, callerID, targetID string) error {
	rm, err := s.ownedRoom(roomID, callerID)
	if err != nil {
		return err
	}
	if targetID == rm.OwnerID {
		return fmt.Errorf("%w: no podés banearte a vos mismo", domain.ErrInvalidMode)
	}

	added := false
	s.reg.Update(roomID, func(r *domain.Room) { added = r.AddBan(targetID) })
	if added {
		s.saver.MarkDirty(roomID)
	}

	// el overwrite desaparece aunque el ban ya existiera
	if err := s.platform.RevokeMember(ctx, roomID, targetID); err != nil {
		log.Printf("[rooms] revocando baneado sala=%s user=%s: %v", roomID, targetID, err)
	}
	v := s.platform.Verify(ctx, roomID)
	if v.Outcome == VerifyExists && v.HasMember(targetID) {
		if err := s.platform.DisconnectMember(ctx, rm.GuildID, targetID); err != nil {
			return fmt.Errorf("expulsando baneado: %w", err)
		}
	}
	return nil
}

// Unban saca del set. No devuelve acceso: el usuario vuelve por knock.
func (s *RoomService) Unban(ctx context.Context, roomID, callerID, targetID string) error {
	if _, err := s.ownedRoom(roomID, callerID); err != nil {
		return err
	}
	removed := false
	s.reg.Update(roomID, func(r *domain.Room) { removed = r.RemoveBan(targetID) })
	if removed {
		s.saver.MarkDirty(roomID)
	}
	return nil
}

// GrantVIP da acceso permanente sin pasar por la cola.
func (s *RoomService) GrantVIP(ctx context.Context, roomID, callerID, targetID string) error {
	rm, err := s.ownedRoom(roomID, callerID)
	if err != nil {
		return err
	}
	if rm.Banned(targetID) {
		return domain.ErrBanned
	}
	if has, err := s.platform.HasMemberGrant(ctx, roomID, targetID); err == nil && has {
		return domain.ErrAlreadyGranted
	}
	return s.platform.GrantMember(ctx, roomID, targetID, false)
}

// VIPResult agrupa el resultado de un alta masiva de VIPs.
type VIPResult struct {
	Added   []string
	Skipped []string
}

// GrantVIPBatch procesa menciones del dueño en el thread: cada mención
// válida se vuelve VIP, bots y baneados se saltean.
func (s *RoomService) GrantVIPBatch(ctx context.Context, roomID, callerID string, targets []Member) (VIPResult, error) {
	rm, err := s.ownedRoom(roomID, callerID)
	if err != nil {
		return VIPResult{}, err
	}
	var res VIPResult
	for _, m := range targets {
		if m.Bot || m.ID == rm.OwnerID || rm.Banned(m.ID) {
			res.Skipped = append(res.Skipped, m.ID)
			continue
		}
		if has, err := s.platform.HasMemberGrant(ctx, roomID, m.ID); err == nil && has {
			res.Skipped = append(res.Skipped, m.ID)
			continue
		}
		if err := s.platform.GrantMember(ctx, roomID, m.ID, false); err != nil {
			log.Printf("[rooms] vip sala=%s user=%s: %v", roomID, m.ID, err)
			res.Skipped = append(res.Skipped, m.ID)
			continue
		}
		res.Added = append(res.Added, m.ID)
	}
	return res, nil
}
