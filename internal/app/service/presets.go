package service

import (
	"context"
	"fmt"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

// PresetService guarda y aplica configuraciones de sala por usuario.
type PresetService struct {
	repo     PresetRepo
	reg      *Registry
	platform Platform
	saver    *Saver

	bitrateCap int
}

func NewPresetService(repo PresetRepo, reg *Registry, platform Platform, saver *Saver) *PresetService {
	return &PresetService{repo: repo, reg: reg, platform: platform, saver: saver, bitrateCap: 96000}
}

// Save captura la configuración actual de la sala del dueño bajo un
// nombre. Tope de 10 presets por usuario.
func (p *PresetService) Save(ctx context.Context, guildID, ownerID, name string, roomName string, limit, bitrate int) error {
	if err := domain.ValidatePresetName(name); err != nil {
		return err
	}
	rm, ok := p.reg.OwnerRoom(guildID, ownerID)
	if !ok {
		return domain.ErrNotFound
	}

	if _, err := p.repo.Get(ctx, ownerID, name); err != nil {
		// nuevo preset: respetar el tope
		n, err := p.repo.Count(ctx, ownerID)
		if err != nil {
			return err
		}
		if n >= domain.MaxPresetsPerUser {
			return domain.ErrPresetLimit
		}
	}

	pr := domain.Preset{
		Name:      name,
		RoomName:  roomName,
		UserLimit: limit,
		Bitrate:   bitrate,
		Bans:      append([]string(nil), rm.Bans...),
	}
	pr.Clamp(p.bitrateCap)
	return p.repo.Upsert(ctx, ownerID, pr)
}

// Apply carga un preset sobre la sala actual del dueño: nombre, cupo,
// bitrate y bans. Los bans del preset se suman a los vigentes.
func (p *PresetService) Apply(ctx context.Context, guildID, ownerID, name string) (domain.Preset, error) {
	rm, ok := p.reg.OwnerRoom(guildID, ownerID)
	if !ok {
		return domain.Preset{}, domain.ErrNotFound
	}
	pr, err := p.repo.Get(ctx, ownerID, name)
	if err != nil {
		return domain.Preset{}, err
	}
	pr.Clamp(p.bitrateCap)

	if pr.RoomName != "" {
		clean := domain.SanitizeName(pr.RoomName, "")
		if clean != "" {
			if err := p.platform.RenameChannel(ctx, rm.ID, domain.RoomChannelName(clean, rm.Mode.Locked())); err != nil {
				return pr, fmt.Errorf("aplicando nombre: %w", err)
			}
		}
	}
	if pr.UserLimit > 0 || pr.Bitrate > 0 {
		if err := p.platform.EditVoice(ctx, rm.ID, pr.UserLimit, pr.Bitrate); err != nil {
			return pr, fmt.Errorf("aplicando cupo/bitrate: %w", err)
		}
	}

	changed := false
	p.reg.Update(rm.ID, func(r *domain.Room) {
		for _, b := range pr.Bans {
			if r.AddBan(b) {
				changed = true
			}
		}
	})
	if changed {
		p.saver.MarkDirty(rm.ID)
	}
	return pr, nil
}

func (p *PresetService) Delete(ctx context.Context, ownerID, name string) error {
	ok, err := p.repo.Delete(ctx, ownerID, name)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (p *PresetService) List(ctx context.Context, ownerID string) ([]string, error) {
	return p.repo.ListNames(ctx, ownerID)
}
