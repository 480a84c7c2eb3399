package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/locked-vc-bot/internal/app/service"
	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

const (
	ownerPerms  = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak | discordgo.PermissionVoiceMoveMembers | discordgo.PermissionManageChannels
	memberPerms = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak
)

// Adapter implementa los ports Platform y Notifier sobre discordgo.
type Adapter struct {
	s         *discordgo.Session
	guildID   string
	hubTextID string
}

func NewAdapter(s *discordgo.Session, guildID, hubTextID string) *Adapter {
	return &Adapter{s: s, guildID: guildID, hubTextID: hubTextID}
}

// safeChannel: primero el state cache, después la API.
func (a *Adapter) safeChannel(id string) (*discordgo.Channel, error) {
	if ch, err := a.s.State.Channel(id); err == nil && ch != nil {
		return ch, nil
	}
	ch, err := a.s.Channel(id)
	if err != nil {
		return nil, err
	}
	_ = a.s.State.ChannelAdd(ch)
	return ch, nil
}

// Verify clasifica el estado remoto del canal en tres: existe (con
// ocupantes), confirmado borrado, o indeterminado. 403 y errores de
// red caen en indeterminado a propósito: nunca habilitan destrucción.
func (a *Adapter) Verify(ctx context.Context, channelID string) service.Verification {
	ch, err := a.safeChannel(channelID)
	if err != nil {
		var re *discordgo.RESTError
		if errors.As(err, &re) && re.Response != nil {
			switch re.Response.StatusCode {
			case http.StatusNotFound:
				return service.Verification{Outcome: service.VerifyDeleted}
			case http.StatusForbidden:
				return service.Verification{Outcome: service.VerifyIndeterminate}
			}
		}
		return service.Verification{Outcome: service.VerifyIndeterminate}
	}
	return service.Verification{
		Outcome: service.VerifyExists,
		Name:    ch.Name,
		Members: a.voiceMembers(channelID),
	}
}

func (a *Adapter) voiceMembers(channelID string) []service.Member {
	g, err := a.s.State.Guild(a.guildID)
	if err != nil || g == nil {
		return nil
	}
	var out []service.Member
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		out = append(out, service.Member{ID: vs.UserID, Bot: a.isBot(vs.UserID)})
	}
	return out
}

func (a *Adapter) isBot(userID string) bool {
	if m, err := a.s.State.Member(a.guildID, userID); err == nil && m != nil && m.User != nil {
		return m.User.Bot
	}
	return false
}

func (a *Adapter) CreateVoice(ctx context.Context, guildID string, p service.CreateVoiceParams) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:    a.s.State.User.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ownerPerms,
		},
		{
			ID:    p.OwnerID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ownerPerms,
		},
	}
	if p.LockDefault {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:   guildID, // rol @everyone
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionVoiceConnect,
		})
	}

	ch, err := a.s.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 p.Name,
		Type:                 discordgo.ChannelTypeGuildVoice,
		ParentID:             p.CategoryID,
		UserLimit:            p.UserLimit,
		Bitrate:              p.Bitrate,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := a.s.ChannelDelete(channelID)
	return ignoreNotFound(err)
}

func (a *Adapter) RenameChannel(ctx context.Context, channelID, name string) error {
	_, err := a.s.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name})
	return err
}

func (a *Adapter) ChannelName(ctx context.Context, channelID string) (string, error) {
	ch, err := a.safeChannel(channelID)
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

// voicePatch va con punteros: ChannelEdit omite los ceros al
// serializar y acá cupo 0 es un valor válido (sin límite).
type voicePatch struct {
	UserLimit *int `json:"user_limit,omitempty"`
	Bitrate   *int `json:"bitrate,omitempty"`
}

func editVoiceBody(userLimit, bitrate int) voicePatch {
	p := voicePatch{UserLimit: &userLimit}
	if bitrate > 0 {
		p.Bitrate = &bitrate
	}
	return p
}

func (a *Adapter) EditVoice(ctx context.Context, channelID string, userLimit, bitrate int) error {
	_, err := a.s.RequestWithBucketID("PATCH", discordgo.EndpointChannel(channelID),
		editVoiceBody(userLimit, bitrate), discordgo.EndpointChannel(channelID))
	return err
}

func (a *Adapter) LockDefault(ctx context.Context, guildID, channelID string, deny bool) error {
	if deny {
		return a.s.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, 0, discordgo.PermissionVoiceConnect)
	}
	return ignoreNotFound(a.s.ChannelPermissionDelete(channelID, guildID))
}

func (a *Adapter) GrantMember(ctx context.Context, channelID, userID string, owner bool) error {
	perms := int64(memberPerms)
	if owner {
		perms = ownerPerms
	}
	return a.s.ChannelPermissionSet(channelID, userID, discordgo.PermissionOverwriteTypeMember, perms, 0)
}

func (a *Adapter) RevokeMember(ctx context.Context, channelID, userID string) error {
	return ignoreNotFound(a.s.ChannelPermissionDelete(channelID, userID))
}

func (a *Adapter) HasMemberGrant(ctx context.Context, channelID, userID string) (bool, error) {
	ch, err := a.safeChannel(channelID)
	if err != nil {
		return false, err
	}
	for _, ow := range ch.PermissionOverwrites {
		if ow.Type == discordgo.PermissionOverwriteTypeMember && ow.ID == userID && ow.Allow&discordgo.PermissionVoiceConnect != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) MoveMember(ctx context.Context, guildID, userID, channelID string) error {
	return a.s.GuildMemberMove(guildID, userID, &channelID)
}

func (a *Adapter) DisconnectMember(ctx context.Context, guildID, userID string) error {
	return a.s.GuildMemberMove(guildID, userID, nil)
}

func (a *Adapter) IsGuildMember(ctx context.Context, guildID, userID string) (bool, error) {
	if m, err := a.s.State.Member(guildID, userID); err == nil && m != nil {
		return true, nil
	}
	_, err := a.s.GuildMember(guildID, userID)
	if err == nil {
		return true, nil
	}
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("guild member %s: %w", userID, err)
}

func (a *Adapter) ListCategoryVoice(ctx context.Context, guildID, categoryID string) ([]service.ChannelInfo, error) {
	g, err := a.s.State.Guild(guildID)
	if err != nil || g == nil {
		return nil, fmt.Errorf("guild %s no está en cache: %w", guildID, err)
	}

	var out []service.ChannelInfo
	for _, ch := range g.Channels {
		if ch.Type != discordgo.ChannelTypeGuildVoice || ch.ParentID != categoryID {
			continue
		}
		info := service.ChannelInfo{
			ID:       ch.ID,
			Name:     ch.Name,
			ParentID: ch.ParentID,
			Members:  a.voiceMembers(ch.ID),
		}
		for _, ow := range ch.PermissionOverwrites {
			switch ow.Type {
			case discordgo.PermissionOverwriteTypeRole:
				if ow.ID == guildID && ow.Deny&discordgo.PermissionVoiceConnect != 0 {
					info.DefaultConnectDenied = true
				}
			case discordgo.PermissionOverwriteTypeMember:
				if ow.ID == a.s.State.User.ID {
					continue
				}
				if ow.Allow&discordgo.PermissionManageChannels != 0 {
					info.ManagerIDs = append(info.ManagerIDs, ow.ID)
				} else if ow.Allow&discordgo.PermissionVoiceConnect != 0 {
					info.GrantedIDs = append(info.GrantedIDs, ow.ID)
				}
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func ignoreNotFound(err error) error {
	if err == nil {
		return nil
	}
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// notFoundToDomain mapea 404 de la API a domain.ErrNotFound.
func notFoundToDomain(err error) error {
	if err == nil {
		return nil
	}
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return err
}
