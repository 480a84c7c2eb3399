package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

const (
	knockCustomPrefix  = "knock:"
	acceptCustomPrefix = "accept:"
	denyCustomPrefix   = "deny:"
)

// PostHubMessage publica en el canal de texto del hub el botoncito de
// "tocar la puerta" de una sala locked visible.
func (a *Adapter) PostHubMessage(ctx context.Context, room *domain.Room) (string, error) {
	owner := a.DisplayName(room.GuildID, room.OwnerID)
	msg, err := a.s.ChannelMessageSendComplex(a.hubTextID, &discordgo.MessageSend{
		Content: fmt.Sprintf("🔒 La sala de **%s** está cerrada. Tocá el botón para pedir entrar.", owner),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "🚪 Tocar la puerta",
					Style:    discordgo.PrimaryButton,
					CustomID: knockCustomPrefix + room.ID,
				},
			}},
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (a *Adapter) DeleteHubMessage(ctx context.Context, messageID string) error {
	return ignoreNotFound(a.s.ChannelMessageDelete(a.hubTextID, messageID))
}

// ListHubMessages escanea los mensajes del bot en el hub y devuelve
// messageID -> roomID según el custom id del botón de knock.
func (a *Adapter) ListHubMessages(ctx context.Context, guildID string) (map[string]string, error) {
	msgs, err := a.s.ChannelMessages(a.hubTextID, 100, "", "", "")
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, m := range msgs {
		if m.Author == nil || m.Author.ID != a.s.State.User.ID {
			continue
		}
		if roomID, ok := knockRoomID(m.Components); ok {
			out[m.ID] = roomID
		}
	}
	return out, nil
}

func knockRoomID(comps []discordgo.MessageComponent) (string, bool) {
	for _, c := range comps {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			btn, ok := inner.(*discordgo.Button)
			if !ok {
				continue
			}
			if strings.HasPrefix(btn.CustomID, knockCustomPrefix) {
				return strings.TrimPrefix(btn.CustomID, knockCustomPrefix), true
			}
		}
	}
	return "", false
}

// CreateThread arma el hilo privado de administración de la sala con
// el panel de accept/deny adentro y mete al dueño.
func (a *Adapter) CreateThread(ctx context.Context, room *domain.Room) (string, string, error) {
	owner := a.DisplayName(room.GuildID, room.OwnerID)
	th, err := a.s.ThreadStartComplex(a.hubTextID, &discordgo.ThreadStart{
		Name:                "vc-" + domain.SanitizeName(owner, domain.FallbackName(room.OwnerID)),
		Type:                discordgo.ChannelTypeGuildPrivateThread,
		AutoArchiveDuration: 10080,
		Invitable:           false,
	})
	if err != nil {
		return "", "", err
	}
	if err := a.s.ThreadMemberAdd(th.ID, room.OwnerID); err != nil {
		return th.ID, "", err
	}
	panelID, err := a.sendPanel(th.ID, room)
	return th.ID, panelID, err
}

func (a *Adapter) sendPanel(threadID string, room *domain.Room) (string, error) {
	msg, err := a.s.ChannelMessageSendComplex(threadID, &discordgo.MessageSend{
		Content: "🛠️ **Tu sala**: los knocks aparecen acá. Aceptá o rechazá al primero de la cola.\n" +
			"Mencioná usuarios en este hilo para hacerlos VIP directo.",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "✅ Aceptar",
					Style:    discordgo.SuccessButton,
					CustomID: acceptCustomPrefix + room.ID,
				},
				discordgo.Button{
					Label:    "❌ Rechazar",
					Style:    discordgo.DangerButton,
					CustomID: denyCustomPrefix + room.ID,
				},
			}},
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (a *Adapter) DeleteThread(ctx context.Context, threadID string) error {
	// borrar, nunca archivar: un hilo archivado resucita solo
	_, err := a.s.ChannelDelete(threadID)
	return ignoreNotFound(err)
}

// RehomeThread pasa el hilo al nuevo dueño: saca al viejo, mete al
// nuevo, renombra y publica un panel fresco.
func (a *Adapter) RehomeThread(ctx context.Context, room *domain.Room, oldOwnerID string) (string, error) {
	if err := ignoreNotFound(a.s.ThreadMemberRemove(room.ThreadID, oldOwnerID)); err != nil {
		return "", err
	}
	if err := a.s.ThreadMemberAdd(room.ThreadID, room.OwnerID); err != nil {
		return "", err
	}
	owner := a.DisplayName(room.GuildID, room.OwnerID)
	_, _ = a.s.ChannelEdit(room.ThreadID, &discordgo.ChannelEdit{
		Name: "vc-" + domain.SanitizeName(owner, domain.FallbackName(room.OwnerID)),
	})
	return a.sendPanel(room.ThreadID, room)
}

func (a *Adapter) ThreadAddUser(ctx context.Context, threadID, userID string) error {
	return a.s.ThreadMemberAdd(threadID, userID)
}

func (a *Adapter) ThreadRemoveUser(ctx context.Context, threadID, userID string) error {
	return ignoreNotFound(a.s.ThreadMemberRemove(threadID, userID))
}

func (a *Adapter) NotifyKnock(ctx context.Context, room *domain.Room, requesterID string) (string, error) {
	if room.ThreadID == "" {
		return "", domain.ErrNotFound
	}
	msg, err := a.s.ChannelMessageSendComplex(room.ThreadID, &discordgo.MessageSend{
		Content: fmt.Sprintf("🚪 <@%s> quiere entrar a tu sala.", requesterID),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	})
	if err != nil {
		return "", notFoundToDomain(err)
	}
	return msg.ID, nil
}

func (a *Adapter) DeleteThreadMessage(ctx context.Context, threadID, messageID string) error {
	return ignoreNotFound(a.s.ChannelMessageDelete(threadID, messageID))
}

// PingOwner menciona al dueño en el hilo. El throttle de 120s vive en
// el servicio de knocks, acá sólo se envía.
func (a *Adapter) PingOwner(ctx context.Context, room *domain.Room, requesterID string) error {
	if room.ThreadID == "" {
		return domain.ErrNotFound
	}
	_, err := a.s.ChannelMessageSendComplex(room.ThreadID, &discordgo.MessageSend{
		Content: fmt.Sprintf("<@%s> 🔔 hay gente esperando en la puerta.", room.OwnerID),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{room.OwnerID},
		},
	})
	return notFoundToDomain(err)
}

func (a *Adapter) DM(ctx context.Context, userID, content string) error {
	ch, err := a.s.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = a.s.ChannelMessageSend(ch.ID, content)
	return err
}

// DisplayName: nick del guild, si no el username. Nunca falla.
func (a *Adapter) DisplayName(guildID, userID string) string {
	if m, err := a.s.State.Member(guildID, userID); err == nil && m != nil {
		if m.Nick != "" {
			return m.Nick
		}
		if m.User != nil {
			if m.User.GlobalName != "" {
				return m.User.GlobalName
			}
			return m.User.Username
		}
	}
	if u, err := a.s.User(userID); err == nil && u != nil {
		if u.GlobalName != "" {
			return u.GlobalName
		}
		return u.Username
	}
	return domain.FallbackName(userID)
}
