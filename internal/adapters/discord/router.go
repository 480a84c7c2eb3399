package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/locked-vc-bot/internal/app/service"
	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

type Router struct {
	s       *discordgo.Session
	guildID string

	rooms   *service.RoomService
	knocks  *service.KnockService
	presets *service.PresetService
}

func NewRouter(
	s *discordgo.Session,
	guildID string,
	rooms *service.RoomService,
	knocks *service.KnockService,
	presets *service.PresetService,
) *Router {
	return &Router{
		s:       s,
		guildID: guildID,
		rooms:   rooms,
		knocks:  knocks,
		presets: presets,
	}
}

func (r *Router) Register() error {
	appID := r.s.State.User.ID
	for _, cmd := range Commands {
		if _, err := r.s.ApplicationCommandCreate(appID, r.guildID, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Handlers() {
	// Slash commands + botones
	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		switch ic.Type {
		case discordgo.InteractionApplicationCommand:
			r.handleSlash(s, ic)
		case discordgo.InteractionMessageComponent:
			r.handleComponent(s, ic)
		}
	})

	// VoiceStateUpdate → triggers de creación y ciclo de vida de salas
	r.s.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if vs.GuildID != r.guildID {
			return
		}
		oldCh := ""
		if vs.BeforeUpdate != nil {
			oldCh = vs.BeforeUpdate.ChannelID
		}
		newCh := vs.ChannelID
		if oldCh == newCh {
			return // mute/deaf, nos da igual
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if oldCh != "" {
			if _, tracked := r.rooms.RoomByID(oldCh); tracked {
				r.rooms.MemberLeft(ctx, oldCh, vs.UserID)
			}
		}
		switch {
		case newCh == "":
			// se desconectó del todo
		case r.rooms.IsTrigger(newCh):
			if err := r.rooms.TriggerJoin(ctx, vs.GuildID, vs.UserID, newCh); err != nil &&
				!errors.Is(err, domain.ErrRateLimited) {
				log.Printf("[router] trigger join user=%s: %v", vs.UserID, err)
			}
		default:
			if _, tracked := r.rooms.RoomByID(newCh); tracked {
				r.rooms.MemberJoined(ctx, newCh, vs.UserID)
			}
		}
	})

	// ChannelDelete → alguien borró la sala a mano
	r.s.AddHandler(func(s *discordgo.Session, cd *discordgo.ChannelDelete) {
		if cd.Channel == nil || cd.Channel.GuildID != r.guildID {
			return
		}
		if _, tracked := r.rooms.RoomByID(cd.Channel.ID); !tracked {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Printf("[router] canal=%s borrado externamente", cd.Channel.ID)
		r.rooms.CleanupDeleted(ctx, cd.Channel.ID)
	})

	// ChannelUpdate → guardia del candado en el nombre
	r.s.AddHandler(func(s *discordgo.Session, cu *discordgo.ChannelUpdate) {
		if cu.Channel == nil || cu.Channel.GuildID != r.guildID {
			return
		}
		r.rooms.GuardExternalRename(cu.Channel.ID, cu.Channel.Name)
	})

	// GuildMemberRemove → fuera de todas las colas; su sala se transfiere
	r.s.AddHandler(func(s *discordgo.Session, gm *discordgo.GuildMemberRemove) {
		if gm.GuildID != r.guildID || gm.User == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		r.knocks.RemoveUser(ctx, gm.User.ID)
		if rm, ok := r.rooms.RoomOf(gm.GuildID, gm.User.ID); ok {
			r.rooms.OwnerGone(ctx, rm.ID)
		}
	})

	// MessageCreate → menciones del dueño en su hilo = VIPs directos
	r.s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.GuildID != r.guildID || m.Author == nil || m.Author.Bot || len(m.Mentions) == 0 {
			return
		}
		rm, ok := r.rooms.RoomByThread(m.ChannelID)
		if !ok || rm.OwnerID != m.Author.ID {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		targets := make([]service.Member, 0, len(m.Mentions))
		for _, u := range m.Mentions {
			targets = append(targets, service.Member{ID: u.ID, Bot: u.Bot})
		}
		res, err := r.rooms.GrantVIPBatch(ctx, rm.ID, m.Author.ID, targets)
		if err != nil {
			log.Printf("[router] vip batch sala=%s: %v", rm.ID, err)
			return
		}
		_, _ = s.ChannelMessageSend(m.ChannelID, vipSummary(res))
	})
}

func (r *Router) handleSlash(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Member == nil || ic.Member.User == nil {
		return
	}
	data := ic.ApplicationCommandData()
	log.Printf("slash: /%s by=%s guild=%s", data.Name, ic.Member.User.ID, ic.GuildID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("panic in slash /%s: %v", data.Name, rec)
			ReplyEphemeral(s, ic, "⚠️ Ocurrió un error inesperado.")
		}
	}()

	_ = DeferEphemeral(s, ic)
	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	switch data.Name {
	case "vc":
		r.handleVC(ctx, s, ic, data)
	case "preset":
		r.handlePreset(ctx, s, ic, data)
	}
}

func (r *Router) handleVC(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		ReplyEphemeral(s, ic, "Usá `/vc lock`, `/vc unlock`, `/vc ban`, etc.")
		return
	}
	caller := ic.Member.User.ID
	rm, ok := r.rooms.RoomOf(ic.GuildID, caller)
	if !ok {
		ReplyEphemeral(s, ic, "🔇 No tenés una sala activa. Entrá al canal de creación para armar una.")
		return
	}

	sub := data.Options[0]
	var err error
	msg := "✅ Listo."

	switch sub.Name {
	case "name":
		err = r.rooms.Rename(ctx, rm.ID, caller, sub.Options[0].StringValue())
	case "limit":
		err = r.rooms.SetLimit(ctx, rm.ID, caller, int(sub.Options[0].IntValue()))
	case "lock":
		err = r.rooms.SetMode(ctx, rm.ID, caller, domain.ModeLocked)
		msg = "🔒 Sala cerrada. La gente toca la puerta desde el hub."
	case "unlock":
		err = r.rooms.SetMode(ctx, rm.ID, caller, domain.ModeUnlocked)
		msg = "🔓 Sala abierta a todos."
	case "ghost":
		err = r.rooms.SetMode(ctx, rm.ID, caller, domain.ModeLockedGhost)
		msg = "👻 Sala oculta del hub (sigue cerrada)."
	case "unghost":
		err = r.rooms.SetMode(ctx, rm.ID, caller, domain.ModeLocked)
		msg = "🔒 Sala visible en el hub de nuevo."
	case "ban":
		err = r.rooms.Ban(ctx, rm.ID, caller, sub.Options[0].UserValue(nil).ID)
		msg = "🔨 Baneado."
	case "unban":
		err = r.rooms.Unban(ctx, rm.ID, caller, sub.Options[0].UserValue(nil).ID)
		msg = "✅ Ban quitado. Puede volver a tocar la puerta."
	case "vip":
		err = r.rooms.GrantVIP(ctx, rm.ID, caller, sub.Options[0].UserValue(nil).ID)
		msg = "⭐ VIP agregado."
	case "kick":
		err = r.rooms.Kick(ctx, rm.ID, caller, sub.Options[0].UserValue(nil).ID)
		msg = "👢 Expulsado."
	case "transfer":
		err = r.rooms.TransferTo(ctx, rm.ID, caller, sub.Options[0].UserValue(nil).ID)
		msg = "🤝 Sala transferida."
	case "mute-pings":
		mute := sub.Options[0].BoolValue()
		err = r.rooms.MuteKnockPings(ctx, rm.ID, caller, mute)
		if mute {
			msg = "🔕 Pings de knock silenciados."
		} else {
			msg = "🔔 Pings de knock activados."
		}
	default:
		msg = "Subcomando desconocido."
	}

	if err != nil {
		ReplyEphemeral(s, ic, friendlyError(err))
		return
	}
	ReplyEphemeral(s, ic, msg)
}

func (r *Router) handlePreset(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		ReplyEphemeral(s, ic, "Usá `/preset save`, `/preset load`, `/preset delete` o `/preset list`.")
		return
	}
	caller := ic.Member.User.ID
	sub := data.Options[0]

	switch sub.Name {
	case "save":
		name, roomName := "", ""
		limit, bitrate := 0, 0
		for _, opt := range sub.Options {
			switch opt.Name {
			case "nombre":
				name = opt.StringValue()
			case "sala":
				roomName = opt.StringValue()
			case "cupo":
				limit = int(opt.IntValue())
			case "bitrate":
				bitrate = int(opt.IntValue())
			}
		}
		if err := r.presets.Save(ctx, ic.GuildID, caller, name, roomName, limit, bitrate); err != nil {
			ReplyEphemeral(s, ic, friendlyError(err))
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("💾 Preset **%s** guardado.", name))

	case "load":
		name := sub.Options[0].StringValue()
		if _, err := r.presets.Apply(ctx, ic.GuildID, caller, name); err != nil {
			ReplyEphemeral(s, ic, friendlyError(err))
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("✅ Preset **%s** aplicado.", name))

	case "delete":
		name := sub.Options[0].StringValue()
		if err := r.presets.Delete(ctx, caller, name); err != nil {
			ReplyEphemeral(s, ic, friendlyError(err))
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("🗑️ Preset **%s** borrado.", name))

	case "list":
		names, err := r.presets.List(ctx, caller)
		if err != nil {
			ReplyEphemeral(s, ic, friendlyError(err))
			return
		}
		if len(names) == 0 {
			ReplyEphemeral(s, ic, "No tenés presets guardados.")
			return
		}
		ReplyEphemeral(s, ic, "📋 Tus presets: "+strings.Join(names, ", "))
	}
}

func (r *Router) handleComponent(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Member == nil || ic.Member.User == nil {
		return
	}
	cid := ic.MessageComponentData().CustomID
	caller := ic.Member.User.ID

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("panic in component %s: %v", cid, rec)
			ReplyEphemeral(s, ic, "⚠️ Ocurrió un error inesperado.")
		}
	}()

	_ = DeferEphemeral(s, ic)
	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	switch {
	case strings.HasPrefix(cid, knockCustomPrefix):
		roomID := strings.TrimPrefix(cid, knockCustomPrefix)
		if err := r.knocks.Knock(ctx, roomID, caller); err != nil {
			ReplyEphemeral(s, ic, friendlyError(err))
			return
		}
		ReplyEphemeral(s, ic, "🚪 Tocaste la puerta. Si el dueño acepta tenés 5 minutos para entrar.")

	case strings.HasPrefix(cid, acceptCustomPrefix):
		roomID := strings.TrimPrefix(cid, acceptCustomPrefix)
		if !r.ownsRoom(roomID, caller) {
			ReplyEphemeral(s, ic, "⛔ Sólo el dueño de la sala puede aceptar knocks.")
			return
		}
		userID, err := r.knocks.Accept(ctx, roomID)
		if err != nil {
			ReplyEphemeral(s, ic, friendlyError(err))
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("✅ <@%s> aceptado. Tiene 5 minutos para entrar.", userID))

	case strings.HasPrefix(cid, denyCustomPrefix):
		roomID := strings.TrimPrefix(cid, denyCustomPrefix)
		if !r.ownsRoom(roomID, caller) {
			ReplyEphemeral(s, ic, "⛔ Sólo el dueño de la sala puede rechazar knocks.")
			return
		}
		userID, err := r.knocks.Deny(ctx, roomID)
		if err != nil {
			ReplyEphemeral(s, ic, friendlyError(err))
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("❌ <@%s> rechazado.", userID))
	}
}

func (r *Router) ownsRoom(roomID, userID string) bool {
	rm, ok := r.rooms.RoomByID(roomID)
	return ok && rm.OwnerID == userID
}

// ---------- helpers ----------

func friendlyError(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyOwner):
		return "🙃 Es tu propia sala."
	case errors.Is(err, domain.ErrBanned):
		return "⛔ Estás baneado de esa sala."
	case errors.Is(err, domain.ErrAlreadyGranted):
		return "✅ Ya tenés acceso: entrá directo."
	case errors.Is(err, domain.ErrDuplicateKnock):
		return "⏳ Ya estás en la cola, esperá la respuesta del dueño."
	case errors.Is(err, domain.ErrKnockCooldown):
		return "⏳ Tocaste la puerta hace poco. Esperá unos minutos."
	case errors.Is(err, domain.ErrQueueEmpty):
		return "📭 No hay nadie en la cola."
	case errors.Is(err, domain.ErrForbidden):
		return "⛔ No sos el dueño de esa sala."
	case errors.Is(err, domain.ErrNotFound):
		return "🔍 No encontré eso. Puede que la sala ya no exista."
	case errors.Is(err, domain.ErrPresetLimit):
		return fmt.Sprintf("📦 Llegaste al tope de %d presets. Borrá alguno primero.", domain.MaxPresetsPerUser)
	case errors.Is(err, domain.ErrPresetName):
		return "✏️ Nombre de preset inválido: letras, números, guiones y espacios, hasta 50."
	case errors.Is(err, domain.ErrInvalidMode):
		return "🚫 Ese cambio no va: " + err.Error()
	case errors.Is(err, domain.ErrIndeterminate):
		return "🌫️ No pude verificar la sala en Discord. Probá de nuevo en un rato."
	}
	return "⚠️ " + err.Error()
}

func vipSummary(res service.VIPResult) string {
	var b strings.Builder
	if len(res.Added) > 0 {
		b.WriteString("⭐ VIPs nuevos: ")
		for i, id := range res.Added {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "<@%s>", id)
		}
	}
	if len(res.Skipped) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "↷ Salteados (bots, baneados o ya VIP): %d", len(res.Skipped))
	}
	if b.Len() == 0 {
		return "No había nada que hacer."
	}
	return b.String()
}
