package service

import (
	"context"
	"time"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

// VerifyOutcome es el resultado tri-estado de verificar un canal remoto.
// Indeterminate (permisos caídos, API rota) NUNCA habilita destrucción.
type VerifyOutcome int

const (
	VerifyExists VerifyOutcome = iota
	VerifyDeleted
	VerifyIndeterminate
)

func (o VerifyOutcome) String() string {
	switch o {
	case VerifyExists:
		return "exists"
	case VerifyDeleted:
		return "deleted"
	}
	return "indeterminate"
}

type Member struct {
	ID  string
	Bot bool
}

type Verification struct {
	Outcome VerifyOutcome
	Name    string
	Members []Member
}

// Humans cuenta ocupantes no-bot.
func (v Verification) Humans() int {
	n := 0
	for _, m := range v.Members {
		if !m.Bot {
			n++
		}
	}
	return n
}

// HasMember reporta si el usuario está conectado al canal.
func (v Verification) HasMember(userID string) bool {
	for _, m := range v.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// ChannelInfo es la vista cruda de un canal de voz para self-heal.
type ChannelInfo struct {
	ID                   string
	Name                 string
	ParentID             string
	DefaultConnectDenied bool
	// usuarios con overwrite de manage-channels (candidatos a dueño)
	ManagerIDs []string
	// usuarios con overwrite de connect (VIPs o accesos otorgados)
	GrantedIDs []string
	Members    []Member
}

type CreateVoiceParams struct {
	Name       string
	CategoryID string
	UserLimit  int
	Bitrate    int
	// deny connect a @everyone (salas locked)
	LockDefault bool
	OwnerID     string
}

// Lo implementa internal/adapters/discord.Adapter
type Platform interface {
	// Verify nunca devuelve error: cualquier fallo se reporta como
	// VerifyIndeterminate para que el caller se abstenga.
	Verify(ctx context.Context, channelID string) Verification

	CreateVoice(ctx context.Context, guildID string, p CreateVoiceParams) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	RenameChannel(ctx context.Context, channelID, name string) error
	ChannelName(ctx context.Context, channelID string) (string, error)
	EditVoice(ctx context.Context, channelID string, userLimit, bitrate int) error

	// LockDefault setea (deny=true) o limpia (deny=false) el deny de
	// connect para @everyone.
	LockDefault(ctx context.Context, guildID, channelID string, deny bool) error
	GrantMember(ctx context.Context, channelID, userID string, owner bool) error
	RevokeMember(ctx context.Context, channelID, userID string) error
	HasMemberGrant(ctx context.Context, channelID, userID string) (bool, error)

	MoveMember(ctx context.Context, guildID, userID, channelID string) error
	DisconnectMember(ctx context.Context, guildID, userID string) error
	IsGuildMember(ctx context.Context, guildID, userID string) (bool, error)

	ListCategoryVoice(ctx context.Context, guildID, categoryID string) ([]ChannelInfo, error)
}

// Lo implementa internal/adapters/discord.Adapter
type Notifier interface {
	PostHubMessage(ctx context.Context, room *domain.Room) (string, error)
	DeleteHubMessage(ctx context.Context, messageID string) error
	ListHubMessages(ctx context.Context, guildID string) (map[string]string, error) // messageID -> roomID

	CreateThread(ctx context.Context, room *domain.Room) (threadID, panelID string, err error)
	DeleteThread(ctx context.Context, threadID string) error
	RehomeThread(ctx context.Context, room *domain.Room, oldOwnerID string) (panelID string, err error)
	ThreadAddUser(ctx context.Context, threadID, userID string) error
	ThreadRemoveUser(ctx context.Context, threadID, userID string) error

	NotifyKnock(ctx context.Context, room *domain.Room, requesterID string) (messageID string, err error)
	DeleteThreadMessage(ctx context.Context, threadID, messageID string) error
	PingOwner(ctx context.Context, room *domain.Room, requesterID string) error
	DM(ctx context.Context, userID, content string) error

	DisplayName(guildID, userID string) string
}

// Lo implementa internal/infra/storage.RoomRepo
type RoomRepo interface {
	Upsert(ctx context.Context, rm domain.Room) error
	Get(ctx context.Context, id string) (domain.Room, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]domain.Room, error)
	TouchOccupied(ctx context.Context, id string, t time.Time) error
}

// Lo implementa internal/infra/storage.ConfigRepo
type ConfigRepo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Lo implementa internal/infra/storage.PresetRepo
type PresetRepo interface {
	Upsert(ctx context.Context, ownerID string, p domain.Preset) error
	Get(ctx context.Context, ownerID, name string) (domain.Preset, error)
	Delete(ctx context.Context, ownerID, name string) (bool, error)
	ListNames(ctx context.Context, ownerID string) ([]string, error)
	Count(ctx context.Context, ownerID string) (int, error)
}
