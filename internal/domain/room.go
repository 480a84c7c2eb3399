package domain

import (
	"fmt"
	"time"
)

// Mode define quién puede entrar a la sala y qué superficies tiene.
type Mode int

const (
	// ModeBasic: sala sin control de acceso, sin mensaje de hub ni thread.
	ModeBasic Mode = iota
	// ModeUnlocked: sala normal temporalmente abierta a todos.
	ModeUnlocked
	// ModeLocked: entrada sólo por knock aceptado o VIP.
	ModeLocked
	// ModeLockedGhost: locked + oculta del hub (sin mensaje de knock).
	ModeLockedGhost
)

func (m Mode) String() string {
	switch m {
	case ModeBasic:
		return "basic"
	case ModeUnlocked:
		return "unlocked"
	case ModeLocked:
		return "locked"
	case ModeLockedGhost:
		return "locked_ghost"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "basic":
		return ModeBasic, nil
	case "unlocked":
		return ModeUnlocked, nil
	case "locked":
		return ModeLocked, nil
	case "locked_ghost":
		return ModeLockedGhost, nil
	}
	return ModeBasic, fmt.Errorf("%w: modo %q", ErrCorrupted, s)
}

// Locked: true si la sala restringe la entrada (ghost incluido).
func (m Mode) Locked() bool { return m == ModeLocked || m == ModeLockedGhost }

// Ghost: oculta del hub. Sólo puede ser true sobre una sala locked.
func (m Mode) Ghost() bool { return m == ModeLockedGhost }

// Admission: la sala participa del flujo de knocks.
func (m Mode) Admission() bool { return m.Locked() }

// CanTransition valida el cambio de modo. Basic es terminal en ambos
// sentidos, y ghost sólo existe encima de locked: para salir de ghost
// hay que volver a locked antes de abrir.
func (m Mode) CanTransition(to Mode) bool {
	if m == to {
		return false
	}
	if m == ModeBasic || to == ModeBasic {
		return false
	}
	switch m {
	case ModeUnlocked:
		return to == ModeLocked
	case ModeLocked:
		return to == ModeUnlocked || to == ModeLockedGhost
	case ModeLockedGhost:
		return to == ModeLocked
	}
	return false
}

// Room es el registro de una sala de voz administrada por el bot.
type Room struct {
	ID      string
	GuildID string
	OwnerID string
	Mode    Mode

	// ids de usuarios expulsados permanentemente de esta sala
	Bans []string

	// superficies asociadas (vacío = no existe)
	HubMessageID   string
	ThreadID       string
	PanelMessageID string

	MuteKnockPings bool

	CreatedAt        time.Time
	LastSeenOccupied time.Time
}

func (r *Room) Banned(userID string) bool {
	for _, b := range r.Bans {
		if b == userID {
			return true
		}
	}
	return false
}

// AddBan agrega al set; idempotente.
func (r *Room) AddBan(userID string) bool {
	if r.Banned(userID) {
		return false
	}
	r.Bans = append(r.Bans, userID)
	return true
}

func (r *Room) RemoveBan(userID string) bool {
	for i, b := range r.Bans {
		if b == userID {
			r.Bans = append(r.Bans[:i], r.Bans[i+1:]...)
			return true
		}
	}
	return false
}

// Clone devuelve una copia con su propio slice de bans: quien la
// reciba no comparte memoria con nadie.
func (r Room) Clone() Room {
	out := r
	out.Bans = append([]string(nil), r.Bans...)
	return out
}

// Normalize repara corrupción conocida en registros persistidos.
// Reporta si hubo que tocar algo.
func (r *Room) Normalize() bool {
	changed := false
	if r.Mode < ModeBasic || r.Mode > ModeLockedGhost {
		r.Mode = ModeLocked
		changed = true
	}
	if r.Mode == ModeBasic && (r.HubMessageID != "" || r.ThreadID != "") {
		r.HubMessageID, r.ThreadID, r.PanelMessageID = "", "", ""
		changed = true
	}
	return changed
}
