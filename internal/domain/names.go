package domain

import "strings"

// LockPrefix marca el nombre de una sala locked en Discord.
const LockPrefix = "🔒 "

// SanitizeName deja sólo alfanuméricos, guiones y guión bajo, en
// minúsculas y hasta 20 caracteres. Si no queda nada usa el fallback.
func SanitizeName(name, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= 20 {
			break
		}
	}
	out := b.String()
	if out == "" {
		return fallback
	}
	return out
}

// FallbackName arma "user-XXXX" con los últimos 4 dígitos del id.
func FallbackName(userID string) string {
	if len(userID) > 4 {
		userID = userID[len(userID)-4:]
	}
	return "user-" + userID
}

// RoomChannelName es el nombre visible del canal de voz de una sala.
func RoomChannelName(cleanOwner string, locked bool) string {
	name := cleanOwner + "'s VC"
	if locked {
		return LockPrefix + name
	}
	return name
}

// StripLockPrefix quita el candado si está presente.
func StripLockPrefix(name string) string {
	return strings.TrimPrefix(name, LockPrefix)
}

// HasLockPrefix reporta si un nombre de canal lleva el candado.
func HasLockPrefix(name string) bool {
	return strings.HasPrefix(name, LockPrefix)
}
