package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	DatabaseURL  string
	DiscordToken string
	DiscordGuild string

	// superficies fijas del guild
	VoiceCategoryID string // categoría donde viven las salas
	LockedTriggerID string // canal de voz que crea salas locked (el hub)
	BasicTriggerID  string // canal de voz que crea salas básicas (opcional)
	HubTextID       string // canal de texto para mensajes de knock y threads

	DBMaxConns int // opcional, default 10
}

func Load() Config {
	get := func(k string, req bool) string {
		v := os.Getenv(k)
		if v == "" && req {
			log.Fatalf("faltante env %s", k)
		}
		return v
	}

	cfg := Config{
		DatabaseURL:  get("DATABASE_URL", true),
		DiscordToken: get("DISCORD_BOT_TOKEN", true),
		DiscordGuild: get("DISCORD_GUILD_ID", true),

		VoiceCategoryID: get("VOICE_CATEGORY_ID", true),
		LockedTriggerID: get("LOCKED_TRIGGER_ID", true),
		BasicTriggerID:  get("BASIC_TRIGGER_ID", false), // puede no existir
		HubTextID:       get("HUB_TEXT_CHANNEL_ID", true),
	}
	if raw := get("DB_MAX_CONNS", false); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.DBMaxConns = n
		}
	}
	if cfg.DBMaxConns == 0 {
		cfg.DBMaxConns = 10
	}
	return cfg
}
