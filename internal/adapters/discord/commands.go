package discord

import "github.com/bwmarrin/discordgo"

var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "vc",
		Description: "Administra tu sala de voz",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "name",
				Description: "Renombra tu sala",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "nombre",
					Description: "Nuevo nombre (alfanumérico, hasta 20)",
					Required:    true,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "limit",
				Description: "Cupo de la sala (0 = sin límite)",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "cupo",
					Description: "0 a 99",
					Required:    true,
				}},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "lock", Description: "Cierra la sala (entrada por knock)"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "unlock", Description: "Abre la sala a todos"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "ghost", Description: "Oculta la sala del hub (sigue cerrada)"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "unghost", Description: "Vuelve a mostrar la sala en el hub"},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "ban",
				Description: "Banea a un usuario de tu sala",
				Options:     []*discordgo.ApplicationCommandOption{userOpt("usuario", "A quién banear")},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "unban",
				Description: "Quita un ban de tu sala",
				Options:     []*discordgo.ApplicationCommandOption{userOpt("usuario", "A quién desbanear")},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "vip",
				Description: "Da acceso permanente sin pasar por la cola",
				Options:     []*discordgo.ApplicationCommandOption{userOpt("usuario", "Nuevo VIP")},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "kick",
				Description: "Expulsa a alguien de tu sala",
				Options:     []*discordgo.ApplicationCommandOption{userOpt("usuario", "A quién expulsar")},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "transfer",
				Description: "Transfiere la sala a otro ocupante",
				Options:     []*discordgo.ApplicationCommandOption{userOpt("usuario", "Nuevo dueño (debe estar en la sala)")},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "mute-pings",
				Description: "Silencia o activa los pings de knock",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "silenciar",
					Description: "true = no pinguear",
					Required:    true,
				}},
			},
		},
	},
	{
		Name:        "preset",
		Description: "Presets de configuración de tu sala",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "save",
				Description: "Guarda la config actual bajo un nombre",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "nombre", Description: "Nombre del preset", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "sala", Description: "Nombre de sala a guardar"},
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "cupo", Description: "Cupo a guardar"},
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "bitrate", Description: "Bitrate en bps"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "load",
				Description: "Aplica un preset a tu sala",
				Options: []*discordgo.ApplicationCommandOption{{
					Type: discordgo.ApplicationCommandOptionString, Name: "nombre", Description: "Preset a aplicar", Required: true,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "delete",
				Description: "Borra un preset",
				Options: []*discordgo.ApplicationCommandOption{{
					Type: discordgo.ApplicationCommandOptionString, Name: "nombre", Description: "Preset a borrar", Required: true,
				}},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "Lista tus presets"},
		},
	},
}

func userOpt(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: desc,
		Required:    true,
	}
}
