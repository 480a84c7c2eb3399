package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	discordadapter "github.com/jose-valero/locked-vc-bot/internal/adapters/discord"
	"github.com/jose-valero/locked-vc-bot/internal/app/service"
	"github.com/jose-valero/locked-vc-bot/internal/infra/config"
	"github.com/jose-valero/locked-vc-bot/internal/infra/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()

	// DB
	db, err := storage.Open(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		log.Fatal("migrate:", err)
	}
	log.Println("✅ DB lista y migrada")

	// Repos
	roomsRepo := storage.NewRoomRepo(db)
	configRepo := storage.NewConfigRepo(db)
	presetsRepo := storage.NewPresetRepo(db)

	// Discord session
	auth := cfg.DiscordToken
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(auth)), "bot ") {
		auth = "Bot " + strings.TrimSpace(auth)
	}
	s, err := discordgo.New(auth)
	if err != nil {
		log.Fatal(err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages
	s.State.TrackVoice = true
	if err := s.Open(); err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	log.Printf("✅ Conectado como %s (%s)", s.State.User.Username, s.State.User.ID)

	// contexto raíz de todas las tareas de fondo
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Adapter (Platform + Notifier sobre discordgo)
	adapter := discordadapter.NewAdapter(s, cfg.DiscordGuild, cfg.HubTextID)

	// Services
	reg := service.NewRegistry()
	tasks := service.NewTasks(rootCtx)
	saver := service.NewSaver(reg, roomsRepo)
	knocksSvc := service.NewKnockService(reg, adapter, adapter)
	surf := service.Surfaces{
		GuildID:         cfg.DiscordGuild,
		CategoryID:      cfg.VoiceCategoryID,
		LockedTriggerID: cfg.LockedTriggerID,
		BasicTriggerID:  cfg.BasicTriggerID,
	}
	hubSvc := service.NewHubNameService(reg, adapter, adapter, configRepo, func(string) string {
		return cfg.LockedTriggerID
	})
	transferSvc := service.NewTransferService(reg, tasks, adapter, adapter, hubSvc, saver)
	roomsSvc := service.NewRoomService(reg, tasks, saver, adapter, adapter, knocksSvc, hubSvc, transferSvc, presetsRepo, surf)
	presetsSvc := service.NewPresetService(presetsRepo, reg, adapter, saver)
	reconciler := service.NewReconciler(reg, tasks, adapter, adapter, roomsSvc, knocksSvc, hubSvc, transferSvc, saver, roomsRepo)

	// restaurar estado persistido antes de escuchar eventos
	if err := reconciler.Restore(rootCtx); err != nil {
		log.Fatalf("restaurando estado: %v", err)
	}
	hubSvc.Start(rootCtx)

	// Router
	r := discordadapter.NewRouter(s, cfg.DiscordGuild, roomsSvc, knocksSvc, presetsSvc)
	if err := r.Register(); err != nil {
		log.Fatalf("registrando comandos: %v", err)
	}
	r.Handlers()
	log.Printf("✅ comandos registrados en guild %s", cfg.DiscordGuild)

	// loop de reconciliación
	go reconciler.Run(rootCtx)

	// Esperar señal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-stop

	// shutdown ordenado: tareas afuera, estado adentro
	log.Println("⏳ apagando…")
	rootCancel()
	tasks.Shutdown()
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := saver.Flush(flushCtx); err != nil {
		log.Printf("flush final: %v", err)
	}
	log.Println("✅ estado persistido, chau")
}
