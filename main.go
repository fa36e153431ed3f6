package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"dream_layer_client/clock"
	"dream_layer_client/databases/sqlite"
	"dream_layer_client/discord_bot"
	"dream_layer_client/dream_layer_api"
	"dream_layer_client/entities"
	"dream_layer_client/gallery"
	"dream_layer_client/generation_controller"
	"dream_layer_client/repositories/generated_images"
	"dream_layer_client/repositories/generation_settings"
	"dream_layer_client/settings_store"
	"dream_layer_client/tui"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

const (
	frontendTUI     = "tui"
	frontendDiscord = "discord"

	defaultHost    = "http://localhost:5001"
	defaultLogFile = "dream_layer.log"
)

func init() {
	// a missing .env is fine, the flags still have their own defaults
	_ = godotenv.Load()
}

func env(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}

	return fallback
}

var (
	apiHost        = flag.String("host", env("DREAMLAYER_API_URL", defaultHost), "Base URL of the Dream Layer backend")
	frontend       = flag.String("frontend", frontendTUI, "Front end to run: \"tui\" or \"discord\"")
	dbFile         = flag.String("db", env("DREAMLAYER_DB_FILE", ""), "SQLite database file. Defaults to "+sqlite.DefaultDBFile+" in the working directory")
	logFile        = flag.String("log", env("DREAMLAYER_LOG_FILE", defaultLogFile), "Log file used while the terminal UI is running")
	verifyImages   = flag.Bool("verify-images", false, "Download and decode the first generated image before accepting a generation")
	addAPIKey      = flag.String("add-api-key", "", "Register an external model key as alias=key and exit")
	botToken       = flag.String("token", env("DISCORD_TOKEN", ""), "Discord bot access token")
	guildID        = flag.String("guild", env("DISCORD_GUILD", ""), "Guild ID. If not passed - bot registers commands globally")
	imagineCommand = flag.String("imagine", "imagine", "Imagine command name. Default is \"imagine\"")
	removeCommands = flag.Bool("remove", false, "Delete all commands when bot exits")
	devModeFlag    = flag.Bool("dev", false, "Start in development mode, using \"dev_\" prefixed commands instead")
	debug          = flag.Bool("debug", false, "Enable debug logging")
)

type modeServices struct {
	store      *settings_store.Store
	gallery    *gallery.Gallery
	controller generation_controller.Controller
}

func main() {
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	if *frontend != frontendTUI && *frontend != frontendDiscord {
		log.Fatalf("Unknown front end %q, expected %q or %q", *frontend, frontendTUI, frontendDiscord)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dreamLayerAPI, err := dream_layer_api.New(dream_layer_api.Config{
		Host: *apiHost,
	})
	if err != nil {
		log.Fatalf("Failed to create Dream Layer API: %v", err)
	}

	if *addAPIKey != "" {
		registerAPIKey(ctx, dreamLayerAPI, *addAPIKey)

		return
	}

	if *frontend == frontendTUI {
		closeLog := logToFile(*logFile)
		defer closeLog()
	}

	sqliteDB, err := sqlite.New(ctx, *dbFile)
	if err != nil {
		log.Fatalf("Failed to create sqlite database: %v", err)
	}

	defer sqliteDB.Close()

	imagesRepo, err := generated_images.NewRepository(&generated_images.Config{DB: sqliteDB})
	if err != nil {
		log.Fatalf("Failed to create generated images repository: %v", err)
	}

	settingsRepo, err := generation_settings.NewRepository(&generation_settings.Config{DB: sqliteDB, Clock: clock.NewClock()})
	if err != nil {
		log.Fatalf("Failed to create generation settings repository: %v", err)
	}

	services := make(map[entities.GenerationMode]*modeServices)

	for _, mode := range []entities.GenerationMode{entities.ModeTextToImage, entities.ModeImageToImage} {
		services[mode], err = newModeServices(ctx, mode, dreamLayerAPI, settingsRepo, imagesRepo)
		if err != nil {
			log.Fatalf("Failed to set up %s: %v", mode, err)
		}
	}

	switch *frontend {
	case frontendDiscord:
		runDiscord(ctx, dreamLayerAPI, services[entities.ModeTextToImage])
	default:
		runTUI(ctx, dreamLayerAPI, services)
	}

	log.Info("Gracefully shutting down.")
}

func newModeServices(
	ctx context.Context,
	mode entities.GenerationMode,
	api dream_layer_api.DreamLayerAPI,
	settingsRepo generation_settings.Repository,
	imagesRepo generated_images.Repository,
) (*modeServices, error) {
	store, err := settings_store.New(ctx, settings_store.Config{Mode: mode, Repo: settingsRepo})
	if err != nil {
		return nil, err
	}

	g, err := gallery.New(ctx, gallery.Config{Mode: mode, Repo: imagesRepo})
	if err != nil {
		return nil, err
	}

	controller, err := generation_controller.New(generation_controller.Config{
		API:          api,
		Settings:     store,
		Gallery:      g,
		Clock:        clock.NewClock(),
		VerifyImages: *verifyImages,
	})
	if err != nil {
		return nil, err
	}

	return &modeServices{store: store, gallery: g, controller: controller}, nil
}

func runTUI(ctx context.Context, api dream_layer_api.DreamLayerAPI, services map[entities.GenerationMode]*modeServices) {
	modes := make([]tui.Mode, 0, len(services))

	for _, mode := range []entities.GenerationMode{entities.ModeTextToImage, entities.ModeImageToImage} {
		s := services[mode]
		modes = append(modes, tui.Mode{Controller: s.controller, Store: s.store, Gallery: s.gallery})
	}

	err := tui.Run(ctx, tui.Config{API: api, Modes: modes})
	if err != nil {
		log.Fatalf("Error running terminal UI: %v", err)
	}
}

func runDiscord(ctx context.Context, api dream_layer_api.DreamLayerAPI, services *modeServices) {
	if *botToken == "" {
		log.Fatalf("Bot token flag is required")
	}

	if *imagineCommand == "" {
		log.Fatalf("Imagine command flag is required")
	}

	if *devModeFlag {
		log.Info("Starting in development mode.. all commands prefixed with \"dev_\"")
	}

	bot, err := discord_bot.New(discord_bot.Config{
		BotToken:        *botToken,
		GuildID:         *guildID,
		DevelopmentMode: *devModeFlag,
		ImagineCommand:  *imagineCommand,
		RemoveCommands:  *removeCommands,
		API:             api,
		Controller:      services.controller,
		Store:           services.store,
	})
	if err != nil {
		log.Fatalf("Error creating Discord bot: %v", err)
	}

	err = bot.Start(ctx)
	if err != nil {
		log.Fatalf("Error running Discord bot: %v", err)
	}
}

func registerAPIKey(ctx context.Context, api dream_layer_api.DreamLayerAPI, pair string) {
	alias, apiKey, found := strings.Cut(pair, "=")
	if !found {
		log.Fatalf("Expected -add-api-key alias=key")
	}

	ok, err := api.AddAPIKey(ctx, strings.TrimSpace(alias), strings.TrimSpace(apiKey))
	if err != nil {
		log.Fatalf("Failed to add API key: %v", err)
	}

	if !ok {
		log.Fatalf("Backend rejected the API key for %q", alias)
	}

	log.Info("API key added", "alias", alias)
}

// logToFile sends log output to path so it does not draw over the terminal UI.
func logToFile(path string) func() {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}

	log.SetOutput(f)
	log.SetReportTimestamp(true)

	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}
}
