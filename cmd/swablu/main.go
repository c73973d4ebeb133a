package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/skytemple/swablu/internal/config"
	"github.com/skytemple/swablu/internal/floorbot"
	"github.com/skytemple/swablu/internal/gateway"
	"github.com/skytemple/swablu/internal/logger"
	"github.com/skytemple/swablu/internal/mappa"
	"github.com/skytemple/swablu/internal/sprites"
	"github.com/skytemple/swablu/internal/store"
	"github.com/skytemple/swablu/internal/tileset"
)

func main() {
	configFile := flag.String("config", "data/swablu.yaml", "Path to bot config YAML file")
	listRenders := flag.Int("list-renders", 0, "Print the N most recent renders and exit")
	listHacks := flag.String("list-hacks", "", "Print the ROM hacks of the given comma separated roles ('*' for all) and exit")
	flag.Usage = func() {
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\n%s\n", adminUsage)
	}
	flag.Parse()

	// Initialize logger first (before any logging)
	logConfig, _ := logger.LoadConfig(*configFile)
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := store.Open(storeConfig(cfg.Database))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	logger.Info("Database initialized", "driver", cfg.Database.Driver)

	switch {
	case *listRenders > 0:
		handleAdmin(db, []string{"renders", "-n", strconv.Itoa(*listRenders)})
		return
	case *listHacks != "":
		handleAdmin(db, []string{"hack", "list", *listHacks})
		return
	case flag.Arg(0) == "admin":
		handleAdmin(db, flag.Args()[1:])
		return
	}

	library := tileset.NewLibrary(cfg.Assets.TilesetPath, tileset.BinaryCodec{})
	if _, err := library.Base(); err != nil {
		log.Fatalf("Failed to load base tileset: %v", err)
	}
	atlas, err := sprites.Load(cfg.Assets.TilesetPath)
	if err != nil {
		log.Fatalf("Failed to load sprites: %v", err)
	}
	logger.Info("Assets loaded", "path", cfg.Assets.TilesetPath)

	rest := gateway.NewREST(cfg.Discord.APIBaseURL, cfg.Discord.Token, &http.Client{Timeout: 30 * time.Second})
	me, err := rest.CurrentUser(context.Background())
	if err != nil {
		log.Fatalf("Failed to authenticate with the chat API: %v", err)
	}
	logger.Info("Authenticated", "user", me.Username, "id", me.ID)
	renderer := floorbot.NewRenderer(mappa.DefaultCatalog(), library, atlas, cfg.Render.Timeout)
	bot, err := floorbot.NewBot(floorbot.BotConfig{
		Channel:       gateway.Snowflake(cfg.Discord.ChannelFloorGenerator),
		WritesEnabled: cfg.Discord.WritesEnabled,
		Workers:       cfg.Render.Workers,
		Rate:          cfg.RateLimit.Rate,
	}, rest, renderer, db)
	if err != nil {
		log.Fatalf("Failed to create floor bot: %v", err)
	}
	if !cfg.Discord.WritesEnabled {
		logger.Warning("Chat writes are disabled, the bot will not answer requests")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot.Start(ctx)
	session := gateway.NewSession(cfg.Discord.GatewayURL, cfg.Discord.Token, logger.With("component", "gateway"))

	logger.Info("Swablu running")
	logger.Info("Press Ctrl+C to shutdown")
	if err := session.Run(ctx, bot); err != nil && ctx.Err() == nil {
		logger.Error("Gateway stopped", "error", err)
	}

	logger.Info("Shutting down")
	bot.Wait()
	logger.Info("Swablu stopped")
}

func storeConfig(c config.DatabaseConfig) store.Config {
	pg := c.Postgres
	return store.Config{
		Driver:     c.Driver,
		SQLitePath: c.SQLitePath,
		Postgres: store.PostgresConfig{
			Host:            pg.Host,
			Port:            pg.Port,
			User:            pg.User,
			Password:        pg.Password,
			Database:        pg.Database,
			SSLMode:         pg.SSLMode,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: pg.ConnMaxLifetime,
		},
	}
}

// handleAdmin runs a maintenance command and exits on failure.
func handleAdmin(db *store.Store, args []string) {
	if err := runAdmin(context.Background(), db, os.Stdout, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
