// cmd/discord/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/server-muse/internal/ai"
	"github.com/keshon/server-muse/internal/config"
	"github.com/keshon/server-muse/internal/dashboard"
	"github.com/keshon/server-muse/internal/discord"
	"github.com/keshon/server-muse/internal/logger"
	"github.com/keshon/server-muse/internal/memory"
	"github.com/keshon/server-muse/internal/mind"
	"github.com/keshon/server-muse/internal/settings"
	v "github.com/keshon/server-muse/internal/version"
)

func main() {
	cfg := config.New()
	log := logger.New(cfg.LogPath, cfg.LogLevel)
	log.Info().Str("version", v.Version).Msgf("Starting %v...", v.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := settings.New(cfg.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Msg("settings storage init failed")
	}
	defer st.Close()

	var store memory.Store
	if cfg.RedisAddr != "" {
		store = memory.NewRedisStore(cfg.RedisAddr)
		log.Info().Str("addr", cfg.RedisAddr).Msg("memory backend: redis")
	} else {
		store = memory.NewFileStore(cfg.DataRoot)
		log.Info().Str("root", cfg.DataRoot).Msg("memory backend: files")
	}
	defer store.Close()

	provider, err := ai.NewMultiProvider(cfg.AIProvider, cfg.AIFallbackOrder, cfg.AIFallbackEnabled)
	if err != nil {
		log.Fatal().Err(err).Msg("AI provider init failed")
	}

	char := mind.LoadCharacter(cfg.DataRoot, cfg.BotRole)
	mindCfg := mind.Config{
		Role:             cfg.BotRole,
		ActiveHourStart:  cfg.ActiveHourStart,
		ActiveHourEnd:    cfg.ActiveHourEnd,
		HourlyCap:        cfg.HourlyCap,
		GuildHourlyCap:   cfg.GuildHourlyCap,
		BatchWindow:      time.Duration(cfg.BatchWindowMS) * time.Millisecond,
		ExtractBatchSize: cfg.ExtractBatchSize,
		NaturalIgnore:    cfg.NaturalIgnore,
		Temperature:      cfg.AITemperature,
		MaxTokens:        cfg.AIMaxTokens,
	}
	runner := mind.NewRunner(&mindCfg, char, store, st, provider, log)

	errCh := make(chan error, 2)

	if cfg.DashboardAddr != "" {
		panel := dashboard.NewServer(cfg.DashboardAddr, runner, log)
		runner.SetEmitter(panel)
		go func() {
			if err := panel.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	bot := discord.NewBot(cfg, runner, st, log)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("fatal component error")
		}
		cancel()
	}
	// Let the bot drain its buffers before the process exits.
	time.Sleep(500 * time.Millisecond)
}
