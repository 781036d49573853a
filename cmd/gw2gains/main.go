package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/krashnark/gw2gains/internal/cache"
	"github.com/krashnark/gw2gains/internal/config"
	"github.com/krashnark/gw2gains/internal/control"
	"github.com/krashnark/gw2gains/internal/guest"
	"github.com/krashnark/gw2gains/internal/gw2"
	"github.com/krashnark/gw2gains/internal/logging"
	"github.com/krashnark/gw2gains/internal/model"
	"github.com/krashnark/gw2gains/internal/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	for _, dir := range []string{filepath.Dir(cfg.State.Path), cfg.State.CacheDir, filepath.Dir(cfg.Log.Path)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	logger, logFile, err := logging.Open(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logFile.Close()

	m := loadModel(cfg.State.Path, logger)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	client := gw2.NewClient(cfg.API.BaseURL, httpClient, component(logger, "gw2"))

	icons, err := cache.Open(cfg.State.CacheDir, client, component(logger, "cache"))
	if err != nil {
		log.Fatalf("icon cache: %v", err)
	}

	sched := guest.New(component(logger, "guest"))
	host := tui.NewHost(component(logger, "host"))
	ctrl := control.New(sched, client, icons, tui.NewNotifier(host), m, component(logger, "control"))

	p := tea.NewProgram(tui.New(ctrl, host), tea.WithAltScreen())
	host.SetProgram(p)

	final, err := p.Run()
	if err != nil {
		logger.Error().Err(err).Msg("program failed")
		log.Fatalf("error: %v", err)
	}
	if a, ok := final.(tui.App); ok && a.RunErr() != nil {
		logger.Error().Err(a.RunErr()).Msg("guest run failed")
		fmt.Printf("error: %v\n", a.RunErr())
		os.Exit(1)
	}
	logger.Info().Msg("exited cleanly")
}

func component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// loadModel restores the tracking state from disk; a missing file means
// a first run and an unreadable one is logged and replaced rather than
// blocking startup.
func loadModel(path string, logger zerolog.Logger) *model.Model {
	m, err := model.Load(path)
	if err == nil {
		logger.Info().Str("path", path).Stringer("state", m.State()).Msg("state restored")
		return m
	}
	if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Err(err).Str("path", path).Msg("state file unreadable, starting fresh")
	}
	return model.New(path)
}
