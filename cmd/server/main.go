package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"promptstudio/config"
	"promptstudio/internal/mediator"

	"github.com/TypeTerrors/gonfig"
	"github.com/charmbracelet/log"
)

func main() {

	cfg, err := gonfig.Load[config.Config](
		gonfig.WithConfigFile("config/config.yaml"),
		gonfig.WithDotenv(".env"), // ignored if missing
		gonfig.WithStrict(),       // fail if ${VAR} has no value/default
	)
	if err != nil {
		log.Fatal("error loading config", "err", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", "err", err)
	}
	configureLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := mediator.NewApp(ctx, cfg)
	if err != nil {
		log.Fatal("error creating app", "err", err)
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal("server stopped", "err", err)
	}
}

func configureLogger(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn("unknown log level, using info", "level", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(log.JSONFormatter)
	case "logfmt":
		log.SetFormatter(log.LogfmtFormatter)
	default:
		log.SetFormatter(log.TextFormatter)
	}
}
