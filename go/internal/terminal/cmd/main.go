package main

import (
	"context"
	"flag"
	"os"

	"github.com/mcdev12/ironclad/go/internal/coach"
	"github.com/mcdev12/ironclad/go/internal/config"
	"github.com/mcdev12/ironclad/go/internal/terminal"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", os.Getenv("IRONCLAD_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	// keep the console quiet unless asked otherwise
	if os.Getenv("IRONCLAD_LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	cfg.ConfigureLogging(os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := coach.NewApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create coach app")
	}
	defer app.Close()

	console, err := terminal.New(app)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start console")
	}
	cfg.ConfigureLogging(console.Stderr())

	console.Run(ctx, cancel)
}
