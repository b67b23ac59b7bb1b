package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/ironclad/go/internal/coach"
	"github.com/mcdev12/ironclad/go/internal/config"
	"github.com/mcdev12/ironclad/go/internal/gateway"
)

type Services struct {
	App     *coach.App
	Gateway *gateway.Service
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// storage → backend client → app → gateway
	app, err := coach.NewApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create coach app: %w", err)
	}

	hubConfig := gateway.DefaultHubConfig()
	hubConfig.CheckOrigin = gateway.OriginChecker(cfg.Gateway.AllowedOrigins)
	gw := gateway.NewService(app, gateway.NewHub(hubConfig))

	return &Services{
		App:     app,
		Gateway: gw,
	}, nil
}

func (s *Services) Close() {
	s.Gateway.Stop()
	s.App.Close()
}
