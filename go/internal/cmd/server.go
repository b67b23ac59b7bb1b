package main

import (
	"net/http"

	"github.com/mcdev12/ironclad/go/internal/config"
	"github.com/mcdev12/ironclad/go/internal/gateway"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	return gateway.NewServer(services.Gateway, cfg.Gateway.Port, cfg.Gateway.AllowedOrigins)
}
