package main

import (
	"flag"
	"os"

	"github.com/mcdev12/ironclad/go/internal/config"
)

// loadConfig reads the -config flag (or IRONCLAD_CONFIG) and loads the settings
func loadConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("coach-gateway", flag.ContinueOnError)
	path := fs.String("config", getEnv("IRONCLAD_CONFIG", ""), "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	return config.Load(*path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
