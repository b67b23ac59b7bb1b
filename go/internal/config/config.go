package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/ironclad/go/internal/dbconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Storage drivers for timer anchors and the credential
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StoragePGX      = "pgx"
)

type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Storage struct {
		Driver  string `yaml:"driver"`
		Path    string `yaml:"path"`
		Profile string `yaml:"profile"`
	} `yaml:"storage"`

	Timers struct {
		ResendSeconds int `yaml:"resend_seconds"`
		ExpirySeconds int `yaml:"expiry_seconds"`
	} `yaml:"timers"`

	Completion struct {
		RPE   int    `yaml:"rpe"`
		Notes string `yaml:"notes"`
	} `yaml:"completion"`

	NATS struct {
		URL    string `yaml:"url"`
		Stream string `yaml:"stream"`
	} `yaml:"nats"`

	Gateway struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"gateway"`

	LogLevel string `yaml:"log_level"`

	// Database is read from DB_* only
	Database dbconfig.Config `yaml:"-"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	var c Config
	c.API.BaseURL = "http://localhost:8000"
	c.API.Timeout = 30 * time.Second
	c.Storage.Driver = StorageFile
	c.Storage.Path = defaultStoragePath()
	c.Storage.Profile = "default"
	c.Timers.ResendSeconds = 60
	c.Timers.ExpirySeconds = 300
	c.Completion.RPE = 7
	c.Completion.Notes = "Logged via Ironclad Command"
	c.NATS.Stream = "COACH_EVENTS"
	c.Gateway.Port = 8090
	c.Gateway.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	c.LogLevel = "info"
	return c
}

// Load reads .env (when present), then the YAML file at path (when path is not
// empty), then environment overrides.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.Database = dbconfig.NewConfigFromEnv()
	if cfg.Storage.Driver == StoragePGX {
		cfg.Database.Driver = dbconfig.DriverPGX
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.API.BaseURL, "IRONCLAD_API_URL")
	setString(&c.Storage.Driver, "IRONCLAD_STORAGE")
	setString(&c.Storage.Path, "IRONCLAD_STORAGE_PATH")
	setString(&c.Storage.Profile, "IRONCLAD_PROFILE")
	setString(&c.Completion.Notes, "IRONCLAD_NOTES")
	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.LogLevel, "IRONCLAD_LOG_LEVEL")

	if v := os.Getenv("IRONCLAD_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("IRONCLAD_API_TIMEOUT: %w", err)
		}
		c.API.Timeout = d
	}
	if v := os.Getenv("IRONCLAD_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}

	for key, dst := range map[string]*int{
		"IRONCLAD_RESEND_SECONDS": &c.Timers.ResendSeconds,
		"IRONCLAD_EXPIRY_SECONDS": &c.Timers.ExpirySeconds,
		"IRONCLAD_RPE":            &c.Completion.RPE,
		"PORT":                    &c.Gateway.Port,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects settings the rest of the program cannot work with
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StoragePostgres, StoragePGX:
	case StorageFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Timers.ResendSeconds <= 0 || c.Timers.ExpirySeconds <= 0 {
		return fmt.Errorf("timer durations must be positive")
	}
	if c.Completion.RPE < 1 || c.Completion.RPE > 10 {
		return fmt.Errorf("completion.rpe must be between 1 and 10, got %d", c.Completion.RPE)
	}
	if c.Gateway.Port <= 0 {
		return fmt.Errorf("gateway.port must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// ConfigureLogging points the global logger at w at the configured level
func (c Config) ConfigureLogging(w io.Writer) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ironclad-state.json"
	}
	return filepath.Join(dir, "ironclad", "state.json")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
