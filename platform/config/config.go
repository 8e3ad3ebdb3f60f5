package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Store mode values for Config.StoreMode.
const (
	ModeCosmos = "cosmos"
	ModeBlob   = "blob"
	ModeDual   = "dual"
)

// Config captures the environment-driven knobs for the metadata layer.
// Values map 1:1 with deployment environment variables.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// StoreMode selects the active backend combination: cosmos | blob | dual.
	StoreMode string `env:"STORE_MODE" envDefault:"cosmos"`
	// ReadFallback enables reads falling through to the blob store when the
	// primary read fails in dual mode.
	ReadFallback bool `env:"STORE_READ_FALLBACK" envDefault:"true"`

	CosmosEndpoint     string `env:"COSMOS_ENDPOINT"`
	CosmosKey          string `env:"COSMOS_KEY"`
	CosmosDatabase     string `env:"COSMOS_DATABASE" envDefault:"tenderdocs"`
	CosmosContainer    string `env:"COSMOS_CONTAINER" envDefault:"documents"`
	CosmosRefContainer string `env:"COSMOS_REFERENCE_CONTAINER" envDefault:"references"`
	// CosmosPatchInBatch pins whether the store accepts patch operations inside
	// a transactional batch. The emulator rejects them, the live service does
	// not; "auto" probes at runtime on first failure.
	CosmosPatchInBatch string `env:"COSMOS_PATCH_IN_BATCH" envDefault:"auto"` // auto | on | off

	BlobConnectionString string `env:"BLOB_CONNECTION_STRING"`
	BlobContainer        string `env:"BLOB_CONTAINER" envDefault:"tender-metadata"`
}

// Load parses the environment into a Config and validates backend selection.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected mode has the credentials it needs.
func (c Config) Validate() error {
	mode := strings.ToLower(c.StoreMode)
	switch mode {
	case ModeCosmos, ModeDual:
		if c.CosmosEndpoint == "" || c.CosmosKey == "" {
			return fmt.Errorf("store mode %q requires COSMOS_ENDPOINT and COSMOS_KEY", c.StoreMode)
		}
		if mode == ModeDual && c.BlobConnectionString == "" {
			return fmt.Errorf("store mode dual requires BLOB_CONNECTION_STRING")
		}
	case ModeBlob:
		if c.BlobConnectionString == "" {
			return fmt.Errorf("store mode blob requires BLOB_CONNECTION_STRING")
		}
	default:
		return fmt.Errorf("unknown store mode %q", c.StoreMode)
	}

	switch strings.ToLower(c.CosmosPatchInBatch) {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("invalid COSMOS_PATCH_IN_BATCH %q: must be auto, on or off", c.CosmosPatchInBatch)
	}

	return nil
}
