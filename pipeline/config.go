// config.go - Konfiguration der Kompressions-Pipeline
package pipeline

import (
	"errors"
	"fmt"

	"github.com/ollama/aegan/contextmodel"
	"github.com/ollama/aegan/envconfig"
	"github.com/ollama/aegan/msssim"
	"github.com/ollama/aegan/rate"
)

// ErrConfig wird bei ungueltiger Pipeline-Konfiguration zurueckgegeben
var ErrConfig = errors.New("invalid pipeline configuration")

// Config haelt die prozessweiten Konstanten. Sie werden vor dem ersten
// Schritt festgelegt und bleiben waehrend eines Laufs unveraendert.
type Config struct {
	// Channels ist die Kanaltiefe K des Latents
	Channels int
	// Centroids ist die Palettengroesse L
	Centroids int
	// Seed initialisiert Palette und Kontextmodell
	Seed uint64

	Rate    rate.Estimator
	MSSSIM  msssim.Options
	Context contextmodel.Config
}

func DefaultConfig() Config {
	return Config{
		Channels:  32,
		Centroids: 6,
		Seed:      666,
		Rate:      rate.Estimator{TargetBits: 0.4, Beta: 500},
		MSSSIM:    msssim.DefaultOptions(),
		Context: contextmodel.Config{
			Symbols: 6,
			Hidden:  contextmodel.DefaultHidden,
			Seed:    666,
		},
	}
}

// ConfigFromEnv liest die AEGAN_* Variablen
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Channels = int(envconfig.Channels())
	cfg.Centroids = int(envconfig.Centroids())
	cfg.Seed = envconfig.Seed()
	cfg.Rate = rate.Estimator{
		TargetBits: envconfig.RateTarget(),
		Beta:       envconfig.RateBeta(),
		Unmasked:   envconfig.UnmaskedRate(),
	}

	parallel := int(envconfig.NumParallel())
	cfg.MSSSIM.Parallel = parallel
	cfg.Context.Symbols = cfg.Centroids
	cfg.Context.Seed = cfg.Seed
	cfg.Context.Parallel = parallel
	return cfg
}

func (c Config) Validate() error {
	if c.Channels <= 0 {
		return fmt.Errorf("%w: channels %d", ErrConfig, c.Channels)
	}
	if c.Centroids <= 0 {
		return fmt.Errorf("%w: centroids %d", ErrConfig, c.Centroids)
	}
	if c.Context.Symbols != c.Centroids {
		return fmt.Errorf("%w: context model predicts %d symbols, palette has %d", ErrConfig, c.Context.Symbols, c.Centroids)
	}
	if err := c.Rate.Validate(); err != nil {
		return err
	}
	if err := c.MSSSIM.Validate(); err != nil {
		return err
	}
	return c.Context.Validate()
}
