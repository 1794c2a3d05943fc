// config_utils.go - Getter-Bausteine und Export der Konfiguration
package envconfig

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

// lookup liest key mit parse; ungueltige Werte fallen mit Warnung auf def zurueck
func lookup[T any](key string, def T, parse func(string) (T, error)) func() T {
	return func() T {
		s := Var(key)
		if s == "" {
			return def
		}
		v, err := parse(s)
		if err != nil {
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", def)
			return def
		}
		return v
	}
}

// Bool ist false ohne Wert. Nicht parsebare Werte gelten als gesetzt.
func Bool(key string) func() bool {
	return func() bool {
		s := Var(key)
		if s == "" {
			return false
		}
		b, err := strconv.ParseBool(s)
		return err != nil || b
	}
}

func Uint(key string, def uint) func() uint {
	return lookup(key, def, func(s string) (uint, error) {
		n, err := strconv.ParseUint(s, 10, 0)
		return uint(n), err
	})
}

func Uint64(key string, def uint64) func() uint64 {
	return lookup(key, def, func(s string) (uint64, error) {
		return strconv.ParseUint(s, 10, 64)
	})
}

// Float akzeptiert nur endliche Werte
func Float(key string, def float64) func() float64 {
	return lookup(key, def, func(s string) (float64, error) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
			err = fmt.Errorf("%s is not finite", s)
		}
		return f, err
	})
}

// EnvVar beschreibt eine Variable mit aktuellem Wert fuer Hilfe und Logs
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func variables() []EnvVar {
	return []EnvVar{
		{"AEGAN_DEBUG", LogLevel(), "Show additional debug information (e.g. AEGAN_DEBUG=1)"},
		{"AEGAN_HOST", Host(), "IP Address for the aegan server (default 127.0.0.1:11500)"},
		{"AEGAN_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		{"AEGAN_SUMMARY_DB", SummaryDB(), "Path of the scalar summary database"},
		{"AEGAN_CHANNELS", Channels(), "Latent channel depth K (default: 32)"},
		{"AEGAN_CENTROIDS", Centroids(), "Palette size L (default: 6)"},
		{"AEGAN_RATE_TARGET", RateTarget(), "Hinge rate threshold in bits per image (default: 0.4)"},
		{"AEGAN_RATE_BETA", RateBeta(), "Hinge rate weight (default: 500)"},
		{"AEGAN_UNMASKED_RATE", UnmaskedRate(), "Estimate the rate without significance mask weighting"},
		{"AEGAN_SEED", Seed(), "Seed for the palette and context model initializers (default: 666)"},
		{"AEGAN_NUM_PARALLEL", NumParallel(), "Maximum number of batch elements processed in parallel"},
		{"AEGAN_IMAGE_SIZE", ImageSize(), "Square size images are resized to when loaded (default: 160)"},
		{"AEGAN_BATCH_SIZE", BatchSize(), "Number of image pairs per batch (default: 30)"},
		{"AEGAN_LR_D", DiscriminatorLR(), "Initial discriminator learning rate (default: 5e-4)"},
		{"AEGAN_LR_G", GeneratorLR(), "Initial generator learning rate (default: 5e-4)"},
		{"AEGAN_EPOCHS_D", DiscriminatorEpochs(), "Discriminator-only training epochs (default: 1)"},
		{"AEGAN_EPOCHS_GAN", GANEpochs(), "GAN training epochs (default: 10)"},
	}
}

// AsMap gibt alle Variablen nach Namen zurueck
func AsMap() map[string]EnvVar {
	m := make(map[string]EnvVar)
	for _, v := range variables() {
		m[v.Name] = v
	}
	return m
}

// Values gibt die aktuellen Werte als Strings zurueck, z.B. fuer Run-Konfigurationen
func Values() map[string]string {
	vals := make(map[string]string)
	for _, v := range variables() {
		vals[v.Name] = fmt.Sprint(v.Value)
	}
	return vals
}
