package envconfig

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHost(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect string
	}{
		"empty":        {"", "127.0.0.1:11500"},
		"only address": {"1.2.3.4", "1.2.3.4:11500"},
		"only port":    {":1234", ":1234"},
		"address port": {"1.2.3.4:1234", "1.2.3.4:1234"},
		"hostname":     {"example.com", "example.com:11500"},
		"scheme http":  {"http://example.com", "example.com:80"},
		"bad port":     {"1.2.3.4:99999", "1.2.3.4:11500"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("AEGAN_HOST", tt.value)
			if host := Host(); host.Host != tt.expect {
				t.Errorf("%s: erwartet %s, bekommen %s", name, tt.expect, host.Host)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("AEGAN_DEBUG", value)
			if level := LogLevel(); level != expect {
				t.Errorf("%s: erwartet %v, bekommen %v", value, expect, level)
			}
		})
	}
}

func TestModelConstants(t *testing.T) {
	t.Setenv("AEGAN_CHANNELS", "")
	t.Setenv("AEGAN_CENTROIDS", "")
	t.Setenv("AEGAN_RATE_TARGET", "")
	t.Setenv("AEGAN_RATE_BETA", "")

	got := []float64{float64(Channels()), float64(Centroids()), RateTarget(), RateBeta()}
	if diff := cmp.Diff([]float64{32, 6, 0.4, 500}, got); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}

	t.Setenv("AEGAN_CENTROIDS", "8")
	t.Setenv("AEGAN_RATE_TARGET", "1.5")
	if Centroids() != 8 {
		t.Errorf("Centroids: erwartet 8, bekommen %d", Centroids())
	}
	if RateTarget() != 1.5 {
		t.Errorf("RateTarget: erwartet 1.5, bekommen %v", RateTarget())
	}
}

func TestSchedule(t *testing.T) {
	for _, key := range []string{"AEGAN_LR_D", "AEGAN_LR_G", "AEGAN_EPOCHS_D", "AEGAN_EPOCHS_GAN"} {
		t.Setenv(key, "")
	}

	got := []float64{DiscriminatorLR(), GeneratorLR(), float64(DiscriminatorEpochs()), float64(GANEpochs())}
	if diff := cmp.Diff([]float64{5e-4, 5e-4, 1, 10}, got); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}

	t.Setenv("AEGAN_EPOCHS_GAN", "3")
	t.Setenv("AEGAN_LR_G", "1e-3")
	if GANEpochs() != 3 {
		t.Errorf("GANEpochs: erwartet 3, bekommen %d", GANEpochs())
	}
	if GeneratorLR() != 1e-3 {
		t.Errorf("GeneratorLR: erwartet 1e-3, bekommen %v", GeneratorLR())
	}
}

func TestFloatInvalid(t *testing.T) {
	for _, value := range []string{"abc", "NaN", "+Inf"} {
		t.Setenv("AEGAN_RATE_BETA", value)
		if got := RateBeta(); got != 500 {
			t.Errorf("%q: erwartet Default 500, bekommen %v", value, got)
		}
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"true":  true,
		"false": false,
		"1":     true,
		"0":     false,
		"bogus": true,
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("AEGAN_UNMASKED_RATE", value)
			if b := UnmaskedRate(); b != expect {
				t.Errorf("%s: erwartet %t, bekommen %t", value, expect, b)
			}
		})
	}
}

func TestVar(t *testing.T) {
	cases := map[string]string{
		"value":       "value",
		" value ":     "value",
		" 'value' ":   "value",
		` "value" `:   "value",
		"'' value ''": " value ",
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("AEGAN_VAR", k)
			if s := Var("AEGAN_VAR"); s != v {
				t.Errorf("%s: erwartet %q, bekommen %q", k, v, s)
			}
		})
	}
}
