// config.go - Server- und Logging-Konfiguration aus AEGAN_* Variablen
//
// Host, AllowedOrigins, SummaryDB und LogLevel. Modellkonstanten stehen in
// config_features.go, die Getter-Bausteine in config_utils.go.
package envconfig

import (
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultPort = "11500"

var schemePorts = map[string]string{"http": "80", "https": "443"}

// Host gibt Scheme und Adresse des Servers zurueck (AEGAN_HOST).
// Ohne Port gilt 11500, bei explizitem Scheme dessen Standardport.
func Host() *url.URL {
	raw := strings.TrimSpace(Var("AEGAN_HOST"))

	u := &url.URL{Scheme: "http"}
	fallback := defaultPort
	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		u.Scheme, raw = scheme, rest
		if p, known := schemePorts[scheme]; known {
			fallback = p
		}
	}
	raw, u.Path, _ = strings.Cut(raw, "/")

	host, port, err := net.SplitHostPort(raw)
	switch {
	case err == nil:
	case raw == "":
		host, port = "127.0.0.1", fallback
	default:
		host, port = strings.Trim(raw, "[]"), fallback
	}
	if ip := net.ParseIP(host); ip != nil {
		host = ip.String()
	}

	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		slog.Warn("invalid port, using default", "port", port, "default", fallback)
		port = fallback
	}

	u.Host = net.JoinHostPort(host, port)
	return u
}

// AllowedOrigins sind AEGAN_ORIGINS (komma-separiert) plus localhost-Varianten
func AllowedOrigins() []string {
	var origins []string
	if s := Var("AEGAN_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, host := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		for _, scheme := range []string{"http", "https"} {
			origins = append(origins,
				scheme+"://"+host,
				scheme+"://"+net.JoinHostPort(host, "*"),
			)
		}
	}
	return origins
}

// SummaryDB ist der Pfad der Summary-Datenbank (AEGAN_SUMMARY_DB),
// Default $HOME/.aegan/summaries.db
func SummaryDB() string {
	if s := Var("AEGAN_SUMMARY_DB"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".aegan", "summaries.db")
}

// LogLevel liest AEGAN_DEBUG: leer/false = INFO, true/1 = DEBUG, 2 = TRACE.
// Jede weitere Stufe liegt 4 unter der vorherigen.
func LogLevel() slog.Level {
	s := Var("AEGAN_DEBUG")
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return slog.LevelDebug
		}
		return slog.LevelInfo
	}
	if n, err := strconv.Atoi(s); err == nil {
		return slog.Level(-4 * n)
	}
	return slog.LevelInfo
}

// Var liest eine Variable ohne umgebende Leerzeichen und Quotes
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
