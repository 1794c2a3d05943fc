// cmd_serve.go - Server-Start und Version
// Hauptfunktionen: RunServer, versionHandler, setupLogging
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ollama/aegan/api"
	"github.com/ollama/aegan/envconfig"
	"github.com/ollama/aegan/logutil"
	"github.com/ollama/aegan/server"
	"github.com/ollama/aegan/version"
)

// setupLogging - Setzt den Standard-Logger nach AEGAN_DEBUG
func setupLogging() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
}

// RunServer - Startet den aegan-Server
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// versionHandler - Zeigt Client- und Server-Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Println("Warning: could not connect to a running aegan server")
	}

	if serverVersion != "" {
		fmt.Printf("aegan server version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Printf("Warning: client version is %s\n", version.Version)
	}
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the HTTP API",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}
