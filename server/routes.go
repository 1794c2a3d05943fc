// Package server - Router und Server-Setup fuer aegan
// Beinhaltet: Server-Struct, Router-Registrierung, Server-Start
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/aegan/api"
	"github.com/ollama/aegan/envconfig"
	"github.com/ollama/aegan/logutil"
	"github.com/ollama/aegan/pipeline"
	"github.com/ollama/aegan/summary"
	"github.com/ollama/aegan/towers"
	"github.com/ollama/aegan/version"
)

var mode string = gin.DebugMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// Server haelt den Summary-Store und die Referenz-Pipeline
type Server struct {
	addr  net.Addr
	store *summary.Store
	cfg   pipeline.Config

	// analyze begrenzt gleichzeitige Pipeline-Schritte
	analyze *semaphore.Weighted

	pipeOnce sync.Once
	pipe     *pipeline.Pipeline
	pipeErr  error
}

func NewServer(addr net.Addr, store *summary.Store, cfg pipeline.Config) *Server {
	return &Server{
		addr:    addr,
		store:   store,
		cfg:     cfg,
		analyze: semaphore.NewWeighted(1),
	}
}

// referencePipeline baut die Referenz-Pipeline beim ersten Zugriff
func (s *Server) referencePipeline() (*pipeline.Pipeline, error) {
	s.pipeOnce.Do(func() {
		s.pipe, s.pipeErr = towers.NewPipeline(s.cfg)
	})
	return s.pipe, s.pipeErr
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	running := func(c *gin.Context) { c.String(http.StatusOK, "aegan is running") }
	versionInfo := func(c *gin.Context) { c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version}) }
	r.HEAD("/", running)
	r.GET("/", running)
	r.HEAD("/api/version", versionInfo)
	r.GET("/api/version", versionInfo)

	// Metrik und Pipeline
	r.POST("/api/msssim", s.MSSSIMHandler)
	r.POST("/api/analyze", s.AnalyzeHandler)

	// Summaries
	r.GET("/api/runs", s.RunsHandler)
	r.GET("/api/runs/:id/scalars", s.ScalarsHandler)

	return r
}

// Serve startet den HTTP-Server bis SIGINT/SIGTERM
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	store := &summary.Store{}
	defer store.Close()

	s := NewServer(ln.Addr(), store, pipeline.ConfigFromEnv())
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	ctx, done := context.WithCancel(context.Background())
	srvr := &http.Server{Handler: s.GenerateRoutes()}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		done()
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	err := srvr.Serve(ln)
	// nach Close aus dem Signal-Handler auf ctx warten, sonst sofort zurueck
	if err != http.ErrServerClosed {
		return err
	}
	<-ctx.Done()
	return nil
}
