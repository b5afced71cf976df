package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/urfave/cli/v2"

	"github.com/email-verifier/console/internal/api"
	"github.com/email-verifier/console/internal/config"
	"github.com/email-verifier/console/internal/inspector"
	"github.com/email-verifier/console/internal/logging"
	"github.com/email-verifier/console/internal/session"
	"github.com/email-verifier/console/internal/storage"
	"github.com/email-verifier/console/internal/verifier"
	"github.com/email-verifier/console/internal/web"
	"github.com/email-verifier/console/internal/workflow"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the browser console",
		Action: runServe,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "listen port (overrides the configuration)",
			},
		},
	}
}

func runServe(c *cli.Context) error {
	cfg, configPath, err := loadConfig(c)
	if err != nil {
		return err
	}
	if p := c.Int("port"); p > 0 {
		cfg.Server.Port = p
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Advanced.LogLevel
	logger := logging.New("server", level)
	api.ExposeErrorDetails = logging.ParseLevel(level) == log.DEBUG

	client, err := verifier.NewClient(verifier.Config{
		BaseURL:    cfg.Service.BaseURL,
		UploadPath: cfg.Service.UploadPath,
		Timeout:    cfg.GetServiceTimeout(),
		Logger:     logging.New("verifier", level),
	})
	if err != nil {
		return err
	}

	limit, err := cfg.GetBodyLimitBytes()
	if err != nil {
		return err
	}
	store, err := storage.NewLocalStore(cfg.Server.SpoolDirectory, limit, logging.New("storage", level))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	insp := inspector.New(cfg.GetHeaderMode())
	wfLogger := logging.New("workflow", level)
	sessions := session.NewManager(store, func() *workflow.Controller {
		return workflow.New(client, insp, workflow.WithLogger(wfLogger))
	}, cfg.Session.MaxSessions, logging.New("session", level))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runCleanup(ctx, sessions, cfg, logger)

	e := newEcho(cfg, level)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Sessions:    sessions,
		Version:     Version,
		Endpoint:    client.Endpoint(),
		CheckOrigin: checkOrigin(cfg.GetOrigins()),
		Logger:      logging.New("websocket", level),
	}))

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warnf("failed to register static routes: %v", err)
			embeddedMode = false
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, client.Endpoint())
	if embeddedMode {
		fmt.Printf("Open http://%s in your browser\n\n", cfg.GetServerAddr())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("server shutdown: %v", err)
		}
	}

	sessions.Shutdown()
	store.Purge()
	return nil
}

func newEcho(cfg *config.AppConfig, level string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger = logging.New("echo", level)
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" ||
				strings.HasSuffix(path, "/keepalive") ||
				strings.HasSuffix(path, "/ws")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}

	if cfg.Server.EnableCORS {
		origins := cfg.GetOrigins()
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	return e
}

// runCleanup periodically drops idle sessions until ctx is done.
func runCleanup(ctx context.Context, sessions *session.Manager, cfg *config.AppConfig, logger *log.Logger) {
	interval := time.Duration(cfg.Session.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		return
	}
	maxIdle := time.Duration(cfg.Session.MaxIdleMinutes) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.CleanupOldSessions(maxIdle); n > 0 {
				logger.Infof("cleaned up %d idle sessions", n)
			}
		}
	}
}

// checkOrigin accepts same-host WebSocket upgrades and the configured
// origins. A "*" origin accepts everything.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func printBanner(cfg *config.AppConfig, configPath, endpoint string) {
	mode := "API only"
	if web.HasEmbeddedFiles() {
		mode = "Console (Embedded)"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Email Verifier Console                          ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Service:   %-46s║\n", endpoint)
	fmt.Printf("║  Spool Dir: %-46s║\n", cfg.Server.SpoolDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
