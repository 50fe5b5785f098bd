// Command server serves shells to WebSocket clients over the bridge
// protocol and exposes the session journal over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/3xecutablefile/terminal-ui/api/handlers"
	"github.com/3xecutablefile/terminal-ui/internal/config"
	"github.com/3xecutablefile/terminal-ui/internal/db"
	"github.com/3xecutablefile/terminal-ui/internal/logging"
	"github.com/3xecutablefile/terminal-ui/internal/repository"
	"github.com/3xecutablefile/terminal-ui/internal/session"
	"github.com/3xecutablefile/terminal-ui/internal/ws"
)

const defaultDBPath = "data/sessions.db"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var allowAnyOrigin bool

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve shells over WebSocket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg, allowAnyOrigin)
		},
	}
	config.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&allowAnyOrigin, "allow-any-origin", false, "accept WebSocket upgrades from any origin")
	return cmd
}

func run(cfg config.Config, allowAnyOrigin bool) error {
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	database, err := db.InitDB(dbPath)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	sessionRepo := repository.NewSessionRepository(database)
	if n, err := sessionRepo.MarkOrphaned(context.Background()); err != nil {
		return err
	} else if n > 0 {
		log.WithField("count", n).Warn("marked sessions from a previous run as failed")
	}

	sessionManager, err := session.NewManager(sessionRepo, session.Config{
		LogDir:         cfg.LogDir,
		Record:         cfg.LogDir != "",
		MaxSessions:    cfg.MaxSessions,
		Shell:          cfg.ShellPrefs(),
		ReadBufferSize: cfg.ReadBufferSize,
		DrainTimeout:   cfg.DrainTimeout,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	defer sessionManager.Close()

	if allowAnyOrigin {
		ws.SetCheckOrigin(func(*http.Request) bool { return true })
	}

	sessionHandler := handlers.NewSessionHandler(sessionManager)
	wsHandler := handlers.NewWebSocketHandler(sessionManager, int(cfg.Cols), int(cfg.Rows), log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	if allowAnyOrigin {
		r.Use(corsMiddleware())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": sessionManager.Active(),
		})
	})

	api := r.Group("/api")
	{
		sessionHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("starting server")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	// Hijacked WebSocket connections outlive Shutdown; the deferred
	// manager Close terminates their sessions.
	return nil
}

// requestLogger logs one line per request through logrus.
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}

// corsMiddleware returns a permissive CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
