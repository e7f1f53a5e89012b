package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/hr-intake/internal/intake"
	"github.com/spigell/hr-intake/internal/storage"
)

const (
	DefaultAddr       = ":8080"
	DefaultMaxUpload  = 20 << 20
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Intake is the conversation service exposed over HTTP.
type Intake interface {
	StartSession(ctx context.Context, user string) (intake.Started, error)
	HandleTurn(ctx context.Context, id string, turn intake.Turn) (intake.Reply, error)
	Status(ctx context.Context, id string) (intake.Status, error)
	History(ctx context.Context, id string) ([]storage.Message, error)
	Export(ctx context.Context, id string) (intake.ExportResult, error)
	EndSession(id string) error
}

type Config struct {
	Addr      string `mapstructure:"addr"`
	MaxUpload int64  `mapstructure:"max-upload-bytes"`

	// SessionIdle is how long an unused session stays in memory.
	SessionIdle time.Duration `mapstructure:"session-idle"`
}

// Server is the HTTP transport of the intake service.
type Server struct {
	engine    *gin.Engine
	intake    Intake
	addr      string
	maxUpload int64
	logger    *zap.Logger
}

func New(cfg Config, svc Intake, authenticator Authenticator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUpload
	}

	s := &Server{
		engine:    gin.New(),
		intake:    svc,
		addr:      cfg.Addr,
		maxUpload: cfg.MaxUpload,
		logger:    logger,
	}
	s.engine.MaxMultipartMemory = cfg.MaxUpload
	s.engine.Use(gin.Recovery(), Logging(logger))
	s.routes(authenticator)

	return s
}

func (s *Server) routes(authenticator Authenticator) {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api/v1", BasicAuth(authenticator))
	api.POST("/sessions", s.startSession)
	api.GET("/sessions/:id", s.sessionStatus)
	api.GET("/sessions/:id/messages", s.listMessages)
	api.POST("/sessions/:id/messages", s.postMessage)
	api.POST("/sessions/:id/export", s.exportProfile)
	api.DELETE("/sessions/:id", s.endSession)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
