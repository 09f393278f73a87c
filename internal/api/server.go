package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medwarehouse/internal/config"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/reporting"
)

// Pinger reports warehouse reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
	Driver() string
}

// Server wires the gin router to the reporting service.
type Server struct {
	cfg     *config.Config
	reports *reporting.Service
	db      Pinger
	logger  *slog.Logger
	router  *gin.Engine
	now     func() time.Time
}

const shutdownGrace = 5 * time.Second

// NewServer builds the router. The engine runs in release mode; request
// logging goes through slog rather than gin's writer.
func NewServer(cfg *config.Config, reports *reporting.Service, db Pinger, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:     cfg,
		reports: reports,
		db:      db,
		logger:  logging.NewComponentLogger(logger, "api"),
		router:  gin.New(),
		now:     time.Now,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(requestID(), accessLog(s.logger), s.recovery())

	s.router.GET("/", s.index)
	s.router.GET("/api/health", s.health)

	token := ""
	if s.cfg != nil {
		token = s.cfg.API.Token
	}
	protected := s.router.Group("/api")
	protected.Use(bearerAuth(token))
	{
		protected.GET("/reports/top-products", s.topProducts)
		protected.GET("/reports/visual-content", s.visualContent)
		protected.GET("/channels", s.channels)
		protected.GET("/channels/:channel_name/activity", s.channelActivity)
		protected.GET("/search/messages", s.searchMessages)
		protected.GET("/runs", s.runs)
		protected.GET("/runs/:run_id", s.run)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("not_found", "route not found"))
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening",
			logging.String(logging.FieldEventType, "api.listening"),
			logging.String("addr", addr),
			logging.Bool("auth", s.cfg != nil && s.cfg.API.Token != ""),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("api stopped", logging.String(logging.FieldEventType, "api.stopped"))
	return nil
}
