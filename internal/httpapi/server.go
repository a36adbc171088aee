package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/db"
	"horse.fit/stash/internal/globaltime"
	"horse.fit/stash/internal/save"
	payloadschema "horse.fit/stash/schema"
)

const (
	defaultListLimit = 25
	maxListLimit     = 200
)

// ContentCatalog is the read surface over stored content items.
type ContentCatalog interface {
	GetItem(ctx context.Context, id string) (*catalog.ContentItem, error)
	ListItems(ctx context.Context, opts db.ContentListOptions) ([]catalog.ContentItem, error)
}

// CreatorCatalog lists resolved creator identities.
type CreatorCatalog interface {
	ListCreators(ctx context.Context) ([]catalog.Creator, error)
}

// StatsProvider aggregates catalog counts.
type StatsProvider interface {
	CatalogStats(ctx context.Context) (*db.CatalogStats, error)
}

// Saver runs the save pipeline for a validated payload.
type Saver interface {
	Save(ctx context.Context, payload *payloadschema.SaveItem) (*save.Result, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// APITokenHash gates mutating endpoints when non-empty.
	APITokenHash   string
	AllowedOrigins []string
}

type Server struct {
	saver    Saver
	contents ContentCatalog
	creators CreatorCatalog
	stats    StatsProvider
	logger   zerolog.Logger
	opts     Options
}

func NewServer(
	saver Saver,
	contents ContentCatalog,
	creators CreatorCatalog,
	stats StatsProvider,
	logger zerolog.Logger,
	opts Options,
) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		saver:    saver,
		contents: contents,
		creators: creators,
		stats:    stats,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			APITokenHash:    strings.TrimSpace(opts.APITokenHash),
			AllowedOrigins:  opts.AllowedOrigins,
		},
	}
}

// router builds the echo instance; split out so handler tests can run
// against it without binding a socket.
func (s *Server) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	allowOrigins := s.opts.AllowedOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/items", s.handleItems)
	api.GET("/items/:content_id", s.handleItemDetail)
	api.GET("/creators", s.handleCreators)
	api.POST("/canonicalize", s.handleCanonicalize)
	api.POST("/saves", s.handleSave, s.requireToken)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.saver == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.router()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("stash api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("stash api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "stash",
		"time":    globaltime.UTC(),
	})
}
