package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/posewire/internal/config"
	"github.com/danmuck/posewire/internal/observability"
	"github.com/danmuck/posewire/internal/protocol"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Options configures the HTTP driver around the codec.
type Options struct {
	ID           string
	Addr         string
	CorsOrigins  []string
	Decode       protocol.DecodeOptions
	DefaultKeyID uint16
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AuthToken    string
}

func OptionsFromConfig(cfg config.Config) Options {
	read, write := cfg.Timeouts()
	return Options{
		ID:           cfg.Server.ID,
		Addr:         cfg.Server.Addr,
		CorsOrigins:  cfg.Server.CorsOrigins,
		Decode:       cfg.DecodeOptions(),
		DefaultKeyID: cfg.Codec.DefaultKeyID,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ReadTimeout:  read,
		WriteTimeout: write,
		AuthToken:    cfg.Server.AuthToken,
	}
}

// Server exposes encode/decode over HTTP.
type Server struct {
	ID           string
	Addr         string
	Appeared     time.Time
	DefaultKeyID uint16

	decoder      *protocol.Decoder
	router       *gin.Engine
	logger       zerolog.Logger
	maxBodyBytes int64
	readTimeout  time.Duration
	writeTimeout time.Duration
	authToken    string
}

func New(opts Options) *Server {
	observability.RegisterMetrics()
	if opts.ID == "" {
		opts.ID = "posewire"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	logger := observability.ComponentLogger(opts.ID, "http")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(opts.ID))
	if len(opts.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.CorsOrigins,
			AllowMethods:  []string{"GET", "POST"},
			AllowHeaders:  []string{"Origin", "Content-Type", observability.HeaderRequestID},
			ExposeHeaders: []string{observability.HeaderRequestID},
			MaxAge:        12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		ID:           opts.ID,
		Addr:         opts.Addr,
		Appeared:     time.Now(),
		DefaultKeyID: opts.DefaultKeyID,
		decoder:      protocol.NewDecoder(opts.Decode),
		router:       r,
		logger:       logger,
		maxBodyBytes: opts.MaxBodyBytes,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		authToken:    opts.AuthToken,
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve registers routes and blocks until ctx is cancelled or the listener
// fails.
func (s *Server) Serve(ctx context.Context) error {
	s.RegisterRoutes()
	srv := &http.Server{
		Addr:         s.Addr,
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr).Msg("posewire http listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("posewire http shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
