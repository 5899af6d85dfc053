package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/pathway100k/intake/internal/config"
	"github.com/pathway100k/intake/internal/handler"
	"github.com/pathway100k/intake/internal/infrastructure/sinks"
	_ "github.com/pathway100k/intake/internal/infrastructure/sinks/logsink"
	_ "github.com/pathway100k/intake/internal/infrastructure/sinks/mongosink"
	_ "github.com/pathway100k/intake/internal/infrastructure/sinks/o3sink"
	_ "github.com/pathway100k/intake/internal/infrastructure/sinks/pgsink"
	_ "github.com/pathway100k/intake/internal/infrastructure/sinks/sqlsink"
	_ "github.com/pathway100k/intake/internal/infrastructure/sinks/webhooksink"
	"github.com/pathway100k/intake/internal/logger"
	"github.com/pathway100k/intake/internal/observability"
	"github.com/pathway100k/intake/internal/response"
)

// intakePaths serve the form and accept submissions.
var intakePaths = []string{"/", "/api"}

const (
	readyTimeout    = 3 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server holds the Echo app and everything it must release on shutdown.
type Server struct {
	Echo    *echo.Echo
	Config  *config.Config
	Logger  zerolog.Logger
	Sinks   *sinks.Fanout
	Metrics *observability.Metrics

	tracer   *sdktrace.TracerProvider
	services *logger.LoggerService
}

// New builds the recording sinks selected in cfg and the Echo server in front of them.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, services *logger.LoggerService) (*Server, error) {
	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}
	tp := observability.NewTracerProvider(cfg.Observability, log)

	fan, err := sinks.GlobalRegistry.Build(ctx, cfg.Sinks.Enabled, sinks.Deps{
		Config:   cfg,
		Logger:   log,
		NewRelic: services.Application(),
	})
	if err != nil {
		if tp != nil {
			_ = tp.Shutdown(ctx)
		}
		return nil, fmt.Errorf("build sinks: %w", err)
	}
	fan.Instrument(metrics)

	return newServer(cfg, log, fan, metrics, tp, services), nil
}

func newServer(cfg *config.Config, log zerolog.Logger, fan *sinks.Fanout, metrics *observability.Metrics,
	tp *sdktrace.TracerProvider, services *logger.LoggerService) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(e.DefaultHTTPErrorHandler, intakePaths...)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(log))
	e.Use(newRelicTransaction(services.Application()))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		// only real preflights are answered here; a bare OPTIONS reaches the route
		Skipper: func(c echo.Context) bool {
			req := c.Request()
			return req.Method == http.MethodOptions && req.Header.Get(echo.HeaderAccessControlRequestMethod) == ""
		},
		AllowOrigins: cfg.Server.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost},
	}))
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	s := &Server{
		Echo:     e,
		Config:   cfg,
		Logger:   log,
		Sinks:    fan,
		Metrics:  metrics,
		tracer:   tp,
		services: services,
	}

	intake := handler.NewIntakeHandler(fan, cfg.Intake.DefaultCountryCode, log, metrics)
	for _, p := range intakePaths {
		e.Any(p, intake.Handle)
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", s.ready)

	if metrics != nil {
		e.GET(cfg.Observability.Metrics.Path, echo.WrapHandler(metrics.Handler()))
	}

	sinkHandler := &handler.SinkHandler{Registry: sinks.GlobalRegistry, Active: fan.Names()}
	e.GET("/sinks", sinkHandler.ListActive)
	e.GET("/sinks/types", sinkHandler.ListTypes)
	e.GET("/sinks/types/:type", sinkHandler.GetTypeInfo)
	e.GET("/sinks/info", sinkHandler.GetAllTypesInfo)

	return s
}

func (s *Server) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readyTimeout)
	defer cancel()
	if err := s.Sinks.Ping(ctx); err != nil {
		s.Logger.Warn().Err(err).Msg("readiness check failed")
		return response.Unavailable(c, "sinks unavailable", "one or more sinks failed their health check")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// Start serves HTTP until ctx is cancelled, then shuts down and returns once
// the sinks and telemetry have been released.
func (s *Server) Start(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		done <- s.Shutdown(shutdownCtx)
	}()

	srv := s.Echo.Server
	srv.ReadTimeout = time.Duration(s.Config.Server.ReadTimeout) * time.Second
	srv.WriteTimeout = time.Duration(s.Config.Server.WriteTimeout) * time.Second
	srv.IdleTimeout = time.Duration(s.Config.Server.IdleTimeout) * time.Second

	addr := ":" + s.Config.Server.Port
	s.Logger.Info().Str("addr", addr).Strs("sinks", s.Sinks.Names()).Msg("intake server listening")
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return <-done
}

// Shutdown stops accepting requests, then closes the sinks and flushes telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.Echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := s.Sinks.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sinks: %w", err))
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	s.services.Shutdown()
	s.Logger.Info().Msg("intake server stopped")
	return errors.Join(errs...)
}
