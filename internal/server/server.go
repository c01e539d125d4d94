package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/akave-ai/gameevents/internal/config"
	"github.com/akave-ai/gameevents/internal/dedup"
	"github.com/akave-ai/gameevents/internal/handler"
	"github.com/akave-ai/gameevents/internal/infrastructure/inputs"
	"github.com/akave-ai/gameevents/internal/infrastructure/inputs/httpinput"
	"github.com/akave-ai/gameevents/internal/infrastructure/inputs/kafkainput"
	"github.com/akave-ai/gameevents/internal/metrics"
	"github.com/akave-ai/gameevents/internal/response"
)

// Deps are the collaborators the server wires into its routes and inputs.
type Deps struct {
	Batches  inputs.BatchHandler
	Registry *inputs.Registry
	Gatherer prometheus.Gatherer
	// Expirer is set for backends without native expiry; the server runs a
	// reaper over it.
	Expirer dedup.Expirer
	Backend string
	Logger  zerolog.Logger
}

// Server holds the Echo app and the running inputs.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config

	deps    Deps
	ingest  *IngestDispatcher
	log     zerolog.Logger
	running []inputs.MessageInput
	stop    context.CancelFunc
}

// New builds the Echo server and registers routes.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Registry == nil {
		deps.Registry = inputs.GlobalRegistry
	}
	log := deps.Logger.With().Str("component", "server").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover(), requestLogger(log))

	ingestD := NewIngestDispatcher()
	batches := &handler.BatchHandler{Batches: deps.Batches, MaxBytes: cfg.Server.MaxBatchBytes}
	inputHandler := &handler.InputHandler{Registry: deps.Registry}

	e.POST("/batches", batches.Ingest)
	e.Any("/ingest/*", echo.WrapHandler(ingestD))

	e.GET("/inputs/types", inputHandler.ListTypes)
	e.GET("/inputs/types/:type", inputHandler.GetTypeInfo)
	e.GET("/inputs/info", inputHandler.GetAllTypesInfo)

	e.GET("/healthz", func(c echo.Context) error {
		return response.OK(c, map[string]any{
			"status":        "ok",
			"dedup_backend": deps.Backend,
			"ingest_paths":  ingestD.Paths(),
		}, "")
	})
	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(deps.Gatherer)))
	}

	return &Server{Echo: e, Config: cfg, deps: deps, ingest: ingestD, log: log}
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}

// InputSpecs derives the inputs to run from configuration.
func InputSpecs(cfg *config.Config) []inputs.InputSpec {
	var specs []inputs.InputSpec
	for _, name := range cfg.Server.HTTPInputNames() {
		specs = append(specs, inputs.InputSpec{
			Type: httpinput.TypeName,
			Name: name,
			Config: inputs.Config{
				"base_path":      ingestPrefix,
				"max_body_bytes": cfg.Server.MaxBatchBytes,
			},
		})
	}
	if cfg.Kafka.Enabled() {
		specs = append(specs, inputs.InputSpec{
			Type: kafkainput.TypeName,
			Name: "kafka",
			Config: inputs.Config{
				"brokers":    cfg.Kafka.BrokerList(),
				"topic":      cfg.Kafka.Topic,
				"group_id":   cfg.Kafka.GroupID,
				"batch_size": cfg.Kafka.BatchSize,
				"max_wait":   cfg.Kafka.MaxWait,
			},
		})
	}
	return specs
}

// StartInputs starts the configured inputs and, when the backend needs it,
// the expired-claim reaper. Everything runs until Shutdown or ctx ends.
func (s *Server) StartInputs(ctx context.Context) error {
	ctx, s.stop = context.WithCancel(s.log.WithContext(ctx))

	running, err := s.deps.Registry.StartAll(ctx, InputSpecs(s.Config), s.deps.Batches, s.ingest.Mount)
	if err != nil {
		return err
	}
	s.running = running
	s.log.Info().Strs("types", s.deps.Registry.ListRegistered()).Int("running", len(running)).Msg("inputs started")

	if s.deps.Expirer != nil {
		go dedup.RunReaper(ctx, s.deps.Expirer, s.Config.Dedup.ReapInterval, s.log)
	}
	return nil
}

// Start starts inputs and the HTTP server. It blocks until the context is
// cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	if err := s.StartInputs(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("shutdown")
		}
	}()

	s.Echo.Server.ReadTimeout = s.Config.Server.ReadTimeout
	s.Echo.Server.WriteTimeout = s.Config.Server.WriteTimeout
	s.Echo.Server.IdleTimeout = s.Config.Server.IdleTimeout

	addr := ":" + s.Config.Server.Port
	s.log.Info().Str("addr", addr).Msg("listening")
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops inputs and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	return errors.Join(inputs.StopAll(s.running), s.Echo.Shutdown(ctx))
}
