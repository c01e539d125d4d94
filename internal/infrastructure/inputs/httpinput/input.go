package httpinput

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/akave-ai/gameevents/internal/infrastructure/inputs"
)

// Input is an HTTP endpoint that hands each request body, a queue envelope,
// to a BatchHandler and writes back its response.
type Input struct {
	path       string
	listenAddr string
	maxBody    int64
	handler    inputs.BatchHandler
	log        zerolog.Logger
	server     *http.Server
}

// NewInput creates an HTTP input. listenAddr is optional; if set, Start binds
// to that address and Path reports "" so the input is not mounted.
func NewInput(basePath, name string, handler inputs.BatchHandler, listenAddr string, maxBody int64) *Input {
	basePath = "/" + strings.Trim(strings.TrimSpace(basePath), "/")
	name = strings.Trim(strings.TrimSpace(name), "/")
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Input{
		path:       strings.TrimSuffix(basePath, "/") + "/" + name,
		listenAddr: listenAddr,
		maxBody:    maxBody,
		handler:    handler,
		log:        zerolog.Nop(),
	}
}

func (i *Input) Path() string {
	if i.listenAddr != "" {
		return ""
	}
	return i.path
}

func (i *Input) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, i.maxBody))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}
		if len(body) == 0 {
			http.Error(w, "empty body", http.StatusBadRequest)
			return
		}

		ctx := i.log.WithContext(r.Context())
		resp := i.handler.HandleEnvelope(ctx, body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			i.log.Error().Err(err).Msg("write response")
		}
	})
}

// Start captures the logger from ctx and, when a listen address is
// configured, serves the endpoint on it.
func (i *Input) Start(ctx context.Context) error {
	i.log = zerolog.Ctx(ctx).With().Str("input", TypeName).Str("path", i.path).Logger()
	if i.listenAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(i.path, i.Handler())
	i.server = &http.Server{
		Addr:    i.listenAddr,
		Handler: mux,
	}
	go func() {
		if err := i.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.log.Error().Err(err).Str("listen", i.listenAddr).Msg("ingest listener stopped")
		}
	}()
	i.log.Info().Str("listen", i.listenAddr).Msg("ingest listening")
	return nil
}

func (i *Input) Stop() error {
	if i.server != nil {
		return i.server.Close()
	}
	return nil
}
