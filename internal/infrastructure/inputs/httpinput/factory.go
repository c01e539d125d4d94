package httpinput

import (
	"fmt"
	"strings"

	"github.com/akave-ai/gameevents/internal/infrastructure/inputs"
)

// TypeName is the registry name of the HTTP input.
const TypeName = "http"

// defaultMaxBody caps one envelope.
const defaultMaxBody = 4 << 20

func init() {
	inputs.GlobalRegistry.Register(&Factory{})
}

// Factory creates HTTP ingest inputs.
type Factory struct{}

func (f *Factory) Name() string {
	return TypeName
}

func (f *Factory) ConfigSpec() inputs.InputTypeInfo {
	return inputs.InputTypeInfo{
		Type:        TypeName,
		Description: "HTTP ingest endpoint. Accepts a POSTed queue envelope and responds with the batch result.",
		Fields: []inputs.ConfigField{
			{Name: "name", Type: "string", Required: true, Description: "Path segment for the endpoint (e.g. 'client' -> /ingest/client)", Example: "client"},
			{Name: "base_path", Type: "string", Description: "Base path prefix", Default: "/ingest"},
			{Name: "listen", Type: "string", Description: "Optional host:port to bind instead of mounting on the main server", Example: ":9001"},
			{Name: "max_body_bytes", Type: "number", Description: "Largest accepted request body", Default: fmt.Sprint(defaultMaxBody)},
		},
	}
}

func (f *Factory) ValidateConfig(cfg inputs.Config) error {
	if strings.Contains(strings.Trim(cfg.String("name"), "/"), "/") {
		return fmt.Errorf("http input: name must be a single path segment")
	}
	if _, err := cfg.Int("max_body_bytes", defaultMaxBody); err != nil {
		return fmt.Errorf("http input: %w", err)
	}
	return nil
}

func (f *Factory) Create(cfg inputs.Config, handler inputs.BatchHandler) (inputs.MessageInput, error) {
	basePath := cfg.String("base_path")
	if basePath == "" {
		basePath = "/ingest"
	}
	maxBody, err := cfg.Int("max_body_bytes", defaultMaxBody)
	if err != nil {
		return nil, fmt.Errorf("http input: %w", err)
	}
	return NewInput(basePath, cfg.String("name"), handler, cfg.String("listen"), int64(maxBody)), nil
}
