package inputs

import (
	"context"

	"github.com/akave-ai/gameevents/internal/model"
)

// BatchHandler runs the payloads an input receives through ingestion.
// *pipeline.Orchestrator implements it.
type BatchHandler interface {
	// HandleEnvelope processes a queue envelope ({"Records":[{"body":...}]}).
	HandleEnvelope(ctx context.Context, raw []byte) model.Response
	// ProcessBatch processes bare payloads, one event per element.
	ProcessBatch(ctx context.Context, payloads [][]byte) model.Response
}
