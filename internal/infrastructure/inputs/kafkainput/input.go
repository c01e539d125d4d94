package kafkainput

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/akave-ai/gameevents/internal/infrastructure/inputs"
	"github.com/akave-ai/gameevents/internal/model"
)

// Reader is the subset of *kafka.Reader the input uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Input polls a consumer group and processes messages in batches. Offsets
// are committed only after ProcessBatch returns, including for aborted batches.
type Input struct {
	reader    Reader
	handler   inputs.BatchHandler
	batchSize int
	maxWait   time.Duration
	log       zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewInput(reader Reader, handler inputs.BatchHandler, batchSize int, maxWait time.Duration) *Input {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	return &Input{
		reader:    reader,
		handler:   handler,
		batchSize: batchSize,
		maxWait:   maxWait,
		log:       zerolog.Nop(),
	}
}

// Start launches the poll loop. It runs until ctx is cancelled or Stop is called.
func (i *Input) Start(ctx context.Context) error {
	i.log = zerolog.Ctx(ctx).With().Str("input", TypeName).Logger()
	ctx, i.cancel = context.WithCancel(ctx)
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.run(ctx)
	}()
	return nil
}

func (i *Input) Stop() error {
	if i.cancel != nil {
		i.cancel()
	}
	i.wg.Wait()
	return i.reader.Close()
}

func (i *Input) run(ctx context.Context) {
	for {
		n, err := i.PollOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			i.log.Error().Err(err).Int("messages", n).Msg("kafka poll failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

// PollOnce fetches up to batchSize messages, processes them and commits
// their offsets. It blocks until at least one message arrives, then waits at
// most maxWait for the rest.
func (i *Input) PollOnce(ctx context.Context) (int, error) {
	msgs, err := i.fetch(ctx)
	if len(msgs) == 0 {
		return 0, err
	}

	payloads := make([][]byte, len(msgs))
	for n, m := range msgs {
		payloads[n] = m.Value
	}
	resp := i.handler.ProcessBatch(ctx, payloads)
	switch body := resp.Body.(type) {
	case model.BatchResult:
		i.log.Info().
			Int("messages", len(msgs)).
			Int("processed_count", body.ProcessedCount).
			Int("failed_count", body.FailedCount).
			Msg("kafka batch processed")
	case model.FailureBody:
		// committed anyway: redelivery would hit the same failure
		i.log.Error().
			Int("messages", len(msgs)).
			Int("status", resp.StatusCode).
			Int("processed_count", body.ProcessedCount).
			Int("failed_count", body.FailedCount).
			Msg("kafka batch aborted")
	}

	if cerr := i.reader.CommitMessages(ctx, msgs...); cerr != nil {
		return len(msgs), fmt.Errorf("commit offsets: %w", cerr)
	}
	return len(msgs), err
}

func (i *Input) fetch(ctx context.Context) ([]kafka.Message, error) {
	first, err := i.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]kafka.Message, 0, i.batchSize)
	out = append(out, first)

	fillCtx, cancel := context.WithTimeout(ctx, i.maxWait)
	defer cancel()
	for len(out) < i.batchSize {
		msg, err := i.reader.FetchMessage(fillCtx)
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				return out, nil
			case errors.Is(err, context.Canceled):
				// uncommitted, redelivered to the group
				return nil, ctx.Err()
			default:
				return out, err
			}
		}
		out = append(out, msg)
	}
	return out, nil
}
