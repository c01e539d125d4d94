// Package pipeline runs queue payloads through parse, normalize, validate,
// identity and dedup, one record at a time.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/gameevents/internal/dedup"
	"github.com/akave-ai/gameevents/internal/identity"
	"github.com/akave-ai/gameevents/internal/model"
	"github.com/akave-ai/gameevents/internal/normalize"
	"github.com/akave-ai/gameevents/internal/validate"
)

// ParseError means a payload was not a JSON object.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse payload: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Recorder receives per-record and per-batch observations.
type Recorder interface {
	ObserveOutcome(model.Outcome)
	ClaimRetry()
	ObserveBatch(d time.Duration, fatal bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(model.Outcome)     {}
func (nopRecorder) ClaimRetry()                      {}
func (nopRecorder) ObserveBatch(time.Duration, bool) {}

// Orchestrator owns the per-record state machine. It is safe for concurrent
// use as long as the underlying store is.
type Orchestrator struct {
	store   *dedup.Store
	log     zerolog.Logger
	metrics Recorder
	retry   RetryPolicy
	now     func() time.Time
	sleep   sleepFunc
	nr      *newrelic.Application
}

type Option func(*Orchestrator)

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithClock sets the clock used for default event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithNewRelic runs every batch inside a New Relic transaction.
func WithNewRelic(app *newrelic.Application) Option {
	return func(o *Orchestrator) { o.nr = app }
}

func withSleep(fn sleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// New returns an Orchestrator deduplicating against store.
func New(store *dedup.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		log:     zerolog.Nop(),
		metrics: nopRecorder{},
		retry:   DefaultRetryPolicy(),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessRecord takes one payload to a terminal outcome. It never returns an
// error; failures become skips.
func (o *Orchestrator) ProcessRecord(ctx context.Context, payload []byte) model.Outcome {
	out := o.process(ctx, payload)
	o.metrics.ObserveOutcome(out)

	log := o.logger(ctx)
	switch {
	case out.Status == model.StatusAccepted:
		log.Debug().Str("event_id", out.EventID).Msg("event accepted")
	case out.Reason == model.ReasonDuplicate:
		log.Info().Str("event_id", out.EventID).Msg("duplicate event skipped")
	case out.Reason == model.ReasonInternal:
		log.Error().Err(out.Err).Str("event_id", out.EventID).Msg("event skipped")
	default:
		log.Warn().Err(out.Err).Str("reason", string(out.Reason)).Msg("event skipped")
	}
	return out
}

func (o *Orchestrator) process(ctx context.Context, payload []byte) model.Outcome {
	raw, err := decode(payload)
	if err != nil {
		return model.Skipped(model.ReasonParse, "", err)
	}

	ev, err := validate.Event(normalize.Clean(normalize.Event(raw)), o.now)
	if err != nil {
		return model.Skipped(model.ReasonValidation, "", err)
	}

	if ev.EventID == "" {
		id, err := identity.Compute(ev)
		if err != nil {
			return model.Skipped(model.ReasonInternal, "", fmt.Errorf("compute identity: %w", err))
		}
		ev.EventID = id
	}

	if o.store.Exists(ctx, ev.EventID) {
		return model.Skipped(model.ReasonDuplicate, ev.EventID, nil)
	}

	if err := o.claim(ctx, ev.EventID); err != nil {
		if errors.Is(err, dedup.ErrAlreadyClaimed) {
			return model.Skipped(model.ReasonDuplicate, ev.EventID, nil)
		}
		return model.Skipped(model.ReasonInternal, ev.EventID, fmt.Errorf("claim identity: %w", err))
	}
	return model.Accepted(ev.EventID, ev.Record())
}

func (o *Orchestrator) claim(ctx context.Context, id string) error {
	defer newrelic.FromContext(ctx).StartSegment("dedup.claim").End()

	return o.retry.do(ctx, o.sleep, func() error {
		return o.store.Claim(ctx, id)
	}, func(attempt int, wait time.Duration, err error) {
		o.metrics.ClaimRetry()
		o.logger(ctx).Warn().Err(err).
			Str("event_id", id).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("dedup claim failed, retrying")
	})
}

// ProcessBatch processes bare payloads in order. A failing record never stops
// the batch; a panic yields a 500 response carrying the counts reached so far.
func (o *Orchestrator) ProcessBatch(ctx context.Context, payloads [][]byte) model.Response {
	return o.guard(ctx, "ProcessBatch", func(ctx context.Context, result *model.BatchResult) error {
		for _, p := range payloads {
			result.Add(o.ProcessRecord(ctx, p))
		}
		return nil
	})
}

// HandleEnvelope decodes a queue envelope and processes its record bodies.
// A malformed envelope or a panic while processing yields a 500 response
// carrying the counts reached so far.
func (o *Orchestrator) HandleEnvelope(ctx context.Context, raw []byte) model.Response {
	return o.guard(ctx, "HandleEnvelope", func(ctx context.Context, result *model.BatchResult) error {
		var env model.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		for i, rec := range env.Records {
			if rec.Body == "" {
				zerolog.Ctx(ctx).Warn().Int("index", i).Str("message_id", rec.MessageID).Msg("record has no body, ignoring")
				continue
			}
			result.Add(o.ProcessRecord(ctx, []byte(rec.Body)))
		}
		return nil
	})
}

// guard runs one batch with a batch_id logger in ctx, an optional New Relic
// transaction, panic recovery and batch metrics. An error or panic from fn
// becomes a failure response with the counts fn reached.
func (o *Orchestrator) guard(ctx context.Context, name string, fn func(context.Context, *model.BatchResult) error) (resp model.Response) {
	start := time.Now()
	batchID := uuid.NewString()
	log := o.log.With().Str("batch_id", batchID).Logger()
	ctx = log.WithContext(ctx)

	if o.nr != nil {
		txn := o.nr.StartTransaction(name)
		txn.AddAttribute("batch_id", batchID)
		defer txn.End()
		ctx = newrelic.NewContext(ctx, txn)
	}

	var result model.BatchResult
	abort := func(err error) model.Response {
		newrelic.FromContext(ctx).NoticeError(err)
		log.Error().Err(err).
			Int("processed_count", result.ProcessedCount).
			Int("failed_count", result.FailedCount).
			Msg("batch aborted")
		return model.FailureResponse(result)
	}
	defer func() {
		if r := recover(); r != nil {
			resp = abort(fmt.Errorf("panic: %v", r))
		}
		o.metrics.ObserveBatch(time.Since(start), resp.StatusCode != http.StatusOK)
	}()

	if err := fn(ctx, &result); err != nil {
		return abort(err)
	}

	log.Info().
		Int("processed_count", result.ProcessedCount).
		Int("failed_count", result.FailedCount).
		Dur("duration", time.Since(start)).
		Msg("batch processed")
	return model.OKResponse(result)
}

// logger prefers the batch logger carried by ctx.
func (o *Orchestrator) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &o.log
}

func decode(payload []byte) (model.RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ParseError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Err: errors.New("trailing data after JSON value")}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &ParseError{Err: fmt.Errorf("expected a JSON object, got %T", v)}
	}
	return obj, nil
}
