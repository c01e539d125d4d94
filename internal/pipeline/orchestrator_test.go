package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/gameevents/internal/dedup"
	"github.com/akave-ai/gameevents/internal/model"
	"github.com/akave-ai/gameevents/internal/validate"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const jump = `{"event_type":"player_action","player_id":"player123","game_version":"1.0.0","data":{"action":"jump"}}`

// flakyClient fails the first claimFailures claims and can fail every lookup.
type flakyClient struct {
	*dedup.MemoryClient
	claimFailures int
	claimCalls    int
	existsErr     error
	existsCalls   int
	panicOn       string
}

func (c *flakyClient) Exists(ctx context.Context, id string, now time.Time) (bool, error) {
	c.existsCalls++
	if id == c.panicOn {
		panic("store exploded")
	}
	if c.existsErr != nil {
		return false, c.existsErr
	}
	return c.MemoryClient.Exists(ctx, id, now)
}

func (c *flakyClient) Claim(ctx context.Context, id string, expiresAt, now time.Time) error {
	c.claimCalls++
	if c.claimCalls <= c.claimFailures {
		return errors.New("throttled")
	}
	return c.MemoryClient.Claim(ctx, id, expiresAt, now)
}

type countingRecorder struct {
	outcomes []model.Outcome
	retries  int
	batches  []bool
}

func (r *countingRecorder) ObserveOutcome(o model.Outcome) { r.outcomes = append(r.outcomes, o) }
func (r *countingRecorder) ClaimRetry()                    { r.retries++ }
func (r *countingRecorder) ObserveBatch(_ time.Duration, fatal bool) {
	r.batches = append(r.batches, fatal)
}

type harness struct {
	orch   *Orchestrator
	client *flakyClient
	rec    *countingRecorder
	waits  []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		client: &flakyClient{MemoryClient: dedup.NewMemoryClient(100)},
		rec:    &countingRecorder{},
	}
	store := dedup.NewStore(h.client, dedup.DefaultTTL, dedup.WithClock(func() time.Time { return t0 }))
	h.orch = New(store,
		WithRecorder(h.rec),
		WithClock(func() time.Time { return t0 }),
		withSleep(func(_ context.Context, d time.Duration) error {
			h.waits = append(h.waits, d)
			return nil
		}),
	)
	return h
}

func envelope(t *testing.T, bodies ...string) []byte {
	t.Helper()
	env := model.Envelope{Records: []model.EnvelopeRecord{}}
	for _, b := range bodies {
		env.Records = append(env.Records, model.EnvelopeRecord{Body: b})
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func batchResult(t *testing.T, resp model.Response) model.BatchResult {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res, ok := resp.Body.(model.BatchResult)
	require.True(t, ok, "body is %T", resp.Body)
	return res
}

func TestHandleEnvelope_SingleValidRecord(t *testing.T) {
	h := newHarness(t)

	res := batchResult(t, h.orch.HandleEnvelope(context.Background(), envelope(t, jump)))

	assert.Equal(t, 1, res.ProcessedCount)
	assert.Equal(t, 0, res.FailedCount)
	require.Len(t, res.ProcessedEvents, 1)
	ev := res.ProcessedEvents[0]
	assert.Equal(t, "player_action", ev["event_type"])
	assert.Len(t, ev["event_id"], 64)
	assert.Equal(t, "2024-03-01T12:00:00.000000Z", ev["timestamp"])
	assert.Equal(t, map[string]any{"action": "jump"}, ev["data"])
}

func TestHandleEnvelope_DuplicateAcrossBatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := batchResult(t, h.orch.HandleEnvelope(ctx, envelope(t, jump)))
	second := batchResult(t, h.orch.HandleEnvelope(ctx, envelope(t, jump)))

	assert.Equal(t, 1, first.ProcessedCount)
	assert.Equal(t, 0, second.ProcessedCount)
	assert.Equal(t, 1, second.FailedCount)
	assert.Empty(t, second.ProcessedEvents)
	assert.Equal(t, model.ReasonDuplicate, h.rec.outcomes[1].Reason)
}

func TestHandleEnvelope_InvalidJSON(t *testing.T) {
	h := newHarness(t)

	res := batchResult(t, h.orch.HandleEnvelope(context.Background(), envelope(t, "invalid json")))

	assert.Equal(t, 0, res.ProcessedCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, model.ReasonParse, h.rec.outcomes[0].Reason)
	var pe *ParseError
	assert.ErrorAs(t, h.rec.outcomes[0].Err, &pe)
}

func TestHandleEnvelope_EmptyBatch(t *testing.T) {
	h := newHarness(t)

	for _, raw := range []string{`{"Records":[]}`, `{}`} {
		res := batchResult(t, h.orch.HandleEnvelope(context.Background(), []byte(raw)))
		assert.Equal(t, 0, res.ProcessedCount)
		assert.Equal(t, 0, res.FailedCount)
		assert.NotNil(t, res.ProcessedEvents)
	}
}

func TestHandleEnvelope_EmptyEventType(t *testing.T) {
	h := newHarness(t)
	body := `{"event_type":"","player_id":"player123","game_version":"1.0.0"}`

	res := batchResult(t, h.orch.HandleEnvelope(context.Background(), envelope(t, body)))

	assert.Equal(t, 0, res.ProcessedCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, model.ReasonValidation, h.rec.outcomes[0].Reason)
	var ve *validate.Error
	require.ErrorAs(t, h.rec.outcomes[0].Err, &ve)
	assert.Equal(t, "event_type", ve.Field)
}

func TestHandleEnvelope_BatchIsolation(t *testing.T) {
	h := newHarness(t)
	bodies := []string{
		`{"event_type":"login","player_id":"p1","game_version":"1.0.0"}`,
		`{not json`,
		`{"event_type":"login","player_id":"p2","game_version":"1.0.0"}`,
		`{"event_type":"login","player_id":"p3","game_version":"1.0.0"}`,
	}

	res := batchResult(t, h.orch.HandleEnvelope(context.Background(), envelope(t, bodies...)))

	assert.Equal(t, 3, res.ProcessedCount)
	assert.Equal(t, 1, res.FailedCount)
	var players []any
	for _, ev := range res.ProcessedEvents {
		players = append(players, ev["player_id"])
	}
	assert.Equal(t, []any{"p1", "p2", "p3"}, players)
}

func TestHandleEnvelope_RecordsWithoutBodyAreNotCounted(t *testing.T) {
	h := newHarness(t)
	raw := []byte(`{"Records":[{"messageId":"m1"},{"body":""},{"body":` + jsonString(t, jump) + `}]}`)

	res := batchResult(t, h.orch.HandleEnvelope(context.Background(), raw))

	assert.Equal(t, 1, res.ProcessedCount)
	assert.Equal(t, 0, res.FailedCount)
}

func TestHandleEnvelope_MalformedEnvelope(t *testing.T) {
	h := newHarness(t)

	resp := h.orch.HandleEnvelope(context.Background(), []byte(`[1,2,3]`))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, model.FailureBody{Error: "Internal server error"}, resp.Body)
	assert.Equal(t, []bool{true}, h.rec.batches)
}

func TestHandleEnvelope_PanicReportsPartialCounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	second := `{"event_type":"login","player_id":"boom","game_version":"1.0.0","event_id":"explode"}`
	h.client.panicOn = "explode"

	resp := h.orch.HandleEnvelope(ctx, envelope(t, jump, "nope", second, jump))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, model.FailureBody{
		Error:          "Internal server error",
		ProcessedCount: 1,
		FailedCount:    1,
	}, resp.Body)
}

func TestProcessRecord_ClientSuppliedEventID(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"event_id":"ABC-1","event_type":"login","player_id":"p1","game_version":"2.0"}`)

	out := h.orch.ProcessRecord(context.Background(), body)

	require.Equal(t, model.StatusAccepted, out.Status)
	assert.Equal(t, "abc-1", out.EventID)
	assert.Equal(t, "abc-1", out.Record["event_id"])

	again := h.orch.ProcessRecord(context.Background(), body)
	assert.Equal(t, model.ReasonDuplicate, again.Reason)
}

func TestProcessRecord_CleansDebugFields(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"event_type":"login","player_id":"p1","game_version":"1","debug_info":{"x":1},"unused_field":"y","region":" EU "}`)

	out := h.orch.ProcessRecord(context.Background(), body)

	require.Equal(t, model.StatusAccepted, out.Status)
	assert.NotContains(t, out.Record, "debug_info")
	assert.NotContains(t, out.Record, "unused_field")
	assert.Equal(t, "eu", out.Record["region"])
}

func TestProcessRecord_NonObjectPayload(t *testing.T) {
	h := newHarness(t)

	for _, body := range []string{`[1]`, `"str"`, `42`, `{} {}`} {
		out := h.orch.ProcessRecord(context.Background(), []byte(body))
		assert.Equal(t, model.ReasonParse, out.Reason, body)
	}
	assert.Zero(t, h.client.existsCalls)
}

func TestProcessRecord_FailOpenOnLookupError(t *testing.T) {
	h := newHarness(t)
	h.client.existsErr = errors.New("connection refused")

	out := h.orch.ProcessRecord(context.Background(), []byte(jump))

	assert.Equal(t, model.StatusAccepted, out.Status)
	assert.Equal(t, 1, h.client.claimCalls)
}

func TestProcessRecord_RetriesClaim(t *testing.T) {
	h := newHarness(t)
	h.client.claimFailures = 2

	out := h.orch.ProcessRecord(context.Background(), []byte(jump))

	assert.Equal(t, model.StatusAccepted, out.Status)
	assert.Equal(t, 3, h.client.claimCalls)
	assert.Equal(t, 2, h.rec.retries)
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second}, h.waits)
}

func TestProcessRecord_RetryExhaustion(t *testing.T) {
	h := newHarness(t)
	h.client.claimFailures = 10

	out := h.orch.ProcessRecord(context.Background(), []byte(jump))

	assert.Equal(t, model.StatusSkipped, out.Status)
	assert.Equal(t, model.ReasonInternal, out.Reason)
	assert.Equal(t, 3, h.client.claimCalls)
	assert.ErrorContains(t, out.Err, "throttled")
	assert.Equal(t, 1, h.client.existsCalls)
}

func TestProcessRecord_LostClaimRaceIsDuplicate(t *testing.T) {
	h := newHarness(t)
	h.client.existsErr = errors.New("timeout")

	require.Equal(t, model.StatusAccepted, h.orch.ProcessRecord(context.Background(), []byte(jump)).Status)
	out := h.orch.ProcessRecord(context.Background(), []byte(jump))

	assert.Equal(t, model.ReasonDuplicate, out.Reason)
	assert.Equal(t, 2, h.client.claimCalls)
	assert.Empty(t, h.waits)
}

func TestProcessBatch(t *testing.T) {
	h := newHarness(t)

	res := batchResult(t, h.orch.ProcessBatch(context.Background(), [][]byte{[]byte(jump), []byte(jump), []byte("x")}))

	assert.Equal(t, 1, res.ProcessedCount)
	assert.Equal(t, 2, res.FailedCount)
	assert.Equal(t, []bool{false}, h.rec.batches)
}

func TestProcessBatch_PanicReportsPartialCounts(t *testing.T) {
	h := newHarness(t)
	h.client.panicOn = "explode"
	second := []byte(`{"event_type":"login","player_id":"boom","game_version":"1.0.0","event_id":"explode"}`)

	var resp model.Response
	require.NotPanics(t, func() {
		resp = h.orch.ProcessBatch(context.Background(), [][]byte{[]byte(jump), []byte("nope"), second, []byte(jump)})
	})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, model.FailureBody{
		Error:          "Internal server error",
		ProcessedCount: 1,
		FailedCount:    1,
	}, resp.Body)
	assert.Equal(t, []bool{true}, h.rec.batches)
}

func TestProcessRecord_CancelledContextStopsRetrying(t *testing.T) {
	h := newHarness(t)
	h.client.claimFailures = 10
	ctx, cancel := context.WithCancel(context.Background())
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}

	out := h.orch.ProcessRecord(ctx, []byte(jump))

	assert.Equal(t, model.ReasonInternal, out.Reason)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 1, h.client.claimCalls)
}

func jsonString(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}
