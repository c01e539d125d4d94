package httpinput

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/akave-ai/gameevents/internal/infrastructure/inputs"
	"github.com/akave-ai/gameevents/internal/model"
)

type recordingHandler struct {
	mu     sync.Mutex
	bodies [][]byte
	resp   model.Response
}

func (h *recordingHandler) HandleEnvelope(_ context.Context, raw []byte) model.Response {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]byte, len(raw))
	copy(cp, raw)
	h.bodies = append(h.bodies, cp)
	return h.resp
}

func (h *recordingHandler) ProcessBatch(context.Context, [][]byte) model.Response {
	return model.OKResponse(model.BatchResult{})
}

func (h *recordingHandler) Last() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.bodies) == 0 {
		return nil
	}
	return h.bodies[len(h.bodies)-1]
}

func TestHTTPInput_HandsEnvelopeToHandler(t *testing.T) {
	reg := inputs.NewRegistry()
	reg.Register(&Factory{})

	h := &recordingHandler{resp: model.OKResponse(model.BatchResult{ProcessedCount: 2})}
	mux := http.NewServeMux()
	specs := []inputs.InputSpec{
		{Type: TypeName, Name: "client", Config: inputs.Config{"base_path": "/ingest"}},
	}
	running, err := reg.StartAll(context.Background(), specs, h, func(path string, hh http.Handler) {
		mux.Handle(path, hh)
	})
	if err != nil {
		t.Fatalf("start inputs: %v", err)
	}
	defer inputs.StopAll(running)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	body := []byte(`{"Records":[{"body":"{}"}]}`)
	resp, err := http.Post(srv.URL+"/ingest/client", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var got struct {
		StatusCode int               `json:"statusCode"`
		Body       model.BatchResult `json:"body"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.StatusCode != http.StatusOK || got.Body.ProcessedCount != 2 {
		t.Fatalf("unexpected response %+v", got)
	}
	if !bytes.Equal(h.Last(), body) {
		t.Fatalf("expected handler to receive %q, got %q", body, h.Last())
	}
}

func TestHTTPInput_PropagatesFailureStatus(t *testing.T) {
	h := &recordingHandler{resp: model.FailureResponse(model.BatchResult{FailedCount: 1})}
	in := NewInput("/ingest", "client", h, "", 0)

	rec := httptest.NewRecorder()
	in.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/client", strings.NewReader("[]")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"Internal server error"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestHTTPInput_RejectsBadRequests(t *testing.T) {
	h := &recordingHandler{}
	in := NewInput("/ingest", "client", h, "", 8)

	cases := []struct {
		method string
		body   string
		want   int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "", http.StatusBadRequest},
		{http.MethodPost, `{"Records":[]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		in.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, "/ingest/client", strings.NewReader(tc.body)))
		if rec.Code != tc.want {
			t.Errorf("%s %q: expected %d, got %d", tc.method, tc.body, tc.want, rec.Code)
		}
	}
	if len(h.bodies) != 0 {
		t.Fatalf("handler should not have been called, got %d calls", len(h.bodies))
	}
}

func TestFactory_Validation(t *testing.T) {
	reg := inputs.NewRegistry()
	reg.Register(&Factory{})

	if err := reg.ValidateConfig(TypeName, inputs.Config{}); err == nil {
		t.Fatal("expected missing name error")
	}
	if err := reg.ValidateConfig(TypeName, inputs.Config{"name": "a/b"}); err == nil {
		t.Fatal("expected nested path error")
	}
	if err := reg.ValidateConfig(TypeName, inputs.Config{"name": "client", "max_body_bytes": "lots"}); err == nil {
		t.Fatal("expected max_body_bytes error")
	}
	in, err := reg.Create(TypeName, inputs.Config{"name": "/client/"}, &recordingHandler{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p := in.(*Input).Path(); p != "/ingest/client" {
		t.Fatalf("expected /ingest/client, got %s", p)
	}
}

func TestInput_ListenAddrIsNotMounted(t *testing.T) {
	in := NewInput("/ingest", "client", &recordingHandler{}, "127.0.0.1:0", 0)
	if in.Path() != "" {
		t.Fatalf("expected empty mount path, got %q", in.Path())
	}
}
