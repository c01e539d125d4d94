package model

import "net/http"

type Status string

const (
	StatusAccepted Status = "accepted"
	StatusSkipped  Status = "skipped"
)

// SkipReason explains why a record was not forwarded. Reasons only show up in
// logs and metrics; the batch result collapses them into FailedCount.
type SkipReason string

const (
	ReasonNone       SkipReason = ""
	ReasonParse      SkipReason = "parse_error"
	ReasonValidation SkipReason = "validation_error"
	ReasonInternal   SkipReason = "internal_error"
	ReasonDuplicate  SkipReason = "duplicate"
)

// Outcome is the terminal state of one record.
type Outcome struct {
	Status  Status
	Reason  SkipReason
	EventID string
	Record  Record
	Err     error
}

func Accepted(eventID string, rec Record) Outcome {
	return Outcome{Status: StatusAccepted, EventID: eventID, Record: rec}
}

func Skipped(reason SkipReason, eventID string, err error) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason, EventID: eventID, Err: err}
}

// BatchResult aggregates the outcomes of one batch.
type BatchResult struct {
	ProcessedCount  int      `json:"processed_count"`
	FailedCount     int      `json:"failed_count"`
	ProcessedEvents []Record `json:"processed_events"`
}

// Add folds one outcome into the result.
func (r *BatchResult) Add(o Outcome) {
	if o.Status == StatusAccepted {
		r.ProcessedCount++
		r.ProcessedEvents = append(r.ProcessedEvents, o.Record)
		return
	}
	r.FailedCount++
}

// FailureBody is returned when an error escapes per-record isolation.
type FailureBody struct {
	Error          string `json:"error"`
	ProcessedCount int    `json:"processed_count"`
	FailedCount    int    `json:"failed_count"`
}

// Response is the invocation-level result handed back to the trigger.
type Response struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

func OKResponse(r BatchResult) Response {
	if r.ProcessedEvents == nil {
		r.ProcessedEvents = []Record{}
	}
	return Response{StatusCode: http.StatusOK, Body: r}
}

func FailureResponse(r BatchResult) Response {
	return Response{
		StatusCode: http.StatusInternalServerError,
		Body: FailureBody{
			Error:          "Internal server error",
			ProcessedCount: r.ProcessedCount,
			FailedCount:    r.FailedCount,
		},
	}
}
