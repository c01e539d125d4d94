package model

// Claim is a dedup record: an event identity and the epoch second after which
// the identity may be claimed again.
type Claim struct {
	EventID   string `db:"event_id"`
	ExpiresAt int64  `db:"expires_at"`
}

// Envelope is the queue trigger payload: a list of records each carrying one
// opaque event body.
type Envelope struct {
	Records []EnvelopeRecord `json:"Records"`
}

type EnvelopeRecord struct {
	MessageID string `json:"messageId,omitempty"`
	Body      string `json:"body"`
}
