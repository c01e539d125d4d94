package model

import "time"

// TimestampLayout is the fixed ISO-8601 rendering used for emitted events.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// RawEvent is one decoded queue payload before normalization.
type RawEvent = map[string]any

// Record is an accepted event as it is forwarded downstream.
type Record = map[string]any

// GameEvent is a normalized event that passed schema validation.
type GameEvent struct {
	EventID     string
	EventType   string
	PlayerID    string
	GameVersion string
	Timestamp   time.Time
	Data        map[string]any
	// Extra holds top-level fields outside the schema; they are kept as sent.
	Extra map[string]any
}

// IdentityFields returns the fields that make up the event identity:
// everything except timestamp and event_id.
func (e GameEvent) IdentityFields() map[string]any {
	out := make(map[string]any, len(e.Extra)+4)
	for k, v := range e.Extra {
		out[k] = v
	}
	out["event_type"] = e.EventType
	out["player_id"] = e.PlayerID
	out["game_version"] = e.GameVersion
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	out["data"] = data
	return out
}

// Record renders the event for downstream consumers.
func (e GameEvent) Record() Record {
	out := e.IdentityFields()
	out["event_id"] = e.EventID
	out["timestamp"] = e.Timestamp.UTC().Format(TimestampLayout)
	return out
}
