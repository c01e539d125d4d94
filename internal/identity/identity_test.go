package identity

import (
	"encoding/json"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/gameevents/internal/model"
	"github.com/akave-ai/gameevents/internal/normalize"
	"github.com/akave-ai/gameevents/internal/validate"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{64}$`)

func event() model.GameEvent {
	return model.GameEvent{
		EventType:   "player_action",
		PlayerID:    "player123",
		GameVersion: "1.0.0",
		Timestamp:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Data:        map[string]any{"action": "jump", "pos": map[string]any{"x": json.Number("1"), "y": json.Number("2")}},
	}
}

func TestCanonical_SortsKeysAtEveryLevel(t *testing.T) {
	b, err := Canonical(map[string]any{
		"b": 1,
		"a": map[string]any{"z": "<x>", "m": []any{map[string]any{"d": 1, "c": 2}}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"m":[{"c":2,"d":1}],"z":"<x>"},"b":1}`, string(b))
}

func TestCompute_Format(t *testing.T) {
	id, err := Compute(event())
	require.NoError(t, err)
	assert.Len(t, id, Size)
	assert.Regexp(t, hexID, id)
}

func TestCompute_IgnoresTimestampAndEventID(t *testing.T) {
	a := event()
	b := event()
	b.Timestamp = b.Timestamp.Add(time.Hour)
	b.EventID = "client-supplied"

	idA, err := Compute(a)
	require.NoError(t, err)
	idB, err := Compute(b)
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
}

func TestCompute_IndependentOfInsertionOrderAndCasing(t *testing.T) {
	now := func() time.Time { return time.Now().UTC() }

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"Event_Type":"Player_Action","player_id":" player123 ","game_version":"1.0.0","timestamp":"2024-01-01T00:00:00Z","data":{"b":2,"A":"Jump"}}`), &first))
	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"a":"jump","B":2},"game_version":"1.0.0","timestamp":"2025-06-01T00:00:00Z","PLAYER_ID":"PLAYER123","event_type":"player_action"}`), &second))

	evA, err := validate.Event(normalize.Event(first), now)
	require.NoError(t, err)
	evB, err := validate.Event(normalize.Event(second), now)
	require.NoError(t, err)

	idA, err := Compute(evA)
	require.NoError(t, err)
	idB, err := Compute(evB)
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
}

func TestCompute_SensitiveToEveryField(t *testing.T) {
	base, err := Compute(event())
	require.NoError(t, err)

	mutations := map[string]func(*model.GameEvent){
		"event_type":   func(e *model.GameEvent) { e.EventType = "login" },
		"player_id":    func(e *model.GameEvent) { e.PlayerID = "player124" },
		"game_version": func(e *model.GameEvent) { e.GameVersion = "1.0.1" },
		"data":         func(e *model.GameEvent) { e.Data = map[string]any{"action": "duck"} },
		"extra":        func(e *model.GameEvent) { e.Extra = map[string]any{"platform": "pc"} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			ev := event()
			mutate(&ev)
			id, err := Compute(ev)
			require.NoError(t, err)
			assert.NotEqual(t, base, id)
		})
	}
}

func TestCompute_UnserializableValue(t *testing.T) {
	for name, bad := range map[string]any{
		"channel": make(chan int),
		"nan":     math.NaN(),
	} {
		t.Run(name, func(t *testing.T) {
			ev := event()
			ev.Data = map[string]any{"bad": bad}
			_, err := Compute(ev)
			assert.Error(t, err)
		})
	}
}
