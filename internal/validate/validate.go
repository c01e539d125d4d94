// Package validate turns a normalized event into a model.GameEvent.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/akave-ai/gameevents/internal/model"
)

// Error is a schema violation on a single field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

func fieldErr(field, msg string) *Error {
	return &Error{Field: field, Message: msg}
}

// msThreshold mirrors the usual unix-time heuristic: larger values are
// milliseconds rather than seconds.
const msThreshold = 2e10

// Unix seconds of 0001-01-01T00:00:00Z and 9999-12-31T23:59:59Z.
const (
	minUnix = -62135596800
	maxUnix = 253402300799
)

var schemaFields = map[string]struct{}{
	"event_id":     {},
	"event_type":   {},
	"player_id":    {},
	"game_version": {},
	"timestamp":    {},
	"data":         {},
}

// Event validates a normalized event. now supplies the default timestamp.
func Event(ev map[string]any, now func() time.Time) (model.GameEvent, error) {
	var out model.GameEvent
	var err error

	if out.EventType, err = requiredString(ev, "event_type"); err != nil {
		return model.GameEvent{}, err
	}
	if out.PlayerID, err = requiredString(ev, "player_id"); err != nil {
		return model.GameEvent{}, err
	}
	if out.GameVersion, err = gameVersion(ev); err != nil {
		return model.GameEvent{}, err
	}
	if out.EventID, err = optionalString(ev, "event_id"); err != nil {
		return model.GameEvent{}, err
	}
	if out.Timestamp, err = timestamp(ev, now); err != nil {
		return model.GameEvent{}, err
	}
	if out.Data, err = data(ev); err != nil {
		return model.GameEvent{}, err
	}

	for k, v := range ev {
		if _, ok := schemaFields[k]; ok {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}
	return out, nil
}

func requiredString(ev map[string]any, field string) (string, error) {
	v, ok := ev[field]
	if !ok || v == nil {
		return "", fieldErr(field, field+" cannot be empty")
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldErr(field, field+" must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fieldErr(field, field+" cannot be empty")
	}
	return s, nil
}

func gameVersion(ev map[string]any) (string, error) {
	v, ok := ev["game_version"]
	if !ok || v == nil {
		return "", fieldErr("game_version", "game_version is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldErr("game_version", "game_version must be a string")
	}
	return s, nil
}

func optionalString(ev map[string]any, field string) (string, error) {
	v, ok := ev[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldErr(field, field+" must be a string")
	}
	return strings.TrimSpace(s), nil
}

func data(ev map[string]any) (map[string]any, error) {
	v, ok := ev["data"]
	if !ok || v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fieldErr("data", "data must be an object")
	}
	return m, nil
}

func timestamp(ev map[string]any, now func() time.Time) (time.Time, error) {
	v, ok := ev["timestamp"]
	if !ok || v == nil {
		return now().UTC(), nil
	}
	t, err := ParseTimestamp(v)
	if err != nil {
		return time.Time{}, fieldErr("timestamp", "timestamp must be a valid datetime")
	}
	return t, nil
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 strings in any letter case, unix seconds or
// unix milliseconds. The result is always UTC.
func ParseTimestamp(v any) (time.Time, error) {
	switch vv := v.(type) {
	case string:
		s := strings.ToUpper(strings.TrimSpace(vv))
		if s == "" {
			return time.Time{}, fmt.Errorf("empty timestamp")
		}
		if isNumeric(s) {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return time.Time{}, err
			}
			return fromUnix(f)
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unsupported timestamp %q", vv)
	case json.Number:
		f, err := vv.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return fromUnix(f)
	case float64:
		return fromUnix(vv)
	case int:
		return fromUnix(float64(vv))
	case int64:
		return fromUnix(float64(vv))
	case time.Time:
		return vv.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func fromUnix(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("invalid unix time")
	}
	if math.Abs(f) > msThreshold {
		f /= 1000
	}
	if f < minUnix || f > maxUnix {
		return time.Time{}, fmt.Errorf("unix time %g out of range", f)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC(), nil
}

// isNumeric matches an optionally signed decimal like "-1700000000.5".
func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	intPart, frac, hasDot := strings.Cut(s, ".")
	if intPart == "" || !isDigits(intPart) {
		return false
	}
	return !hasDot || (frac != "" && isDigits(frac))
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
