package inputs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is a key-value map for input-type-specific configuration.
// Values come from JSON or the environment, so accessors accept both native
// and string encodings.
type Config map[string]any

func (c Config) String(key string) string {
	switch v := c[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Strings accepts a list or a comma separated string.
func (c Config) Strings(key string) []string {
	var raw []string
	switch v := c[key].(type) {
	case []string:
		raw = v
	case []any:
		for _, e := range v {
			raw = append(raw, fmt.Sprint(e))
		}
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c Config) Int(key string, def int) (int, error) {
	switch v := c[key].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

// Duration accepts a time.Duration or a string such as "500ms".
func (c Config) Duration(key string, def time.Duration) (time.Duration, error) {
	switch v := c[key].(type) {
	case nil:
		return def, nil
	case time.Duration:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}
