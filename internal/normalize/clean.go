package normalize

// unwantedFields are client debugging leftovers that never reach validation.
var unwantedFields = map[string]struct{}{
	"debug_info":   {},
	"unused_field": {},
}

// Clean returns a copy of event without the unwanted top-level fields.
func Clean(event map[string]any) map[string]any {
	out := make(map[string]any, len(event))
	for k, v := range event {
		if _, drop := unwantedFields[k]; drop {
			continue
		}
		out[k] = v
	}
	return out
}
