package inputs

// ConfigField describes one configuration field for an input type.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "duration", "list"
	Required    bool   `json:"required"`
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
	Example     string `json:"example,omitempty"`
}

// InputTypeInfo describes an input type and the configuration it expects.
// Exposed via GET /inputs/info.
type InputTypeInfo struct {
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Fields      []ConfigField `json:"fields"`
}

// Missing returns the required fields that cfg leaves empty.
func (t InputTypeInfo) Missing(cfg Config) []string {
	var out []string
	for _, f := range t.Fields {
		if !f.Required {
			continue
		}
		empty := cfg.String(f.Name) == ""
		if f.Type == "list" {
			empty = len(cfg.Strings(f.Name)) == 0
		}
		if empty {
			out = append(out, f.Name)
		}
	}
	return out
}
