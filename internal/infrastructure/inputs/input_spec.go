package inputs

// InputSpec describes an input instance built from configuration.
type InputSpec struct {
	Type   string
	Name   string
	Config Config
}

// ConfigWithName returns a copy of Config with the instance name set, unless
// the config already carries one.
func (s InputSpec) ConfigWithName() Config {
	cfg := make(Config, len(s.Config)+1)
	for k, v := range s.Config {
		cfg[k] = v
	}
	if _, ok := cfg["name"]; !ok && s.Name != "" {
		cfg["name"] = s.Name
	}
	return cfg
}
