package config

import (
	"errors"

	"github.com/knadh/koanf/v2"
)

// valuesProvider feeds an already-decoded map into koanf.
type valuesProvider struct {
	values map[string]any
}

// Values returns a koanf provider over values, e.g. an editor-side settings
// dictionary. Keys use the same names as the YAML file.
func Values(values map[string]any) koanf.Provider {
	return valuesProvider{values: values}
}

func (p valuesProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: values provider does not support ReadBytes")
}

func (p valuesProvider) Read() (map[string]any, error) {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out, nil
}
