package output

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/courseflow/courseflow/internal/core"
)

// YAMLFormatter renders results as YAML using the same field names as the
// JSON output.
type YAMLFormatter struct{}

// FormatUsage renders the usage view as YAML.
func (f *YAMLFormatter) FormatUsage(view *UsageView) (string, error) {
	if view == nil {
		return "", nil
	}
	return marshalYAML(view)
}

// FormatRateLimits renders counters as a YAML sequence.
func (f *YAMLFormatter) FormatRateLimits(entries []core.RateLimitEntry) (string, error) {
	if entries == nil {
		entries = []core.RateLimitEntry{}
	}
	return marshalYAML(entries)
}

// marshalYAML round-trips through JSON so json tags decide the keys.
func marshalYAML(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
