package output

import (
	"encoding/json"

	"github.com/courseflow/courseflow/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatUsage renders the usage view as JSON.
func (f *JSONFormatter) FormatUsage(view *UsageView) (string, error) {
	if view == nil {
		return "", nil
	}
	return f.marshal(view)
}

// FormatRateLimits renders counters as a JSON array.
func (f *JSONFormatter) FormatRateLimits(entries []core.RateLimitEntry) (string, error) {
	if entries == nil {
		entries = []core.RateLimitEntry{}
	}
	return f.marshal(entries)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
