package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" and "yml".
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown snapshot format %q", raw)
}

// Ext is the file extension used for the format.
func (f Format) Ext() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// Marshal encodes s in the given format.
func Marshal(f Format, s Snapshot) ([]byte, error) {
	switch f {
	case FormatYAML:
		data, err := yaml.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("marshal yaml snapshot: %w", err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal json snapshot: %w", err)
		}
		return data, nil
	}
}

// Unmarshal decodes data in the given format.
func Unmarshal(f Format, data []byte) (Snapshot, error) {
	var s Snapshot
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Snapshot{}, fmt.Errorf("unmarshal yaml snapshot: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &s); err != nil {
			return Snapshot{}, fmt.Errorf("unmarshal json snapshot: %w", err)
		}
	}
	return s, nil
}
