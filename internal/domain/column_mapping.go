package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ColumnMappingEntry binds one source column header to a metric identifier.
type ColumnMappingEntry struct {
	Column   string `json:"column"`
	MetricID string `json:"metricId"`
}

// ColumnMapping is an ordered column -> metric association. It encodes as a
// JSON object and keeps the key order of the document it was decoded from.
type ColumnMapping []ColumnMappingEntry

// Clone returns an independent copy.
func (m ColumnMapping) Clone() ColumnMapping {
	if m == nil {
		return ColumnMapping{}
	}
	return append(ColumnMapping{}, m...)
}

// Columns lists the mapped source columns in order.
func (m ColumnMapping) Columns() []string {
	cols := make([]string, len(m))
	for i, entry := range m {
		cols[i] = entry.Column
	}
	return cols
}

// MetricIDs lists the distinct mapped metric identifiers in first-seen order.
func (m ColumnMapping) MetricIDs() []string {
	seen := make(map[string]struct{}, len(m))
	ids := make([]string, 0, len(m))
	for _, entry := range m {
		if _, ok := seen[entry.MetricID]; ok {
			continue
		}
		seen[entry.MetricID] = struct{}{}
		ids = append(ids, entry.MetricID)
	}
	return ids
}

// MarshalJSON writes the mapping as an object in entry order.
func (m ColumnMapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Column)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.MetricID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of string values, preserving key order.
// A JSON null decodes to an empty mapping.
func (m *ColumnMapping) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("column mapping: %w", err)
	}
	if tok == nil {
		*m = ColumnMapping{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("column mapping must be a JSON object")
	}

	out := ColumnMapping{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("column mapping: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("column mapping: unexpected key %v", keyTok)
		}
		var metricID string
		if err := dec.Decode(&metricID); err != nil {
			return fmt.Errorf("column mapping value for %q must be a string", key)
		}
		out = append(out, ColumnMappingEntry{Column: key, MetricID: metricID})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("column mapping: %w", err)
	}

	*m = out
	return nil
}

// ParseColumnMapping decodes the wire form of a mapping. Blank input is an empty mapping.
func ParseColumnMapping(raw string) (ColumnMapping, error) {
	if len(bytes.TrimSpace([]byte(raw))) == 0 {
		return ColumnMapping{}, nil
	}
	var mapping ColumnMapping
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}
