package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Chunk is a unit of source text with metadata, one JSONL line on disk.
type Chunk struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Meta returns the metadata value for key rendered as a string, or "".
func (c Chunk) Meta(key string) string {
	return MetaString(c.Metadata, key)
}

// MetaString renders a metadata value as a string. Numbers written by
// encoding/json come back as float64, so integral values print without a
// fractional part.
func MetaString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// StringMetadata flattens metadata for stores that only keep strings.
func StringMetadata(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k := range m {
		if s := MetaString(m, k); s != "" {
			out[k] = s
		}
	}
	return out
}

// AnyMetadata widens string metadata back to the chunk form.
func AnyMetadata(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clone returns a copy whose metadata map can be mutated independently.
func (c Chunk) Clone() Chunk {
	md := make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		md[k] = v
	}
	return Chunk{Text: c.Text, Metadata: md}
}

func (c Chunk) IsEmpty() bool {
	return strings.TrimSpace(c.Text) == ""
}
