package repository

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"delivery-orchestrator/internal/store"
)

// encodeDoc renders d as JSON. Times become fixed-width TimeLayout strings
// so that text order equals chronological order inside the database.
func encodeDoc(d store.Doc) ([]byte, error) {
	data, err := json.Marshal(encodeValue(d))
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func encodeValue(v any) any {
	switch x := store.Normalize(v).(type) {
	case time.Time:
		return store.FormatTime(x)
	case store.Doc:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = encodeValue(e)
		}
		return out
	case map[string]any:
		return encodeValue(store.Doc(x))
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = encodeValue(x[i])
		}
		return out
	case []store.Doc:
		out := make([]any, len(x))
		for i := range x {
			out[i] = encodeValue(x[i])
		}
		return out
	default:
		return x
	}
}

// jsonValue renders one filter operand as JSON text.
func jsonValue(v any) (string, error) {
	data, err := json.Marshal(encodeValue(v))
	if err != nil {
		return "", fmt.Errorf("encode filter value: %w", err)
	}
	return string(data), nil
}

// decodeDoc parses a stored document back into the shapes the in-memory
// store keeps: integral numbers as int64 and TimeLayout strings as times.
func decodeDoc(raw []byte) (store.Doc, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	out := make(store.Doc, len(m))
	for k, v := range m {
		out[k] = decodeValue(v)
	}
	return out, nil
}

func decodeValue(v any) any {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case string:
		if t, err := time.Parse(store.TimeLayout, x); err == nil {
			return t.UTC()
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = decodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = decodeValue(x[i])
		}
		return out
	default:
		return x
	}
}
