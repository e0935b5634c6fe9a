package store

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Doc is a schemaless document as seen by every backend. Values read back
// from JSON or BSON decoders have backend-specific Go types; the accessors
// below hide that.
type Doc map[string]any

// TimeLayout is a fixed-width UTC layout so that text comparison equals
// chronological comparison.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t with TimeLayout.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// Has reports whether key is present with a non-nil value.
func (d Doc) Has(key string) bool {
	v, ok := d[key]
	return ok && v != nil
}

// String returns the string value of key or "".
func (d Doc) String(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		if s, ok := Normalize(v).(string); ok {
			return s
		}
		return ""
	}
}

// Int returns the integer value of key or 0.
func (d Doc) Int(key string) int64 {
	switch v := d[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(math.Round(v))
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Float returns the float value of key or 0.
func (d Doc) Float(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return float64(d.Int(key))
	}
}

type timer interface{ Time() time.Time }

// Time returns the timestamp stored under key; zero if absent or unparsable.
func (d Doc) Time(key string) time.Time {
	switch v := d[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range []string{TimeLayout, time.RFC3339Nano} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	case timer:
		return v.Time().UTC()
	}
	return time.Time{}
}

// Strings returns a string slice value of key.
func (d Doc) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Docs returns a slice of sub documents stored under key.
func (d Doc) Docs(key string) []Doc {
	switch v := d[key].(type) {
	case []Doc:
		return v
	case []map[string]any:
		out := make([]Doc, 0, len(v))
		for _, m := range v {
			out = append(out, Doc(m))
		}
		return out
	case []any:
		out := make([]Doc, 0, len(v))
		for _, e := range v {
			switch m := e.(type) {
			case map[string]any:
				out = append(out, Doc(m))
			case Doc:
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// Clone returns a deep copy of d.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case Doc:
		return x.Clone()
	case map[string]any:
		return map[string]any(Doc(x).Clone())
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	case []string:
		return append([]string(nil), x...)
	case []Doc:
		out := make([]Doc, len(x))
		for i := range x {
			out[i] = x[i].Clone()
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = map[string]any(Doc(x[i]).Clone())
		}
		return out
	default:
		return v
	}
}
