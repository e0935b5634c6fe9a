package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type status string

func TestFilter_Match(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	d := Doc{"orderNo": "O1", "status": "searching_courier", "wave": int64(1), "requestedAt": now}

	require.True(t, Where(Eq("orderNo", "O1"), Eq("status", status("searching_courier"))).Match(d))
	require.True(t, Where(In("status", status("accepted_by_restaurant"), status("searching_courier"))).Match(d))
	require.False(t, Where(Nin("status", "searching_courier")).Match(d))
	require.True(t, Where(Nin("courierId", "L1")).Match(d), "missing field is not in the list")
	require.True(t, Where(Ne("courierId", "L1")).Match(d))
	require.False(t, Where(Eq("courierId", "L1")).Match(d))
	require.True(t, Where(Eq("wave", 1)).Match(d))
	require.True(t, Where(Lt("requestedAt", now.Add(time.Second))).Match(d))
	require.False(t, Where(Lt("requestedAt", now)).Match(d))
	require.True(t, Where(Lte("requestedAt", now)).Match(d))
	require.True(t, Filter(nil).Match(d))
}

func TestFilter_TimeTextAndTimeValueCompareEqual(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC)
	d := Doc{"requestedAt": FormatTime(now)}

	require.True(t, Where(Lt("requestedAt", now.Add(time.Nanosecond))).Match(d))
	require.True(t, Where(Eq("requestedAt", now)).Match(d))
}

func TestMutation_Apply(t *testing.T) {
	t.Parallel()

	orig := Doc{"status": "offered", "currentOrderNo": "O1"}
	got := Set(Doc{"status": status("available")}).AndUnset("currentOrderNo").Apply(orig)

	require.Equal(t, Doc{"status": "available"}, got)
	require.Equal(t, "offered", orig.String("status"), "source document untouched")
}

func TestLess_MultiKey(t *testing.T) {
	t.Parallel()

	a := Doc{"lastOfferedAt": nil, "courierId": "L9"}
	b := Doc{"lastOfferedAt": time.Unix(10, 0), "courierId": "L1"}
	keys := []SortKey{Asc("lastOfferedAt"), Asc("courierId")}

	require.True(t, Less(keys, a, b))
	require.False(t, Less(keys, b, a))
	require.True(t, Less([]SortKey{Desc("courierId")}, a, b))
}

func TestDoc_Accessors(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	d := Doc{
		"s":     "x",
		"f":     float64(42),
		"i32":   int32(7),
		"t":     ts.Format(time.RFC3339Nano),
		"tt":    ts,
		"ids":   []any{"R1", "R2"},
		"items": []any{map[string]any{"name": "pizza", "quantity": float64(2)}},
	}

	require.Equal(t, "x", d.String("s"))
	require.Equal(t, int64(42), d.Int("f"))
	require.Equal(t, int64(7), d.Int("i32"))
	require.Equal(t, ts, d.Time("t"))
	require.Equal(t, ts, d.Time("tt"))
	require.True(t, d.Time("missing").IsZero())
	require.Equal(t, []string{"R1", "R2"}, d.Strings("ids"))
	require.Len(t, d.Docs("items"), 1)
	require.Equal(t, int64(2), d.Docs("items")[0].Int("quantity"))
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100*time.Millisecond, Backoff(100*time.Millisecond, 30*time.Second, 1))
	require.Equal(t, 400*time.Millisecond, Backoff(100*time.Millisecond, 30*time.Second, 3))
	require.Equal(t, 30*time.Second, Backoff(100*time.Millisecond, 30*time.Second, 20))
	require.Equal(t, 30*time.Second, Backoff(100*time.Millisecond, 30*time.Second, 64))
	require.Equal(t, time.Duration(0), Backoff(0, 30*time.Second, 3))
}
