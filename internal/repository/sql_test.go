package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/store"
)

func TestSelectDocs_TranslatesFilter(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sql, args, err := selectDocs(store.DeliveryRequests,
		store.Where(
			store.Eq("status", "requested"),
			store.Lt("requestedAt", at),
			store.Nin("courierId", "L1", "L2"),
		),
		store.FindOptions{Sort: []store.SortKey{store.Desc("requestedAt")}, Limit: 10},
	)
	require.NoError(t, err)

	require.Contains(t, sql, "collection = $1")
	require.Contains(t, sql, "(doc -> $2::text) = $3::jsonb")
	require.Contains(t, sql, `COLLATE "C") < $5::text`)
	require.Contains(t, sql, "NOT IN (SELECT v::jsonb FROM unnest($7::text[]) AS v)")
	require.Contains(t, sql, `key COLLATE "C" ASC`)
	require.Contains(t, sql, "LIMIT $9")

	require.Equal(t, []any{
		store.DeliveryRequests,
		"status", `"requested"`,
		"requestedAt", "2024-05-01T12:00:00.000000000Z",
		"courierId", []string{`"L1"`, `"L2"`},
		"requestedAt",
		10,
	}, args)
}

func TestSelectDocs_RejectsUnsupportedRange(t *testing.T) {
	t.Parallel()

	_, _, err := selectDocs(store.Orders, store.Where(store.Lt("flags", []string{"a"})), store.FindOptions{})
	require.ErrorIs(t, err, apperr.ErrInvalid)

	_, _, err = selectDocs(store.Orders, store.Where(store.Cond{Field: "x", Op: "regex", Value: "a"}), store.FindOptions{})
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestLockDocs_LimitsToTwo(t *testing.T) {
	t.Parallel()

	sql, args, err := lockDocs(store.Couriers, store.Where(store.Eq("courierId", "L1"), store.Ne("status", "en_course")))
	require.NoError(t, err)
	require.Contains(t, sql, "LIMIT 2 FOR UPDATE")
	require.Contains(t, sql, "(doc -> $4::text) IS NULL OR (doc -> $4::text) = 'null'::jsonb")
	require.Len(t, args, 5)
}

func TestCodec_RoundTripsStoreShapes(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 123, time.FixedZone("x", 3600))
	data, err := encodeDoc(store.Doc{
		"orderNo":       "O1",
		"wave":          2,
		"createdAt":     at,
		"ratio":         0.5,
		"restaurantIds": []string{"R1", "R2"},
	})
	require.NoError(t, err)
	require.Contains(t, string(data), `"createdAt":"2024-05-01T11:00:00.000000123Z"`)

	d, err := decodeDoc(data)
	require.NoError(t, err)
	require.Equal(t, int64(2), d["wave"])
	require.Equal(t, 0.5, d["ratio"])
	require.True(t, at.Equal(d.Time("createdAt")))
	require.Equal(t, []string{"R1", "R2"}, d.Strings("restaurantIds"))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.NoError(t, classify(nil))
	require.ErrorIs(t, classify(&pgconn.PgError{Code: pgerrcode.AdminShutdown}), apperr.ErrStoreUnavailable)
	require.ErrorIs(t, classify(&pgconn.PgError{Code: pgerrcode.SerializationFailure}), apperr.ErrStoreUnavailable)
	require.ErrorIs(t, classify(errors.New("dial tcp: connection refused")), apperr.ErrStoreUnavailable)

	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	require.True(t, IsDuplicate(unique))
	require.NotErrorIs(t, classify(unique), apperr.ErrStoreUnavailable)
}
