package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/service/inspect"
	"delivery-orchestrator/internal/store"
)

func withOrderNo(req *http.Request, orderNo string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderNo", orderNo)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestHandlers_Ping(t *testing.T) {
	t.Parallel()

	h := New(nil, nil, nil)
	rec := httptest.NewRecorder()
	h.Ping(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "pong", body["message"])
}

func TestHandlers_Healthcheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		health HealthFunc
		want   int
	}{
		{name: "no check", want: http.StatusNoContent},
		{name: "healthy", health: func(context.Context) error { return nil }, want: http.StatusNoContent},
		{name: "store down", health: func(context.Context) error { return apperr.ErrStoreUnavailable }, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := New(nil, nil, tt.health)
			rec := httptest.NewRecorder()
			h.HealthcheckHead(rec, httptest.NewRequest(http.MethodHead, "/healthcheck", nil))
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandlers_Order(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	orders := NewMockorderInspector(ctrl)
	orders.EXPECT().Dump(gomock.Any(), "O1").Return(inspect.Report{
		Order:    store.Doc{"orderNo": "O1", "status": "in_progress"},
		Couriers: []store.Doc{{"courierId": "L1"}},
	}, nil)

	h := New(nil, orders, nil)
	rec := httptest.NewRecorder()
	h.Order(rec, withOrderNo(httptest.NewRequest(http.MethodGet, "/orders/O1", nil), "O1"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body struct {
		Order    map[string]any   `json:"order"`
		Couriers []map[string]any `json:"couriers"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "in_progress", body.Order["status"])
	require.Len(t, body.Couriers, 1)
}

func TestHandlers_OrderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown order", err: apperr.ErrNotFound, want: http.StatusNotFound},
		{name: "store down", err: apperr.Unavailable(errors.New("dial tcp")), want: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			orders := NewMockorderInspector(ctrl)
			orders.EXPECT().Dump(gomock.Any(), "O9").Return(inspect.Report{}, tt.err)

			rec := httptest.NewRecorder()
			New(nil, orders, nil).Order(rec, withOrderNo(httptest.NewRequest(http.MethodGet, "/orders/O9", nil), "O9"))

			require.Equal(t, tt.want, rec.Code)
			var body errResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestHandlers_OrderBlankNumber(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New(nil, nil, nil).Order(rec, withOrderNo(httptest.NewRequest(http.MethodGet, "/orders/%20", nil), " "))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Stats(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	orders := NewMockorderInspector(ctrl)
	orders.EXPECT().Stats(gomock.Any(), 100).Return(inspect.Stats{Count: 2, Min: 10, Max: 30, Avg: 20}, nil)
	orders.EXPECT().Stats(gomock.Any(), 5).Return(inspect.Stats{Count: 1}, nil)

	h := New(nil, orders, nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st inspect.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	require.Equal(t, 2, st.Count)
	require.Equal(t, int64(30), st.Max)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats?last=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	for _, q := range []string{"abc", "-1", "10001"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats?last="+q, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHandlers_NotFound(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New(nil, nil, nil).NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"route not found"}`, rec.Body.String())
}
