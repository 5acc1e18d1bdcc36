package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
	"github.com/vladislavdragonenkov/orcamentos/internal/storage/memory"
)

func okCheck(context.Context) error { return nil }

type stubStats struct {
	stats domain.OutboxStats
	err   error
}

func (s stubStats) Stats(context.Context) (domain.OutboxStats, error) { return s.stats, s.err }

func serve(t *testing.T, handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("store", NewStoreChecker(memory.NewRecordStore()))

	w := serve(t, handler.ServeHTTP, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusHealthy, response.Status)
	require.Equal(t, "v1.0.0", response.Version)
	require.Len(t, response.Checks, 1)
	require.Equal(t, "store", response.Checks["store"].Name)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("store", NewSimpleChecker("store", func(context.Context) error {
		return errors.New("connection refused")
	}))

	w := serve(t, handler.ServeHTTP, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusUnhealthy, response.Status)
	require.Equal(t, "connection refused", response.Checks["store"].Message)
}

func TestHealthHandler_DegradedOutboxStaysReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	checker := NewOutboxChecker(stubStats{stats: domain.OutboxStats{
		PendingCount:    3,
		OldestPendingAt: time.Now().UTC().Add(-10 * time.Minute),
	}}, time.Minute)
	handler.RegisterChecker("outbox", checker)

	w := serve(t, handler.ServeHTTP, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusDegraded, response.Status)

	ready := serve(t, handler.ReadinessHandler, "/readyz")
	require.Equal(t, http.StatusOK, ready.Code)
}

func TestOutboxChecker(t *testing.T) {
	ctx := context.Background()

	fresh := NewOutboxChecker(stubStats{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: time.Now().UTC()}}, time.Minute)
	require.Equal(t, StatusHealthy, fresh.Check(ctx).Status)

	empty := NewOutboxChecker(stubStats{}, time.Minute)
	require.Equal(t, StatusHealthy, empty.Check(ctx).Status)

	failing := NewOutboxChecker(stubStats{err: errors.New("store down")}, time.Minute)
	check := failing.Check(ctx)
	require.Equal(t, StatusUnhealthy, check.Status)
	require.Equal(t, "store down", check.Message)
}

func TestLivenessHandler(t *testing.T) {
	w := serve(t, LivenessHandler, "/livez")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("test", NewSimpleChecker("test", okCheck))

	w := serve(t, handler.ReadinessHandler, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ready", w.Body.String())
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("test", NewSimpleChecker("test", func(context.Context) error {
		return errors.New("not ready")
	}))

	w := serve(t, handler.ReadinessHandler, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "not ready", w.Body.String())
}

func TestSimpleChecker_ReceivesDeadline(t *testing.T) {
	handler := NewHandler("v1.0.0")
	var hasDeadline bool
	handler.RegisterChecker("test", NewSimpleChecker("test", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}))

	serve(t, handler.ServeHTTP, "/healthz")
	require.True(t, hasDeadline)
}
