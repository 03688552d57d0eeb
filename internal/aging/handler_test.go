package aging

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(rows []OpenTabRow) *chi.Mux {
	svc := NewService(&memoryAgingRepo{rows: rows}, NewCache(nil, 0))
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router
}

func TestHandlerAgingReport(t *testing.T) {
	router := newTestRouter(testRows(time.Now()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aging", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Customers, 3)
	require.Equal(t, 1950.0, report.Total)
}

func TestHandlerAgingCSVExport(t *testing.T) {
	router := newTestRouter(testRows(time.Now()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aging/export.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	require.True(t, strings.HasPrefix(rec.Body.String(), "customer_id,name,location"))
}

func TestHandlerSummary(t *testing.T) {
	router := newTestRouter(testRows(time.Now()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Customers []SummaryRow `json:"customers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Customers, 3)
}
