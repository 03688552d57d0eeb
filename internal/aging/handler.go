package aging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/listahan/listahan/internal/platform/httpx"
)

// Handler manages report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	group   singleflight.Group
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/aging", h.agingReport)
	r.Get("/aging/export.csv", h.agingReportCSV)
	r.Get("/summary", h.summary)
}

// report deduplicates concurrent rebuilds behind one flight.
func (h *Handler) report(ctx context.Context) (*Report, error) {
	resultChan := h.group.DoChan("aging-report", func() (interface{}, error) {
		return h.service.AgingReport(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Report), nil
	}
}

func (h *Handler) agingReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.report(r.Context())
	if err != nil {
		h.logger.Error("aging report", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) agingReportCSV(w http.ResponseWriter, r *http.Request) {
	report, err := h.report(r.Context())
	if err != nil {
		h.logger.Error("aging report csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	filename := fmt.Sprintf("aging-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := writeReportCSV(w, report); err != nil {
		h.logger.Error("aging report csv write", slog.Any("error", err))
	}
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Summary(r.Context())
	if err != nil {
		h.logger.Error("aging summary", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": rows})
}
