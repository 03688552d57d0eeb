package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/listahan/listahan/internal/customers"
	"github.com/listahan/listahan/internal/platform/httpx"
	"github.com/listahan/listahan/internal/shared"
)

// CustomerDirectory resolves customer identity for read endpoints.
type CustomerDirectory interface {
	Get(ctx context.Context, id int64) (*customers.Customer, error)
}

// MutationObserver counts mutation attempts for monitoring.
type MutationObserver interface {
	ObserveMutation(txType, outcome string)
}

// Handler manages ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	directory CustomerDirectory
	observer  MutationObserver
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, directory CustomerDirectory, observer MutationObserver) *Handler {
	return &Handler{logger: logger, service: service, directory: directory, observer: observer, validate: validator.New()}
}

func (h *Handler) observe(txType string, err error) {
	if h.observer == nil {
		return
	}
	outcome := "accepted"
	if err != nil {
		outcome = "rejected"
	}
	h.observer.ObserveMutation(txType, outcome)
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/charges", h.createCharge)
	r.Post("/payments", h.createPayment)
	r.Post("/adjustments", h.createAdjustment)
	r.Post("/customers/{id}/mark-paid", h.markPaid)
	r.Get("/customers/{id}/debt", h.getCustomerDebt)
	r.Get("/customers/{id}/history", h.getCustomerHistory)
	r.Get("/transactions", h.listTransactions)
}

type chargeRequest struct {
	CustomerID int64   `json:"customer_id" validate:"required,gt=0"`
	Containers int     `json:"containers" validate:"required,gt=0"`
	UnitPrice  float64 `json:"unit_price" validate:"gte=0"`
	Date       string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes      string  `json:"notes" validate:"max=500"`
	EnteredBy  int64   `json:"entered_by"`
}

type paymentRequest struct {
	CustomerID int64   `json:"customer_id" validate:"required,gt=0"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Date       string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes      string  `json:"notes" validate:"max=500"`
	EnteredBy  int64   `json:"entered_by"`
}

type adjustmentRequest struct {
	CustomerID int64   `json:"customer_id" validate:"required,gt=0"`
	Amount     float64 `json:"amount" validate:"required"`
	Reason     string  `json:"reason" validate:"required,max=250"`
	Date       string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes      string  `json:"notes" validate:"max=500"`
	EnteredBy  int64   `json:"entered_by"`
}

type markPaidRequest struct {
	FinalPayment *float64 `json:"final_payment" validate:"omitempty,gt=0"`
	Date         string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes        string   `json:"notes" validate:"max=500"`
	EnteredBy    int64    `json:"entered_by"`
}

type tabResponse struct {
	ID           int64      `json:"id"`
	CustomerID   int64      `json:"customer_id"`
	Status       TabStatus  `json:"status"`
	TotalBalance float64    `json:"total_balance"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type transactionResponse struct {
	ID           int64           `json:"id"`
	Ref          string          `json:"ref"`
	TabID        int64           `json:"tab_id"`
	CustomerID   int64           `json:"customer_id"`
	Type         TransactionType `json:"type"`
	Date         time.Time       `json:"date"`
	Containers   int             `json:"containers,omitempty"`
	UnitPrice    float64         `json:"unit_price,omitempty"`
	Amount       float64         `json:"amount,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	BalanceAfter float64         `json:"balance_after"`
	Notes        string          `json:"notes,omitempty"`
	EnteredBy    int64           `json:"entered_by"`
}

func toTabResponse(tab *DebtTab) *tabResponse {
	if tab == nil {
		return nil
	}
	return &tabResponse{
		ID:           tab.ID,
		CustomerID:   tab.CustomerID,
		Status:       tab.Status,
		TotalBalance: tab.TotalBalance,
		OpenedAt:     tab.OpenedAt,
		ClosedAt:     tab.ClosedAt,
		UpdatedAt:    tab.UpdatedAt,
	}
}

func toTransactionResponse(tx *DebtTransaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID,
		Ref:          tx.Ref,
		TabID:        tx.TabID,
		CustomerID:   tx.CustomerID,
		Type:         tx.Type,
		Date:         tx.Date,
		Containers:   tx.Containers,
		UnitPrice:    tx.UnitPrice,
		Amount:       tx.Amount,
		Reason:       tx.Reason,
		BalanceAfter: tx.BalanceAfter,
		Notes:        tx.Notes,
		EnteredBy:    tx.EnteredBy,
	}
}

// respondError maps ledger failures onto problem responses. Business
// rule violations are 422 so clients can distinguish "fix your input"
// from transport-level 4xx noise.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMissingReason):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrOverpayment), errors.Is(err, ErrNegativeBalance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	case errors.Is(err, ErrNoOpenTab):
		httpx.Problem(w, http.StatusConflict, "No Open Tab", err.Error())
	case errors.Is(err, ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Concurrent Modification", "tab changed while processing, retry the request")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, customers.ErrNotFound), errors.Is(err, ErrTabNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("ledger handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "request body must be valid JSON")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		httpx.FieldProblem(w, "request failed validation", fields)
		return false
	}
	return true
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}
	}
	return d
}

func idempotencyKey(r *http.Request) string {
	return r.Header.Get("Idempotency-Key")
}

func (h *Handler) createCharge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if _, err := h.directory.Get(r.Context(), req.CustomerID); err != nil {
		h.respondError(w, err)
		return
	}
	tx, err := h.service.Charge(r.Context(), ChargeInput{
		CustomerID:     req.CustomerID,
		Containers:     req.Containers,
		UnitPrice:      req.UnitPrice,
		Date:           parseDate(req.Date),
		Notes:          req.Notes,
		EnteredBy:      req.EnteredBy,
		IdempotencyKey: idempotencyKey(r),
	})
	h.observe("charge", err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	tx, err := h.service.Pay(r.Context(), PaymentInput{
		CustomerID:     req.CustomerID,
		Amount:         req.Amount,
		Date:           parseDate(req.Date),
		Notes:          req.Notes,
		EnteredBy:      req.EnteredBy,
		IdempotencyKey: idempotencyKey(r),
	})
	h.observe("payment", err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	tx, err := h.service.Adjust(r.Context(), AdjustmentInput{
		CustomerID:     req.CustomerID,
		Amount:         req.Amount,
		Reason:         req.Reason,
		Date:           parseDate(req.Date),
		Notes:          req.Notes,
		EnteredBy:      req.EnteredBy,
		IdempotencyKey: idempotencyKey(r),
	})
	h.observe("adjustment", err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || customerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "customer id must be a positive integer")
		return
	}
	var req markPaidRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	tab, err := h.service.MarkPaid(r.Context(), MarkPaidInput{
		CustomerID:     customerID,
		FinalPayment:   req.FinalPayment,
		Date:           parseDate(req.Date),
		Notes:          req.Notes,
		EnteredBy:      req.EnteredBy,
		IdempotencyKey: idempotencyKey(r),
	})
	h.observe("mark_paid", err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTabResponse(tab))
}

func (h *Handler) getCustomerDebt(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || customerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "customer id must be a positive integer")
		return
	}
	customer, err := h.directory.Get(r.Context(), customerID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	tab, err := h.service.GetCustomerDebt(r.Context(), customerID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"customer": customer,
		"tab":      toTabResponse(tab),
	})
}

func (h *Handler) getCustomerHistory(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || customerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "customer id must be a positive integer")
		return
	}
	if _, err := h.directory.Get(r.Context(), customerID); err != nil {
		h.respondError(w, err)
		return
	}
	history, err := h.service.GetCustomerHistory(r.Context(), customerID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	tabs := make([]*tabResponse, 0, len(history.Tabs))
	for i := range history.Tabs {
		tabs = append(tabs, toTabResponse(&history.Tabs[i]))
	}
	txs := make([]transactionResponse, 0, len(history.Transactions))
	for i := range history.Transactions {
		txs = append(txs, toTransactionResponse(&history.Transactions[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"customer_id":  customerID,
		"tabs":         tabs,
		"transactions": txs,
	})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "customer_id must be a positive integer")
			return
		}
		filter.CustomerID = id
	}
	if raw := q.Get("type"); raw != "" {
		switch TransactionType(raw) {
		case TxTypeCharge, TxTypePayment, TxTypeAdjustment:
			filter.Type = TransactionType(raw)
		default:
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "type must be CHARGE, PAYMENT or ADJUSTMENT")
			return
		}
	}
	if raw := q.Get("status"); raw != "" {
		switch TabStatus(raw) {
		case TabStatusOpen, TabStatusClosed:
			filter.TabStatus = TabStatus(raw)
		default:
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "status must be OPEN or CLOSED")
			return
		}
	}
	if raw := q.Get("from"); raw != "" {
		filter.DateFrom = parseDate(raw)
		if filter.DateFrom.IsZero() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		filter.DateTo = parseDate(raw)
		if filter.DateTo.IsZero() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("limit"))

	txs, page, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		out = append(out, toTransactionResponse(&txs[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": out,
		"pagination": map[string]int{
			"page":        page.Page,
			"per_page":    page.PerPage,
			"total":       page.Total,
			"total_pages": page.TotalPages,
		},
	})
}
