package customers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type memoryCustomerRepo struct {
	customers map[int64]Customer
	nextID    int64
}

func newMemoryCustomerRepo() *memoryCustomerRepo {
	return &memoryCustomerRepo{customers: make(map[int64]Customer)}
}

func (m *memoryCustomerRepo) Create(_ context.Context, input CustomerInput) (*Customer, error) {
	m.nextID++
	now := time.Now()
	c := Customer{
		ID:          m.nextID,
		Name:        input.Name,
		Location:    input.Location,
		Phone:       input.Phone,
		CustomPrice: input.CustomPrice,
		CreditLimit: input.CreditLimit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.customers[c.ID] = c
	return &c, nil
}

func (m *memoryCustomerRepo) Update(_ context.Context, id int64, input CustomerInput) (*Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Name = input.Name
	c.Location = input.Location
	c.Phone = input.Phone
	c.CustomPrice = input.CustomPrice
	c.CreditLimit = input.CreditLimit
	c.UpdatedAt = time.Now()
	m.customers[id] = c
	return &c, nil
}

func (m *memoryCustomerRepo) Get(_ context.Context, id int64) (*Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *memoryCustomerRepo) List(_ context.Context) ([]Customer, error) {
	out := make([]Customer, 0, len(m.customers))
	for _, c := range m.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func TestServiceCreateValidates(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CustomerInput{Name: "   "})
	require.Error(t, err)

	_, err = svc.Create(ctx, CustomerInput{Name: "Aling Nena", CreditLimit: -1})
	require.Error(t, err)

	bad := -5.0
	_, err = svc.Create(ctx, CustomerInput{Name: "Aling Nena", CustomPrice: &bad})
	require.Error(t, err)

	c, err := svc.Create(ctx, CustomerInput{Name: "Aling Nena", Location: "Purok 3", CreditLimit: 500})
	require.NoError(t, err)
	require.Equal(t, int64(1), c.ID)
	require.Equal(t, 500.0, c.CreditLimit)
}

func TestServiceUpdate(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo())
	ctx := context.Background()

	c, err := svc.Create(ctx, CustomerInput{Name: "Mang Ben"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, c.ID, CustomerInput{Name: "Mang Ben", Phone: "0917 000 1234", CreditLimit: 1000})
	require.NoError(t, err)
	require.Equal(t, "0917 000 1234", updated.Phone)
	require.Equal(t, 1000.0, updated.CreditLimit)

	_, err = svc.Update(ctx, 99, CustomerInput{Name: "Ghost"})
	require.ErrorIs(t, err, ErrNotFound)
}

func newTestRouter() *chi.Mux {
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(newMemoryCustomerRepo()))
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCRUD(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/", map[string]any{
		"name":         "Tindahan ni Rosa",
		"location":     "Bayan",
		"credit_limit": 750,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, int64(1), created.ID)

	rec = doJSON(t, router, http.MethodGet, "/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/1", map[string]any{
		"name":  "Tindahan ni Rosa",
		"phone": "0917 555 0000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/", map[string]any{"location": "no name"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
