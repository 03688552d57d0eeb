package aging

import (
	"context"
	"time"

	"github.com/listahan/listahan/internal/ledger"
)

// OpenTabRow joins an open tab with the customer it belongs to.
type OpenTabRow struct {
	CustomerID int64
	Name       string
	Location   string
	Tab        ledger.DebtTab
}

// RepositoryPort defines read access for report generation.
type RepositoryPort interface {
	ListOpenTabsWithCustomers(ctx context.Context) ([]OpenTabRow, error)
}

// CustomerRow is one line of the aging report.
type CustomerRow struct {
	CustomerID int64            `json:"customer_id"`
	Name       string           `json:"name"`
	Location   string           `json:"location"`
	Balance    float64          `json:"balance"`
	AgeDays    int              `json:"age_days"`
	Buckets    Buckets          `json:"buckets"`
	Status     CollectionStatus `json:"status"`
}

// Report is the population-wide aging view.
type Report struct {
	AsOf      time.Time    `json:"as_of"`
	Customers []CustomerRow `json:"customers"`
	Summary   Buckets       `json:"summary"`
	Total     float64       `json:"total_outstanding"`
}

// SummaryRow is one line of the per-customer balance summary.
type SummaryRow struct {
	CustomerID int64            `json:"customer_id"`
	Name       string           `json:"name"`
	Balance    float64          `json:"balance"`
	Status     CollectionStatus `json:"status"`
}

// Service computes aging reports lazily from ledger state.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) buildReport(ctx context.Context, asOf time.Time) (*Report, error) {
	rows, err := s.repo.ListOpenTabsWithCustomers(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{AsOf: asOf}
	for _, row := range rows {
		if row.Tab.TotalBalance <= ledger.Epsilon {
			continue
		}
		days := AgeDays(row.Tab, asOf)
		buckets := Classify(row.Tab, asOf)
		report.Customers = append(report.Customers, CustomerRow{
			CustomerID: row.CustomerID,
			Name:       row.Name,
			Location:   row.Location,
			Balance:    row.Tab.TotalBalance,
			AgeDays:    days,
			Buckets:    buckets,
			Status:     Status(row.Tab.TotalBalance, days),
		})
		report.Summary.Current += buckets.Current
		report.Summary.Days31to60 += buckets.Days31to60
		report.Summary.Days61to90 += buckets.Days61to90
		report.Summary.Over90Days += buckets.Over90Days
	}
	report.Total = report.Summary.Total()
	return report, nil
}

// AgingReport returns the cached aging report, recomputing on miss.
func (s *Service) AgingReport(ctx context.Context) (*Report, error) {
	key, err := s.cache.BuildKey(ctx, "aging", "report")
	if err != nil {
		return nil, err
	}
	var report Report
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		return s.buildReport(ctx, time.Now())
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Summary returns per-customer balances and collection status for every
// customer carrying debt.
func (s *Service) Summary(ctx context.Context) ([]SummaryRow, error) {
	report, err := s.AgingReport(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SummaryRow, 0, len(report.Customers))
	for _, row := range report.Customers {
		out = append(out, SummaryRow{
			CustomerID: row.CustomerID,
			Name:       row.Name,
			Balance:    row.Balance,
			Status:     row.Status,
		})
	}
	return out, nil
}

// Warm precomputes the report so the first staff request after a quiet
// period does not pay the rebuild cost.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.AgingReport(ctx)
	return err
}
