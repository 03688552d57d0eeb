package customers

import (
	"context"
	"errors"
	"strings"
)

// Service handles customer business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func validate(input CustomerInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return errors.New("customers: name required")
	}
	if input.CreditLimit < 0 {
		return errors.New("customers: credit limit must not be negative")
	}
	if input.CustomPrice != nil && *input.CustomPrice < 0 {
		return errors.New("customers: custom price must not be negative")
	}
	return nil
}

// Create registers a customer.
func (s *Service) Create(ctx context.Context, input CustomerInput) (*Customer, error) {
	if err := validate(input); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, input)
}

// Update rewrites customer master data.
func (s *Service) Update(ctx context.Context, id int64, input CustomerInput) (*Customer, error) {
	if err := validate(input); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, input)
}

// Get returns one customer.
func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns all customers.
func (s *Service) List(ctx context.Context) ([]Customer, error) {
	return s.repo.List(ctx)
}
