package customers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates an unknown customer.
var ErrNotFound = errors.New("customers: not found")

// RepositoryPort defines data access for customers.
type RepositoryPort interface {
	Create(ctx context.Context, input CustomerInput) (*Customer, error)
	Update(ctx context.Context, id int64, input CustomerInput) (*Customer, error)
	Get(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context) ([]Customer, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, name, location, phone, custom_price, credit_limit, created_at, updated_at`

func scan(row pgx.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Location, &c.Phone, &c.CustomPrice, &c.CreditLimit, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a customer.
func (r *Repository) Create(ctx context.Context, input CustomerInput) (*Customer, error) {
	now := time.Now()
	row := r.pool.QueryRow(ctx, `INSERT INTO customers (name, location, phone, custom_price, credit_limit, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING `+columns, input.Name, input.Location, input.Phone, input.CustomPrice, input.CreditLimit, now)
	return scan(row)
}

// Update rewrites mutable customer fields.
func (r *Repository) Update(ctx context.Context, id int64, input CustomerInput) (*Customer, error) {
	row := r.pool.QueryRow(ctx, `UPDATE customers SET name=$1, location=$2, phone=$3, custom_price=$4, credit_limit=$5, updated_at=$6 WHERE id=$7 RETURNING `+columns,
		input.Name, input.Location, input.Phone, input.CustomPrice, input.CreditLimit, time.Now(), id)
	return scan(row)
}

// Get returns a customer by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE id=$1`, id)
	return scan(row)
}

// List returns all customers ordered by name.
func (r *Repository) List(ctx context.Context) ([]Customer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.Phone, &c.CustomPrice, &c.CreditLimit, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
