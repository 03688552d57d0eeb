package customers

import "time"

// Customer is owned by store management; the ledger reads identity and
// credit limit and never mutates it.
type Customer struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Phone       string    `json:"phone"`
	CustomPrice *float64  `json:"custom_price,omitempty"`
	CreditLimit float64   `json:"credit_limit"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CustomerInput carries create/update fields.
type CustomerInput struct {
	Name        string
	Location    string
	Phone       string
	CustomPrice *float64
	CreditLimit float64
}
