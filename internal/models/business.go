package models

import (
	"errors"
	"time"
)

// Product is a catalog item as seen by the dashboard. The engine only
// reads products; UnitsSold and Stock are maintained by the sale ingest
// path.
type Product struct {
	// Opaque stable identifier assigned by the catalog
	ID string `json:"id"`

	// Display name
	Name string `json:"name"`

	// Cost to produce one unit
	CostPerUnit float64 `json:"cost_per_unit"`

	// Listed price per unit
	PricePerUnit float64 `json:"price_per_unit"`

	// Units sold so far, increased only by recorded sales
	UnitsSold int `json:"units_sold"`

	// Units currently in stock, decreased by recorded sales, never below zero
	Stock int `json:"stock"`
}

// Expense is a recorded business expense. Append-only from the engine's
// perspective.
type Expense struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
}

// Sale is a recorded sale of one product. TotalAmount is the price at the
// time of sale times quantity and is never recomputed later.
type Sale struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	TotalAmount float64   `json:"total_amount"`
	Date        time.Time `json:"date"`
}

// Snapshot is an immutable read of current business state, captured once
// per evaluation pass. The evaluator never mutates it.
type Snapshot struct {
	Products []Product `json:"products"`
	Sales    []Sale    `json:"sales"`
	Expenses []Expense `json:"expenses"`
}

// Validation errors
var (
	ErrEmptyID          = errors.New("id cannot be empty")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNegativeCost     = errors.New("cost per unit cannot be negative")
	ErrNegativePrice    = errors.New("price per unit cannot be negative")
	ErrNegativeStock    = errors.New("stock cannot be negative")
	ErrEmptyProductID   = errors.New("product id cannot be empty")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrNegativeAmount   = errors.New("amount cannot be negative")
	ErrEmptyCategory    = errors.New("category cannot be empty")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrInvalidTimestamp = errors.New("invalid timestamp format")
)

// Validate checks if the Product has valid values
func (p *Product) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}
	if p.Name == "" {
		return ErrEmptyName
	}
	if p.CostPerUnit < 0 {
		return ErrNegativeCost
	}
	if p.PricePerUnit < 0 {
		return ErrNegativePrice
	}
	if p.Stock < 0 {
		return ErrNegativeStock
	}
	return nil
}

// Validate checks if the Sale has valid values
func (s *Sale) Validate() error {
	if s.ID == "" {
		return ErrEmptyID
	}
	if s.ProductID == "" {
		return ErrEmptyProductID
	}
	if s.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if s.TotalAmount < 0 {
		return ErrNegativeAmount
	}
	if s.Date.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Validate checks if the Expense has valid values
func (e *Expense) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.Amount < 0 {
		return ErrNegativeAmount
	}
	if e.Category == "" {
		return ErrEmptyCategory
	}
	if e.Date.IsZero() {
		return ErrZeroDate
	}
	return nil
}
