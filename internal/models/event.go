package models

import (
	"errors"
	"strings"
	"time"
)

// EventType distinguishes storefront business events
type EventType string

const (
	EventSale    EventType = "sale"
	EventExpense EventType = "expense"
	EventProduct EventType = "product"
)

// IsValid checks if the event type is known
func (t EventType) IsValid() bool {
	switch t {
	case EventSale, EventExpense, EventProduct:
		return true
	default:
		return false
	}
}

// Event errors
var (
	ErrInvalidEventType = errors.New("unknown event type")
	ErrMissingPayload   = errors.New("event payload missing for its type")
)

// BusinessEvent is the envelope published by the storefront whenever a sale
// or expense is recorded or a product changes. Exactly one payload field is
// set, matching Type.
type BusinessEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	RecordedAt time.Time `json:"recorded_at"`

	Sale    *Sale    `json:"sale,omitempty"`
	Expense *Expense `json:"expense,omitempty"`
	Product *Product `json:"product,omitempty"`
}

// Normalize trims identifiers and lower-cases the expense category so
// category aggregation does not split on casing.
func (e *BusinessEvent) Normalize() {
	e.ID = strings.TrimSpace(e.ID)
	e.Type = EventType(strings.ToLower(strings.TrimSpace(string(e.Type))))

	if e.Sale != nil {
		e.Sale.ID = strings.TrimSpace(e.Sale.ID)
		e.Sale.ProductID = strings.TrimSpace(e.Sale.ProductID)
	}
	if e.Expense != nil {
		e.Expense.ID = strings.TrimSpace(e.Expense.ID)
		e.Expense.Description = strings.TrimSpace(e.Expense.Description)
		e.Expense.Category = strings.ToLower(strings.TrimSpace(e.Expense.Category))
	}
	if e.Product != nil {
		e.Product.ID = strings.TrimSpace(e.Product.ID)
		e.Product.Name = strings.TrimSpace(e.Product.Name)
	}
}

// Validate checks the envelope and its payload
func (e *BusinessEvent) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if !e.Type.IsValid() {
		return ErrInvalidEventType
	}

	switch e.Type {
	case EventSale:
		if e.Sale == nil {
			return ErrMissingPayload
		}
		return e.Sale.Validate()
	case EventExpense:
		if e.Expense == nil {
			return ErrMissingPayload
		}
		return e.Expense.Validate()
	case EventProduct:
		if e.Product == nil {
			return ErrMissingPayload
		}
		return e.Product.Validate()
	}
	return nil
}
