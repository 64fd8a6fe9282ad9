package models_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"centinela/internal/models"
)

func TestDedupKeyString(t *testing.T) {
	tests := []struct {
		key  models.DedupKey
		want string
	}{
		{models.DedupKey{Rule: models.RuleLowProfit, Subject: "p1"}, "low-profit:p1"},
		{models.DedupKey{Rule: models.RuleHighExpense, Subject: "embalaje"}, "high-expense:embalaje"},
		{models.DedupKey{Rule: models.RuleGoalReached}, "goal-reached"},
		{models.DedupKey{Rule: models.RuleExpenseRatio}, "expense-ratio"},
	}

	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if got := models.ParseDedupKey(tt.want); got != tt.key {
			t.Errorf("ParseDedupKey(%q) = %+v, want %+v", tt.want, got, tt.key)
		}
	}
}

func TestSaleValidate(t *testing.T) {
	validSale := func() *models.Sale {
		return &models.Sale{
			ID:          "s1",
			ProductID:   "p1",
			Quantity:    2,
			TotalAmount: 40,
			Date:        time.Now(),
		}
	}

	tests := []struct {
		name    string
		modify  func(*models.Sale)
		wantErr error
	}{
		{"valid sale", func(s *models.Sale) {}, nil},
		{"empty id", func(s *models.Sale) { s.ID = "" }, models.ErrEmptyID},
		{"empty product id", func(s *models.Sale) { s.ProductID = "" }, models.ErrEmptyProductID},
		{"zero quantity", func(s *models.Sale) { s.Quantity = 0 }, models.ErrInvalidQuantity},
		{"negative amount", func(s *models.Sale) { s.TotalAmount = -1 }, models.ErrNegativeAmount},
		{"zero date", func(s *models.Sale) { s.Date = time.Time{} }, models.ErrZeroDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSale()
			tt.modify(s)
			if err := s.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpenseValidate(t *testing.T) {
	validExpense := func() *models.Expense {
		return &models.Expense{
			ID:       "e1",
			Amount:   120,
			Category: "embalaje",
			Date:     time.Now(),
		}
	}

	tests := []struct {
		name    string
		modify  func(*models.Expense)
		wantErr error
	}{
		{"valid expense", func(e *models.Expense) {}, nil},
		{"empty id", func(e *models.Expense) { e.ID = "" }, models.ErrEmptyID},
		{"negative amount", func(e *models.Expense) { e.Amount = -5 }, models.ErrNegativeAmount},
		{"empty category", func(e *models.Expense) { e.Category = "" }, models.ErrEmptyCategory},
		{"zero date", func(e *models.Expense) { e.Date = time.Time{} }, models.ErrZeroDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validExpense()
			tt.modify(e)
			if err := e.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBusinessEventValidate(t *testing.T) {
	sale := &models.Sale{ID: "s1", ProductID: "p1", Quantity: 1, TotalAmount: 10, Date: time.Now()}

	tests := []struct {
		name    string
		event   models.BusinessEvent
		wantErr error
	}{
		{"valid sale event", models.BusinessEvent{ID: "ev1", Type: models.EventSale, Sale: sale}, nil},
		{"empty id", models.BusinessEvent{Type: models.EventSale, Sale: sale}, models.ErrEmptyID},
		{"unknown type", models.BusinessEvent{ID: "ev1", Type: "refund"}, models.ErrInvalidEventType},
		{"missing payload", models.BusinessEvent{ID: "ev1", Type: models.EventSale}, models.ErrMissingPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.event.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBusinessEventNormalize(t *testing.T) {
	ev := models.BusinessEvent{
		ID:   "  ev1 ",
		Type: " EXPENSE ",
		Expense: &models.Expense{
			ID:       " e1 ",
			Amount:   50,
			Category: "  Embalaje ",
			Date:     time.Now(),
		},
	}

	ev.Normalize()

	if ev.ID != "ev1" {
		t.Errorf("ID = %q", ev.ID)
	}
	if ev.Type != models.EventExpense {
		t.Errorf("Type = %q", ev.Type)
	}
	if ev.Expense.Category != "embalaje" {
		t.Errorf("Category = %q, want lowercased %q", ev.Expense.Category, "embalaje")
	}
}

func TestThresholdsJSON(t *testing.T) {
	in := models.DefaultThresholds()
	in.NoSalesDays = math.NaN()

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}

	var out models.Thresholds
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	if !math.IsNaN(out.NoSalesDays) {
		t.Errorf("disabled threshold must round-trip as disabled, got %v", out.NoSalesDays)
	}
	if out.LowProfitMargin != in.LowProfitMargin {
		t.Errorf("LowProfitMargin = %v, want %v", out.LowProfitMargin, in.LowProfitMargin)
	}
}

func TestThresholdsJSONAbsentFieldsDisable(t *testing.T) {
	var th models.Thresholds
	if err := json.Unmarshal([]byte(`{"low_profit_margin": 25}`), &th); err != nil {
		t.Fatal(err)
	}
	if th.LowProfitMargin != 25 {
		t.Errorf("LowProfitMargin = %v, want 25", th.LowProfitMargin)
	}
	if models.RuleEnabled(th.MonthlyRevenueGoal) {
		t.Error("absent field must decode as disabled")
	}
}
