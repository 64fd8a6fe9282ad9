package models

import (
	"encoding/json"
	"math"
)

// Thresholds parameterizes every business rule. It is a singleton per
// deployment, mutated only through an explicit update, and every evaluation
// pass reads a fresh copy.
//
// A non-finite value (NaN or Inf) disables the rule that reads it rather
// than failing the evaluation pass.
type Thresholds struct {
	// Minimum acceptable profit margin, in percent
	LowProfitMargin float64 `json:"low_profit_margin"`

	// Ceiling for the summed expenses of a single category
	HighExpenseCategory float64 `json:"high_expense_category"`

	// Days without a sale after which a product counts as stale
	NoSalesDays float64 `json:"no_sales_days"`

	// Revenue goal for the current calendar month
	MonthlyRevenueGoal float64 `json:"monthly_revenue_goal"`

	// Ceiling for total costs as a percentage of total revenue
	ExpenseLimitPercentage float64 `json:"expense_limit_percentage"`

	// Stock level below which a selling product needs restocking
	LowStockFloor float64 `json:"low_stock_floor"`
}

// DefaultThresholds returns the values seeded before the first evaluation
// when no configuration has been stored yet.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowProfitMargin:        20,
		HighExpenseCategory:    1000,
		NoSalesDays:            14,
		MonthlyRevenueGoal:     5000,
		ExpenseLimitPercentage: 80,
		LowStockFloor:          3,
	}
}

// DisabledThresholds returns a configuration with every rule disabled.
// Used as the decode base for partial updates: fields absent from the
// payload stay NaN.
func DisabledThresholds() Thresholds {
	nan := math.NaN()
	return Thresholds{
		LowProfitMargin:        nan,
		HighExpenseCategory:    nan,
		NoSalesDays:            nan,
		MonthlyRevenueGoal:     nan,
		ExpenseLimitPercentage: nan,
		LowStockFloor:          nan,
	}
}

// RuleEnabled reports whether a threshold value can be compared against.
// Missing values surface as NaN and disable the affected rule for the pass.
func RuleEnabled(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// thresholdsJSON is the wire form. Non-finite values have no JSON encoding,
// so disabled thresholds travel as null and absent fields decode as
// disabled.
type thresholdsJSON struct {
	LowProfitMargin        *float64 `json:"low_profit_margin"`
	HighExpenseCategory    *float64 `json:"high_expense_category"`
	NoSalesDays            *float64 `json:"no_sales_days"`
	MonthlyRevenueGoal     *float64 `json:"monthly_revenue_goal"`
	ExpenseLimitPercentage *float64 `json:"expense_limit_percentage"`
	LowStockFloor          *float64 `json:"low_stock_floor"`
}

// MarshalJSON encodes disabled (non-finite) thresholds as null.
func (t Thresholds) MarshalJSON() ([]byte, error) {
	return json.Marshal(thresholdsJSON{
		LowProfitMargin:        finitePtr(t.LowProfitMargin),
		HighExpenseCategory:    finitePtr(t.HighExpenseCategory),
		NoSalesDays:            finitePtr(t.NoSalesDays),
		MonthlyRevenueGoal:     finitePtr(t.MonthlyRevenueGoal),
		ExpenseLimitPercentage: finitePtr(t.ExpenseLimitPercentage),
		LowStockFloor:          finitePtr(t.LowStockFloor),
	})
}

// UnmarshalJSON decodes null or absent fields as disabled thresholds.
func (t *Thresholds) UnmarshalJSON(data []byte) error {
	var w thresholdsJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Thresholds{
		LowProfitMargin:        floatOrDisabled(w.LowProfitMargin),
		HighExpenseCategory:    floatOrDisabled(w.HighExpenseCategory),
		NoSalesDays:            floatOrDisabled(w.NoSalesDays),
		MonthlyRevenueGoal:     floatOrDisabled(w.MonthlyRevenueGoal),
		ExpenseLimitPercentage: floatOrDisabled(w.ExpenseLimitPercentage),
		LowStockFloor:          floatOrDisabled(w.LowStockFloor),
	}
	return nil
}

func finitePtr(v float64) *float64 {
	if !RuleEnabled(v) {
		return nil
	}
	return &v
}

func floatOrDisabled(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
