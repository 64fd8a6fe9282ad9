// Package engine contains the business rule evaluator: a pure function from
// a metrics snapshot and thresholds to candidate alerts. It performs no I/O;
// persistence and deduplication against stored alerts live in alertstore.
package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"centinela/internal/logger"
	"centinela/internal/metrics"
	"centinela/internal/models"
)

// rule evaluates the full snapshot and emits zero or more candidates.
// Every rule skips silently when its denominator is zero or its subject has
// no qualifying activity.
type rule struct {
	name string
	eval func(snap models.Snapshot, th models.Thresholds, now time.Time) []models.Candidate
}

var rules = []rule{
	{"low_margin", lowMargin},
	{"high_category_expense", highCategoryExpense},
	{"stale_product", staleProduct},
	{"monthly_goal", monthlyGoal},
	{"expense_ratio", expenseRatio},
	{"break_even", breakEven},
	{"low_stock", lowStock},
}

// Evaluate runs every rule against the snapshot and returns the candidates
// whose dedup key is not already active. It is idempotent for unchanged
// inputs and completes in time proportional to products+sales+expenses.
//
// A panic inside one rule is recovered and counted; the remaining rules
// still run.
func Evaluate(snap models.Snapshot, th models.Thresholds, activeKeys map[string]bool, now time.Time) []models.Candidate {
	var out []models.Candidate
	for _, r := range rules {
		for _, c := range runRule(r, snap, th, now) {
			if activeKeys[c.Key.String()] {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

func runRule(r rule, snap models.Snapshot, th models.Thresholds, now time.Time) (cands []models.Candidate) {
	defer func() {
		if rec := recover(); rec != nil {
			log := logger.WithComponent("engine")
			log.Error().
				Str("rule", r.name).
				Interface("panic", rec).
				Msg("rule panicked, skipping")
			metrics.RuleFailuresTotal.WithLabelValues(r.name).Inc()
			cands = nil
		}
	}()

	cands = r.eval(snap, th, now)
	if len(cands) > 0 {
		metrics.RuleCandidatesTotal.WithLabelValues(r.name).Add(float64(len(cands)))
	}
	return cands
}

// lowMargin flags selling products whose profit margin is below the floor.
// Products with price 0 have no defined margin and are skipped.
func lowMargin(snap models.Snapshot, th models.Thresholds, _ time.Time) []models.Candidate {
	if !models.RuleEnabled(th.LowProfitMargin) {
		return nil
	}

	var cands []models.Candidate
	for _, p := range snap.Products {
		if p.UnitsSold <= 0 || p.PricePerUnit <= 0 {
			continue
		}
		margin := (p.PricePerUnit - p.CostPerUnit) / p.PricePerUnit * 100
		if margin < th.LowProfitMargin {
			cands = append(cands, models.Candidate{
				Kind:    models.KindWarning,
				Title:   "Margen bajo: " + p.Name,
				Message: fmt.Sprintf("El margen de %s es %.1f%%, por debajo del mínimo de %.1f%%.", p.Name, margin, th.LowProfitMargin),
				Action:  "Revisar precios",
				Key:     models.DedupKey{Rule: models.RuleLowProfit, Subject: p.ID},
			})
		}
	}
	return cands
}

// highCategoryExpense flags expense categories whose summed amount exceeds
// the per-category ceiling.
func highCategoryExpense(snap models.Snapshot, th models.Thresholds, _ time.Time) []models.Candidate {
	if !models.RuleEnabled(th.HighExpenseCategory) {
		return nil
	}

	totals := make(map[string]float64)
	for _, e := range snap.Expenses {
		totals[e.Category] += e.Amount
	}

	// Deterministic candidate order regardless of map iteration
	categories := make([]string, 0, len(totals))
	for cat := range totals {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var cands []models.Candidate
	for _, cat := range categories {
		if totals[cat] > th.HighExpenseCategory {
			cands = append(cands, models.Candidate{
				Kind:    models.KindWarning,
				Title:   "Gastos altos en " + cat,
				Message: fmt.Sprintf("Los gastos de la categoría %s suman %.2f, por encima del límite de %.2f.", cat, totals[cat], th.HighExpenseCategory),
				Action:  "Ver gastos",
				Key:     models.DedupKey{Rule: models.RuleHighExpense, Subject: cat},
			})
		}
	}
	return cands
}

// staleProduct flags products whose most recent sale is older than the
// stale-sale window. Products that never sold have nothing to be stale
// relative to and never trigger.
func staleProduct(snap models.Snapshot, th models.Thresholds, now time.Time) []models.Candidate {
	if !models.RuleEnabled(th.NoSalesDays) {
		return nil
	}

	lastSale := make(map[string]time.Time)
	for _, s := range snap.Sales {
		if s.Date.After(lastSale[s.ProductID]) {
			lastSale[s.ProductID] = s.Date
		}
	}

	var cands []models.Candidate
	for _, p := range snap.Products {
		last, ok := lastSale[p.ID]
		if !ok {
			continue
		}
		days := now.Sub(last).Hours() / 24
		if days > th.NoSalesDays {
			cands = append(cands, models.Candidate{
				Kind:    models.KindInfo,
				Title:   "Sin ventas recientes: " + p.Name,
				Message: fmt.Sprintf("%s no registra ventas desde hace %d días.", p.Name, int(days)),
				Action:  "Crear promoción",
				Key:     models.DedupKey{Rule: models.RuleNoSales, Subject: p.ID},
			})
		}
	}
	return cands
}

// monthlyGoal fires once the current calendar month's revenue reaches the
// goal. The dedup key is a single global key, deliberately not scoped by
// month: after a dismissal the alert can re-fire, including in a later
// month.
func monthlyGoal(snap models.Snapshot, th models.Thresholds, now time.Time) []models.Candidate {
	if !models.RuleEnabled(th.MonthlyRevenueGoal) {
		return nil
	}

	var total float64
	for _, s := range snap.Sales {
		if s.Date.Year() == now.Year() && s.Date.Month() == now.Month() {
			total += s.TotalAmount
		}
	}

	if total >= th.MonthlyRevenueGoal {
		return []models.Candidate{{
			Kind:    models.KindSuccess,
			Title:   "¡Meta mensual alcanzada!",
			Message: fmt.Sprintf("Las ventas de este mes suman %.2f, alcanzando la meta de %.2f.", total, th.MonthlyRevenueGoal),
			Key:     models.DedupKey{Rule: models.RuleGoalReached},
		}}
	}
	return nil
}

// expenseRatio flags the business globally when total costs exceed the
// allowed percentage of total revenue. With zero revenue the ratio is
// undefined and the rule is skipped entirely.
func expenseRatio(snap models.Snapshot, th models.Thresholds, _ time.Time) []models.Candidate {
	if !models.RuleEnabled(th.ExpenseLimitPercentage) {
		return nil
	}

	var totalRevenue float64
	for _, s := range snap.Sales {
		totalRevenue += s.TotalAmount
	}
	if totalRevenue <= 0 {
		return nil
	}

	costPerUnit := make(map[string]float64, len(snap.Products))
	for _, p := range snap.Products {
		costPerUnit[p.ID] = p.CostPerUnit
	}

	var totalCosts float64
	for _, e := range snap.Expenses {
		totalCosts += e.Amount
	}
	for _, s := range snap.Sales {
		totalCosts += float64(s.Quantity) * costPerUnit[s.ProductID]
	}

	ratio := totalCosts / totalRevenue * 100
	if ratio > th.ExpenseLimitPercentage {
		return []models.Candidate{{
			Kind:    models.KindError,
			Title:   "Costos por encima del límite",
			Message: fmt.Sprintf("Los costos representan %.1f%% de los ingresos, por encima del límite de %.1f%%.", ratio, th.ExpenseLimitPercentage),
			Action:  "Analizar gastos",
			Key:     models.DedupKey{Rule: models.RuleExpenseRatio},
		}}
	}
	return nil
}

// breakEven congratulates a product the moment its units sold cross the
// break-even point. The half-open window [breakEvenUnits, breakEvenUnits+5)
// keeps the alert near the crossing instead of firing forever after.
func breakEven(snap models.Snapshot, _ models.Thresholds, _ time.Time) []models.Candidate {
	var totalExpenses float64
	for _, e := range snap.Expenses {
		totalExpenses += e.Amount
	}

	productCount := len(snap.Products)
	if productCount < 1 {
		return nil
	}
	share := totalExpenses / float64(productCount)

	var cands []models.Candidate
	for _, p := range snap.Products {
		if p.UnitsSold <= 0 {
			continue
		}
		profitPerUnit := p.PricePerUnit - p.CostPerUnit
		if profitPerUnit <= 0 {
			continue
		}
		breakEvenUnits := int(math.Ceil(share / profitPerUnit))
		if p.UnitsSold >= breakEvenUnits && p.UnitsSold < breakEvenUnits+5 {
			cands = append(cands, models.Candidate{
				Kind:    models.KindSuccess,
				Title:   "Punto de equilibrio: " + p.Name,
				Message: fmt.Sprintf("%s cubrió su parte de los gastos con %d unidades vendidas.", p.Name, p.UnitsSold),
				Key:     models.DedupKey{Rule: models.RuleBreakEven, Subject: p.ID},
			})
		}
	}
	return cands
}

// lowStock flags selling products whose stock fell below the restock floor.
// Products that never sold stay quiet; a dead listing running out is not
// actionable.
func lowStock(snap models.Snapshot, th models.Thresholds, _ time.Time) []models.Candidate {
	if !models.RuleEnabled(th.LowStockFloor) {
		return nil
	}

	var cands []models.Candidate
	for _, p := range snap.Products {
		if p.UnitsSold <= 0 {
			continue
		}
		if float64(p.Stock) < th.LowStockFloor {
			cands = append(cands, models.Candidate{
				Kind:    models.KindWarning,
				Title:   "Stock bajo: " + p.Name,
				Message: fmt.Sprintf("Quedan %d unidades de %s.", p.Stock, p.Name),
				Action:  "Reponer stock",
				Key:     models.DedupKey{Rule: models.RuleLowStock, Subject: p.ID},
			})
		}
	}
	return cands
}
