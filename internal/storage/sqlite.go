// Package storage is the durable persistence adapter: a single embedded
// SQLite database holding products, sales, expenses, thresholds, and alerts.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"centinela/internal/alertstore"
	"centinela/internal/models"
)

// ErrNoThresholds is returned when no threshold configuration has been
// stored yet. The caller seeds defaults before the first evaluation.
var ErrNoThresholds = errors.New("no thresholds configured")

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	cost_per_unit  REAL NOT NULL,
	price_per_unit REAL NOT NULL,
	units_sold     INTEGER NOT NULL DEFAULT 0,
	stock          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sales (
	id           TEXT PRIMARY KEY,
	product_id   TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	total_amount REAL NOT NULL,
	date_ns      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sales_product ON sales(product_id);

CREATE TABLE IF NOT EXISTS expenses (
	id          TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	amount      REAL NOT NULL,
	category    TEXT NOT NULL,
	date_ns     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_expenses_category ON expenses(category);

CREATE TABLE IF NOT EXISTS thresholds (
	id                       INTEGER PRIMARY KEY CHECK (id = 1),
	low_profit_margin        REAL,
	high_expense_category    REAL,
	no_sales_days            REAL,
	monthly_revenue_goal     REAL,
	expense_limit_percentage REAL,
	low_stock_floor          REAL
);

CREATE TABLE IF NOT EXISTS alerts (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	title         TEXT NOT NULL,
	message       TEXT NOT NULL,
	action        TEXT NOT NULL DEFAULT '',
	dedup_key     TEXT NOT NULL,
	dismissed     INTEGER NOT NULL DEFAULT 0,
	created_at_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_dismissed ON alerts(dismissed);
`

// DB wraps the SQLite handle. It implements alertstore.Repository and the
// snapshot/threshold/ingest contracts consumed by the rest of the service.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps :memory: databases coherent and serializes writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// Ping reports database health.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// Snapshot reads the full business state in one call. The returned slices
// are owned by the caller and never shared or mutated afterwards.
func (d *DB) Snapshot(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot

	rows, err := d.db.QueryContext(ctx, `SELECT id, name, cost_per_unit, price_per_unit, units_sold, stock FROM products`)
	if err != nil {
		return snap, fmt.Errorf("query products: %w", err)
	}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CostPerUnit, &p.PricePerUnit, &p.UnitsSold, &p.Stock); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan product: %w", err)
		}
		snap.Products = append(snap.Products, p)
	}
	if err := rows.Close(); err != nil {
		return snap, err
	}

	rows, err = d.db.QueryContext(ctx, `SELECT id, product_id, quantity, total_amount, date_ns FROM sales`)
	if err != nil {
		return snap, fmt.Errorf("query sales: %w", err)
	}
	for rows.Next() {
		var s models.Sale
		var dateNS int64
		if err := rows.Scan(&s.ID, &s.ProductID, &s.Quantity, &s.TotalAmount, &dateNS); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan sale: %w", err)
		}
		s.Date = time.Unix(0, dateNS).UTC()
		snap.Sales = append(snap.Sales, s)
	}
	if err := rows.Close(); err != nil {
		return snap, err
	}

	rows, err = d.db.QueryContext(ctx, `SELECT id, description, amount, category, date_ns FROM expenses`)
	if err != nil {
		return snap, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e models.Expense
		var dateNS int64
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount, &e.Category, &dateNS); err != nil {
			return snap, fmt.Errorf("scan expense: %w", err)
		}
		e.Date = time.Unix(0, dateNS).UTC()
		snap.Expenses = append(snap.Expenses, e)
	}
	return snap, rows.Err()
}

// UpsertProduct inserts or updates a catalog product. UnitsSold is written
// only on first insert; afterwards it is maintained exclusively by
// RecordSale so the counter stays monotonic.
func (d *DB) UpsertProduct(ctx context.Context, p models.Product) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO products (id, name, cost_per_unit, price_per_unit, units_sold, stock)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cost_per_unit = excluded.cost_per_unit,
			price_per_unit = excluded.price_per_unit,
			stock = excluded.stock`,
		p.ID, p.Name, p.CostPerUnit, p.PricePerUnit, p.UnitsSold, p.Stock)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

// RecordSale appends a sale and applies its side effects to the product:
// units_sold increases by the quantity and stock decreases, clamped at
// zero. Both happen in one transaction. Re-delivery of an already recorded
// sale id is a no-op.
func (d *DB) RecordSale(ctx context.Context, s models.Sale) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record sale: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO sales (id, product_id, quantity, total_amount, date_ns)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.ProductID, s.Quantity, s.TotalAmount, s.Date.UnixNano())
	if err != nil {
		return fmt.Errorf("insert sale %s: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Duplicate delivery: the side effects were already applied
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET units_sold = units_sold + ?,
		    stock = MAX(stock - ?, 0)
		WHERE id = ?`,
		s.Quantity, s.Quantity, s.ProductID)
	if err != nil {
		return fmt.Errorf("apply sale %s to product: %w", s.ID, err)
	}

	return tx.Commit()
}

// RecordExpense appends an expense. Re-delivery is a no-op.
func (d *DB) RecordExpense(ctx context.Context, e models.Expense) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO expenses (id, description, amount, category, date_ns)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Description, e.Amount, e.Category, e.Date.UnixNano())
	if err != nil {
		return fmt.Errorf("insert expense %s: %w", e.ID, err)
	}
	return nil
}

// Thresholds loads the singleton configuration. Missing values come back as
// NaN, which disables their rule. ErrNoThresholds means nothing was seeded
// yet.
func (d *DB) Thresholds(ctx context.Context) (models.Thresholds, error) {
	var cols [6]sql.NullFloat64
	err := d.db.QueryRowContext(ctx, `
		SELECT low_profit_margin, high_expense_category, no_sales_days,
		       monthly_revenue_goal, expense_limit_percentage, low_stock_floor
		FROM thresholds WHERE id = 1`).
		Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5])
	if errors.Is(err, sql.ErrNoRows) {
		return models.Thresholds{}, ErrNoThresholds
	}
	if err != nil {
		return models.Thresholds{}, fmt.Errorf("query thresholds: %w", err)
	}

	return models.Thresholds{
		LowProfitMargin:        floatOrNaN(cols[0]),
		HighExpenseCategory:    floatOrNaN(cols[1]),
		NoSalesDays:            floatOrNaN(cols[2]),
		MonthlyRevenueGoal:     floatOrNaN(cols[3]),
		ExpenseLimitPercentage: floatOrNaN(cols[4]),
		LowStockFloor:          floatOrNaN(cols[5]),
	}, nil
}

// PutThresholds stores the singleton configuration. Non-finite values are
// stored as NULL and read back as NaN.
func (d *DB) PutThresholds(ctx context.Context, t models.Thresholds) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO thresholds (id, low_profit_margin, high_expense_category, no_sales_days,
		                        monthly_revenue_goal, expense_limit_percentage, low_stock_floor)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			low_profit_margin = excluded.low_profit_margin,
			high_expense_category = excluded.high_expense_category,
			no_sales_days = excluded.no_sales_days,
			monthly_revenue_goal = excluded.monthly_revenue_goal,
			expense_limit_percentage = excluded.expense_limit_percentage,
			low_stock_floor = excluded.low_stock_floor`,
		finiteOrNull(t.LowProfitMargin), finiteOrNull(t.HighExpenseCategory),
		finiteOrNull(t.NoSalesDays), finiteOrNull(t.MonthlyRevenueGoal),
		finiteOrNull(t.ExpenseLimitPercentage), finiteOrNull(t.LowStockFloor))
	if err != nil {
		return fmt.Errorf("put thresholds: %w", err)
	}
	return nil
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func finiteOrNull(v float64) any {
	if !models.RuleEnabled(v) {
		return nil
	}
	return v
}

// List returns all alerts, active and dismissed, in no guaranteed order.
func (d *DB) List(ctx context.Context) ([]models.Alert, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, kind, title, message, action, dedup_key, dismissed, created_at_ns
		FROM alerts`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var key string
		var dismissed int
		var createdNS int64
		if err := rows.Scan(&a.ID, &a.Kind, &a.Title, &a.Message, &a.Action, &key, &dismissed, &createdNS); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Key = models.ParseDedupKey(key)
		a.Dismissed = dismissed != 0
		a.CreatedAt = time.Unix(0, createdNS).UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ListActiveKeys returns the dedup keys of all non-dismissed alerts.
func (d *DB) ListActiveKeys(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT dedup_key FROM alerts WHERE dismissed = 0`)
	if err != nil {
		return nil, fmt.Errorf("query active keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Create persists a new alert.
func (d *DB) Create(ctx context.Context, a models.Alert) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO alerts (id, kind, title, message, action, dedup_key, dismissed, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Title, a.Message, a.Action, a.Key.String(),
		boolToInt(a.Dismissed), a.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

// SetDismissed flags exactly one alert as dismissed. Unknown ids yield
// alertstore.ErrNotFound.
func (d *DB) SetDismissed(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE alerts SET dismissed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("dismiss alert %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return alertstore.ErrNotFound
	}
	return nil
}

// DeleteDismissed removes every dismissed alert in one statement, so the
// operation is all-or-nothing. It reports how many were removed.
func (d *DB) DeleteDismissed(ctx context.Context) (int, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM alerts WHERE dismissed = 1`)
	if err != nil {
		return 0, fmt.Errorf("delete dismissed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
