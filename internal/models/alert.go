package models

import (
	"strings"
	"time"
)

// AlertKind represents the visual severity of an alert
type AlertKind string

const (
	KindWarning AlertKind = "warning"
	KindError   AlertKind = "error"
	KindSuccess AlertKind = "success"
	KindInfo    AlertKind = "info"
)

// IsValid checks if the alert kind is valid
func (k AlertKind) IsValid() bool {
	switch k {
	case KindWarning, KindError, KindSuccess, KindInfo:
		return true
	default:
		return false
	}
}

// RuleKind identifies which business rule produced an alert
type RuleKind string

const (
	RuleLowProfit    RuleKind = "low-profit"
	RuleHighExpense  RuleKind = "high-expense"
	RuleNoSales      RuleKind = "no-sales"
	RuleGoalReached  RuleKind = "goal-reached"
	RuleExpenseRatio RuleKind = "expense-ratio"
	RuleBreakEven    RuleKind = "break-even"
	RuleLowStock     RuleKind = "low-stock"
)

// DedupKey identifies an alert condition independently of its display title.
// Two alerts with equal keys describe the same condition; while one of them
// is active the other is not created.
type DedupKey struct {
	// Rule that produced the condition
	Rule RuleKind `json:"rule"`

	// Subject the condition applies to: a product id, an expense category,
	// or empty for global rules (goal-reached, expense-ratio).
	Subject string `json:"subject,omitempty"`
}

// String returns the canonical form, "<rule>" or "<rule>:<subject>".
func (k DedupKey) String() string {
	if k.Subject == "" {
		return string(k.Rule)
	}
	return string(k.Rule) + ":" + k.Subject
}

// ParseDedupKey parses the canonical string form of a dedup key.
func ParseDedupKey(s string) DedupKey {
	rule, subject, found := strings.Cut(s, ":")
	if !found {
		return DedupKey{Rule: RuleKind(s)}
	}
	return DedupKey{Rule: RuleKind(rule), Subject: subject}
}

// Candidate is a rule firing that has not yet been checked against active
// alerts. The evaluator emits candidates; the store decides which become
// alerts.
type Candidate struct {
	Kind    AlertKind `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Action  string    `json:"action,omitempty"`
	Key     DedupKey  `json:"key"`
}

// Alert is a persisted, actionable notification. Once created, only the
// Dismissed flag ever changes; dismissed alerts are removed only via an
// explicit purge.
type Alert struct {
	// Unique id assigned at creation, never reused
	ID string `json:"id"`

	Kind    AlertKind `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`

	// Opaque tag naming a UI action; empty when the alert has none.
	// The engine does not validate it.
	Action string `json:"action,omitempty"`

	// Key the alert was deduplicated under
	Key DedupKey `json:"key"`

	Dismissed bool      `json:"dismissed"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAlert creates an active Alert from a candidate
func NewAlert(id string, c Candidate, createdAt time.Time) Alert {
	return Alert{
		ID:        id,
		Kind:      c.Kind,
		Title:     c.Title,
		Message:   c.Message,
		Action:    c.Action,
		Key:       c.Key,
		Dismissed: false,
		CreatedAt: createdAt,
	}
}
