// Package alertstore owns the alert lifecycle: candidates from the engine
// come in, get deduplicated against currently-active alerts, and become
// persisted alerts that can be dismissed and purged.
package alertstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"centinela/internal/logger"
	"centinela/internal/metrics"
	"centinela/internal/models"
)

// ErrNotFound is returned when an operation names an alert id that does not
// exist. Callers treat it as a user-visible notice, not a fatal condition.
var ErrNotFound = errors.New("alert not found")

// Repository is the durable storage behind the store. Implementations must
// make DeleteDismissed all-or-nothing.
type Repository interface {
	List(ctx context.Context) ([]models.Alert, error)
	ListActiveKeys(ctx context.Context) ([]string, error)
	Create(ctx context.Context, alert models.Alert) error
	SetDismissed(ctx context.Context, id string) error
	DeleteDismissed(ctx context.Context) (int, error)
}

// Store applies the lifecycle rules on top of a Repository. The zero value
// is not usable; construct with New.
type Store struct {
	repo Repository
	now  func() time.Time
}

// New creates a Store backed by the given repository.
func New(repo Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// ActiveKeys returns the dedup keys of all non-dismissed alerts, as a set.
// The evaluator reads this immediately before a pass so its candidates are
// checked against current state.
func (s *Store) ActiveKeys(ctx context.Context) (map[string]bool, error) {
	keys, err := s.repo.ListActiveKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active keys: %w", err)
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set, nil
}

// Submit turns candidates into alerts. A candidate whose dedup key matches
// a currently-active alert is discarded. Each surviving candidate gets a
// fresh id and timestamp and is persisted individually: a storage failure
// leaves that candidate unrecorded, keeps earlier creations, and aborts the
// rest of the call.
func (s *Store) Submit(ctx context.Context, candidates []models.Candidate) ([]models.Alert, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	active, err := s.ActiveKeys(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("alertstore")
	var created []models.Alert
	for _, c := range candidates {
		key := c.Key.String()
		if active[key] {
			metrics.AlertsDedupedTotal.Inc()
			continue
		}

		alert := models.NewAlert(uuid.NewString(), c, s.now())
		if err := s.repo.Create(ctx, alert); err != nil {
			return created, fmt.Errorf("create alert %q: %w", key, err)
		}
		// Guard against two candidates with the same key in one batch
		active[key] = true
		created = append(created, alert)

		metrics.AlertsCreatedTotal.WithLabelValues(string(alert.Kind)).Inc()
		log.Info().
			Str("alert_id", alert.ID).
			Str("key", key).
			Str("kind", string(alert.Kind)).
			Msg("alert created")
	}
	return created, nil
}

// Dismiss marks one alert as dismissed. Other alerts are unaffected; an
// unknown id yields ErrNotFound.
func (s *Store) Dismiss(ctx context.Context, id string) error {
	if err := s.repo.SetDismissed(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("dismiss alert %s: %w", id, err)
	}
	metrics.AlertsDismissedTotal.Inc()
	log := logger.WithComponent("alertstore")
	log.Info().Str("alert_id", id).Msg("alert dismissed")
	return nil
}

// PurgeDismissed removes every dismissed alert and reports how many were
// removed. Active alerts are untouched. Either all targeted alerts are
// removed or the repository reports failure and removes none.
func (s *Store) PurgeDismissed(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteDismissed(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge dismissed: %w", err)
	}
	if n > 0 {
		metrics.AlertsPurgedTotal.Add(float64(n))
		log := logger.WithComponent("alertstore")
		log.Info().Int("purged", n).Msg("dismissed alerts purged")
	}
	return n, nil
}

// List returns all alerts, active and dismissed. Ordering is not
// guaranteed; callers that need chronology sort by CreatedAt.
func (s *Store) List(ctx context.Context) ([]models.Alert, error) {
	alerts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}
