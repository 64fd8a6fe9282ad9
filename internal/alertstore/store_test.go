package alertstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"centinela/internal/models"
)

// fakeRepo is an in-memory Repository for store tests.
type fakeRepo struct {
	alerts    []models.Alert
	createErr error
	deleteErr error
}

func (f *fakeRepo) List(ctx context.Context) ([]models.Alert, error) {
	out := make([]models.Alert, len(f.alerts))
	copy(out, f.alerts)
	return out, nil
}

func (f *fakeRepo) ListActiveKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for _, a := range f.alerts {
		if !a.Dismissed {
			keys = append(keys, a.Key.String())
		}
	}
	return keys, nil
}

func (f *fakeRepo) Create(ctx context.Context, alert models.Alert) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeRepo) SetDismissed(ctx context.Context, id string) error {
	for i := range f.alerts {
		if f.alerts[i].ID == id {
			f.alerts[i].Dismissed = true
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) DeleteDismissed(ctx context.Context) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var kept []models.Alert
	removed := 0
	for _, a := range f.alerts {
		if a.Dismissed {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	f.alerts = kept
	return removed, nil
}

func testCandidate(rule models.RuleKind, subject string) models.Candidate {
	return models.Candidate{
		Kind:    models.KindWarning,
		Title:   "t",
		Message: "m",
		Key:     models.DedupKey{Rule: rule, Subject: subject},
	}
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, time.August, 20, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestSubmitCreatesAlerts(t *testing.T) {
	repo := &fakeRepo{}
	store := New(repo).WithClock(fixedClock())

	created, err := store.Submit(context.Background(), []models.Candidate{
		testCandidate(models.RuleLowProfit, "p1"),
		testCandidate(models.RuleHighExpense, "embalaje"),
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d, want 2", len(created))
	}
	for _, a := range created {
		if a.ID == "" {
			t.Error("alert must get a fresh id")
		}
		if a.Dismissed {
			t.Error("new alert must be active")
		}
		if a.CreatedAt.IsZero() {
			t.Error("new alert must get a timestamp")
		}
	}
	if created[0].ID == created[1].ID {
		t.Error("ids must be unique")
	}
}

func TestSubmitDeduplicatesAgainstActive(t *testing.T) {
	repo := &fakeRepo{}
	store := New(repo).WithClock(fixedClock())
	ctx := context.Background()

	cands := []models.Candidate{testCandidate(models.RuleLowProfit, "p1")}

	if _, err := store.Submit(ctx, cands); err != nil {
		t.Fatal(err)
	}

	// Same candidate set, active alerts unchanged: zero new alerts
	created, err := store.Submit(ctx, cands)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Errorf("resubmit created %d alerts, want 0", len(created))
	}
	if len(repo.alerts) != 1 {
		t.Errorf("store holds %d alerts, want 1", len(repo.alerts))
	}
}

func TestSubmitSameKeyAfterDismissCreatesNewAlert(t *testing.T) {
	repo := &fakeRepo{}
	store := New(repo).WithClock(fixedClock())
	ctx := context.Background()

	cands := []models.Candidate{testCandidate(models.RuleGoalReached, "")}

	first, err := store.Submit(ctx, cands)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Dismiss(ctx, first[0].ID); err != nil {
		t.Fatal(err)
	}

	// The key is no longer active, so the condition re-fires as a new
	// alert instance; the dismissed one stays as history.
	second, err := store.Submit(ctx, cands)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 {
		t.Fatalf("expected re-fire after dismissal, got %d alerts", len(second))
	}
	if second[0].ID == first[0].ID {
		t.Error("re-fired alert must be a new instance")
	}
	if len(repo.alerts) != 2 {
		t.Errorf("store holds %d alerts, want 2", len(repo.alerts))
	}
}

func TestSubmitDuplicateKeysInOneBatch(t *testing.T) {
	repo := &fakeRepo{}
	store := New(repo).WithClock(fixedClock())

	created, err := store.Submit(context.Background(), []models.Candidate{
		testCandidate(models.RuleLowStock, "p1"),
		testCandidate(models.RuleLowStock, "p1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 {
		t.Errorf("duplicate keys in one batch must create one alert, got %d", len(created))
	}
}

func TestSubmitPersistenceFailure(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("disk full")}
	store := New(repo).WithClock(fixedClock())

	created, err := store.Submit(context.Background(), []models.Candidate{
		testCandidate(models.RuleLowProfit, "p1"),
	})
	if err == nil {
		t.Fatal("expected persistence error to surface")
	}
	if len(created) != 0 {
		t.Errorf("failed create must record nothing, got %d", len(created))
	}
	if len(repo.alerts) != 0 {
		t.Errorf("repository must stay unchanged, holds %d", len(repo.alerts))
	}
}

func TestDismissIsolation(t *testing.T) {
	repo := &fakeRepo{}
	store := New(repo).WithClock(fixedClock())
	ctx := context.Background()

	created, err := store.Submit(ctx, []models.Candidate{
		testCandidate(models.RuleLowProfit, "a"),
		testCandidate(models.RuleLowProfit, "b"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Dismiss(ctx, created[0].ID); err != nil {
		t.Fatalf("Dismiss returned error: %v", err)
	}

	alerts, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 {
		t.Fatalf("List returned %d alerts, want both", len(alerts))
	}
	for _, a := range alerts {
		switch a.ID {
		case created[0].ID:
			if !a.Dismissed {
				t.Error("dismissed alert must be flagged")
			}
		case created[1].ID:
			if a.Dismissed {
				t.Error("other alert must stay active")
			}
		}
	}
}

func TestDismissUnknownID(t *testing.T) {
	store := New(&fakeRepo{}).WithClock(fixedClock())
	err := store.Dismiss(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPurgeDismissed(t *testing.T) {
	repo := &fakeRepo{}
	store := New(repo).WithClock(fixedClock())
	ctx := context.Background()

	created, err := store.Submit(ctx, []models.Candidate{
		testCandidate(models.RuleLowProfit, "a"),
		testCandidate(models.RuleLowProfit, "b"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Dismiss(ctx, created[0].ID); err != nil {
		t.Fatal(err)
	}

	n, err := store.PurgeDismissed(ctx)
	if err != nil {
		t.Fatalf("PurgeDismissed returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	alerts, _ := store.List(ctx)
	if len(alerts) != 1 || alerts[0].ID != created[1].ID {
		t.Errorf("active alert must survive the purge, got %v", alerts)
	}
}

func TestPurgeNothingDismissed(t *testing.T) {
	repo := &fakeRepo{}
	store := New(repo).WithClock(fixedClock())
	ctx := context.Background()

	if _, err := store.Submit(ctx, []models.Candidate{testCandidate(models.RuleLowProfit, "a")}); err != nil {
		t.Fatal(err)
	}

	n, err := store.PurgeDismissed(ctx)
	if err != nil {
		t.Errorf("purge with nothing dismissed must succeed, got %v", err)
	}
	if n != 0 {
		t.Errorf("purged = %d, want 0", n)
	}
}

func TestPurgeFailureLeavesState(t *testing.T) {
	repo := &fakeRepo{}
	store := New(repo).WithClock(fixedClock())
	ctx := context.Background()

	created, err := store.Submit(ctx, []models.Candidate{testCandidate(models.RuleLowProfit, "a")})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Dismiss(ctx, created[0].ID); err != nil {
		t.Fatal(err)
	}

	repo.deleteErr = errors.New("io error")
	if _, err := store.PurgeDismissed(ctx); err == nil {
		t.Fatal("expected purge failure to surface")
	}
	if len(repo.alerts) != 1 {
		t.Errorf("failed purge must remove nothing, holds %d", len(repo.alerts))
	}
}
