package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
)

func testStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close test store: %v", err)
		}
	})
	return repo
}

func sessionFixture(id, actorID string, checkpointAt time.Time) *domain.GameSession {
	return &domain.GameSession{
		ID:               id,
		GameID:           "sequence-recall",
		ActorID:          actorID,
		Level:            1,
		Score:            0,
		Status:           domain.StatusActive,
		Snapshot:         domain.Snapshot{"lives": 3},
		StartedAt:        checkpointAt,
		LastCheckpointAt: checkpointAt,
	}
}

func TestSQLite_CreateAndGetSession(t *testing.T) {
	repo := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	want := sessionFixture("s1", "actor-1", now)
	if err := repo.CreateSession(ctx, want); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.GameID != want.GameID || got.ActorID != want.ActorID || got.Status != want.Status {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if !got.LastCheckpointAt.Equal(now) {
		t.Errorf("last checkpoint = %v, want %v", got.LastCheckpointAt, now)
	}
	if got.Snapshot.Int("lives") != 3 {
		t.Errorf("snapshot = %v, want lives 3", got.Snapshot)
	}
}

func TestSQLite_CreateRejectsInvalidSession(t *testing.T) {
	repo := testStore(t)
	s := sessionFixture("s1", "actor-1", time.Now())
	s.GameID = ""

	if err := repo.CreateSession(context.Background(), s); err == nil {
		t.Error("CreateSession accepted a session without a game id")
	}
}

func TestSQLite_GetSessionNotFound(t *testing.T) {
	repo := testStore(t)
	_, err := repo.GetSession(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLite_UpdateSession(t *testing.T) {
	repo := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	s := sessionFixture("s1", "actor-1", now)
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	s.Level = 3
	s.Score = 55
	s.Status = domain.StatusCompleted
	s.Snapshot = domain.Snapshot{"lives": 0, "round": 7}
	s.LastCheckpointAt = now.Add(90 * time.Second)
	if err := repo.UpdateSession(ctx, s); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Level != 3 || got.Score != 55 || got.Status != domain.StatusCompleted {
		t.Errorf("updated session = %+v", got)
	}
	if got.Snapshot.Int("round") != 7 {
		t.Errorf("updated snapshot = %v", got.Snapshot)
	}
}

func TestSQLite_UpdateMissingSession(t *testing.T) {
	repo := testStore(t)
	s := sessionFixture("ghost", "actor-1", time.Now())

	err := repo.UpdateSession(context.Background(), s)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLite_FindSessionsFiltersAndOrders(t *testing.T) {
	repo := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	older := sessionFixture("s-old", "actor-1", base)
	newer := sessionFixture("s-new", "actor-1", base.Add(time.Minute))
	finished := sessionFixture("s-done", "actor-1", base.Add(2*time.Minute))
	finished.Status = domain.StatusCompleted
	otherActor := sessionFixture("s-other", "actor-2", base)
	otherGame := sessionFixture("s-game", "actor-1", base)
	otherGame.GameID = "pattern-match"

	for _, s := range []*domain.GameSession{older, newer, finished, otherActor, otherGame} {
		if err := repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession %s: %v", s.ID, err)
		}
	}

	got, err := repo.FindSessions(ctx, "actor-1", "sequence-recall", domain.StatusActive)
	if err != nil {
		t.Fatalf("FindSessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("found %d sessions, want 2", len(got))
	}
	if got[0].ID != "s-new" || got[1].ID != "s-old" {
		t.Errorf("order = [%s, %s], want most recent first", got[0].ID, got[1].ID)
	}
}

func TestSQLite_AbandonStale(t *testing.T) {
	repo := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	stale := sessionFixture("s-stale", "actor-1", base.Add(-2*time.Hour))
	fresh := sessionFixture("s-fresh", "actor-1", base)
	fresh.GameID = "pattern-match"
	for _, s := range []*domain.GameSession{stale, fresh} {
		if err := repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession %s: %v", s.ID, err)
		}
	}

	n, err := repo.AbandonStale(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("AbandonStale: %v", err)
	}
	if n != 1 {
		t.Errorf("abandoned %d sessions, want 1", n)
	}

	got, err := repo.GetSession(ctx, "s-stale")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != domain.StatusAbandoned {
		t.Errorf("stale session status = %q, want abandoned", got.Status)
	}

	got, err = repo.GetSession(ctx, "s-fresh")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("fresh session status = %q, want active", got.Status)
	}
}

func TestSQLite_AppendMetric(t *testing.T) {
	repo := testStore(t)
	ctx := context.Background()

	metric := &domain.BehavioralMetric{
		SessionID:  "s1",
		GameID:     "sequence-recall",
		MetricType: domain.MetricAttempt,
		Category:   "memory",
		Value:      1,
		Context: domain.MetricContext{
			Level:          2,
			Round:          3,
			SequenceLength: 5,
			ReactionTimeMs: 420,
			Expected:       "4",
			Given:          "4",
		},
		RecordedAt: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := repo.AppendMetric(ctx, metric); err != nil {
		t.Fatalf("AppendMetric: %v", err)
	}
	// Append-only: the same metric twice is two rows, not an error.
	if err := repo.AppendMetric(ctx, metric); err != nil {
		t.Fatalf("second AppendMetric: %v", err)
	}
}
