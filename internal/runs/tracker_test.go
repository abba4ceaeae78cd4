package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/domain"
	"github.com/animus-labs/basic-cleaning/internal/repo"
)

type stubRunRepo struct {
	created  []domain.JobRun
	finished map[string]string
	summary  domain.Metadata
}

func (s *stubRunRepo) CreateRun(ctx context.Context, run domain.JobRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	s.created = append(s.created, run)
	return nil
}

func (s *stubRunRepo) GetRun(ctx context.Context, projectID, id string) (domain.JobRun, error) {
	for _, r := range s.created {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.JobRun{}, repo.ErrNotFound
}

func (s *stubRunRepo) FinishRun(ctx context.Context, projectID, id string, status string, summary domain.Metadata) error {
	if s.finished == nil {
		s.finished = map[string]string{}
	}
	if _, done := s.finished[id]; done {
		return repo.ErrConflict
	}
	s.finished[id] = status
	s.summary = summary
	return nil
}

func newTestTracker(t *testing.T, r *stubRunRepo) *Tracker {
	t.Helper()
	tr, err := NewTracker(r, "nyc_airbnb")
	if err != nil {
		t.Fatalf("NewTracker() err=%v", err)
	}
	tr.now = func() time.Time { return time.Unix(1700000000, 0) }
	tr.newID = func() string { return "run-1" }
	return tr
}

func TestStartSnapshotsConfig(t *testing.T) {
	r := &stubRunRepo{}
	tr := newTestTracker(t, r)
	config := map[string]any{"min_price": 10.0}

	run, err := tr.Start(context.Background(), "basic_cleaning", config)
	if err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	config["min_price"] = 99.0
	if run.Config["min_price"] != 10.0 {
		t.Fatalf("config snapshot mutated: %v", run.Config)
	}
	if run.Status != domain.RunStatusRunning || run.IntegritySHA256 == "" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(r.created) != 1 || r.created[0].ID != "run-1" {
		t.Fatalf("run not persisted: %+v", r.created)
	}
}

func TestFinishRecordsStatus(t *testing.T) {
	r := &stubRunRepo{}
	tr := newTestTracker(t, r)
	run, err := tr.Start(context.Background(), "basic_cleaning", nil)
	if err != nil {
		t.Fatalf("Start() err=%v", err)
	}

	if err := tr.Finish(context.Background(), run, errors.New("publish failed"), map[string]any{"rows_in": 3}); err != nil {
		t.Fatalf("Finish() err=%v", err)
	}
	if r.finished["run-1"] != domain.RunStatusFailed {
		t.Fatalf("status = %q, want failed", r.finished["run-1"])
	}
	if r.summary["error"] != "publish failed" || r.summary["rows_in"] != 3 {
		t.Fatalf("summary = %v", r.summary)
	}

	err = tr.Finish(context.Background(), run, nil, nil)
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("second Finish() err=%v, want ErrConflict", err)
	}
}

func TestStartRequiresJobType(t *testing.T) {
	tr := newTestTracker(t, &stubRunRepo{})
	if _, err := tr.Start(context.Background(), " ", nil); err == nil {
		t.Fatalf("Start() expected error for blank job type")
	}
}
