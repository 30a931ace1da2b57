package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"firelater-orchestrator/internal/models"
	"firelater-orchestrator/internal/queue"
	"firelater-orchestrator/shared/logx"
)

type fakeTenants struct {
	tenants []models.Tenant
	err     error
}

func (f *fakeTenants) ListActive(ctx context.Context) ([]models.Tenant, error) {
	return f.tenants, f.err
}

type enqueueCall struct {
	kind string
	opts queue.Options
}

type fakeEnqueuer struct {
	calls  []enqueueCall
	errFor map[string]error
	dedupe bool
	seen   map[string]bool
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, kind string, payload any, opts queue.Options) (string, error) {
	f.calls = append(f.calls, enqueueCall{kind: kind, opts: opts})
	if err, ok := f.errFor[opts.UniqueID]; ok {
		return "", err
	}
	if f.dedupe {
		if f.seen == nil {
			f.seen = make(map[string]bool)
		}
		if f.seen[opts.UniqueID] {
			return "", queue.ErrDuplicateJob
		}
		f.seen[opts.UniqueID] = true
	}
	return uuid.NewString(), nil
}

func testTenants(slugs ...string) []models.Tenant {
	out := make([]models.Tenant, 0, len(slugs))
	for _, slug := range slugs {
		out = append(out, models.Tenant{TenantID: uuid.New(), Slug: slug, Status: models.TenantStatusActive})
	}
	return out
}

func TestSweepOnceQueuesEveryTenant(t *testing.T) {
	tenants := &fakeTenants{tenants: testTenants("acme", "globex", "initech")}
	enq := &fakeEnqueuer{}
	s := New(tenants, enq, nil, time.Minute, logx.New("test", "test", "", "error"))

	tick := time.Unix(1700000000, 0)
	queued, err := s.SweepOnce(context.Background(), queue.KindSlaSweepTenant, tick, 0)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if queued != 3 {
		t.Fatalf("queued = %d, want 3", queued)
	}
	want := "sweep:sla:acme:1700000000"
	if enq.calls[0].opts.UniqueID != want {
		t.Fatalf("unique id = %q, want %q", enq.calls[0].opts.UniqueID, want)
	}
}

func TestSweepOnceContinuesPastFailures(t *testing.T) {
	tenants := &fakeTenants{tenants: testTenants("acme", "globex", "initech")}
	enq := &fakeEnqueuer{errFor: map[string]error{
		"sweep:health:globex:100": errors.New("redis down"),
	}}
	s := New(tenants, enq, nil, time.Minute, logx.New("test", "test", "", "error"))

	queued, err := s.SweepOnce(context.Background(), queue.KindHealthScoreTenant, time.Unix(100, 0), 0)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2", queued)
	}
	if len(enq.calls) != 3 {
		t.Fatalf("enqueue calls = %d, want 3", len(enq.calls))
	}
}

func TestSweepOnceTreatsDuplicateAsQueuedElsewhere(t *testing.T) {
	tenants := &fakeTenants{tenants: testTenants("acme")}
	enq := &fakeEnqueuer{errFor: map[string]error{
		"sweep:cloudsync:acme:100": queue.ErrDuplicateJob,
	}}
	s := New(tenants, enq, nil, time.Minute, logx.New("test", "test", "", "error"))

	queued, err := s.SweepOnce(context.Background(), queue.KindCloudSyncTenant, time.Unix(100, 0), 0)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if queued != 0 {
		t.Fatalf("queued = %d, want 0", queued)
	}
}

func TestSweepOnceBucketsTicksWithinOneInterval(t *testing.T) {
	tenants := &fakeTenants{tenants: testTenants("acme", "globex")}
	enq := &fakeEnqueuer{dedupe: true}
	s := New(tenants, enq, nil, time.Minute, logx.New("test", "test", "", "error"))

	interval := 5 * time.Minute
	first := time.Unix(1700000000, 0)
	// A second instance's ticker firing later in the same window must
	// collapse onto the same task IDs, not enqueue a second sweep.
	second := first.Add(30 * time.Second)

	queued, err := s.SweepOnce(context.Background(), queue.KindSlaSweepTenant, first, interval)
	if err != nil {
		t.Fatalf("first SweepOnce: %v", err)
	}
	if queued != 2 {
		t.Fatalf("first queued = %d, want 2", queued)
	}
	queued, err = s.SweepOnce(context.Background(), queue.KindSlaSweepTenant, second, interval)
	if err != nil {
		t.Fatalf("second SweepOnce: %v", err)
	}
	if queued != 0 {
		t.Fatalf("second queued = %d, want 0", queued)
	}
	if got, want := enq.calls[0].opts.UniqueID, enq.calls[2].opts.UniqueID; got != want {
		t.Fatalf("unique ids diverged across ticks: %q vs %q", got, want)
	}
}

func TestSweepOnceListFailure(t *testing.T) {
	tenants := &fakeTenants{err: errors.New("db down")}
	enq := &fakeEnqueuer{}
	s := New(tenants, enq, nil, time.Minute, logx.New("test", "test", "", "error"))

	if _, err := s.SweepOnce(context.Background(), queue.KindSlaSweepTenant, time.Now(), 0); err == nil {
		t.Fatalf("expected error when tenant listing fails")
	}
}
