package sla

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"firelater-orchestrator/internal/models"
	"firelater-orchestrator/internal/queue"
	"firelater-orchestrator/internal/repos"
	"firelater-orchestrator/shared/logx"
)

type fakeStore struct {
	targets    []models.SlaTarget
	response   []repos.BreachCandidate
	resolution []repos.BreachCandidate
	marked     map[uuid.UUID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{marked: make(map[uuid.UUID]bool)}
}

func (f *fakeStore) TargetsForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.SlaTarget, error) {
	return f.targets, nil
}

func (f *fakeStore) unmarked(in []repos.BreachCandidate) []repos.BreachCandidate {
	var out []repos.BreachCandidate
	for _, c := range in {
		if !f.marked[c.TicketID] {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeStore) FindResponseBreaches(ctx context.Context, tenantID uuid.UUID, tiers map[string]int) ([]repos.BreachCandidate, error) {
	if len(tiers) == 0 {
		return nil, nil
	}
	return f.unmarked(f.response), nil
}

func (f *fakeStore) FindResolutionBreaches(ctx context.Context, tenantID uuid.UUID, tiers map[string]int) ([]repos.BreachCandidate, error) {
	if len(tiers) == 0 {
		return nil, nil
	}
	return f.unmarked(f.resolution), nil
}

func (f *fakeStore) MarkBreached(ctx context.Context, tenantID uuid.UUID, ticketIDs []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ticketIDs {
		if !f.marked[id] {
			f.marked[id] = true
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ApproachingResolution(ctx context.Context, tenantID uuid.UUID, targets []models.SlaTarget) ([]models.SlaWarning, error) {
	return nil, nil
}

type fakeDirectory struct {
	users    map[uuid.UUID]models.User
	managers map[uuid.UUID]models.User
}

func (f *fakeDirectory) ActiveByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) GroupManagers(ctx context.Context, tenantID uuid.UUID, groupIDs []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User)
	for _, id := range groupIDs {
		if m, ok := f.managers[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

type notifyRecorder struct {
	payloads []queue.NotifyPayload
	failOn   map[uuid.UUID]error
}

func (r *notifyRecorder) Enqueue(ctx context.Context, kind string, payload any, opts queue.Options) (string, error) {
	p := payload.(queue.NotifyPayload)
	ticketID, _ := uuid.Parse(p.Data["ticket_id"].(string))
	if err, ok := r.failOn[ticketID]; ok {
		return "", err
	}
	r.payloads = append(r.payloads, p)
	return uuid.NewString(), nil
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func testLogger() logx.Logger { return logx.New("test", "test", "", "error") }

func TestSweepUsesDefaultTiersWhenNoneConfigured(t *testing.T) {
	assignee := models.User{UserID: uuid.New(), Email: "a@acme.test", Active: true}
	store := newFakeStore()
	store.response = []repos.BreachCandidate{
		{TicketID: uuid.New(), Priority: models.PriorityCritical, AssigneeID: ptr(assignee.UserID)},
	}
	dir := &fakeDirectory{users: map[uuid.UUID]models.User{assignee.UserID: assignee}}
	enq := &notifyRecorder{}
	d := New(store, dir, enq, nil, nil, testLogger())

	res, err := d.Sweep(context.Background(), uuid.New(), "acme")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.ResponseBreaches != 1 || res.Marked != 1 {
		t.Fatalf("res = %+v, want one response breach marked", res)
	}
	if res.NotifyQueued != 1 {
		t.Fatalf("notify queued = %d, want 1", res.NotifyQueued)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	assignee := models.User{UserID: uuid.New(), Active: true}
	ticketID := uuid.New()
	store := newFakeStore()
	store.resolution = []repos.BreachCandidate{
		{TicketID: ticketID, Priority: models.PriorityHigh, AssigneeID: ptr(assignee.UserID)},
	}
	dir := &fakeDirectory{users: map[uuid.UUID]models.User{assignee.UserID: assignee}}
	enq := &notifyRecorder{}
	d := New(store, dir, enq, nil, nil, testLogger())

	first, err := d.Sweep(context.Background(), uuid.New(), "acme")
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if first.Marked != 1 {
		t.Fatalf("first sweep marked %d, want 1", first.Marked)
	}

	second, err := d.Sweep(context.Background(), uuid.New(), "acme")
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second.ResolutionBreaches != 0 || second.Marked != 0 {
		t.Fatalf("second sweep = %+v, want nothing found", second)
	}
}

func TestSweepMarksDoubleBreachOnce(t *testing.T) {
	assignee := models.User{UserID: uuid.New(), Active: true}
	ticketID := uuid.New()
	c := repos.BreachCandidate{TicketID: ticketID, Priority: models.PriorityCritical, AssigneeID: ptr(assignee.UserID)}
	store := newFakeStore()
	store.response = []repos.BreachCandidate{c}
	store.resolution = []repos.BreachCandidate{c}
	dir := &fakeDirectory{users: map[uuid.UUID]models.User{assignee.UserID: assignee}}
	enq := &notifyRecorder{}
	d := New(store, dir, enq, nil, nil, testLogger())

	res, err := d.Sweep(context.Background(), uuid.New(), "acme")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Marked != 1 {
		t.Fatalf("marked = %d, want 1 for a ticket breaching both metrics", res.Marked)
	}
	if res.NotifyQueued != 2 {
		t.Fatalf("notify queued = %d, want one per breach type", res.NotifyQueued)
	}
}

func TestSweepContinuesPastEnqueueFailure(t *testing.T) {
	assignee := models.User{UserID: uuid.New(), Active: true}
	badTicket := uuid.New()
	goodTicket := uuid.New()
	store := newFakeStore()
	store.response = []repos.BreachCandidate{
		{TicketID: badTicket, Priority: models.PriorityHigh, AssigneeID: ptr(assignee.UserID)},
		{TicketID: goodTicket, Priority: models.PriorityHigh, AssigneeID: ptr(assignee.UserID)},
	}
	dir := &fakeDirectory{users: map[uuid.UUID]models.User{assignee.UserID: assignee}}
	enq := &notifyRecorder{failOn: map[uuid.UUID]error{badTicket: errors.New("broker down")}}
	d := New(store, dir, enq, nil, nil, testLogger())

	res, err := d.Sweep(context.Background(), uuid.New(), "acme")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.NotifyQueued != 1 || res.NotifyFailed != 1 {
		t.Fatalf("res = %+v, want 1 queued and 1 failed", res)
	}
}

func TestRecipientsSkipManagerWhenSameAsAssignee(t *testing.T) {
	person := models.User{UserID: uuid.New(), Active: true}
	groupID := uuid.New()
	idx := recipientIndex{
		usersByID: map[uuid.UUID]models.User{person.UserID: person},
		managers:  map[uuid.UUID]models.User{groupID: person},
	}
	c := repos.BreachCandidate{TicketID: uuid.New(), AssigneeID: ptr(person.UserID), AssignmentGroup: ptr(groupID)}
	got := idx.recipientsFor(c)
	if len(got) != 1 {
		t.Fatalf("recipients = %d, want 1 when manager is the assignee", len(got))
	}
}

func TestQueueEachCollectsErrors(t *testing.T) {
	items := []int{1, 2, 3, 4}
	ok, errs := queueEach(items, func(n int) error {
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})
	if ok != 2 || len(errs) != 2 {
		t.Fatalf("ok = %d errs = %d, want 2 and 2", ok, len(errs))
	}
}

func TestDefaultTargetsCoverEveryTierAndMetric(t *testing.T) {
	targets := DefaultTargets()
	seen := make(map[string]map[string]bool)
	for _, target := range targets {
		if target.TargetMinutes <= 0 {
			t.Fatalf("default target %s/%s has non-positive minutes", target.Priority, target.Metric)
		}
		if seen[target.Priority] == nil {
			seen[target.Priority] = make(map[string]bool)
		}
		seen[target.Priority][target.Metric] = true
	}
	for _, priority := range []string{models.PriorityCritical, models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		if !seen[priority][models.SlaMetricResponse] || !seen[priority][models.SlaMetricResolution] {
			t.Fatalf("priority %s missing a default metric", priority)
		}
	}
}
