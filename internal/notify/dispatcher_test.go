package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"firelater-orchestrator/internal/models"
	"firelater-orchestrator/internal/queue"
	"firelater-orchestrator/shared/logx"
)

type fakeDirectory struct {
	byID map[uuid.UUID]models.User
}

func (f *fakeDirectory) ActiveByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := f.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) ActiveByEmails(ctx context.Context, tenantID uuid.UUID, emails []string) ([]models.User, error) {
	var out []models.User
	for _, email := range emails {
		for _, u := range f.byID {
			if u.Email == email {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

type fakeInApp struct {
	inserted []models.InAppNotification
	err      error
}

func (f *fakeInApp) InsertInApp(ctx context.Context, tenantID uuid.UUID, n models.InAppNotification) (models.InAppNotification, error) {
	if f.err != nil {
		return models.InAppNotification{}, f.err
	}
	n.NotificationID = uuid.New()
	f.inserted = append(f.inserted, n)
	return n, nil
}

type fakeEmail struct {
	sent   []Email
	failTo map[string]error
}

func (f *fakeEmail) Send(ctx context.Context, msg Email) error {
	if err, ok := f.failTo[msg.To]; ok {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSlack struct {
	posts []string
	err   error
}

func (f *fakeSlack) Post(ctx context.Context, webhookURL string, text string) error {
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, text)
	return nil
}

func testLogger() logx.Logger { return logx.New("test", "test", "", "error") }

func twoUsers() (models.User, models.User, *fakeDirectory) {
	a := models.User{UserID: uuid.New(), Email: "a@acme.test", Active: true, InAppEnabled: true}
	b := models.User{UserID: uuid.New(), Email: "b@acme.test", Active: true, InAppEnabled: true}
	dir := &fakeDirectory{byID: map[uuid.UUID]models.User{a.UserID: a, b.UserID: b}}
	return a, b, dir
}

func TestDispatchPartialSuccessIsNotAnError(t *testing.T) {
	a, b, dir := twoUsers()
	inapp := &fakeInApp{}
	email := &fakeEmail{failTo: map[string]error{b.Email: errors.New("mailbox full")}}
	d := New(dir, inapp, email, nil, testLogger())

	err := d.Dispatch(context.Background(), queue.NotifyPayload{
		TenantID:    uuid.New(),
		TenantSlug:  "acme",
		TemplateKey: "sla_breach",
		Channel:     models.ChannelAll,
		UserIDs:     []uuid.UUID{a.UserID, b.UserID},
		Data:        map[string]any{"ticket_id": "T-1", "priority": "high", "breach_type": "response"},
	})
	if err != nil {
		t.Fatalf("partial success must not fail the job: %v", err)
	}
	if len(inapp.inserted) != 2 {
		t.Fatalf("in-app inserts = %d, want 2", len(inapp.inserted))
	}
	if len(email.sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(email.sent))
	}
}

func TestDispatchAllChannelsFailingFailsTheJob(t *testing.T) {
	a := models.User{UserID: uuid.New(), Email: "a@acme.test", Active: true, InAppEnabled: true}
	dir := &fakeDirectory{byID: map[uuid.UUID]models.User{a.UserID: a}}
	inapp := &fakeInApp{err: errors.New("insert failed")}
	email := &fakeEmail{failTo: map[string]error{a.Email: errors.New("relay down")}}
	d := New(dir, inapp, email, nil, testLogger())

	err := d.Dispatch(context.Background(), queue.NotifyPayload{
		TenantID:    uuid.New(),
		TenantSlug:  "acme",
		TemplateKey: "sla_breach",
		Channel:     models.ChannelAll,
		UserIDs:     []uuid.UUID{a.UserID},
	})
	if err == nil {
		t.Fatalf("zero deliveries with errors must fail the job")
	}
}

func TestDispatchZeroRecipientsIsNotAnError(t *testing.T) {
	dir := &fakeDirectory{byID: map[uuid.UUID]models.User{}}
	d := New(dir, &fakeInApp{}, nil, nil, testLogger())

	err := d.Dispatch(context.Background(), queue.NotifyPayload{
		TenantID:    uuid.New(),
		TenantSlug:  "acme",
		TemplateKey: "sla_breach",
		Channel:     models.ChannelAll,
		UserIDs:     []uuid.UUID{uuid.New()},
	})
	if err != nil {
		t.Fatalf("no recipients should be a no-op, got %v", err)
	}
}

func TestDispatchRespectsInAppPreference(t *testing.T) {
	a := models.User{UserID: uuid.New(), Email: "a@acme.test", Active: true, InAppEnabled: false}
	dir := &fakeDirectory{byID: map[uuid.UUID]models.User{a.UserID: a}}
	inapp := &fakeInApp{}
	d := New(dir, inapp, &fakeEmail{}, nil, testLogger())

	err := d.Dispatch(context.Background(), queue.NotifyPayload{
		TenantID:    uuid.New(),
		TenantSlug:  "acme",
		TemplateKey: "sla_breach",
		Channel:     models.ChannelAll,
		UserIDs:     []uuid.UUID{a.UserID},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(inapp.inserted) != 0 {
		t.Fatalf("in-app delivered despite disabled preference")
	}
}

func TestDispatchSlackOncePerJob(t *testing.T) {
	a, b, dir := twoUsers()
	slack := &fakeSlack{}
	d := New(dir, &fakeInApp{}, nil, slack, testLogger())

	err := d.Dispatch(context.Background(), queue.NotifyPayload{
		TenantID:    uuid.New(),
		TenantSlug:  "acme",
		TemplateKey: "cloud_sync_failed",
		Channel:     models.ChannelSlack,
		UserIDs:     []uuid.UUID{a.UserID, b.UserID},
		Data: map[string]any{
			"slack_webhook": "https://hooks.example.test/T123",
			"account_name":  "prod",
			"provider":      "aws",
		},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(slack.posts) != 1 {
		t.Fatalf("slack posts = %d, want exactly 1 per job", len(slack.posts))
	}
	if !strings.Contains(slack.posts[0], "prod") {
		t.Fatalf("slack text %q missing account name", slack.posts[0])
	}
}

func TestDispatchChannelSelectorLimitsDelivery(t *testing.T) {
	a := models.User{UserID: uuid.New(), Email: "a@acme.test", Active: true, InAppEnabled: true}
	dir := &fakeDirectory{byID: map[uuid.UUID]models.User{a.UserID: a}}
	inapp := &fakeInApp{}
	email := &fakeEmail{}
	d := New(dir, inapp, email, nil, testLogger())

	err := d.Dispatch(context.Background(), queue.NotifyPayload{
		TenantID:    uuid.New(),
		TenantSlug:  "acme",
		TemplateKey: "sla_breach",
		Channel:     models.ChannelEmail,
		UserIDs:     []uuid.UUID{a.UserID},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(email.sent) != 1 || len(inapp.inserted) != 0 {
		t.Fatalf("email-only dispatch delivered in-app")
	}
}

func TestLookupFallsBackToGeneric(t *testing.T) {
	r, err := Lookup("never_registered").Render(map[string]any{
		"tenant_slug": "acme",
		"message":     "hello",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if r.Text != "hello" {
		t.Fatalf("generic text = %q, want %q", r.Text, "hello")
	}
	if !strings.Contains(r.Subject, "acme") {
		t.Fatalf("generic subject %q missing tenant", r.Subject)
	}
}
