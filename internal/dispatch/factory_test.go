package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/storage"
	"github.com/sungwon/campaign-dispatch/internal/storage/storagetest"
)

// racingQuerier hides existing rows from the first FindMessage call, as if a
// concurrent run inserted between the lookup and the insert.
type racingQuerier struct {
	*storagetest.Fake
	hidden bool
}

func (r *racingQuerier) FindMessage(ctx context.Context, arg storage.FindMessageParams) (storage.Message, error) {
	if !r.hidden {
		r.hidden = true
		return storage.Message{}, pgx.ErrNoRows
	}
	return r.Fake.FindMessage(ctx, arg)
}

type recordingDelivery struct {
	scheduled []int64
	err       error
}

func (d *recordingDelivery) Schedule(_ context.Context, msg *storage.Message) error {
	if d.err != nil {
		return d.err
	}
	d.scheduled = append(d.scheduled, msg.ID)
	return nil
}

func setupFactory(t *testing.T, q storage.Querier, svc delivery.Service) *MessageFactory {
	t.Helper()
	f := NewMessageFactory(q, svc, zerolog.Nop())
	f.now = func() time.Time { return start }
	return f
}

func TestMessageFactory_LiveCreatesAndSchedules(t *testing.T) {
	store := storagetest.New()
	ws := seedWorkspace(t, store)
	sub := seedSubscribers(t, store, ws.ID, 1)[0]
	c := seedCampaign(t, store, ws.ID, true, false)
	rec := &recordingDelivery{}
	f := setupFactory(t, store, rec)

	sendAt := start.Add(time.Minute)
	msg, outcome, err := f.Dispatch(context.Background(), &c, &sub, sendAt, false)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Errorf("expected created, got %s", outcome)
	}
	if !msg.DelayedSendAt.Time.Equal(sendAt) || msg.QueuedAt.Valid {
		t.Errorf("unexpected timestamps %+v", msg)
	}
	if msg.RecipientEmail != sub.Email {
		t.Errorf("expected recipient %s, got %s", sub.Email, msg.RecipientEmail)
	}
	if len(rec.scheduled) != 1 || rec.scheduled[0] != msg.ID {
		t.Errorf("expected message %d scheduled once, got %v", msg.ID, rec.scheduled)
	}

	again, outcome, err := f.Dispatch(context.Background(), &c, &sub, sendAt.Add(time.Hour), false)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if outcome != OutcomeExisting || again.ID != msg.ID {
		t.Errorf("expected existing message %d, got %d (%s)", msg.ID, again.ID, outcome)
	}
	if !again.DelayedSendAt.Time.Equal(sendAt) {
		t.Error("expected existing message to be returned unchanged")
	}
	if len(rec.scheduled) != 1 {
		t.Errorf("expected no second job, got %d", len(rec.scheduled))
	}
}

func TestMessageFactory_LiveConcurrentInsert(t *testing.T) {
	store := storagetest.New()
	ws := seedWorkspace(t, store)
	sub := seedSubscribers(t, store, ws.ID, 1)[0]
	c := seedCampaign(t, store, ws.ID, true, false)

	first := setupFactory(t, store, &recordingDelivery{})
	created, _, err := first.Dispatch(context.Background(), &c, &sub, start, false)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	rec := &recordingDelivery{}
	racing := setupFactory(t, &racingQuerier{Fake: store}, rec)
	msg, outcome, err := racing.Dispatch(context.Background(), &c, &sub, start, false)
	if err != nil {
		t.Fatalf("expected unique violation to resolve to the existing row, got %v", err)
	}
	if outcome != OutcomeExisting || msg.ID != created.ID {
		t.Errorf("expected existing message %d, got %d (%s)", created.ID, msg.ID, outcome)
	}
	if len(rec.scheduled) != 0 {
		t.Errorf("expected the losing run not to enqueue, got %v", rec.scheduled)
	}
}

func TestMessageFactory_DraftGetOrCreate(t *testing.T) {
	store := storagetest.New()
	ws := seedWorkspace(t, store)
	sub := seedSubscribers(t, store, ws.ID, 1)[0]
	c := seedCampaign(t, store, ws.ID, true, true)
	rec := &recordingDelivery{}
	f := setupFactory(t, store, rec)

	msg, outcome, err := f.Dispatch(context.Background(), &c, &sub, start.Add(time.Hour), true)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Errorf("expected created, got %s", outcome)
	}
	if msg.DelayedSendAt.Valid || !msg.QueuedAt.Time.Equal(start) {
		t.Errorf("unexpected draft timestamps %+v", msg)
	}

	f.now = func() time.Time { return start.Add(time.Hour) }
	again, outcome, err := f.Dispatch(context.Background(), &c, &sub, start, true)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if outcome != OutcomeExisting || again.ID != msg.ID {
		t.Errorf("expected existing draft, got %d (%s)", again.ID, outcome)
	}
	if !again.QueuedAt.Time.Equal(start) {
		t.Error("expected existing draft to keep its queued_at")
	}
	if len(rec.scheduled) != 0 {
		t.Errorf("expected drafts never scheduled, got %v", rec.scheduled)
	}
}

func TestMessageFactory_ScheduleFailureRemovesRow(t *testing.T) {
	store := storagetest.New()
	ws := seedWorkspace(t, store)
	sub := seedSubscribers(t, store, ws.ID, 1)[0]
	c := seedCampaign(t, store, ws.ID, true, false)
	boom := errors.New("queue full")
	f := setupFactory(t, store, &recordingDelivery{err: boom})

	if _, _, err := f.Dispatch(context.Background(), &c, &sub, start, false); !errors.Is(err, boom) {
		t.Fatalf("expected schedule error, got %v", err)
	}
	if len(store.Messages()) != 0 {
		t.Errorf("expected compensation to remove the row, %d left", len(store.Messages()))
	}
}

func TestMessageFactory_LookupErrorPropagates(t *testing.T) {
	store := storagetest.New()
	ws := seedWorkspace(t, store)
	sub := seedSubscribers(t, store, ws.ID, 1)[0]
	c := seedCampaign(t, store, ws.ID, true, false)
	store.InsertErr = errors.New("disk full")
	store.InsertErrFor = sub.ID
	rec := &recordingDelivery{}
	f := setupFactory(t, store, rec)

	if _, _, err := f.Dispatch(context.Background(), &c, &sub, start, false); !errors.Is(err, store.InsertErr) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if _, _, err := f.Dispatch(context.Background(), &c, &sub, start, true); !errors.Is(err, store.InsertErr) {
		t.Fatalf("expected draft insert error, got %v", err)
	}
	if len(rec.scheduled) != 0 {
		t.Error("expected nothing scheduled after insert failures")
	}
}

func TestOutcome_String(t *testing.T) {
	if OutcomeCreated.String() != "created" || OutcomeExisting.String() != "existing" {
		t.Errorf("unexpected outcome names %s / %s", OutcomeCreated, OutcomeExisting)
	}
}
