// Package storagetest provides an in-memory storage.Querier for unit tests.
// It enforces the same unique keys as the PostgreSQL schema so idempotency
// paths behave as they do against a real database.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sungwon/campaign-dispatch/internal/storage"
)

type messageKey struct {
	workspaceID  int64
	subscriberID int64
	sourceType   string
	sourceID     int64
}

// Fake is a concurrency-safe in-memory store.
type Fake struct {
	mu sync.Mutex

	nextID int64
	now    func() time.Time

	workspaces   map[int64]storage.Workspace
	subscribers  map[int64]storage.Subscriber
	tags         map[int64]storage.Tag
	tagMembers   map[int64]map[int64]bool
	campaigns    map[int64]storage.Campaign
	campaignTags map[int64]map[int64]bool
	messages     map[int64]storage.Message
	messageKeys  map[messageKey]int64

	// ListCalls counts subscriber page reads.
	ListCalls int
	// ListErr, when set, is returned from the page read whose AfterID matches
	// ListErrAfter.
	ListErr      error
	ListErrAfter int64
	// InsertErr, when set, is returned for inserts of the given subscriber.
	InsertErr      error
	InsertErrFor   int64
	DeleteMessages int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		now:          time.Now,
		workspaces:   make(map[int64]storage.Workspace),
		subscribers:  make(map[int64]storage.Subscriber),
		tags:         make(map[int64]storage.Tag),
		tagMembers:   make(map[int64]map[int64]bool),
		campaigns:    make(map[int64]storage.Campaign),
		campaignTags: make(map[int64]map[int64]bool),
		messages:     make(map[int64]storage.Message),
		messageKeys:  make(map[messageKey]int64),
	}
}

var _ storage.Querier = (*Fake)(nil)

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func (f *Fake) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *Fake) CreateWorkspace(_ context.Context, name string) (storage.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workspaces {
		if w.Name == name {
			return storage.Workspace{}, uniqueViolation()
		}
	}
	w := storage.Workspace{ID: f.id(), Name: name, CreatedAt: f.now()}
	f.workspaces[w.ID] = w
	return w, nil
}

func (f *Fake) GetWorkspaceByName(_ context.Context, name string) (storage.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workspaces {
		if w.Name == name {
			return w, nil
		}
	}
	return storage.Workspace{}, pgx.ErrNoRows
}

func (f *Fake) UpsertSubscriber(_ context.Context, arg storage.UpsertSubscriberParams) (storage.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.subscribers {
		if s.WorkspaceID == arg.WorkspaceID && s.Email == arg.Email {
			s.FirstName, s.LastName, s.UpdatedAt = arg.FirstName, arg.LastName, f.now()
			f.subscribers[id] = s
			return s, nil
		}
	}
	now := f.now()
	s := storage.Subscriber{
		ID:          f.id(),
		WorkspaceID: arg.WorkspaceID,
		Email:       arg.Email,
		FirstName:   arg.FirstName,
		LastName:    arg.LastName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.subscribers[s.ID] = s
	return s, nil
}

func (f *Fake) UnsubscribeSubscriber(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscribers[id]
	if !ok {
		return nil
	}
	if !s.UnsubscribedAt.Valid {
		s.UnsubscribedAt = storage.Timestamptz(f.now())
	}
	f.subscribers[id] = s
	return nil
}

func (f *Fake) page(match func(storage.Subscriber) bool, afterID int64, limit int32) ([]storage.Subscriber, error) {
	f.ListCalls++
	if f.ListErr != nil && f.ListErrAfter == afterID {
		return nil, f.ListErr
	}
	var out []storage.Subscriber
	for _, s := range f.subscribers {
		if s.ID > afterID && !s.UnsubscribedAt.Valid && match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) ListWorkspaceSubscribersAfter(_ context.Context, arg storage.ListWorkspaceSubscribersAfterParams) ([]storage.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page(func(s storage.Subscriber) bool { return s.WorkspaceID == arg.WorkspaceID }, arg.AfterID, arg.Limit)
}

func (f *Fake) ListTagSubscribersAfter(_ context.Context, arg storage.ListTagSubscribersAfterParams) ([]storage.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.tagMembers[arg.TagID]
	return f.page(func(s storage.Subscriber) bool {
		return members[s.ID] && s.WorkspaceID == arg.WorkspaceID
	}, arg.AfterID, arg.Limit)
}

func (f *Fake) UpsertTag(_ context.Context, arg storage.UpsertTagParams) (storage.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tags {
		if t.WorkspaceID == arg.WorkspaceID && t.Name == arg.Name {
			return t, nil
		}
	}
	t := storage.Tag{ID: f.id(), WorkspaceID: arg.WorkspaceID, Name: arg.Name, CreatedAt: f.now()}
	f.tags[t.ID] = t
	return t, nil
}

func (f *Fake) AttachSubscriberTag(_ context.Context, arg storage.AttachSubscriberTagParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tagMembers[arg.TagID] == nil {
		f.tagMembers[arg.TagID] = make(map[int64]bool)
	}
	f.tagMembers[arg.TagID][arg.SubscriberID] = true
	return nil
}

func (f *Fake) CreateCampaign(_ context.Context, arg storage.CreateCampaignParams) (storage.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	c := storage.Campaign{
		ID:          f.id(),
		WorkspaceID: arg.WorkspaceID,
		Name:        arg.Name,
		Status:      arg.Status,
		Subject:     arg.Subject,
		FromName:    arg.FromName,
		FromEmail:   arg.FromEmail,
		SendToAll:   arg.SendToAll,
		SaveAsDraft: arg.SaveAsDraft,
		ScheduledAt: arg.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Status == "" {
		c.Status = storage.CampaignStatusDraft
	}
	f.campaigns[c.ID] = c
	return c, nil
}

func (f *Fake) GetCampaign(_ context.Context, id int64) (storage.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return storage.Campaign{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f *Fake) GetWorkspaceCampaign(_ context.Context, arg storage.GetWorkspaceCampaignParams) (storage.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[arg.ID]
	if !ok || c.WorkspaceID != arg.WorkspaceID {
		return storage.Campaign{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f *Fake) ListCampaignTagIDs(_ context.Context, campaignID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok {
		return nil, nil
	}
	var ids []int64
	for id := range f.campaignTags[campaignID] {
		if f.tags[id].WorkspaceID == c.WorkspaceID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *Fake) AttachCampaignTag(_ context.Context, arg storage.AttachCampaignTagParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.campaignTags[arg.CampaignID] == nil {
		f.campaignTags[arg.CampaignID] = make(map[int64]bool)
	}
	f.campaignTags[arg.CampaignID][arg.TagID] = true
	return nil
}

func (f *Fake) UpdateCampaignStatus(_ context.Context, arg storage.UpdateCampaignStatusParams) (storage.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[arg.ID]
	if !ok {
		return storage.Campaign{}, pgx.ErrNoRows
	}
	c.Status = arg.Status
	c.UpdatedAt = f.now()
	f.campaigns[c.ID] = c
	return c, nil
}

func (f *Fake) ListDueCampaigns(_ context.Context, now time.Time) ([]storage.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Campaign
	for _, c := range f.campaigns {
		if (c.Status == storage.CampaignStatusQueued || c.Status == storage.CampaignStatusSending) && c.ScheduledAt.Valid && !c.ScheduledAt.Time.After(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Time.Equal(out[j].ScheduledAt.Time) {
			return out[i].ScheduledAt.Time.Before(out[j].ScheduledAt.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func keyOf(arg storage.InsertMessageParams) messageKey {
	return messageKey{arg.WorkspaceID, arg.SubscriberID, arg.SourceType, arg.SourceID}
}

func (f *Fake) insert(arg storage.InsertMessageParams) storage.Message {
	now := f.now()
	m := storage.Message{
		ID:             f.id(),
		WorkspaceID:    arg.WorkspaceID,
		SubscriberID:   arg.SubscriberID,
		SourceType:     arg.SourceType,
		SourceID:       arg.SourceID,
		RecipientEmail: arg.RecipientEmail,
		Subject:        arg.Subject,
		FromName:       arg.FromName,
		FromEmail:      arg.FromEmail,
		QueuedAt:       arg.QueuedAt,
		DelayedSendAt:  arg.DelayedSendAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.messages[m.ID] = m
	f.messageKeys[keyOf(arg)] = m.ID
	return m
}

func (f *Fake) InsertDraftMessage(_ context.Context, arg storage.InsertMessageParams) (storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil && f.InsertErrFor == arg.SubscriberID {
		return storage.Message{}, f.InsertErr
	}
	if _, ok := f.messageKeys[keyOf(arg)]; ok {
		return storage.Message{}, pgx.ErrNoRows
	}
	return f.insert(arg), nil
}

func (f *Fake) InsertMessage(_ context.Context, arg storage.InsertMessageParams) (storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil && f.InsertErrFor == arg.SubscriberID {
		return storage.Message{}, f.InsertErr
	}
	if _, ok := f.messageKeys[keyOf(arg)]; ok {
		return storage.Message{}, uniqueViolation()
	}
	return f.insert(arg), nil
}

func (f *Fake) FindMessage(_ context.Context, arg storage.FindMessageParams) (storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.messageKeys[messageKey{arg.WorkspaceID, arg.SubscriberID, arg.SourceType, arg.SourceID}]
	if !ok {
		return storage.Message{}, pgx.ErrNoRows
	}
	return f.messages[id], nil
}

func (f *Fake) GetMessage(_ context.Context, id int64) (storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return storage.Message{}, pgx.ErrNoRows
	}
	return m, nil
}

func (f *Fake) DeleteMessage(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil
	}
	f.DeleteMessages++
	delete(f.messages, id)
	delete(f.messageKeys, messageKey{m.WorkspaceID, m.SubscriberID, m.SourceType, m.SourceID})
	return nil
}

func (f *Fake) MarkMessageSent(_ context.Context, arg storage.MarkMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[arg.ID]
	if !ok {
		return nil
	}
	m.MessageID.String, m.MessageID.Valid = arg.MessageID, true
	m.SentAt = storage.Timestamptz(f.now())
	m.FailedAt.Valid = false
	f.messages[m.ID] = m
	return nil
}

func (f *Fake) MarkMessageFailed(_ context.Context, arg storage.MarkMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[arg.ID]
	if !ok {
		return nil
	}
	m.MessageID.String, m.MessageID.Valid = arg.MessageID, true
	m.FailedAt = storage.Timestamptz(f.now())
	f.messages[m.ID] = m
	return nil
}

func (f *Fake) GetCampaignStats(_ context.Context, campaignID int64) (storage.CampaignStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var st storage.CampaignStats
	for _, m := range f.messages {
		if m.SourceType != storage.SourceTypeCampaign || m.SourceID != campaignID {
			continue
		}
		st.Total++
		switch {
		case m.SentAt.Valid:
			st.Sent++
		case m.FailedAt.Valid:
			st.Failed++
		case m.DelayedSendAt.Valid:
			st.Pending++
		case m.QueuedAt.Valid:
			st.Drafts++
		}
	}
	return st, nil
}

// Messages returns every stored message ordered by id.
func (f *Fake) Messages() []storage.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.Message, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutMessage stores m as-is, replacing any row with the same id.
func (f *Fake) PutMessage(m storage.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == 0 {
		m.ID = f.id()
	} else if m.ID > f.nextID {
		f.nextID = m.ID
	}
	f.messages[m.ID] = m
	f.messageKeys[messageKey{m.WorkspaceID, m.SubscriberID, m.SourceType, m.SourceID}] = m.ID
}
