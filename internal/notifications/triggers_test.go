package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"

	"inkwell/internal/featureflags"
	"inkwell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []Mail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return m.err
}

func (m *recordingMailer) Sent() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events map[uint][]Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, userID uint, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[uint][]Event)
	}
	p.events[userID] = append(p.events[userID], ev)
	return nil
}

func (p *recordingPublisher) For(userID uint) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events[userID]...)
}

type stubDirectory struct {
	users    map[uint]*models.User
	audience []models.User
	gotCat   *uint
}

func (s *stubDirectory) GetByID(_ context.Context, id uint) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, models.NewNotFoundError("User", id)
}

func (s *stubDirectory) ListPublishAudience(_ context.Context, _ uint, categoryID *uint) ([]models.User, error) {
	s.gotCat = categoryID
	return s.audience, nil
}

type triggerFixture struct {
	triggers *Triggers
	dispatch *Dispatcher
	mailer   *recordingMailer
	events   *recordingPublisher
	dir      *stubDirectory
}

func newTriggerFixture(t *testing.T, flags string) *triggerFixture {
	t.Helper()
	f := &triggerFixture{
		dispatch: NewDispatcher(16, 1),
		mailer:   &recordingMailer{},
		events:   &recordingPublisher{},
		dir: &stubDirectory{users: map[uint]*models.User{
			1: {ID: 1, Username: "alice", Email: "alice@example.com"},
		}},
	}
	f.dispatch.Start()
	f.triggers = NewTriggers(TriggersConfig{
		Dispatcher: f.dispatch,
		Users:      f.dir,
		Mailer:     f.mailer,
		Events:     f.events,
		Flags:      featureflags.NewManager(flags),
		MailFrom:   "notifications@inkwell.local",
	})
	return f
}

// drain waits for every queued job to finish.
func (f *triggerFixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.dispatch.Shutdown(context.Background()))
}

func publishedPost() *models.Post {
	return &models.Post{
		ID:       42,
		Title:    "Go Concurrency",
		AuthorID: 1,
		Author:   models.User{ID: 1, Username: "alice"},
		Status:   models.PostStatusPublished,
	}
}

func TestTriggers_FiveStarRatingMailsAuthor(t *testing.T) {
	f := newTriggerFixture(t, "realtime_events=on")

	f.triggers.OnFiveStarRating(context.Background(), &models.Rating{UserID: 2, PostID: 42, Score: 5}, publishedPost())
	f.drain(t)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, Mail{
		From:    "notifications@inkwell.local",
		To:      "alice@example.com",
		Subject: "Your post got a 5-star rating",
		Body:    "Hi alice,\n\nGreat news! Your post 'Go Concurrency' just received a 5-star rating.",
	}, sent[0])

	events := f.events.For(1)
	require.Len(t, events, 1)
	assert.Equal(t, EventRatingReceived, events[0].Type)
}

func TestTriggers_FiveStarRatingIgnoredCases(t *testing.T) {
	tests := []struct {
		name  string
		score int
		post  func() *models.Post
	}{
		{"four stars", 4, publishedPost},
		{"draft post", 5, func() *models.Post {
			p := publishedPost()
			p.Status = models.PostStatusDraft
			return p
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTriggerFixture(t, "")
			f.triggers.OnFiveStarRating(context.Background(), &models.Rating{UserID: 2, Score: tt.score}, tt.post())
			f.drain(t)
			assert.Empty(t, f.mailer.Sent())
		})
	}
}

func TestTriggers_FiveStarRatingAuthorWithoutEmail(t *testing.T) {
	f := newTriggerFixture(t, "")
	f.dir.users[1].Email = ""

	f.triggers.OnFiveStarRating(context.Background(), &models.Rating{UserID: 2, Score: 5}, publishedPost())
	f.drain(t)

	assert.Empty(t, f.mailer.Sent())
}

func TestTriggers_PostPublishedNotifiesAudience(t *testing.T) {
	f := newTriggerFixture(t, "realtime_events=on")
	f.dir.audience = []models.User{
		{ID: 2, Username: "bob", Email: "bob@example.com"},
		{ID: 3, Username: "carol", Email: "carol@example.com"},
		{ID: 4, Username: "dave"},
	}
	post := publishedPost()
	catID := uint(7)
	post.CategoryID = &catID

	f.triggers.OnPostPublished(context.Background(), post)
	f.drain(t)

	require.NotNil(t, f.dir.gotCat)
	assert.Equal(t, catID, *f.dir.gotCat)

	sent := f.mailer.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "bob@example.com", sent[0].To)
	assert.Equal(t, "New post from alice: Go Concurrency", sent[0].Subject)
	assert.Equal(t, "carol@example.com", sent[1].To)

	for _, id := range []uint{2, 3, 4} {
		events := f.events.For(id)
		require.Len(t, events, 1, "user %d", id)
		assert.Equal(t, EventPostPublished, events[0].Type)
	}
	assert.Empty(t, f.events.For(1))
}

func TestTriggers_RealtimeFlagOff(t *testing.T) {
	f := newTriggerFixture(t, "realtime_events=off")
	f.dir.audience = []models.User{{ID: 2, Username: "bob", Email: "bob@example.com"}}

	f.triggers.OnPostPublished(context.Background(), publishedPost())
	f.drain(t)

	assert.Len(t, f.mailer.Sent(), 1)
	assert.Empty(t, f.events.For(2))
}

func TestTriggers_MailFailureDoesNotStopOthers(t *testing.T) {
	f := newTriggerFixture(t, "")
	f.mailer.err = errors.New("smtp down")
	f.dir.audience = []models.User{
		{ID: 2, Username: "bob", Email: "bob@example.com"},
		{ID: 3, Username: "carol", Email: "carol@example.com"},
	}

	assert.NotPanics(t, func() {
		f.triggers.OnPostPublished(context.Background(), publishedPost())
	})
	f.drain(t)

	assert.Len(t, f.mailer.Sent(), 2)
}
