package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/pkg/util"
)

type fakeTicketRepo struct {
	tickets map[string]*domain.Ticket
	now     func() time.Time
}

func newFakeTicketRepo(now func() time.Time) *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}, now: now}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	for _, existing := range r.tickets {
		if existing.TicketNumber == ticket.TicketNumber {
			return repository.ErrDuplicateTicketNumber
		}
	}
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = r.now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = r.now()
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	for _, ticket := range r.tickets {
		if ticket.TicketNumber == number {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	count := 0
	for _, ticket := range r.tickets {
		if !ticket.CreatedAt.Before(from) && ticket.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return r.ListAll(ctx)
}

func (r *fakeTicketRepo) ListAll(ctx context.Context) ([]domain.Ticket, error) {
	result := make([]domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		result = append(result, *ticket)
	}
	return result, nil
}

type fakeCommentRepo struct {
	comments []domain.Comment
}

func (r *fakeCommentRepo) Create(ctx context.Context, comment *domain.Comment) error {
	comment.ID = uuid.NewString()
	comment.CreatedAt = time.Now()
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *fakeCommentRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	var result []domain.Comment
	for _, comment := range r.comments {
		if comment.TicketID == ticketID {
			result = append(result, comment)
		}
	}
	return result, nil
}

type fakeHistoryRepo struct {
	entries []domain.TicketHistory
}

func (r *fakeHistoryRepo) Create(ctx context.Context, entry *domain.TicketHistory) error {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakeUserRepo struct {
	byEmail map[string]*domain.User
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	user.ID = uuid.NewString()
	r.byEmail[user.Email] = user
	return nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *domain.User) error { return nil }

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	for _, user := range r.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

type recordingDispatcher struct {
	published []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

type serviceFixture struct {
	service    *TicketService
	tickets    *fakeTicketRepo
	comments   *fakeCommentRepo
	history    *fakeHistoryRepo
	users      *fakeUserRepo
	dispatcher *recordingDispatcher
	clock      *time.Time
}

func newFixture(t *testing.T, start time.Time) *serviceFixture {
	t.Helper()
	clock := start
	fixture := &serviceFixture{clock: &clock}
	now := func() time.Time { return *fixture.clock }

	fixture.tickets = newFakeTicketRepo(now)
	fixture.comments = &fakeCommentRepo{}
	fixture.history = &fakeHistoryRepo{}
	fixture.users = &fakeUserRepo{byEmail: map[string]*domain.User{}}
	fixture.dispatcher = &recordingDispatcher{}

	cfg := config.TicketingConfig{
		NumberPrefix:      "TICK",
		NumberMaxAttempts: 5,
	}
	fixture.service = NewTicketService(cfg, TicketDependencies{
		TicketRepo:  fixture.tickets,
		CommentRepo: fixture.comments,
		HistoryRepo: fixture.history,
		UserRepo:    fixture.users,
		Dispatcher:  fixture.dispatcher,
		Logger:      zap.NewNop(),
	})
	fixture.service.SetClock(now)
	return fixture
}

func (f *serviceFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func mustCreate(t *testing.T, f *serviceFixture, input TicketCreateInput) *domain.Ticket {
	t.Helper()
	ticket, err := f.service.CreateTicket(context.Background(), input)
	require.NoError(t, err)
	return ticket
}

func TestTicketNumberFormat(t *testing.T) {
	day := time.Date(2024, 3, 5, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		prefix string
		seq    int
		want   string
	}{
		{name: "first of day", prefix: "TICK", seq: 1, want: "TICK-20240305-0001"},
		{name: "zero padding", prefix: "TICK", seq: 42, want: "TICK-20240305-0042"},
		{name: "four digits", prefix: "TICK", seq: 9999, want: "TICK-20240305-9999"},
		{name: "empty prefix falls back", prefix: "", seq: 7, want: "TICK-20240305-0007"},
		{name: "custom prefix", prefix: "HD", seq: 3, want: "HD-20240305-0003"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TicketNumber(tt.prefix, day, tt.seq))
		})
	}
}

func TestTicketNumberUsesUTCDay(t *testing.T) {
	// 01:30 in UTC+3 is still the previous day in UTC.
	zone := time.FixedZone("UTC+3", 3*60*60)
	local := time.Date(2024, 3, 6, 1, 30, 0, 0, zone)
	assert.Equal(t, "TICK-20240305-0001", TicketNumber("TICK", local, 1))
}

func TestCreateTicketThirdOfDay(t *testing.T) {
	start := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, start)

	mustCreate(t, f, TicketCreateInput{Subject: "a", Description: "b", RequesterEmail: "x@x.com"})
	f.advance(time.Hour)
	mustCreate(t, f, TicketCreateInput{Subject: "c", Description: "d", RequesterEmail: "y@x.com"})
	f.advance(time.Hour)

	ticket := mustCreate(t, f, TicketCreateInput{
		Subject:        "Printer jam",
		Description:    "The office printer keeps jamming.",
		RequesterEmail: "a@x.com",
	})

	assert.Equal(t, "TICK-20240305-0003", ticket.TicketNumber)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.ResponseTime)
	assert.Nil(t, ticket.ResolutionTime)
	assert.Equal(t, domain.DefaultCategory, ticket.Category)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))

	tests := []struct {
		name  string
		input TicketCreateInput
	}{
		{name: "missing subject", input: TicketCreateInput{Description: "d", RequesterEmail: "a@x.com"}},
		{name: "missing description", input: TicketCreateInput{Subject: "s", RequesterEmail: "a@x.com"}},
		{name: "missing email", input: TicketCreateInput{Subject: "s", Description: "d"}},
		{name: "unparseable email", input: TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "not an email"}},
		{name: "whitespace subject", input: TicketCreateInput{Subject: "   ", Description: "d", RequesterEmail: "a@x.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateTicket(context.Background(), tt.input)
			require.Error(t, err)
			de := util.ToDomainError(err)
			assert.Equal(t, "VALIDATION_FAILED", de.Code)
		})
	}
	assert.Empty(t, f.dispatcher.published, "no notification on failed create")
}

func TestCreateTicketLinksRequesterAccount(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	account := &domain.User{ID: uuid.NewString(), Name: "Ann", Email: "ann@corp.example"}
	f.users.byEmail[account.Email] = account

	linked := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "ann@corp.example"})
	require.NotNil(t, linked.CreatedByID)
	assert.Equal(t, account.ID, *linked.CreatedByID)

	unlinked := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "stranger@corp.example"})
	assert.Nil(t, unlinked.CreatedByID, "unknown requester creates an unlinked ticket")
}

func TestCreateTicketPublishesReceivedEvent(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})

	require.Len(t, f.dispatcher.published, 1)
	event := f.dispatcher.published[0]
	assert.Equal(t, events.EventTicketReceived, event.Type)
	assert.Equal(t, ticket.ID, event.TicketID)
	payload, ok := event.Payload.(events.TicketReceivedPayload)
	require.True(t, ok)
	assert.Equal(t, ticket.TicketNumber, payload.TicketNumber)
	assert.Equal(t, "a@x.com", payload.RequesterEmail)
}

func TestCreateTicketRetriesOnNumberCollision(t *testing.T) {
	start := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, start)

	// A ticket created yesterday already holds today's first number, so
	// the count-based sequence collides and must be retried.
	yesterday := start.AddDate(0, 0, -1)
	f.tickets.tickets["stale"] = &domain.Ticket{
		ID:           "stale",
		TicketNumber: "TICK-20240305-0001",
		CreatedAt:    yesterday,
	}

	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})
	assert.Equal(t, "TICK-20240305-0002", ticket.TicketNumber)
}

func TestUpdateStatusSetsResponseTimeOnce(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "Printer jam", Description: "d", RequesterEmail: "a@x.com"})

	f.advance(30 * time.Minute)
	firstResponse := *f.clock
	inProgress := domain.TicketStatusInProgress
	updated, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Status: &inProgress})
	require.NoError(t, err)

	require.NotNil(t, updated.ResponseTime)
	assert.True(t, updated.ResponseTime.Equal(firstResponse))

	require.Len(t, f.history.entries, 1)
	entry := f.history.entries[0]
	assert.Equal(t, domain.HistoryFieldStatus, entry.Field)
	assert.Equal(t, "Open", *entry.OldValue)
	assert.Equal(t, "In Progress", *entry.NewValue)

	// Reopen, then move back to In Progress: the first measured response
	// interval must survive.
	f.advance(time.Hour)
	open := domain.TicketStatusOpen
	_, err = f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Status: &open})
	require.NoError(t, err)

	f.advance(time.Hour)
	reworked, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Status: &inProgress})
	require.NoError(t, err)
	require.NotNil(t, reworked.ResponseTime)
	assert.True(t, reworked.ResponseTime.Equal(firstResponse), "responseTime is write-once")
}

func TestUpdateStatusSetsResolutionTimeOnce(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})

	f.advance(2 * time.Hour)
	resolvedAt := *f.clock
	resolved := domain.TicketStatusResolved
	updated, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Status: &resolved})
	require.NoError(t, err)
	require.NotNil(t, updated.ResolutionTime)
	assert.True(t, updated.ResolutionTime.Equal(resolvedAt))

	f.advance(time.Hour)
	closed := domain.TicketStatusClosed
	final, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Status: &closed})
	require.NoError(t, err)
	require.NotNil(t, final.ResolutionTime)
	assert.True(t, final.ResolutionTime.Equal(resolvedAt), "resolutionTime is write-once")
}

func TestUpdateRecordsOneHistoryEntryPerChangedField(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})

	actor := uuid.NewString()
	assignee := uuid.NewString()
	inProgress := domain.TicketStatusInProgress
	high := domain.TicketPriorityHigh
	_, err := f.service.UpdateTicket(context.Background(), ticket.ID, &actor, TicketUpdateInput{
		Status:       &inProgress,
		Priority:     &high,
		AssignedToID: &assignee,
	})
	require.NoError(t, err)

	require.Len(t, f.history.entries, 3)
	fields := map[string]bool{}
	for _, entry := range f.history.entries {
		fields[entry.Field] = true
		require.NotNil(t, entry.UserID)
		assert.Equal(t, actor, *entry.UserID)
	}
	assert.True(t, fields[domain.HistoryFieldStatus])
	assert.True(t, fields[domain.HistoryFieldPriority])
	assert.True(t, fields[domain.HistoryFieldAssignee])

	// Re-sending the same values must not create new entries.
	_, err = f.service.UpdateTicket(context.Background(), ticket.ID, &actor, TicketUpdateInput{
		Status:   &inProgress,
		Priority: &high,
	})
	require.NoError(t, err)
	assert.Len(t, f.history.entries, 3)
}

func TestUpdateClearsAssigneeOnExplicitNull(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})

	assignee := uuid.NewString()
	_, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{AssignedToID: &assignee})
	require.NoError(t, err)

	updated, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{ClearAssignee: true})
	require.NoError(t, err)
	assert.Nil(t, updated.AssignedToID)

	require.Len(t, f.history.entries, 2)
	cleared := f.history.entries[1]
	assert.Equal(t, domain.HistoryFieldAssignee, cleared.Field)
	require.NotNil(t, cleared.OldValue)
	assert.Equal(t, assignee, *cleared.OldValue)
	assert.Nil(t, cleared.NewValue)

	// Omitting the assignee entirely leaves it untouched.
	_, err = f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{})
	require.NoError(t, err)
	assert.Len(t, f.history.entries, 2)
}

func TestUpdateStatusChangePublishesNotification(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})
	f.dispatcher.published = nil

	// A priority-only update must not publish a status notification.
	high := domain.TicketPriorityHigh
	_, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Priority: &high})
	require.NoError(t, err)
	assert.Empty(t, f.dispatcher.published)

	resolution := "replaced toner"
	resolved := domain.TicketStatusResolved
	_, err = f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{
		Status:     &resolved,
		Resolution: &resolution,
	})
	require.NoError(t, err)

	require.Len(t, f.dispatcher.published, 1)
	payload, ok := f.dispatcher.published[0].Payload.(events.StatusChangedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.TicketStatusOpen, payload.OldStatus)
	assert.Equal(t, domain.TicketStatusResolved, payload.NewStatus)
	require.NotNil(t, payload.Resolution)
	assert.Equal(t, resolution, *payload.Resolution)
}

func TestUpdateUnknownTicket(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	open := domain.TicketStatusOpen
	_, err := f.service.UpdateTicket(context.Background(), uuid.NewString(), nil, TicketUpdateInput{Status: &open})
	require.Error(t, err)
	assert.True(t, util.IsNotFound(err))
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})

	bogus := domain.TicketStatus("Escalated")
	_, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Status: &bogus})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", util.ToDomainError(err).Code)
}

func TestFreeTransitionGraph(t *testing.T) {
	// Every state is reachable from every other by explicit update.
	statuses := []domain.TicketStatus{
		domain.TicketStatusOpen,
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			if from == to {
				continue
			}
			f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
			ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})
			if from != domain.TicketStatusOpen {
				src := from
				_, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Status: &src})
				require.NoError(t, err)
			}
			dst := to
			updated, err := f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Status: &dst})
			require.NoError(t, err, "transition %s -> %s", from, to)
			assert.Equal(t, to, updated.Status)
		}
	}
}

func TestAddCommentValidation(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})

	_, err := f.service.AddComment(context.Background(), ticket.ID, nil, "   ", false)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", util.ToDomainError(err).Code)

	_, err = f.service.AddComment(context.Background(), uuid.NewString(), nil, "hello", false)
	require.Error(t, err)
	assert.True(t, util.IsNotFound(err))
}

func TestAddCommentNotification(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})
	f.dispatcher.published = nil

	_, err := f.service.AddComment(context.Background(), ticket.ID, nil, "internal note", true)
	require.NoError(t, err)
	assert.Empty(t, f.dispatcher.published, "internal comments never notify")

	comment, err := f.service.AddComment(context.Background(), ticket.ID, nil, "we are on it", false)
	require.NoError(t, err)
	require.Len(t, f.dispatcher.published, 1)
	payload, ok := f.dispatcher.published[0].Payload.(events.CommentAddedPayload)
	require.True(t, ok)
	assert.Equal(t, comment.ID, payload.CommentID)
	assert.Equal(t, "we are on it", payload.Content)
	assert.Equal(t, "a@x.com", payload.RequesterEmail)
}

func TestGetTicketDetail(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ticket := mustCreate(t, f, TicketCreateInput{Subject: "s", Description: "d", RequesterEmail: "a@x.com"})

	_, err := f.service.AddComment(context.Background(), ticket.ID, nil, "first", false)
	require.NoError(t, err)
	inProgress := domain.TicketStatusInProgress
	_, err = f.service.UpdateTicket(context.Background(), ticket.ID, nil, TicketUpdateInput{Status: &inProgress})
	require.NoError(t, err)

	got, comments, history, err := f.service.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)
	assert.Len(t, comments, 1)
	assert.Len(t, history, 1)
}
