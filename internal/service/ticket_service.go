package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/pkg/util"
)

// TicketService owns the ticket lifecycle: intake, numbering, mutation
// rules, SLA timestamps and history auditing.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.TicketingConfig
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	UserRepo    repository.UserRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket intake payload.
type TicketCreateInput struct {
	Subject        string
	Description    string
	RequesterEmail string
	RequesterName  *string
	DepartmentID   *string
	Category       string
	Priority       domain.TicketPriority
}

// TicketUpdateInput carries partial update fields. Nil pointers leave the
// stored value untouched; ClearAssignee distinguishes an explicit null
// assignee from an omitted one.
type TicketUpdateInput struct {
	Status        *domain.TicketStatus
	Priority      *domain.TicketPriority
	Category      *string
	DepartmentID  *string
	AssignedToID  *string
	ClearAssignee bool
	Resolution    *string
}

// NewTicketService constructs the service.
func NewTicketService(cfg config.TicketingConfig, deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// CreateTicket validates intake, assigns a ticket number and persists the
// new ticket. The requester does not need an account; when their email
// matches one, the ticket is linked to it.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	email := strings.TrimSpace(input.RequesterEmail)

	missing := map[string]any{}
	if subject == "" {
		missing["subject"] = "required"
	}
	if description == "" {
		missing["description"] = "required"
	}
	if email == "" {
		missing["requester_email"] = "required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		missing["requester_email"] = "invalid"
	}
	if len(missing) > 0 {
		return nil, util.NewValidationError("subject, description and requester email are required", missing)
	}

	ticket := &domain.Ticket{
		Subject:        subject,
		Description:    description,
		RequesterEmail: email,
		RequesterName:  input.RequesterName,
		DepartmentID:   input.DepartmentID,
		Category:       strings.TrimSpace(input.Category),
		Priority:       input.Priority,
		Status:         domain.TicketStatusOpen,
	}
	if ticket.Category == "" {
		ticket.Category = domain.DefaultCategory
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if !domain.ValidPriority(ticket.Priority) {
		return nil, util.NewValidationError("unknown priority", map[string]any{"priority": ticket.Priority})
	}

	// Best-effort account linkage; an unknown requester is not an error.
	if user, err := s.users.GetByEmail(ctx, email); err == nil {
		ticket.CreatedByID = &user.ID
	}

	if err := s.createWithNumber(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReceived,
		TicketID: ticket.ID,
		Payload: events.TicketReceivedPayload{
			TicketNumber:   ticket.TicketNumber,
			Subject:        ticket.Subject,
			RequesterEmail: ticket.RequesterEmail,
			Priority:       ticket.Priority,
			Category:       ticket.Category,
		},
	})
	return ticket, nil
}

// createWithNumber assigns the next per-day sequence number and inserts.
// The count-then-insert sequence races under concurrent intake, so the
// unique constraint on ticket_number is the arbiter: on a duplicate the
// sequence is recounted and the insert retried a bounded number of times.
func (s *TicketService) createWithNumber(ctx context.Context, ticket *domain.Ticket) error {
	attempts := s.cfg.NumberMaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	day := s.now().UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	for attempt := 0; attempt < attempts; attempt++ {
		count, err := s.tickets.CountCreatedBetween(ctx, dayStart, dayEnd)
		if err != nil {
			return err
		}
		ticket.TicketNumber = TicketNumber(s.cfg.NumberPrefix, day, count+1+attempt)
		err = s.tickets.Create(ctx, ticket)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateTicketNumber) {
			return err
		}
		s.logger.Warn("ticket number collision, retrying",
			zap.String("ticket_number", ticket.TicketNumber))
	}
	return util.NewConflict("could not allocate a unique ticket number", nil)
}

// TicketNumber formats a human-readable ticket identifier as
// PREFIX-YYYYMMDD-NNNN. The day component is always UTC so numbering does
// not shift across deployments in different timezones.
func TicketNumber(prefix string, day time.Time, seq int) string {
	if prefix == "" {
		prefix = "TICK"
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, day.UTC().Format("20060102"), seq)
}

type fieldChange struct {
	field    string
	oldValue *string
	newValue *string
}

// UpdateTicket applies the provided fields, records one history entry per
// observed change and maintains the write-once SLA timestamps. Any status
// may follow any other; the service enforces timestamp invariants, not
// transition legality.
func (s *TicketService) UpdateTicket(ctx context.Context, ticketID string, actingUserID *string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	if input.Status != nil && !domain.ValidStatus(*input.Status) {
		return nil, util.NewValidationError("unknown status", map[string]any{"status": *input.Status})
	}
	if input.Priority != nil && !domain.ValidPriority(*input.Priority) {
		return nil, util.NewValidationError("unknown priority", map[string]any{"priority": *input.Priority})
	}

	var changes []fieldChange
	oldStatus := ticket.Status
	statusChanged := false

	if input.Status != nil && *input.Status != ticket.Status {
		changes = append(changes, change(domain.HistoryFieldStatus, string(ticket.Status), string(*input.Status)))
		ticket.Status = *input.Status
		statusChanged = true
	}
	if input.Priority != nil && *input.Priority != ticket.Priority {
		changes = append(changes, change(domain.HistoryFieldPriority, string(ticket.Priority), string(*input.Priority)))
		ticket.Priority = *input.Priority
	}
	if input.Category != nil && *input.Category != ticket.Category {
		changes = append(changes, change(domain.HistoryFieldCategory, ticket.Category, *input.Category))
		ticket.Category = *input.Category
	}
	if input.DepartmentID != nil && !equalPtr(input.DepartmentID, ticket.DepartmentID) {
		changes = append(changes, changePtr(domain.HistoryFieldDepartment, ticket.DepartmentID, input.DepartmentID))
		ticket.DepartmentID = input.DepartmentID
	}
	if input.ClearAssignee {
		if ticket.AssignedToID != nil {
			changes = append(changes, changePtr(domain.HistoryFieldAssignee, ticket.AssignedToID, nil))
			ticket.AssignedToID = nil
		}
	} else if input.AssignedToID != nil && !equalPtr(input.AssignedToID, ticket.AssignedToID) {
		changes = append(changes, changePtr(domain.HistoryFieldAssignee, ticket.AssignedToID, input.AssignedToID))
		ticket.AssignedToID = input.AssignedToID
	}
	if input.Resolution != nil && !equalPtr(input.Resolution, ticket.Resolution) {
		changes = append(changes, changePtr(domain.HistoryFieldResolution, ticket.Resolution, input.Resolution))
		ticket.Resolution = input.Resolution
	}

	if statusChanged {
		now := s.now()
		// Write-once: the first measured interval survives reopen cycles.
		if ticket.Status == domain.TicketStatusInProgress && ticket.ResponseTime == nil {
			ticket.ResponseTime = &now
		}
		if (ticket.Status == domain.TicketStatusResolved || ticket.Status == domain.TicketStatusClosed) && ticket.ResolutionTime == nil {
			ticket.ResolutionTime = &now
		}
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	for _, ch := range changes {
		entry := &domain.TicketHistory{
			TicketID: ticket.ID,
			Field:    ch.field,
			OldValue: ch.oldValue,
			NewValue: ch.newValue,
			UserID:   actingUserID,
		}
		if err := s.history.Create(ctx, entry); err != nil {
			return nil, err
		}
	}

	if statusChanged {
		payload := events.StatusChangedPayload{
			TicketNumber:   ticket.TicketNumber,
			Subject:        ticket.Subject,
			RequesterEmail: ticket.RequesterEmail,
			OldStatus:      oldStatus,
			NewStatus:      ticket.Status,
		}
		if ticket.Status == domain.TicketStatusResolved {
			payload.Resolution = ticket.Resolution
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			ActorID:  actingUserID,
			Payload:  payload,
		})
	}
	return ticket, nil
}

// AddComment appends a comment to a ticket. Internal comments stay inside
// the helpdesk and never notify the requester.
func (s *TicketService) AddComment(ctx context.Context, ticketID string, authorID *string, content string, isInternal bool) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, util.NewValidationError("comment content is required", map[string]any{"content": "required"})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   authorID,
		Content:    content,
		IsInternal: isInternal,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}

	if !isInternal {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventCommentAdded,
			TicketID: ticket.ID,
			ActorID:  authorID,
			Payload: events.CommentAddedPayload{
				TicketNumber:   ticket.TicketNumber,
				Subject:        ticket.Subject,
				RequesterEmail: ticket.RequesterEmail,
				CommentID:      comment.ID,
				Content:        comment.Content,
				AuthorID:       authorID,
			},
		})
	}
	return comment, nil
}

// GetTicket returns a ticket with its comments and history.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.Comment, []domain.TicketHistory, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, nil, nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return ticket, comments, history, nil
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, filter)
}

// SetClock overrides the time source. Used by tests.
func (s *TicketService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func change(field, oldValue, newValue string) fieldChange {
	return fieldChange{field: field, oldValue: &oldValue, newValue: &newValue}
}

func changePtr(field string, oldValue, newValue *string) fieldChange {
	return fieldChange{field: field, oldValue: oldValue, newValue: newValue}
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
