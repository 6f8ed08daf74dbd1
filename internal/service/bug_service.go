package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/bug-tracker/internal/authz"
	"github.com/spec-kit/bug-tracker/internal/domain"
	"github.com/spec-kit/bug-tracker/internal/events"
	"github.com/spec-kit/bug-tracker/internal/repository"
	apperrors "github.com/spec-kit/bug-tracker/pkg/util"
)

// BugPageSize is the fixed number of bugs per listing page.
const BugPageSize = 15

// BugService coordinates bug workflows. Every method takes the acting user
// explicitly and consults authz before touching the repository.
type BugService struct {
	bugs       repository.BugRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// BugDependencies bundles collaborators for the bug service.
type BugDependencies struct {
	BugRepo    repository.BugRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// BugListQuery carries the raw listing parameters.
type BugListQuery struct {
	Status   string
	Assignee string
	OrderBy  string
	Page     int
}

// BugPage is one page of a listing.
type BugPage struct {
	Items    []domain.Bug
	Page     int
	PageSize int
	Total    int
	HasNext  bool
}

// BugInput is the writable part of a bug as submitted by a client.
// CreatorID is accepted so that it can be dropped; creator is always the
// acting user.
type BugInput struct {
	Title       string           `json:"title" validate:"required,max=255"`
	Severity    domain.Severity  `json:"severity" validate:"required,oneof=Blocker Critical Major Minor Trivial"`
	Status      domain.BugStatus `json:"status" validate:"omitempty,oneof=Open Closed"`
	Description string           `json:"description" validate:"required"`
	AssigneeID  *int64           `json:"assignee_id"`
	CreatorID   *int64           `json:"creator_id"`
}

// NewBugService constructs the service.
func NewBugService(deps BugDependencies) *BugService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BugService{
		bugs:       deps.BugRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// ListVisibleBugs returns the page of bugs user may see, filtered by
// status and assignee-name substrings and ordered by q.OrderBy.
func (s *BugService) ListVisibleBugs(ctx context.Context, user *domain.User, q BugListQuery) (*BugPage, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	order, err := domain.ParseBugSort(q.OrderBy)
	if err != nil {
		return nil, apperrors.NewInvalidSortKey(q.OrderBy)
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	items, total, err := s.bugs.List(ctx, repository.BugFilter{
		AssigneeID:           authz.ListScope(user),
		StatusContains:       q.Status,
		AssigneeNameContains: q.Assignee,
		Sort:                 order,
		Limit:                BugPageSize,
		Offset:               (page - 1) * BugPageSize,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSortKey) {
			return nil, apperrors.NewInvalidSortKey(q.OrderBy)
		}
		return nil, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.Bug{}
	}
	return &BugPage{
		Items:    items,
		Page:     page,
		PageSize: BugPageSize,
		Total:    total,
		HasNext:  page*BugPageSize < total,
	}, nil
}

// GetBug returns the detail of a bug user may view.
func (s *BugService) GetBug(ctx context.Context, user *domain.User, id int64) (*domain.Bug, error) {
	bug, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanView(user, bug) {
		return nil, apperrors.NewNotPermitted("bug not visible to user")
	}
	return bug, nil
}

// CreateBug stores a new Open bug created by user.
func (s *BugService) CreateBug(ctx context.Context, user *domain.User, input BugInput) (*domain.Bug, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	input = normalizeBugInput(input)
	if err := validate.Struct(input); err != nil {
		return nil, apperrors.FromValidation(err)
	}
	if input.Status != "" && input.Status != domain.BugStatusOpen {
		return nil, apperrors.NewValidationError("invalid input", map[string]any{"status": "new bugs must be Open"})
	}

	allowed := authz.AllowedFields(user)
	creatorID := user.ID
	bug := &domain.Bug{
		Title:       input.Title,
		Severity:    input.Severity,
		Status:      domain.BugStatusOpen,
		Description: input.Description,
		CreatorID:   &creatorID,
	}
	if allowed.Has(domain.BugFieldAssignee) && input.AssigneeID != nil {
		if err := s.checkAssignee(ctx, *input.AssigneeID); err != nil {
			return nil, err
		}
		assigneeID := *input.AssigneeID
		bug.AssigneeID = &assigneeID
	}

	if err := s.bugs.Create(ctx, bug); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:  events.EventBugCreated,
		BugID: bug.ID,
		Actor: actorOf(user),
		Payload: events.BugCreatedPayload{
			Title:      bug.Title,
			Severity:   bug.Severity,
			AssigneeID: bug.AssigneeID,
		},
	})
	return s.load(ctx, bug.ID)
}

// UpdateBug replaces the fields user may edit. A manager omitting the
// assignee unassigns the bug; a developer's assignee is ignored. Moving
// the status to Closed goes through the same guarded close as CloseBug.
func (s *BugService) UpdateBug(ctx context.Context, user *domain.User, id int64, input BugInput) (*domain.Bug, error) {
	bug, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanEdit(user, bug) {
		return nil, apperrors.NewNotPermitted("bug not editable by user")
	}
	input = normalizeBugInput(input)
	if err := validate.Struct(input); err != nil {
		return nil, apperrors.FromValidation(err)
	}

	allowed := authz.AllowedFields(user)
	before := *bug
	var changed []string

	if allowed.Has(domain.BugFieldTitle) && input.Title != bug.Title {
		bug.Title = input.Title
		changed = append(changed, string(domain.BugFieldTitle))
	}
	if allowed.Has(domain.BugFieldSeverity) && input.Severity != bug.Severity {
		bug.Severity = input.Severity
		changed = append(changed, string(domain.BugFieldSeverity))
	}
	if allowed.Has(domain.BugFieldDescription) && input.Description != bug.Description {
		bug.Description = input.Description
		changed = append(changed, string(domain.BugFieldDescription))
	}
	if allowed.Has(domain.BugFieldStatus) && input.Status != "" && input.Status != bug.Status {
		if !bug.Status.CanTransition(input.Status) {
			return nil, apperrors.NewValidationError("invalid input", map[string]any{"status": "closed bugs cannot be reopened"})
		}
		bug.Status = input.Status
		changed = append(changed, string(domain.BugFieldStatus))
	}
	if allowed.Has(domain.BugFieldAssignee) && !sameID(input.AssigneeID, bug.AssigneeID) {
		if input.AssigneeID != nil {
			if err := s.checkAssignee(ctx, *input.AssigneeID); err != nil {
				return nil, err
			}
		}
		bug.AssigneeID = input.AssigneeID
		changed = append(changed, string(domain.BugFieldAssignee))
	}

	if len(changed) == 0 {
		return bug, nil
	}
	closing := before.Status == domain.BugStatusOpen && bug.Status == domain.BugStatusClosed
	if !closing || len(changed) > 1 {
		if err := s.bugs.Update(ctx, bug); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	closed := false
	if closing {
		if closed, err = s.bugs.Close(ctx, bug.ID); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	actor := actorOf(user)
	s.publishEvent(ctx, events.Event{
		Type:  events.EventBugUpdated,
		BugID: bug.ID,
		Actor: actor,
		Payload: events.BugUpdatedPayload{
			OldAssigneeID: before.AssigneeID,
			NewAssigneeID: bug.AssigneeID,
			Changed:       changed,
		},
	})
	// closed is false when another request closed the bug first.
	if closed {
		s.publishEvent(ctx, events.Event{
			Type:    events.EventBugClosed,
			BugID:   bug.ID,
			Actor:   actor,
			Payload: events.BugClosedPayload{AssigneeID: bug.AssigneeID},
		})
	}
	return s.load(ctx, bug.ID)
}

// PrepareClose returns the bug for a close confirmation, applying the same
// permission as CloseBug.
func (s *BugService) PrepareClose(ctx context.Context, user *domain.User, id int64) (*domain.Bug, error) {
	bug, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanClose(user, bug) {
		return nil, apperrors.NewNotPermitted("only the assignee or a manager may close a bug")
	}
	return bug, nil
}

// CloseBug moves an Open bug to Closed. Closing a Closed bug is a no-op
// that writes nothing and publishes nothing.
func (s *BugService) CloseBug(ctx context.Context, user *domain.User, id int64) (*domain.Bug, error) {
	bug, err := s.PrepareClose(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if bug.Status == domain.BugStatusClosed {
		return bug, nil
	}

	changed, err := s.bugs.Close(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if changed {
		s.publishEvent(ctx, events.Event{
			Type:    events.EventBugClosed,
			BugID:   id,
			Actor:   actorOf(user),
			Payload: events.BugClosedPayload{AssigneeID: bug.AssigneeID},
		})
	}
	return s.load(ctx, id)
}

// PrepareDelete returns the bug for a delete confirmation. Only managers
// get past the role check.
func (s *BugService) PrepareDelete(ctx context.Context, user *domain.User, id int64) (*domain.Bug, error) {
	if !authz.CanDelete(user) {
		return nil, apperrors.NewNotPermitted("only managers may delete bugs")
	}
	return s.load(ctx, id)
}

// DeleteBug removes a bug permanently.
func (s *BugService) DeleteBug(ctx context.Context, user *domain.User, id int64) error {
	bug, err := s.PrepareDelete(ctx, user, id)
	if err != nil {
		return err
	}
	if err := s.bugs.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("bug", map[string]any{"id": id})
		}
		return apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:    events.EventBugDeleted,
		BugID:   id,
		Actor:   actorOf(user),
		Payload: events.BugDeletedPayload{Title: bug.Title},
	})
	return nil
}

func (s *BugService) load(ctx context.Context, id int64) (*domain.Bug, error) {
	bug, err := s.bugs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("bug", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return bug, nil
}

func (s *BugService) checkAssignee(ctx context.Context, id int64) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError("invalid input", map[string]any{"assignee_id": "unknown user"})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *BugService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("bug_id", event.BugID),
			zap.Error(err))
	}
}

func normalizeBugInput(input BugInput) BugInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	return input
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func actorOf(user *domain.User) events.Actor {
	return events.Actor{UserID: user.ID, Role: user.Role}
}
