package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/bug-tracker/internal/domain"
	"github.com/spec-kit/bug-tracker/internal/events"
	"github.com/spec-kit/bug-tracker/internal/repository"
	"github.com/spec-kit/bug-tracker/internal/repository/memory"
	apperrors "github.com/spec-kit/bug-tracker/pkg/util"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type bugFixture struct {
	svc      *BugService
	store    *memory.Store
	recorded *recordedEvents
	manager  *domain.User
	dev      *domain.User
	other    *domain.User
}

func newBugFixture(t *testing.T) *bugFixture {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	mk := func(email, first, last string, role domain.Role) *domain.User {
		u := &domain.User{Email: email, FirstName: first, LastName: last, Role: role, IsActive: true}
		require.NoError(t, store.Users().Create(ctx, u))
		return u
	}

	dispatcher := events.NewInMemoryDispatcher()
	recorded := &recordedEvents{}
	for _, et := range []events.EventType{events.EventBugCreated, events.EventBugUpdated, events.EventBugClosed, events.EventBugDeleted} {
		dispatcher.Subscribe(et, recorded.handle)
	}

	return &bugFixture{
		svc: NewBugService(BugDependencies{
			BugRepo:    store.Bugs(),
			UserRepo:   store.Users(),
			Dispatcher: dispatcher,
		}),
		store:    store,
		recorded: recorded,
		manager:  mk("m@test.com", "Mary", "Major", domain.RoleManager),
		dev:      mk("d@test.com", "Dan", "Dev", domain.RoleDeveloper),
		other:    mk("a@test.com", "Ann", "Other", domain.RoleDeveloper),
	}
}

func (f *bugFixture) create(t *testing.T, title string, assignee *domain.User) *domain.Bug {
	t.Helper()
	input := BugInput{Title: title, Severity: domain.SeverityMajor, Description: "steps"}
	if assignee != nil {
		id := assignee.ID
		input.AssigneeID = &id
	}
	bug, err := f.svc.CreateBug(context.Background(), f.manager, input)
	require.NoError(t, err)
	return bug
}

func errCode(err error) string {
	if de := apperrors.ToDomainError(err); de != nil {
		return de.Code
	}
	return ""
}

func TestDeveloperSeesOnlyAssignedBugs(t *testing.T) {
	f := newBugFixture(t)
	mine := f.create(t, "mine", f.dev)
	f.create(t, "theirs", f.other)
	f.create(t, "unassigned", nil)

	page, err := f.svc.ListVisibleBugs(context.Background(), f.dev, BugListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, mine.ID, page.Items[0].ID)
	assert.Equal(t, 1, page.Total)
}

func TestManagerSeesAllAndFilters(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	f.create(t, "one", f.dev)
	second := f.create(t, "two", f.other)
	f.create(t, "three", nil)
	_, err := f.svc.CloseBug(ctx, f.manager, second.ID)
	require.NoError(t, err)

	page, err := f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	page, err = f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{Status: "Clo"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)

	page, err = f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{Assignee: "Dan D"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "one", page.Items[0].Title)

	page, err = f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{Status: "open"})
	require.NoError(t, err)
	assert.Empty(t, page.Items, "status filter is case-sensitive")
}

func TestListOrderingAndInvalidSortKey(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	f.create(t, "b", nil)
	f.create(t, "a", nil)
	f.create(t, "c", nil)

	page, err := f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{OrderBy: "title"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, titles(page.Items))

	page, err = f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{OrderBy: "-title"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, titles(page.Items))

	_, err = f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{OrderBy: "nope"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidSortKey, errCode(err))
}

func TestListPagination(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		f.create(t, fmt.Sprintf("bug-%02d", i), nil)
	}

	page, err := f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{Page: 1})
	require.NoError(t, err)
	assert.Len(t, page.Items, BugPageSize)
	assert.True(t, page.HasNext)

	page, err = f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.False(t, page.HasNext)

	page, err = f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 20, page.Total)

	page, err = f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{Page: -3})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
}

func TestCreateForcesCreatorAndDropsDeveloperAssignee(t *testing.T) {
	f := newBugFixture(t)
	managerID := f.manager.ID
	otherID := f.other.ID

	bug, err := f.svc.CreateBug(context.Background(), f.dev, BugInput{
		Title:       "crash",
		Severity:    domain.SeverityCritical,
		Description: "boom",
		AssigneeID:  &otherID,
		CreatorID:   &managerID,
	})
	require.NoError(t, err)
	assert.Nil(t, bug.AssigneeID)
	require.NotNil(t, bug.CreatorID)
	assert.Equal(t, f.dev.ID, *bug.CreatorID)
	assert.Equal(t, domain.BugStatusOpen, bug.Status)
	assert.Equal(t, 1, f.recorded.count(events.EventBugCreated))
}

func TestCreateValidation(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBug(ctx, f.manager, BugInput{Severity: domain.SeverityMinor, Description: "x"})
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, de.Code)
	assert.Equal(t, "required", de.Details["title"])

	_, err = f.svc.CreateBug(ctx, f.manager, BugInput{Title: "t", Severity: "Cosmetic", Description: "x"})
	assert.Equal(t, apperrors.CodeValidation, errCode(err))

	_, err = f.svc.CreateBug(ctx, f.manager, BugInput{Title: "t", Severity: domain.SeverityMinor, Description: "x", Status: domain.BugStatusClosed})
	assert.Equal(t, apperrors.CodeValidation, errCode(err))

	missing := int64(999)
	_, err = f.svc.CreateBug(ctx, f.manager, BugInput{Title: "t", Severity: domain.SeverityMinor, Description: "x", AssigneeID: &missing})
	assert.Equal(t, apperrors.CodeValidation, errCode(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.create(t, "close me", f.dev)

	closed, err := f.svc.CloseBug(ctx, f.dev, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BugStatusClosed, closed.Status)

	again, err := f.svc.CloseBug(ctx, f.dev, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BugStatusClosed, again.Status)
	assert.Equal(t, 1, f.recorded.count(events.EventBugClosed))
}

func TestCloseRefusedForNonAssignee(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.create(t, "not yours", f.dev)

	_, err := f.svc.CloseBug(ctx, f.other, bug.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotPermitted(err))

	stored, err := f.store.Bugs().GetByID(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BugStatusOpen, stored.Status)

	_, err = f.svc.CloseBug(ctx, f.other, 12345)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteRequiresManager(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.create(t, "keep", f.dev)

	err := f.svc.DeleteBug(ctx, f.dev, bug.ID)
	assert.True(t, apperrors.IsNotPermitted(err))
	_, err = f.store.Bugs().GetByID(ctx, bug.ID)
	require.NoError(t, err)

	err = f.svc.DeleteBug(ctx, f.dev, 12345)
	assert.True(t, apperrors.IsNotPermitted(err), "role check precedes lookup")

	require.NoError(t, f.svc.DeleteBug(ctx, f.manager, bug.ID))
	_, err = f.svc.GetBug(ctx, f.manager, bug.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 1, f.recorded.count(events.EventBugDeleted))

	assert.True(t, apperrors.IsNotFound(f.svc.DeleteBug(ctx, f.manager, bug.ID)))
}

func TestAnyDeveloperCanViewAndUpdate(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	assigned := f.create(t, "assigned", f.dev)
	otherID := f.other.ID

	got, err := f.svc.GetBug(ctx, f.other, assigned.ID)
	require.NoError(t, err)
	assert.Equal(t, "assigned", got.Title)

	updated, err := f.svc.UpdateBug(ctx, f.other, assigned.ID, BugInput{
		Title:       "retitled",
		Severity:    domain.SeverityMajor,
		Description: "steps",
		AssigneeID:  &otherID,
	})
	require.NoError(t, err)
	assert.Equal(t, "retitled", updated.Title)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, f.dev.ID, *updated.AssigneeID)

	_, err = f.svc.GetBug(ctx, &domain.User{ID: 99, Role: "auditor"}, assigned.ID)
	assert.True(t, apperrors.IsNotPermitted(err))
}

// closedFirstRepo closes the bug in the backing store each time it is
// loaded, while still handing out the Open copy read before the close.
type closedFirstRepo struct {
	repository.BugRepository
}

func (r closedFirstRepo) GetByID(ctx context.Context, id int64) (*domain.Bug, error) {
	bug, err := r.BugRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.BugRepository.Close(ctx, id); err != nil {
		return nil, err
	}
	return bug, nil
}

func TestUpdateToClosedAfterConcurrentCloseDoesNotRenotify(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.create(t, "raced", f.dev)

	dispatcher := events.NewInMemoryDispatcher()
	recorded := &recordedEvents{}
	dispatcher.Subscribe(events.EventBugClosed, recorded.handle)
	svc := NewBugService(BugDependencies{
		BugRepo:    closedFirstRepo{f.store.Bugs()},
		UserRepo:   f.store.Users(),
		Dispatcher: dispatcher,
	})

	devID := f.dev.ID
	updated, err := svc.UpdateBug(ctx, f.manager, bug.ID, BugInput{
		Title:       "raced",
		Severity:    domain.SeverityMajor,
		Description: "steps",
		Status:      domain.BugStatusClosed,
		AssigneeID:  &devID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BugStatusClosed, updated.Status)
	assert.Zero(t, recorded.count(events.EventBugClosed))
}

func TestUpdateRules(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.create(t, "orig", f.dev)
	otherID := f.other.ID

	updated, err := f.svc.UpdateBug(ctx, f.dev, bug.ID, BugInput{
		Title:       "renamed",
		Severity:    domain.SeverityBlocker,
		Description: "steps",
		AssigneeID:  &otherID,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, f.dev.ID, *updated.AssigneeID, "developer cannot reassign")

	updated, err = f.svc.UpdateBug(ctx, f.manager, bug.ID, BugInput{
		Title:       "renamed",
		Severity:    domain.SeverityBlocker,
		Description: "steps",
		Status:      domain.BugStatusClosed,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.AssigneeID, "manager omitting assignee unassigns")
	assert.Equal(t, domain.BugStatusClosed, updated.Status)
	assert.Equal(t, 1, f.recorded.count(events.EventBugClosed))

	_, err = f.svc.CloseBug(ctx, f.manager, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.recorded.count(events.EventBugClosed))

	_, err = f.svc.UpdateBug(ctx, f.manager, bug.ID, BugInput{
		Title:       "renamed",
		Severity:    domain.SeverityBlocker,
		Description: "steps",
		Status:      domain.BugStatusOpen,
	})
	assert.Equal(t, apperrors.CodeValidation, errCode(err))
}

// Manager M assigns a bug to developer D; developer A can neither list nor close it.
func TestManagerDeveloperOutsiderScenario(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.create(t, "scenario", f.dev)

	page, err := f.svc.ListVisibleBugs(ctx, f.other, BugListQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = f.svc.CloseBug(ctx, f.other, bug.ID)
	assert.True(t, apperrors.IsNotPermitted(err))

	closed, err := f.svc.CloseBug(ctx, f.dev, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BugStatusClosed, closed.Status)

	assert.True(t, apperrors.IsNotPermitted(f.svc.DeleteBug(ctx, f.dev, bug.ID)))
	require.NoError(t, f.svc.DeleteBug(ctx, f.manager, bug.ID))

	page, err = f.svc.ListVisibleBugs(ctx, f.manager, BugListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func titles(bugs []domain.Bug) []string {
	out := make([]string, 0, len(bugs))
	for _, b := range bugs {
		out = append(out, b.Title)
	}
	return out
}
