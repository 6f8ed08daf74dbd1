package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/bug-tracker/internal/domain"
	"github.com/spec-kit/bug-tracker/internal/repository"
)

func seedUser(t *testing.T, s *Store, email, first, last string) *domain.User {
	t.Helper()
	user := &domain.User{Email: email, FirstName: first, LastName: last, Role: domain.RoleDeveloper, IsActive: true}
	require.NoError(t, s.Users().Create(context.Background(), user))
	return user
}

func seedBug(t *testing.T, s *Store, title string, status domain.BugStatus, creator, assignee *domain.User) *domain.Bug {
	t.Helper()
	bug := &domain.Bug{Title: title, Severity: domain.SeverityMinor, Status: status, Description: "d"}
	if creator != nil {
		bug.CreatorID = &creator.ID
	}
	if assignee != nil {
		bug.AssigneeID = &assignee.ID
	}
	require.NoError(t, s.Bugs().Create(context.Background(), bug))
	return bug
}

func TestStoreListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	jane := seedUser(t, s, "jane@test.com", "Jane", "Doe")
	john := seedUser(t, s, "john@test.com", "John", "Roe")

	seedBug(t, s, "c", domain.BugStatusOpen, jane, jane)
	seedBug(t, s, "a", domain.BugStatusClosed, jane, john)
	seedBug(t, s, "b", domain.BugStatusOpen, john, nil)

	all, total, err := s.Bugs().List(ctx, repository.BugFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"c", "a", "b"}, titles(all))

	byTitle, _, err := s.Bugs().List(ctx, repository.BugFilter{Sort: domain.BugSort{Field: domain.BugFieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, titles(byTitle))

	open, total, err := s.Bugs().List(ctx, repository.BugFilter{StatusContains: "Op"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"c", "b"}, titles(open))

	named, _, err := s.Bugs().List(ctx, repository.BugFilter{AssigneeNameContains: "n R"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, titles(named))

	mine, _, err := s.Bugs().List(ctx, repository.BugFilter{AssigneeID: &jane.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, titles(mine))

	page, total, err := s.Bugs().List(ctx, repository.BugFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"b"}, titles(page))

	beyond, _, err := s.Bugs().List(ctx, repository.BugFilter{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)

	byAssigneeDesc, _, err := s.Bugs().List(ctx, repository.BugFilter{Sort: domain.BugSort{Field: domain.BugFieldAssignee, Desc: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, titles(byAssigneeDesc))
}

func TestStoreCloseIsGuarded(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	bug := seedBug(t, s, "x", domain.BugStatusOpen, nil, nil)

	changed, err := s.Bugs().Close(ctx, bug.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Bugs().Close(ctx, bug.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.Bugs().GetByID(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BugStatusClosed, got.Status)
}

func TestStoreUpdateLeavesStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	bug := seedBug(t, s, "x", domain.BugStatusOpen, nil, nil)

	_, err := s.Bugs().Close(ctx, bug.ID)
	require.NoError(t, err)

	stale := *bug
	stale.Title = "renamed"
	stale.Status = domain.BugStatusOpen
	require.NoError(t, s.Bugs().Update(ctx, &stale))

	got, err := s.Bugs().GetByID(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, domain.BugStatusClosed, got.Status)
}

func TestStoreUserDeleteNullsReferences(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	jane := seedUser(t, s, "jane@test.com", "Jane", "Doe")
	bug := seedBug(t, s, "x", domain.BugStatusOpen, jane, jane)

	require.NoError(t, s.Users().Delete(ctx, jane.ID))

	got, err := s.Bugs().GetByID(ctx, bug.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CreatorID)
	assert.Nil(t, got.AssigneeID)
	assert.Nil(t, got.Creator)
}

func TestStoreRejectsDuplicateEmailAndDanglingRefs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "jane@test.com", "Jane", "Doe")

	err := s.Users().Create(ctx, &domain.User{Email: "jane@test.com"})
	assert.Error(t, err)

	missing := int64(99)
	err = s.Bugs().Create(ctx, &domain.Bug{Title: "t", AssigneeID: &missing})
	assert.Error(t, err)

	_, err = s.Bugs().GetByID(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, s.Bugs().Delete(ctx, 42), repository.ErrNotFound)
}

func titles(bugs []domain.Bug) []string {
	out := make([]string, 0, len(bugs))
	for _, b := range bugs {
		out = append(out, b.Title)
	}
	return out
}
