package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBugSort(t *testing.T) {
	order, err := ParseBugSort("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBugSort, order)

	order, err = ParseBugSort("-bug_created")
	require.NoError(t, err)
	assert.Equal(t, BugSort{Field: BugFieldCreatedAt, Desc: true}, order)

	order, err = ParseBugSort("assignee")
	require.NoError(t, err)
	assert.Equal(t, BugSort{Field: BugFieldAssignee}, order)

	_, err = ParseBugSort("password")
	assert.ErrorIs(t, err, ErrInvalidSortKey)
}

func TestBugStatusTransitions(t *testing.T) {
	assert.True(t, BugStatusOpen.CanTransition(BugStatusClosed))
	assert.True(t, BugStatusClosed.CanTransition(BugStatusClosed))
	assert.False(t, BugStatusClosed.CanTransition(BugStatusOpen))
}

func TestNormalizeEmailAndNames(t *testing.T) {
	assert.Equal(t, "Jane.Doe@example.com", NormalizeEmail(" Jane.Doe@EXAMPLE.com "))
	assert.Equal(t, "nodomain", NormalizeEmail("nodomain"))

	u := &User{FirstName: "Jane", LastName: "Doe", Role: RoleManager}
	assert.Equal(t, "Jane Doe", u.FullName())
	assert.True(t, u.IsManager())
	assert.False(t, Role("admin").Valid())
}
