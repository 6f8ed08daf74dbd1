package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/bug-tracker/internal/domain"
)

func TestBuildBugListQueries(t *testing.T) {
	t.Run("unfiltered default order", func(t *testing.T) {
		count, list, args, err := buildBugListQueries(BugFilter{Limit: 15})
		require.NoError(t, err)
		assert.Empty(t, args)
		assert.Contains(t, count, "WHERE 1=1")
		assert.True(t, strings.HasSuffix(list, "ORDER BY b.id ASC NULLS LAST LIMIT 15 OFFSET 0"), list)
	})

	t.Run("developer scope with both substring filters", func(t *testing.T) {
		assignee := int64(7)
		_, list, args, err := buildBugListQueries(BugFilter{
			AssigneeID:           &assignee,
			StatusContains:       "Op",
			AssigneeNameContains: "Jane",
			Sort:                 domain.BugSort{Field: domain.BugFieldTitle, Desc: true},
			Limit:                15,
			Offset:               30,
		})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(7), "Op", "Jane"}, args)
		assert.Contains(t, list, "b.assignee_id=$1")
		assert.Contains(t, list, "strpos(b.status, $2) > 0")
		assert.Contains(t, list, "strpos(a.first_name || ' ' || a.last_name, $3) > 0")
		assert.Contains(t, list, "ORDER BY b.title DESC NULLS LAST, b.id ASC LIMIT 15 OFFSET 30")
	})

	t.Run("count query shares the where clause", func(t *testing.T) {
		count, _, args, err := buildBugListQueries(BugFilter{StatusContains: "Closed"})
		require.NoError(t, err)
		assert.Equal(t, []any{"Closed"}, args)
		assert.Contains(t, count, "strpos(b.status, $1) > 0")
		assert.NotContains(t, count, "LIMIT")
	})

	t.Run("unknown sort field is rejected", func(t *testing.T) {
		_, _, _, err := buildBugListQueries(BugFilter{Sort: domain.BugSort{Field: "password_hash"}})
		assert.ErrorIs(t, err, domain.ErrInvalidSortKey)
	})
}
