package domain

import (
	"errors"
	"strings"
	"time"
)

// Severity ranks how badly a bug hurts.
type Severity string

const (
	SeverityBlocker  Severity = "Blocker"
	SeverityCritical Severity = "Critical"
	SeverityMajor    Severity = "Major"
	SeverityMinor    Severity = "Minor"
	SeverityTrivial  Severity = "Trivial"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityBlocker, SeverityCritical, SeverityMajor, SeverityMinor, SeverityTrivial:
		return true
	}
	return false
}

// BugStatus enumerates lifecycle states. Bugs only move Open -> Closed.
type BugStatus string

const (
	BugStatusOpen   BugStatus = "Open"
	BugStatusClosed BugStatus = "Closed"
)

// Valid reports whether s is a known status.
func (s BugStatus) Valid() bool {
	return s == BugStatusOpen || s == BugStatusClosed
}

// CanTransition reports whether a bug may move from s to next.
// Staying in place is always allowed.
func (s BugStatus) CanTransition(next BugStatus) bool {
	if s == next {
		return true
	}
	return s == BugStatusOpen && next == BugStatusClosed
}

// Bug is a tracked defect report.
type Bug struct {
	ID          int64
	Title       string
	Severity    Severity
	Status      BugStatus
	Description string
	CreatedAt   time.Time
	CreatorID   *int64
	AssigneeID  *int64
	Creator     *UserRef
	Assignee    *UserRef
}

// IsAssignedTo reports whether userID is the bug's assignee.
func (b *Bug) IsAssignedTo(userID int64) bool {
	return b.AssigneeID != nil && *b.AssigneeID == userID
}

// IsCreatedBy reports whether userID opened the bug.
func (b *Bug) IsCreatedBy(userID int64) bool {
	return b.CreatorID != nil && *b.CreatorID == userID
}

// BugField names a bug attribute, used for sorting and for the editable
// field sets handed out per role.
type BugField string

const (
	BugFieldID          BugField = "id"
	BugFieldTitle       BugField = "title"
	BugFieldSeverity    BugField = "severity"
	BugFieldStatus      BugField = "status"
	BugFieldDescription BugField = "description"
	BugFieldCreatedAt   BugField = "created_at"
	BugFieldCreator     BugField = "creator"
	BugFieldAssignee    BugField = "assignee"
)

var sortAliases = map[string]BugField{
	"id":          BugFieldID,
	"title":       BugFieldTitle,
	"severity":    BugFieldSeverity,
	"status":      BugFieldStatus,
	"description": BugFieldDescription,
	"created_at":  BugFieldCreatedAt,
	"bug_created": BugFieldCreatedAt,
	"creator":     BugFieldCreator,
	"bug_creator": BugFieldCreator,
	"assignee":    BugFieldAssignee,
}

// ErrInvalidSortKey is returned for an order_by value that is not a bug attribute.
var ErrInvalidSortKey = errors.New("invalid sort key")

// BugSort orders a bug listing by one attribute.
type BugSort struct {
	Field BugField
	Desc  bool
}

// DefaultBugSort orders by identity, i.e. creation order.
var DefaultBugSort = BugSort{Field: BugFieldID}

// ParseBugSort parses an order_by value such as "title" or "-created_at".
// An empty key yields DefaultBugSort.
func ParseBugSort(key string) (BugSort, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return DefaultBugSort, nil
	}
	desc := false
	if strings.HasPrefix(key, "-") {
		desc = true
		key = key[1:]
	}
	field, ok := sortAliases[key]
	if !ok {
		return BugSort{}, ErrInvalidSortKey
	}
	return BugSort{Field: field, Desc: desc}, nil
}
