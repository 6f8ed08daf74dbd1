package events

import (
	"time"

	"github.com/spec-kit/bug-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventBugCreated EventType = "bug.created"
	EventBugUpdated EventType = "bug.updated"
	EventBugClosed  EventType = "bug.closed"
	EventBugDeleted EventType = "bug.deleted"
)

// Actor identifies who triggered an event.
type Actor struct {
	UserID int64       `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	BugID     int64       `json:"bug_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// BugCreatedPayload payload.
type BugCreatedPayload struct {
	Title      string          `json:"title"`
	Severity   domain.Severity `json:"severity"`
	AssigneeID *int64          `json:"assignee_id,omitempty"`
}

// BugUpdatedPayload payload.
type BugUpdatedPayload struct {
	OldAssigneeID *int64   `json:"old_assignee_id,omitempty"`
	NewAssigneeID *int64   `json:"new_assignee_id,omitempty"`
	Changed       []string `json:"changed"`
}

// BugClosedPayload payload.
type BugClosedPayload struct {
	AssigneeID *int64 `json:"assignee_id,omitempty"`
}

// BugDeletedPayload payload.
type BugDeletedPayload struct {
	Title string `json:"title"`
}
