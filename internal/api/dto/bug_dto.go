package dto

import (
	"time"

	"github.com/spec-kit/bug-tracker/internal/domain"
)

// BugRequest is the create/update payload. It is accepted as JSON or as a
// submitted form.
type BugRequest struct {
	Title       string           `json:"title" form:"title"`
	Severity    domain.Severity  `json:"severity" form:"severity"`
	Status      domain.BugStatus `json:"status" form:"status"`
	Description string           `json:"description" form:"description"`
	AssigneeID  *int64           `json:"assignee_id" form:"assignee_id"`
	CreatorID   *int64           `json:"creator_id" form:"creator_id"`
}

// UserRefResponse is a compact user reference inside bug payloads.
type UserRefResponse struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// BugResponse represents one bug.
type BugResponse struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Severity    domain.Severity  `json:"severity"`
	Status      domain.BugStatus `json:"status"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
	Creator     *UserRefResponse `json:"creator"`
	Assignee    *UserRefResponse `json:"assignee"`
}

// BugPageResponse is one page of the bug list.
type BugPageResponse struct {
	Items    []BugResponse `json:"items"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int           `json:"total"`
	HasNext  bool          `json:"has_next"`
}

// BugFormResponse describes a create/edit form for the caller: the fields
// they may submit.
type BugFormResponse struct {
	Bug    *BugResponse `json:"bug,omitempty"`
	Fields []string     `json:"fields"`
}

// NewBugResponse maps a domain bug.
func NewBugResponse(bug *domain.Bug) BugResponse {
	return BugResponse{
		ID:          bug.ID,
		Title:       bug.Title,
		Severity:    bug.Severity,
		Status:      bug.Status,
		Description: bug.Description,
		CreatedAt:   bug.CreatedAt,
		Creator:     newUserRef(bug.Creator),
		Assignee:    newUserRef(bug.Assignee),
	}
}

func newUserRef(ref *domain.UserRef) *UserRefResponse {
	if ref == nil {
		return nil
	}
	return &UserRefResponse{ID: ref.ID, Email: ref.Email, FullName: ref.FullName()}
}
