package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/bug-tracker/internal/api/dto"
	"github.com/spec-kit/bug-tracker/internal/auth"
	"github.com/spec-kit/bug-tracker/internal/authz"
	"github.com/spec-kit/bug-tracker/internal/domain"
	"github.com/spec-kit/bug-tracker/internal/service"
	apperrors "github.com/spec-kit/bug-tracker/pkg/util"
)

// BugListPath is where refused actions and completed deletes land.
const BugListPath = "/bugs"

// formFieldOrder fixes the order in which editable fields are reported.
var formFieldOrder = []domain.BugField{
	domain.BugFieldTitle,
	domain.BugFieldSeverity,
	domain.BugFieldStatus,
	domain.BugFieldDescription,
	domain.BugFieldAssignee,
}

// BugsHandler exposes the bug endpoints.
type BugsHandler struct {
	service *service.BugService
}

// NewBugsHandler constructs handler.
func NewBugsHandler(bugService *service.BugService) *BugsHandler {
	return &BugsHandler{service: bugService}
}

// ListBugs GET /bugs.
func (h *BugsHandler) ListBugs(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListVisibleBugs(c.UserContext(), user, service.BugListQuery{
		Status:   c.Query("status"),
		Assignee: c.Query("assignee"),
		OrderBy:  c.Query("order_by"),
		Page:     c.QueryInt("page", 1),
	})
	if err != nil {
		return err
	}
	items := make([]dto.BugResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewBugResponse(&page.Items[i]))
	}
	return c.JSON(fiber.Map{"data": dto.BugPageResponse{
		Items:    items,
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
		HasNext:  page.HasNext,
	}})
}

// NewBugForm GET /bugs/new lists the fields the caller may submit.
func (h *BugsHandler) NewBugForm(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.BugFormResponse{Fields: editableFields(user)}})
}

// CreateBug POST /bugs.
func (h *BugsHandler) CreateBug(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	input, err := parseBugRequest(c)
	if err != nil {
		return err
	}
	bug, err := h.service.CreateBug(c.UserContext(), user, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewBugResponse(bug)})
}

// GetBug GET /bugs/:id.
func (h *BugsHandler) GetBug(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := bugID(c)
	if err != nil {
		return err
	}
	bug, err := h.service.GetBug(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBugResponse(bug)})
}

// EditBugForm GET /bugs/:id/edit returns the bug with the caller's
// editable fields.
func (h *BugsHandler) EditBugForm(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := bugID(c)
	if err != nil {
		return err
	}
	bug, err := h.service.GetBug(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	resp := dto.NewBugResponse(bug)
	return c.JSON(fiber.Map{"data": dto.BugFormResponse{Bug: &resp, Fields: editableFields(user)}})
}

// UpdateBug PUT /bugs/:id.
func (h *BugsHandler) UpdateBug(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := bugID(c)
	if err != nil {
		return err
	}
	input, err := parseBugRequest(c)
	if err != nil {
		return err
	}
	bug, err := h.service.UpdateBug(c.UserContext(), user, id, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBugResponse(bug)})
}

// CloseConfirm GET /bugs/:id/close.
func (h *BugsHandler) CloseConfirm(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := bugID(c)
	if err != nil {
		return err
	}
	bug, err := h.service.PrepareClose(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBugResponse(bug)})
}

// CloseBug POST /bugs/:id/close.
func (h *BugsHandler) CloseBug(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := bugID(c)
	if err != nil {
		return err
	}
	bug, err := h.service.CloseBug(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBugResponse(bug)})
}

// DeleteConfirm GET /bugs/:id/delete.
func (h *BugsHandler) DeleteConfirm(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := bugID(c)
	if err != nil {
		return err
	}
	bug, err := h.service.PrepareDelete(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBugResponse(bug)})
}

// DeleteBug DELETE /bugs/:id and POST /bugs/:id/delete. A form post is
// redirected back to the list; API calls get 204.
func (h *BugsHandler) DeleteBug(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := bugID(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteBug(c.UserContext(), user, id); err != nil {
		return err
	}
	if c.Method() == fiber.MethodPost {
		return c.Redirect(BugListPath, fiber.StatusSeeOther)
	}
	return c.SendStatus(http.StatusNoContent)
}

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return user, nil
}

func bugID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, apperrors.NewNotFound("bug", map[string]any{"id": c.Params("id")})
	}
	return int64(id), nil
}

func parseBugRequest(c *fiber.Ctx) (service.BugInput, error) {
	var req dto.BugRequest
	if err := c.BodyParser(&req); err != nil {
		return service.BugInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	return service.BugInput{
		Title:       req.Title,
		Severity:    req.Severity,
		Status:      req.Status,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		CreatorID:   req.CreatorID,
	}, nil
}

func editableFields(user *domain.User) []string {
	allowed := authz.AllowedFields(user)
	fields := make([]string, 0, len(formFieldOrder))
	for _, f := range formFieldOrder {
		if allowed.Has(f) {
			fields = append(fields, string(f))
		}
	}
	return fields
}
