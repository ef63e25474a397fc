package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/change-service/internal/api/dto"
	"github.com/spec-kit/change-service/internal/approval"
	"github.com/spec-kit/change-service/internal/auth"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/service"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// ChangesHandler manages change request endpoints.
type ChangesHandler struct {
	service *service.ChangeService
}

// NewChangesHandler constructs handler.
func NewChangesHandler(changeService *service.ChangeService) *ChangesHandler {
	return &ChangesHandler{service: changeService}
}

// CreateChange POST /changes.
func (h *ChangesHandler) CreateChange(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.ChangeCreateInput{
		ProductID:    req.ProductID,
		RiskLevel:    req.RiskLevel,
		ChangeType:   req.ChangeType,
		Title:        req.Title,
		Description:  req.Description,
		RollbackPlan: req.RollbackPlan,
		PlannedStart: req.PlannedStart,
		PlannedEnd:   req.PlannedEnd,
	}
	change, err := h.service.CreateChange(c.Context(), principal.User.ID, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ToChangeSummary(*change)})
}

// ListChanges GET /changes.
func (h *ChangesHandler) ListChanges(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	filter := parseChangeQuery(c)
	changes, err := h.service.ListChanges(c.Context(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.ChangeSummary, 0, len(changes))
	for i := range changes {
		items = append(items, dto.ToChangeSummary(changes[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetChange GET /changes/:id.
func (h *ChangesHandler) GetChange(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	change, err := h.service.GetChange(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	state, err := h.service.WorkflowState(c.Context(), change)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToChangeDetail(*change, &state)})
}

// ListApprovals GET /changes/:id/approvals.
func (h *ChangesHandler) ListApprovals(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	instances, err := h.service.ListApprovals(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToApprovalInstanceResponses(instances)})
}

// ListHistory GET /changes/:id/history.
func (h *ChangesHandler) ListHistory(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	entries, err := h.service.ListHistory(c.Context(), actor, c.Params("id"), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.ChangeHistoryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.ToChangeHistoryResponse(entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ReviseChange POST /changes/:id/revise.
func (h *ChangesHandler) ReviseChange(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ReviseChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.ChangeReviseInput{
		Title:        req.Title,
		Description:  req.Description,
		RollbackPlan: req.RollbackPlan,
		PlannedStart: req.PlannedStart,
		PlannedEnd:   req.PlannedEnd,
	}
	change, err := h.service.ReviseAndResubmit(c.Context(), principal.User.ID, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToChangeSummary(*change)})
}

// TransitionChange POST /changes/:id/transition.
func (h *ChangesHandler) TransitionChange(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.TransitionChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	change, err := h.service.TransitionStatus(c.Context(), actor, c.Params("id"), req.Status, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToChangeSummary(*change)})
}

func actorFromContext(c *fiber.Ctx) (approval.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return approval.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	switch {
	case principal.User != nil:
		return approval.Actor{Type: domain.SubjectTypeUser, ID: principal.User.ID}, nil
	case principal.Staff != nil:
		return approval.Actor{Type: domain.SubjectTypeStaff, ID: principal.Staff.ID, Role: principal.Staff.Role}, nil
	default:
		return approval.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
}

func parseChangeQuery(c *fiber.Ctx) service.ChangeListFilter {
	filter := service.ChangeListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.ChangeStatus(strings.TrimSpace(part)))
		}
	}
	if riskStr := c.Query("risk_level"); riskStr != "" {
		for _, part := range strings.Split(riskStr, ",") {
			filter.RiskLevels = append(filter.RiskLevels, domain.RiskLevel(strings.TrimSpace(part)))
		}
	}
	if typeStr := c.Query("change_type"); typeStr != "" {
		for _, part := range strings.Split(typeStr, ",") {
			filter.ChangeTypes = append(filter.ChangeTypes, domain.ChangeType(strings.TrimSpace(part)))
		}
	}
	if productID := c.Query("product_id"); productID != "" {
		filter.ProductID = &productID
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter.SearchTerm = &search
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
