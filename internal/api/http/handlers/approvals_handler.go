package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/change-service/internal/api/dto"
	"github.com/spec-kit/change-service/internal/auth"
	"github.com/spec-kit/change-service/internal/service"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// ApprovalsHandler manages approver endpoints.
type ApprovalsHandler struct {
	service *service.ApprovalService
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(approvalService *service.ApprovalService) *ApprovalsHandler {
	return &ApprovalsHandler{service: approvalService}
}

// SubmitDecision POST /staff/changes/:id/decision.
func (h *ApprovalsHandler) SubmitDecision(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return apperrors.NewUnauthorized("staff required")
	}
	var req dto.DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.SubmitDecision(c.Context(), principal.Staff.ID, c.Params("id"), service.DecisionInput{
		Action:   req.Action,
		Comments: req.Comments,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DecisionResponse{
		Instance:  dto.ToApprovalInstanceResponse(result.Instance),
		Completed: result.Completed,
		Approved:  result.Approved,
		NextLevel: result.NextLevel,
	}})
}

// ListPending GET /staff/approvals/pending.
func (h *ApprovalsHandler) ListPending(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return apperrors.NewUnauthorized("staff required")
	}
	pending, err := h.service.ListPendingForApprover(c.Context(), principal.Staff.ID)
	if err != nil {
		return err
	}
	items := make([]dto.PendingApprovalResponse, 0, len(pending))
	for _, entry := range pending {
		items = append(items, dto.PendingApprovalResponse{
			Change:    dto.ToChangeSummary(entry.Change),
			Instances: dto.ToApprovalInstanceResponses(entry.Instances),
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// WorkflowState GET /staff/changes/:id/approval-state.
func (h *ApprovalsHandler) WorkflowState(c *fiber.Ctx) error {
	state, err := h.service.WorkflowState(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.WorkflowStateResponse{
		Phase:       state.Phase,
		ActiveLevel: state.ActiveLevel,
		TotalLevels: state.TotalLevels,
	}})
}
