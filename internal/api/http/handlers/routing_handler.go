package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/change-service/internal/api/dto"
	"github.com/spec-kit/change-service/internal/service"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// RoutingHandler manages admin routing-rule endpoints.
type RoutingHandler struct {
	service *service.RoutingService
}

// NewRoutingHandler constructs handler.
func NewRoutingHandler(routingService *service.RoutingService) *RoutingHandler {
	return &RoutingHandler{service: routingService}
}

// ListRules GET /admin/routing-rules.
func (h *RoutingHandler) ListRules(c *fiber.Ctx) error {
	rules, err := h.service.ListRules(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToRoutingRuleResponses(rules)})
}

// CreateRule POST /admin/routing-rules.
func (h *RoutingHandler) CreateRule(c *fiber.Ctx) error {
	input, err := parseRuleRequest(c)
	if err != nil {
		return err
	}
	rule, err := h.service.CreateRule(c.Context(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ToRoutingRuleResponse(*rule)})
}

// UpdateRule PUT /admin/routing-rules/:id.
func (h *RoutingHandler) UpdateRule(c *fiber.Ctx) error {
	input, err := parseRuleRequest(c)
	if err != nil {
		return err
	}
	rule, err := h.service.UpdateRule(c.Context(), c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToRoutingRuleResponse(*rule)})
}

// DeleteRule DELETE /admin/routing-rules/:id.
func (h *RoutingHandler) DeleteRule(c *fiber.Ctx) error {
	if err := h.service.DeleteRule(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func parseRuleRequest(c *fiber.Ctx) (service.RoutingRuleInput, error) {
	var req dto.RoutingRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return service.RoutingRuleInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.RoutingRuleInput{
		ProductID:  req.ProductID,
		GroupID:    req.GroupID,
		RiskLevel:  req.RiskLevel,
		Level:      req.Level,
		ApproverID: req.ApproverID,
		RequireAll: req.RequireAll,
		IsActive:   true,
	}
	if req.IsActive != nil {
		input.IsActive = *req.IsActive
	}
	return input, nil
}
