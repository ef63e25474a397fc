package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/change-service/internal/api/dto"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/repository"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// ProductsHandler manages the product catalog endpoints.
type ProductsHandler struct {
	products repository.ProductRepository
}

// NewProductsHandler constructs handler.
func NewProductsHandler(products repository.ProductRepository) *ProductsHandler {
	return &ProductsHandler{products: products}
}

// ListProducts GET /products.
func (h *ProductsHandler) ListProducts(c *fiber.Ctx) error {
	products, err := h.products.ListActive(c.Context())
	if err != nil {
		return err
	}
	items := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, dto.ToProductResponse(products[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateProduct POST /admin/products.
func (h *ProductsHandler) CreateProduct(c *fiber.Ctx) error {
	var req dto.ProductRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	product := &domain.Product{
		GroupID:     req.GroupID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsActive:    true,
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if err := h.products.Create(c.Context(), product); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ToProductResponse(*product)})
}

// UpdateProduct PUT /admin/products/:id.
func (h *ProductsHandler) UpdateProduct(c *fiber.Ctx) error {
	product, err := h.products.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	var req dto.ProductRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) != "" {
		product.Name = strings.TrimSpace(req.Name)
	}
	if req.Description != "" {
		product.Description = req.Description
	}
	if req.GroupID != nil {
		product.GroupID = req.GroupID
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if err := h.products.Update(c.Context(), product); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToProductResponse(*product)})
}

// ListGroups GET /products/groups.
func (h *ProductsHandler) ListGroups(c *fiber.Ctx) error {
	groups, err := h.products.ListGroups(c.Context())
	if err != nil {
		return err
	}
	items := make([]dto.ProductGroupResponse, 0, len(groups))
	for i := range groups {
		items = append(items, dto.ToProductGroupResponse(groups[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateGroup POST /admin/products/groups.
func (h *ProductsHandler) CreateGroup(c *fiber.Ctx) error {
	var req dto.ProductGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	group := &domain.ProductGroup{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsActive:    true,
	}
	if err := h.products.CreateGroup(c.Context(), group); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ToProductGroupResponse(*group)})
}
