package dto

import (
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// ProductRequest payload.
type ProductRequest struct {
	GroupID     *string `json:"group_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// ProductResponse represents a product.
type ProductResponse struct {
	ID          string    `json:"id"`
	GroupID     *string   `json:"group_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductGroupRequest payload.
type ProductGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ProductGroupResponse represents a product group.
type ProductGroupResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToProductResponse maps domain to DTO.
func ToProductResponse(product domain.Product) ProductResponse {
	return ProductResponse{
		ID:          product.ID,
		GroupID:     product.GroupID,
		Name:        product.Name,
		Description: product.Description,
		IsActive:    product.IsActive,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}

// ToProductGroupResponse maps domain to DTO.
func ToProductGroupResponse(group domain.ProductGroup) ProductGroupResponse {
	return ProductGroupResponse{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		IsActive:    group.IsActive,
		CreatedAt:   group.CreatedAt,
		UpdatedAt:   group.UpdatedAt,
	}
}
