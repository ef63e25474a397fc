package domain

import "time"

// ProductGroup bundles related products under one routing target.
type ProductGroup struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is a system or service changes are raised against.
type Product struct {
	ID          string
	GroupID     *string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
