package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	SKU           string          `db:"sku" json:"sku"`
	Description   string          `db:"description" json:"description"`
	Category      string          `db:"category" json:"category"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int64           `db:"stock_quantity" json:"stock_quantity"`
	ImageURL      string          `db:"image_url" json:"image_url"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time      `db:"deleted_at" json:"-"`
}

type CreateProductInput struct {
	Name          string          `json:"name" validate:"required,max=200"`
	SKU           string          `json:"sku" validate:"required,max=64"`
	Description   string          `json:"description"`
	Category      string          `json:"category" validate:"max=100"`
	Price         decimal.Decimal `json:"price" validate:"gt=0"`
	StockQuantity int64           `json:"stock_quantity" validate:"gte=0"`
	ImageURL      string          `json:"image_url" validate:"omitempty,url"`
	IsActive      *bool           `json:"is_active"`
}

type UpdateProductInput struct {
	Name          *string          `json:"name" validate:"omitempty,max=200"`
	SKU           *string          `json:"sku" validate:"omitempty,max=64"`
	Description   *string          `json:"description"`
	Category      *string          `json:"category" validate:"omitempty,max=100"`
	Price         *decimal.Decimal `json:"price" validate:"omitempty,gt=0"`
	StockQuantity *int64           `json:"stock_quantity" validate:"omitempty,gte=0"`
	ImageURL      *string          `json:"image_url" validate:"omitempty,url"`
	IsActive      *bool            `json:"is_active"`
}

func (in UpdateProductInput) IsEmpty() bool {
	return in.Name == nil && in.SKU == nil && in.Description == nil && in.Category == nil &&
		in.Price == nil && in.StockQuantity == nil && in.ImageURL == nil && in.IsActive == nil
}

type ProductFilter struct {
	Category string
	Search   string
	// IncludeInactive is only honoured for admin listings.
	IncludeInactive bool
	Limit           int
	Offset          int
}
