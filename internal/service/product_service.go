package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"go.uber.org/zap"
)

type ProductService interface {
	Create(ctx context.Context, input *domain.CreateProductInput) (*domain.Product, error)
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error)
	Update(ctx context.Context, id int64, input *domain.UpdateProductInput) (*domain.Product, error)
	Delete(ctx context.Context, id int64) error
}

type productService struct {
	productRepo repository.ProductRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

func NewProductService(
	productRepo repository.ProductRepository,
	validator *validator.Validate,
	logger *zap.Logger,
) ProductService {
	return &productService{
		productRepo: productRepo,
		validator:   validator,
		logger:      logger,
	}
}

func (s *productService) Create(ctx context.Context, input *domain.CreateProductInput) (*domain.Product, error) {
	if err := validateStruct(s.validator, input); err != nil {
		return nil, err
	}

	product := &domain.Product{
		Name:          strings.TrimSpace(input.Name),
		SKU:           strings.TrimSpace(input.SKU),
		Description:   input.Description,
		Category:      strings.TrimSpace(input.Category),
		Price:         input.Price.Round(2),
		StockQuantity: input.StockQuantity,
		ImageURL:      input.ImageURL,
		IsActive:      true,
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Product created",
		zap.Int64("product_id", product.ID),
		zap.String("sku", product.SKU),
	)

	return product, nil
}

func (s *productService) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	return s.productRepo.GetByID(ctx, id)
}

func (s *productService) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Search = strings.TrimSpace(filter.Search)

	return s.productRepo.List(ctx, filter)
}

func (s *productService) Update(ctx context.Context, id int64, input *domain.UpdateProductInput) (*domain.Product, error) {
	if input.IsEmpty() {
		return nil, ErrNothingToUpdate
	}
	if err := validateStruct(s.validator, input); err != nil {
		return nil, err
	}
	if input.Price != nil {
		rounded := input.Price.Round(2)
		input.Price = &rounded
	}

	return s.productRepo.Update(ctx, id, input)
}

func (s *productService) Delete(ctx context.Context, id int64) error {
	return s.productRepo.DeleteByID(ctx, id)
}
