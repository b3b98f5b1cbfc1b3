package service_test

import (
	"strconv"

	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/internal/service"
)

func (s *IntegrationTestSuite) createProduct(name, sku, price, category string) *domain.Product {
	product, err := s.ProductService.Create(s.Ctx, &domain.CreateProductInput{
		Name:          name,
		SKU:           sku,
		Category:      category,
		Price:         dec(price),
		StockQuantity: 10,
	})
	s.Require().NoError(err)

	return product
}

func (s *IntegrationTestSuite) TestCreateProduct_Success() {
	product := s.createProduct("Aurora Pendant", "AUR-001", "129.999", "ceiling")

	s.NotZero(product.ID)
	s.True(product.IsActive)
	s.True(dec("130.00").Equal(product.Price))

	_, err := s.ProductService.Create(s.Ctx, &domain.CreateProductInput{
		Name:  "Aurora Copy",
		SKU:   "AUR-001",
		Price: dec("10"),
	})
	s.Require().ErrorIs(err, repository.ErrProductSKUDuplicate)
}

func (s *IntegrationTestSuite) TestFindByID_CachesUntilUpdate() {
	product := s.createProduct("Luna Wall", "LUN-001", "65.00", "wall")

	found, err := s.ProductService.FindByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Equal("Luna Wall", found.Name)

	exists, err := s.Redis.Exists(s.Ctx, "product:"+strconv.FormatInt(product.ID, 10)).Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists)

	name := "Luna Wall XL"
	updated, err := s.ProductService.Update(s.Ctx, product.ID, &domain.UpdateProductInput{Name: &name})
	s.Require().NoError(err)
	s.Equal(name, updated.Name)

	exists, err = s.Redis.Exists(s.Ctx, "product:"+strconv.FormatInt(product.ID, 10)).Result()
	s.Require().NoError(err)
	s.Zero(exists)

	found, err = s.ProductService.FindByID(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Equal(name, found.Name)
}

func (s *IntegrationTestSuite) TestProductList_FiltersAndHidesDeleted() {
	s.createProduct("Aurora Pendant", "AUR-001", "120.00", "ceiling")
	s.createProduct("Nova Spot", "NOV-001", "40.00", "ceiling")
	wall := s.createProduct("Luna Wall", "LUN-001", "65.00", "wall")

	products, total, err := s.ProductService.List(s.Ctx, domain.ProductFilter{Category: "ceiling"})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(products, 2)

	products, _, err = s.ProductService.List(s.Ctx, domain.ProductFilter{Search: "nova"})
	s.Require().NoError(err)
	s.Require().Len(products, 1)
	s.Equal("NOV-001", products[0].SKU)

	s.Require().NoError(s.ProductService.Delete(s.Ctx, wall.ID))

	_, total, err = s.ProductService.List(s.Ctx, domain.ProductFilter{})
	s.Require().NoError(err)
	s.Equal(int64(2), total)

	_, err = s.ProductService.FindByID(s.Ctx, wall.ID)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
}

func (s *IntegrationTestSuite) TestUpdateProduct_Empty() {
	product := s.createProduct("Aurora Pendant", "AUR-001", "120.00", "ceiling")

	_, err := s.ProductService.Update(s.Ctx, product.ID, &domain.UpdateProductInput{})
	s.Require().ErrorIs(err, service.ErrNothingToUpdate)
}
