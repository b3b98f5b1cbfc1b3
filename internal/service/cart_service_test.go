package service_test

import (
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) anonymousCart(sessionID string) int64 {
	owner, err := domain.AnonymousOwner(sessionID)
	s.Require().NoError(err)

	cartID, err := s.CartService.GetOrCreateCart(s.Ctx, owner)
	s.Require().NoError(err)

	return cartID
}

func sessionAccess(sessionID string) domain.CartAccess {
	return domain.NewCartAccess(nil, sessionID)
}

func userAccess(userID int64) domain.CartAccess {
	return domain.NewCartAccess(&userID, "")
}

func (s *IntegrationTestSuite) TestGetOrCreateCart_ReturnsSameCartForSession() {
	first := s.anonymousCart("sess-1")
	second := s.anonymousCart("sess-1")
	other := s.anonymousCart("sess-2")

	s.Equal(first, second)
	s.NotEqual(first, other)
}

func (s *IntegrationTestSuite) TestGetOrCreateCart_RequiresOwner() {
	_, err := s.CartService.GetOrCreateCart(s.Ctx, domain.Owner{})
	s.Require().ErrorIs(err, domain.ErrOwnerRequired)
}

func (s *IntegrationTestSuite) TestAddItem_SnapshotsPriceAndMergesDuplicates() {
	productID := s.seedProduct("Aurora Pendant", "AUR-001", "120.00", 10)
	cartID := s.anonymousCart("sess-add")

	clientPrice := decimal.RequireFromString("99.00")
	item, err := s.CartService.AddItem(s.Ctx, cartID, sessionAccess("sess-add"), &domain.AddCartItemInput{
		ProductID:   productID,
		Quantity:    2,
		PriceAtTime: &clientPrice,
	})
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("120.00").Equal(item.PriceAtTime))

	_, err = s.DbPool.Exec(s.Ctx, `UPDATE products SET price = 150 WHERE id = $1`, productID)
	s.Require().NoError(err)

	item, err = s.CartService.AddItem(s.Ctx, cartID, sessionAccess("sess-add"), &domain.AddCartItemInput{
		ProductID: productID,
		Quantity:  1,
	})
	s.Require().NoError(err)
	s.Equal(int32(3), item.Quantity)
	s.True(decimal.RequireFromString("120.00").Equal(item.PriceAtTime))

	cart, err := s.CartService.GetCart(s.Ctx, cartID, sessionAccess("sess-add"))
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 1)
	s.Equal("Aurora Pendant", cart.Items[0].ProductName)
	s.Equal(3, cart.ItemCount())
	s.True(decimal.RequireFromString("360.00").Equal(cart.Subtotal()))

	s.Equal(float64(2), testutil.ToFloat64(s.Metrics.CartOperations.WithLabelValues("add")))
}

func (s *IntegrationTestSuite) TestAddItem_Validation() {
	cartID := s.anonymousCart("sess-invalid")

	_, err := s.CartService.AddItem(s.Ctx, cartID, sessionAccess("sess-invalid"), &domain.AddCartItemInput{ProductID: 1, Quantity: 0})
	s.Require().Error(err)
	s.Contains(err.Error(), "quantity")

	_, err = s.CartService.AddItem(s.Ctx, cartID, sessionAccess("sess-invalid"), &domain.AddCartItemInput{ProductID: 424242, Quantity: 1})
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
}

func (s *IntegrationTestSuite) TestAddItem_InactiveProductRejected() {
	productID := s.seedProduct("Retired Lamp", "RET-001", "10.00", 1)
	_, err := s.DbPool.Exec(s.Ctx, `UPDATE products SET is_active = FALSE WHERE id = $1`, productID)
	s.Require().NoError(err)

	cartID := s.anonymousCart("sess-inactive")

	_, err = s.CartService.AddItem(s.Ctx, cartID, sessionAccess("sess-inactive"), &domain.AddCartItemInput{ProductID: productID, Quantity: 1})
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
}

func (s *IntegrationTestSuite) TestUpdateItem_ZeroQuantityRemovesLine() {
	productID := s.seedProduct("Halo Ring", "HAL-001", "80.00", 5)
	cartID := s.anonymousCart("sess-update")

	access := sessionAccess("sess-update")

	item, err := s.CartService.AddItem(s.Ctx, cartID, access, &domain.AddCartItemInput{ProductID: productID, Quantity: 1})
	s.Require().NoError(err)

	updated, err := s.CartService.UpdateItem(s.Ctx, item.ID, access, 4)
	s.Require().NoError(err)
	s.Equal(int32(4), updated.Quantity)

	removed, err := s.CartService.UpdateItem(s.Ctx, item.ID, access, 0)
	s.Require().NoError(err)
	s.Nil(removed)

	cart, err := s.CartService.GetCart(s.Ctx, cartID, access)
	s.Require().NoError(err)
	s.True(cart.IsEmpty())

	err = s.CartService.RemoveItem(s.Ctx, item.ID, access)
	s.Require().ErrorIs(err, repository.ErrCartItemNotFound)
}

func (s *IntegrationTestSuite) TestMergeAnonymousCart_SumsQuantities() {
	shared := s.seedProduct("Nova Spot", "NOV-001", "40.00", 20)
	onlyAnon := s.seedProduct("Luna Wall", "LUN-001", "65.00", 20)

	result, err := s.AuthService.Register(s.Ctx, &domain.RegisterInput{
		Email:     "merge@example.com",
		Password:  "Sup3rSecret!",
		FirstName: "Merge",
	})
	s.Require().NoError(err)
	userID := result.User.ID

	userOwner, err := domain.UserOwner(userID)
	s.Require().NoError(err)
	userCartID, err := s.CartService.GetOrCreateCart(s.Ctx, userOwner)
	s.Require().NoError(err)

	_, err = s.CartService.AddItem(s.Ctx, userCartID, userAccess(userID), &domain.AddCartItemInput{ProductID: shared, Quantity: 1})
	s.Require().NoError(err)

	anonCartID := s.anonymousCart("sess-merge")
	_, err = s.CartService.AddItem(s.Ctx, anonCartID, sessionAccess("sess-merge"), &domain.AddCartItemInput{ProductID: shared, Quantity: 2})
	s.Require().NoError(err)
	_, err = s.CartService.AddItem(s.Ctx, anonCartID, sessionAccess("sess-merge"), &domain.AddCartItemInput{ProductID: onlyAnon, Quantity: 1})
	s.Require().NoError(err)

	mergedID, err := s.CartService.MergeAnonymousCart(s.Ctx, "sess-merge", userID)
	s.Require().NoError(err)
	s.Equal(userCartID, mergedID)

	cart, err := s.CartService.GetCart(s.Ctx, userCartID, userAccess(userID))
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 2)
	s.Equal(4, cart.ItemCount())

	_, err = s.CartService.GetCart(s.Ctx, anonCartID, sessionAccess("sess-merge"))
	s.Require().ErrorIs(err, repository.ErrCartNotFound)
}

func (s *IntegrationTestSuite) TestMergeAnonymousCart_MissingSessionCart() {
	result, err := s.AuthService.Register(s.Ctx, &domain.RegisterInput{
		Email:    "nosession@example.com",
		Password: "Sup3rSecret!",
	})
	s.Require().NoError(err)

	cartID, err := s.CartService.MergeAnonymousCart(s.Ctx, "sess-missing", result.User.ID)
	s.Require().NoError(err)
	s.NotZero(cartID)
}

func (s *IntegrationTestSuite) TestCart_ForeignAccessIsNotFound() {
	productID := s.seedProduct("Orbit Lamp", "ORB-001", "30.00", 10)
	cartID := s.anonymousCart("sess-owner")
	owner := sessionAccess("sess-owner")

	item, err := s.CartService.AddItem(s.Ctx, cartID, owner, &domain.AddCartItemInput{ProductID: productID, Quantity: 2})
	s.Require().NoError(err)

	strangers := map[string]domain.CartAccess{
		"other session": sessionAccess("sess-stranger"),
		"some user":     userAccess(99),
		"nothing":       {},
	}

	for name, stranger := range strangers {
		_, err := s.CartService.GetCart(s.Ctx, cartID, stranger)
		s.ErrorIs(err, repository.ErrCartNotFound, name)

		_, err = s.CartService.AddItem(s.Ctx, cartID, stranger, &domain.AddCartItemInput{ProductID: productID, Quantity: 1})
		s.ErrorIs(err, repository.ErrCartNotFound, name)

		_, err = s.CartService.UpdateItem(s.Ctx, item.ID, stranger, 9)
		s.ErrorIs(err, repository.ErrCartItemNotFound, name)

		_, err = s.CartService.UpdateItem(s.Ctx, item.ID, stranger, 0)
		s.ErrorIs(err, repository.ErrCartItemNotFound, name)

		err = s.CartService.RemoveItem(s.Ctx, item.ID, stranger)
		s.ErrorIs(err, repository.ErrCartItemNotFound, name)
	}

	cart, err := s.CartService.GetCart(s.Ctx, cartID, owner)
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 1)
	s.Equal(int32(2), cart.Items[0].Quantity)
}

func (s *IntegrationTestSuite) TestGetCart_HidesRetiredProducts() {
	kept := s.seedProduct("Beam Strip", "BEA-001", "20.00", 10)
	deactivated := s.seedProduct("Old Bulb", "OLD-001", "5.00", 10)
	deleted := s.seedProduct("Gone Shade", "GON-001", "15.00", 10)
	cartID := s.anonymousCart("sess-retired")
	access := sessionAccess("sess-retired")

	for _, id := range []int64{kept, deactivated, deleted} {
		_, err := s.CartService.AddItem(s.Ctx, cartID, access, &domain.AddCartItemInput{ProductID: id, Quantity: 1})
		s.Require().NoError(err)
	}

	_, err := s.DbPool.Exec(s.Ctx, `UPDATE products SET is_active = FALSE WHERE id = $1`, deactivated)
	s.Require().NoError(err)
	_, err = s.DbPool.Exec(s.Ctx, `UPDATE products SET deleted_at = NOW() WHERE id = $1`, deleted)
	s.Require().NoError(err)

	cart, err := s.CartService.GetCart(s.Ctx, cartID, access)
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 1)
	s.Equal(kept, cart.Items[0].ProductID)
	s.True(decimal.RequireFromString("20.00").Equal(cart.Subtotal()))
}

func (s *IntegrationTestSuite) TestGetCart_RepeatedReadsMatch() {
	productID := s.seedProduct("Drift Pendant", "DRI-001", "75.00", 10)
	cartID := s.anonymousCart("sess-reads")
	access := sessionAccess("sess-reads")

	_, err := s.CartService.AddItem(s.Ctx, cartID, access, &domain.AddCartItemInput{ProductID: productID, Quantity: 3})
	s.Require().NoError(err)

	first, err := s.CartService.GetCart(s.Ctx, cartID, access)
	s.Require().NoError(err)
	second, err := s.CartService.GetCart(s.Ctx, cartID, access)
	s.Require().NoError(err)

	s.Equal(first, second)
}
