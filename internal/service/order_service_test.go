package service_test

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/internal/service"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (s *IntegrationTestSuite) TestCreateOrder_Totals() {
	cases := []struct {
		name      string
		items     []domain.OrderItemInput
		promo     string
		subtotal  string
		shipping  string
		discount  string
		total     string
		promoKept string
	}{
		{
			name:     "below threshold pays shipping",
			items:    []domain.OrderItemInput{lineItem("Aurora Pendant", 2, "100.00")},
			subtotal: "200", shipping: "50", discount: "0", total: "250",
		},
		{
			name:     "above threshold ships free",
			items:    []domain.OrderItemInput{lineItem("Aurora Pendant", 3, "200.00")},
			subtotal: "600", shipping: "0", discount: "0", total: "600",
		},
		{
			name:     "exactly threshold still pays shipping",
			items:    []domain.OrderItemInput{lineItem("Aurora Pendant", 5, "100.00")},
			subtotal: "500", shipping: "50", discount: "0", total: "550",
		},
		{
			name:     "promo code discounts ten percent",
			items:    []domain.OrderItemInput{lineItem("Aurora Pendant", 2, "100.00")},
			promo:    " ravolux10 ",
			subtotal: "200", shipping: "50", discount: "20", total: "230",
			promoKept: "RAVOLUX10",
		},
		{
			name:     "unknown promo is dropped",
			items:    []domain.OrderItemInput{lineItem("Aurora Pendant", 2, "100.00")},
			promo:    "SUMMER",
			subtotal: "200", shipping: "50", discount: "0", total: "250",
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			input := s.orderInput(tc.items...)
			input.PromoCode = tc.promo

			order, err := s.OrderService.CreateOrder(s.Ctx, input)
			s.Require().NoError(err)

			s.True(dec(tc.subtotal).Equal(order.Subtotal), "subtotal %s", order.Subtotal)
			s.True(dec(tc.shipping).Equal(order.ShippingCost), "shipping %s", order.ShippingCost)
			s.True(dec(tc.discount).Equal(order.Discount), "discount %s", order.Discount)
			s.True(dec(tc.total).Equal(order.TotalAmount), "total %s", order.TotalAmount)
			s.Equal(tc.promoKept, order.PromoCode)
			s.True(order.TotalAmount.Equal(order.Subtotal.Add(order.ShippingCost).Sub(order.Discount)))
		})
	}
}

func (s *IntegrationTestSuite) TestCreateOrder_PersistsItemsAndEmitsEvent() {
	productID := s.seedProduct("Aurora Pendant", "AUR-001", "100.00", 10)

	first := lineItem("Aurora Pendant", 2, "100.00")
	first.ProductID = &productID
	first.ProductSKU = "AUR-001"
	first.TotalPrice = dec("1.00")

	order, err := s.OrderService.CreateOrder(s.Ctx, s.orderInput(first, lineItem("Bulb Pack", 3, "4.99")))
	s.Require().NoError(err)

	s.Regexp(`^ORD-\d+-[0-9A-Z]+$`, order.OrderNumber)
	s.Equal(domain.OrderStatusPending, order.Status)
	s.Equal(domain.PaymentStatusPending, order.PaymentStatus)
	s.Equal(domain.PaymentMethodCOD, order.PaymentMethod)
	s.Equal("ana@example.com", order.CustomerEmail)
	s.Equal("Zagreb", order.DeliveryAddress.City)

	s.Require().Len(order.Items, 2)
	s.True(dec("200.00").Equal(order.Items[0].TotalPrice))
	s.True(dec("14.97").Equal(order.Items[1].TotalPrice))
	s.True(dec("214.97").Equal(order.Subtotal))

	sum := decimal.Zero
	for _, item := range order.Items {
		s.True(item.TotalPrice.Equal(item.UnitPrice.Mul(decimal.NewFromInt32(item.Quantity))))
		sum = sum.Add(item.TotalPrice)
	}
	s.True(sum.Equal(order.Subtotal))

	aggregateID := strconv.FormatInt(order.ID, 10)
	s.Equal(1, s.outboxCount(domain.EventOrderCreated, aggregateID))
	s.Equal(float64(1), testutil.ToFloat64(s.Metrics.OrdersCreated))

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time

		err := s.DbPool.QueryRow(
			s.Ctx,
			`SELECT published_at FROM outbox WHERE aggregate_id = $1 AND event_type = $2`,
			aggregateID,
			domain.EventOrderCreated,
		).Scan(&publishedAt)

		return err == nil && publishedAt != nil
	}, 10*time.Second, 100*time.Millisecond)

	byNumber, err := s.OrderService.GetOrderByNumber(s.Ctx, order.OrderNumber)
	s.Require().NoError(err)
	s.Equal(order.ID, byNumber.ID)
}

func (s *IntegrationTestSuite) TestCreateOrder_ClearsCart() {
	productID := s.seedProduct("Halo Ring", "HAL-001", "80.00", 5)
	cartID := s.anonymousCart("sess-checkout")
	access := sessionAccess("sess-checkout")

	_, err := s.CartService.AddItem(s.Ctx, cartID, access, &domain.AddCartItemInput{ProductID: productID, Quantity: 2})
	s.Require().NoError(err)

	sessionID := "sess-checkout"
	input := s.orderInput(lineItem("Halo Ring", 2, "80.00"))
	input.CartID = &cartID
	input.SessionID = &sessionID

	order, err := s.OrderService.CreateOrder(s.Ctx, input)
	s.Require().NoError(err)
	s.Require().NotNil(order.SessionID)
	s.Equal(sessionID, *order.SessionID)

	cart, err := s.CartService.GetCart(s.Ctx, cartID, access)
	s.Require().NoError(err)
	s.True(cart.IsEmpty())
}

func (s *IntegrationTestSuite) TestCreateOrder_ForeignCartUntouched() {
	productID := s.seedProduct("Halo Ring", "HAL-002", "80.00", 5)
	cartID := s.anonymousCart("sess-victim")
	victim := sessionAccess("sess-victim")

	_, err := s.CartService.AddItem(s.Ctx, cartID, victim, &domain.AddCartItemInput{ProductID: productID, Quantity: 1})
	s.Require().NoError(err)

	attacker := "sess-attacker"
	stranger := int64(4242)

	inputs := map[string]*domain.CreateOrderInput{
		"no credentials": s.orderInput(lineItem("Halo Ring", 1, "80.00")),
		"other session":  s.orderInput(lineItem("Halo Ring", 1, "80.00")),
		"other user":     s.orderInput(lineItem("Halo Ring", 1, "80.00")),
	}
	inputs["other session"].SessionID = &attacker
	inputs["other user"].UserID = &stranger

	for name, input := range inputs {
		input.CartID = &cartID

		_, err := s.OrderService.CreateOrder(s.Ctx, input)
		s.Require().ErrorIs(err, repository.ErrCartNotFound, name)
	}

	cart, err := s.CartService.GetCart(s.Ctx, cartID, victim)
	s.Require().NoError(err)
	s.Equal(1, cart.ItemCount())

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *IntegrationTestSuite) TestCreateOrder_CartPricesWinOverClient() {
	pendant := s.seedProduct("Aurora Pendant", "AUR-010", "100.00", 10)
	bulb := s.seedProduct("Bulb Pack", "BUL-010", "5.00", 10)
	cartID := s.anonymousCart("sess-prices")
	access := sessionAccess("sess-prices")

	_, err := s.CartService.AddItem(s.Ctx, cartID, access, &domain.AddCartItemInput{ProductID: pendant, Quantity: 2})
	s.Require().NoError(err)
	_, err = s.CartService.AddItem(s.Ctx, cartID, access, &domain.AddCartItemInput{ProductID: bulb, Quantity: 1})
	s.Require().NoError(err)

	_, err = s.DbPool.Exec(s.Ctx, `UPDATE products SET is_active = FALSE WHERE id = $1`, bulb)
	s.Require().NoError(err)

	cheap := lineItem("Aurora Pendant", 2, "0.01")
	cheap.ProductID = &pendant

	sessionID := "sess-prices"
	input := s.orderInput(cheap)
	input.CartID = &cartID
	input.SessionID = &sessionID

	order, err := s.OrderService.CreateOrder(s.Ctx, input)
	s.Require().NoError(err)

	s.Require().Len(order.Items, 1)
	s.Equal("AUR-010", order.Items[0].ProductSKU)
	s.True(dec("100.00").Equal(order.Items[0].UnitPrice))
	s.True(dec("200.00").Equal(order.Subtotal))
	s.True(dec("250.00").Equal(order.TotalAmount))
}

func (s *IntegrationTestSuite) TestCreateOrder_EmptyCartRejected() {
	cartID := s.anonymousCart("sess-empty")

	sessionID := "sess-empty"
	input := s.orderInput(lineItem("Aurora Pendant", 1, "100.00"))
	input.CartID = &cartID
	input.SessionID = &sessionID

	_, err := s.OrderService.CreateOrder(s.Ctx, input)
	s.Require().ErrorIs(err, service.ErrEmptyCart)
}

func (s *IntegrationTestSuite) TestGetOrder_RepeatedReadsMatch() {
	order, err := s.OrderService.CreateOrder(s.Ctx, s.orderInput(lineItem("Aurora Pendant", 2, "100.00")))
	s.Require().NoError(err)

	first, err := s.OrderService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	second, err := s.OrderService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(first, second)

	firstByNumber, err := s.OrderService.GetOrderByNumber(s.Ctx, order.OrderNumber)
	s.Require().NoError(err)
	secondByNumber, err := s.OrderService.GetOrderByNumber(s.Ctx, order.OrderNumber)
	s.Require().NoError(err)
	s.Equal(firstByNumber, secondByNumber)
	s.Equal(first, firstByNumber)
}

func (s *IntegrationTestSuite) TestCreateOrder_IdempotencyKeyReplays() {
	input := s.orderInput(lineItem("Aurora Pendant", 1, "100.00"))
	input.IdempotencyKey = "checkout-7f3a"

	first, err := s.OrderService.CreateOrder(s.Ctx, input)
	s.Require().NoError(err)

	second, err := s.OrderService.CreateOrder(s.Ctx, input)
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal(first.OrderNumber, second.OrderNumber)

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *IntegrationTestSuite) TestCreateOrder_RollsBackOnItemFailure() {
	missing := int64(987654)
	broken := lineItem("Ghost Lamp", 1, "10.00")
	broken.ProductID = &missing

	_, err := s.OrderService.CreateOrder(s.Ctx, s.orderInput(lineItem("Aurora Pendant", 1, "100.00"), broken))
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	for _, table := range []string{"orders", "order_items", "outbox"} {
		var count int
		err := s.DbPool.QueryRow(s.Ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		s.Require().NoError(err)
		s.Zero(count, table)
	}
}

func (s *IntegrationTestSuite) TestCreateOrder_Validation() {
	input := s.orderInput()
	input.CustomerEmail = "not-an-email"
	input.BillingAddress.City = ""

	_, err := s.OrderService.CreateOrder(s.Ctx, input)

	var validationErr *service.ValidationError
	s.Require().True(errors.As(err, &validationErr))
	s.Contains(validationErr.Fields, "items")
	s.Contains(validationErr.Fields, "customer_email")
	s.Contains(validationErr.Fields, "billing_address.city")
}

func (s *IntegrationTestSuite) TestUpdateOrderStatus_Lifecycle() {
	order, err := s.OrderService.CreateOrder(s.Ctx, s.orderInput(lineItem("Aurora Pendant", 1, "100.00")))
	s.Require().NoError(err)

	for _, next := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		status := next
		order, err = s.OrderService.UpdateOrderStatus(s.Ctx, order.ID, &domain.UpdateOrderStatusInput{Status: &status})
		s.Require().NoError(err)
		s.Equal(next, order.Status)
	}

	s.NotNil(order.ShippedAt)
	s.NotNil(order.DeliveredAt)
	s.Equal(domain.PaymentStatusCompleted, order.PaymentStatus)
	s.Equal(3, s.outboxCount(domain.EventOrderStatusUpdated, strconv.FormatInt(order.ID, 10)))

	cancelled := domain.OrderStatusCancelled
	_, err = s.OrderService.UpdateOrderStatus(s.Ctx, order.ID, &domain.UpdateOrderStatusInput{Status: &cancelled})
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *IntegrationTestSuite) TestUpdateOrderStatus_PaymentOnlySkipsEvent() {
	order, err := s.OrderService.CreateOrder(s.Ctx, s.orderInput(lineItem("Aurora Pendant", 1, "100.00")))
	s.Require().NoError(err)

	failed := domain.PaymentStatusFailed
	updated, err := s.OrderService.UpdateOrderStatus(s.Ctx, order.ID, &domain.UpdateOrderStatusInput{PaymentStatus: &failed})
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusFailed, updated.PaymentStatus)
	s.Equal(domain.OrderStatusPending, updated.Status)
	s.Zero(s.outboxCount(domain.EventOrderStatusUpdated, strconv.FormatInt(order.ID, 10)))

	_, err = s.OrderService.UpdateOrderStatus(s.Ctx, order.ID, &domain.UpdateOrderStatusInput{})
	s.Require().ErrorIs(err, service.ErrNothingToUpdate)

	status := domain.OrderStatusConfirmed
	_, err = s.OrderService.UpdateOrderStatus(s.Ctx, 999999, &domain.UpdateOrderStatusInput{Status: &status})
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}

func (s *IntegrationTestSuite) TestListOrders_FiltersByUserAndStatus() {
	result, err := s.AuthService.Register(s.Ctx, &domain.RegisterInput{
		Email:    "orders@example.com",
		Password: "Sup3rSecret!",
	})
	s.Require().NoError(err)
	userID := result.User.ID

	mine := s.orderInput(lineItem("Aurora Pendant", 1, "100.00"))
	mine.UserID = &userID
	_, err = s.OrderService.CreateOrder(s.Ctx, mine)
	s.Require().NoError(err)

	_, err = s.OrderService.CreateOrder(s.Ctx, s.orderInput(lineItem("Halo Ring", 1, "80.00")))
	s.Require().NoError(err)

	orders, err := s.OrderService.ListOrders(s.Ctx, domain.OrderFilter{UserID: &userID})
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Require().Len(orders[0].Items, 1)
	s.Equal("Aurora Pendant", orders[0].Items[0].ProductName)

	all, err := s.OrderService.ListOrders(s.Ctx, domain.OrderFilter{})
	s.Require().NoError(err)
	s.Len(all, 2)

	bogus := domain.OrderStatus("lost")
	_, err = s.OrderService.ListOrders(s.Ctx, domain.OrderFilter{Status: &bogus})
	var validationErr *service.ValidationError
	s.True(errors.As(err, &validationErr))
}
