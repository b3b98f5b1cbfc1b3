package cartclient

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/utils"
	"go.uber.org/zap"
)

const (
	EmptyCartRedirect        = "/products"
	confirmationRedirectPath = "/order-confirmation/"
)

type CheckoutState int

const (
	StateLoading CheckoutState = iota
	StateEmpty
	StateReady
	StateSubmitting
	StateSuccess
	StateFailed
)

func (s CheckoutState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type CheckoutForm struct {
	CustomerName    string         `json:"customer_name" validate:"required,max=200"`
	CustomerEmail   string         `json:"customer_email" validate:"required,email"`
	CustomerPhone   string         `json:"customer_phone" validate:"required,max=50"`
	BillingAddress  domain.Address `json:"billing_address"`
	DeliveryAddress domain.Address `json:"delivery_address" validate:"-"`
	SameAsBilling   bool           `json:"same_as_billing"`
	PromoCode       string         `json:"promo_code" validate:"max=50"`
	Notes           string         `json:"notes" validate:"max=2000"`
}

type CheckoutResult struct {
	Order    *domain.Order
	Totals   domain.Totals
	Redirect string
}

// Checkout drives a single order submission from the client's cart.
type Checkout struct {
	client    *Client
	api       API
	pricing   domain.PricingRules
	validator *validator.Validate
	logger    *zap.Logger

	mu             sync.Mutex
	state          CheckoutState
	idempotencyKey string
}

func NewCheckout(client *Client, api API, pricing domain.PricingRules, logger *zap.Logger) *Checkout {
	co := &Checkout{
		client:    client,
		api:       api,
		pricing:   pricing,
		validator: utils.NewValidator(),
		logger:    logger,
	}
	co.Refresh()

	return co
}

// Refresh derives the state from the cart unless a submission is running
// or has completed.
func (co *Checkout) Refresh() CheckoutState {
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.state == StateSubmitting || co.state == StateSuccess {
		return co.state
	}

	switch {
	case co.client.Loading():
		co.state = StateLoading
	case co.client.Cart().IsEmpty():
		co.state = StateEmpty
	case co.state != StateFailed:
		co.state = StateReady
	}

	return co.state
}

func (co *Checkout) State() CheckoutState {
	co.mu.Lock()
	defer co.mu.Unlock()

	return co.state
}

// Retry moves a failed checkout back to Ready so the form can be resent.
func (co *Checkout) Retry() {
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.state == StateFailed {
		co.state = StateReady
	}
}

// Totals previews what the order will cost with the given promo code.
func (co *Checkout) Totals(promoCode string) domain.Totals {
	return co.pricing.CalculateTotals(co.client.Subtotal(), promoCode)
}

// Submit places the order. An empty cart yields ErrEmptyCart with a result
// redirecting to the product list. The idempotency key survives failed
// attempts so a resubmission cannot create a second order.
func (co *Checkout) Submit(ctx context.Context, form *CheckoutForm) (*CheckoutResult, error) {
	co.mu.Lock()

	if co.state == StateSubmitting {
		co.mu.Unlock()
		return nil, ErrSubmitInProgress
	}

	cart := co.client.Cart()
	if cart.IsEmpty() {
		co.state = StateEmpty
		co.mu.Unlock()
		co.client.notifier.Error("Your cart is empty")
		return &CheckoutResult{Redirect: EmptyCartRedirect}, ErrEmptyCart
	}

	if err := co.validate(form); err != nil {
		co.mu.Unlock()
		co.client.notifier.Error("Please fill in all required fields")
		return nil, err
	}

	if co.idempotencyKey == "" {
		co.idempotencyKey = uuid.NewString()
	}
	key := co.idempotencyKey
	co.state = StateSubmitting
	co.mu.Unlock()

	totals := co.pricing.CalculateTotals(cart.Subtotal(), form.PromoCode)
	input := co.buildOrder(cart, form)

	order, err := co.api.CreateOrder(ctx, input, key)

	co.mu.Lock()
	defer co.mu.Unlock()

	if err != nil {
		co.state = StateFailed
		co.logger.Error("Failed to create order", zap.Int64("cart_id", cart.ID), zap.Error(err))
		co.client.notifier.Error("Failed to place order. Please try again.")
		return nil, err
	}

	if !order.TotalAmount.Equal(totals.TotalAmount) {
		co.logger.Warn(
			"Order total differs from local preview",
			zap.String("order_number", order.OrderNumber),
			zap.String("preview", totals.TotalAmount.StringFixed(2)),
			zap.String("charged", order.TotalAmount.StringFixed(2)),
		)
	}

	co.state = StateSuccess
	co.idempotencyKey = ""

	if err := co.client.Reset(); err != nil {
		co.logger.Warn("Failed to clear cart id", zap.Error(err))
	}
	co.client.notifier.Success("Order placed successfully")

	return &CheckoutResult{
		Order:    order,
		Totals:   totals,
		Redirect: confirmationRedirectPath + order.OrderNumber,
	}, nil
}

func (co *Checkout) validate(form *CheckoutForm) error {
	fields := utils.FormatValidationError(co.validator.Struct(form))

	if !form.SameAsBilling {
		for k, v := range utils.FormatValidationError(co.validator.Struct(form.DeliveryAddress)) {
			fields["delivery_address."+k] = strings.Replace(v, k, "delivery_address."+k, 1)
		}
	}

	if len(fields) > 0 {
		return &FormError{Fields: fields}
	}
	return nil
}

func (co *Checkout) buildOrder(cart *domain.Cart, form *CheckoutForm) *domain.CreateOrderInput {
	delivery := form.DeliveryAddress
	if form.SameAsBilling {
		delivery = form.BillingAddress
	}

	items := make([]domain.OrderItemInput, 0, len(cart.Items))
	for _, line := range cart.Items {
		productID := line.ProductID
		items = append(items, domain.OrderItemInput{
			ProductID:   &productID,
			ProductName: line.ProductName,
			ProductSKU:  line.ProductSKU,
			Quantity:    line.Quantity,
			UnitPrice:   line.PriceAtTime,
			TotalPrice:  line.LineTotal(),
		})
	}

	cartID := cart.ID
	input := &domain.CreateOrderInput{
		CartID:          &cartID,
		CustomerName:    strings.TrimSpace(form.CustomerName),
		CustomerEmail:   strings.TrimSpace(form.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(form.CustomerPhone),
		BillingAddress:  form.BillingAddress,
		DeliveryAddress: delivery,
		PaymentMethod:   domain.PaymentMethodCOD,
		PromoCode:       strings.TrimSpace(form.PromoCode),
		Notes:           form.Notes,
		Items:           items,
	}

	if user := co.client.User(); user != nil && user.ID > 0 {
		userID := user.ID
		input.UserID = &userID
	} else if sessionID, err := co.client.SessionID(); err == nil {
		input.SessionID = &sessionID
	}

	return input
}
