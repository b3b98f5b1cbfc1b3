package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

const PaymentMethodCOD = "cash-on-delivery"

var ErrInvalidTransition = errors.New("invalid order status transition")

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next.
// Staying in the same status is always allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

type Address struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Company    string `json:"company,omitempty"`
}

type Order struct {
	ID              int64           `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"order_number"`
	UserID          *int64          `db:"user_id" json:"user_id"`
	SessionID       *string         `db:"session_id" json:"session_id"`
	Status          OrderStatus     `db:"status" json:"status"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingCost    decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	Discount        decimal.Decimal `db:"discount" json:"discount"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	PromoCode       string          `db:"promo_code" json:"promo_code,omitempty"`
	CustomerName    string          `db:"customer_name" json:"customer_name"`
	CustomerEmail   string          `db:"customer_email" json:"customer_email"`
	CustomerPhone   string          `db:"customer_phone" json:"customer_phone"`
	BillingAddress  Address         `db:"billing_address" json:"billing_address"`
	DeliveryAddress Address         `db:"delivery_address" json:"delivery_address"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	PaymentStatus   PaymentStatus   `db:"payment_status" json:"payment_status"`
	Notes           string          `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	ShippedAt       *time.Time      `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	Items           []OrderItem     `db:"-" json:"items"`
}

type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   *int64          `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	ProductSKU  string          `db:"product_sku" json:"product_sku"`
	Quantity    int32           `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`
}

// Recalculate sets TotalPrice from Quantity and UnitPrice.
func (i *OrderItem) Recalculate() {
	i.UnitPrice = i.UnitPrice.Round(2)
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

func (o *Order) ItemsSubtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.TotalPrice)
	}
	return total
}

func (o *Order) ApplyTotals(t Totals) {
	o.Subtotal = t.Subtotal
	o.ShippingCost = t.ShippingCost
	o.Discount = t.Discount
	o.TotalAmount = t.TotalAmount
}

// ApplyStatus moves the order to next and stamps shipped/delivered times.
// Delivering a cash-on-delivery order marks its payment completed.
func (o *Order) ApplyStatus(next OrderStatus, now time.Time) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if !o.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	if o.Status == next {
		return nil
	}

	o.Status = next
	switch next {
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
		if o.PaymentMethod == PaymentMethodCOD {
			o.PaymentStatus = PaymentStatusCompleted
		}
	case OrderStatusCancelled:
		if o.PaymentStatus == PaymentStatusCompleted {
			o.PaymentStatus = PaymentStatusRefunded
		}
	}

	return nil
}

// FormatOrderNumber renders ORD-<unix millis>-<seq in base36>.
func FormatOrderNumber(now time.Time, seq int64) string {
	return fmt.Sprintf(
		"ORD-%d-%s",
		now.UnixMilli(),
		strings.ToUpper(strconv.FormatInt(seq, 36)),
	)
}

type OrderItemInput struct {
	ProductID   *int64          `json:"product_id"`
	ProductName string          `json:"product_name" validate:"required"`
	ProductSKU  string          `json:"product_sku"`
	Quantity    int32           `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type CreateOrderInput struct {
	IdempotencyKey  string           `json:"-"`
	UserID          *int64           `json:"user_id"`
	SessionID       *string          `json:"session_id"`
	CartID          *int64           `json:"cart_id"`
	CustomerName    string           `json:"customer_name" validate:"required,max=200"`
	CustomerEmail   string           `json:"customer_email" validate:"required,email"`
	CustomerPhone   string           `json:"customer_phone" validate:"required,max=50"`
	BillingAddress  Address          `json:"billing_address"`
	DeliveryAddress Address          `json:"delivery_address"`
	PaymentMethod   string           `json:"payment_method" validate:"omitempty,oneof=cash-on-delivery"`
	PromoCode       string           `json:"promo_code" validate:"max=50"`
	Notes           string           `json:"notes" validate:"max=2000"`
	Items           []OrderItemInput `json:"items" validate:"required,min=1,dive"`
}

type OrderFilter struct {
	UserID *int64
	Status *OrderStatus
	Limit  int
	Offset int
}

type UpdateOrderStatusInput struct {
	Status        *OrderStatus   `json:"status"`
	PaymentStatus *PaymentStatus `json:"payment_status"`
}
