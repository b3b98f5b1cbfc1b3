package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderEvents        = "order_events"
	TopicUserEvents         = "user_events"
	TopicNotificationEvents = "notification_events"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusUpdated = "OrderStatusUpdated"
	EventUserRegistered     = "UserRegistered"
	EventContactReceived    = "ContactReceived"
	EventEmailRequested     = "EmailRequested"
)

const (
	AggregateOrder   = "order"
	AggregateUser    = "user"
	AggregateContact = "contact"
	AggregateEmail   = "email"
)

type OrderItemEvent struct {
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	Quantity    int32           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type OrderCreatedEvent struct {
	OrderID         int64            `json:"order_id"`
	OrderNumber     string           `json:"order_number"`
	UserID          *int64           `json:"user_id,omitempty"`
	CustomerName    string           `json:"customer_name"`
	CustomerEmail   string           `json:"customer_email"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	ShippingCost    decimal.Decimal  `json:"shipping_cost"`
	Discount        decimal.Decimal  `json:"discount"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	PaymentMethod   string           `json:"payment_method"`
	DeliveryAddress Address          `json:"delivery_address"`
	Items           []OrderItemEvent `json:"items"`
}

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	items := make([]OrderItemEvent, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemEvent{
			ProductName: item.ProductName,
			ProductSKU:  item.ProductSKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}

	return OrderCreatedEvent{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		Subtotal:        o.Subtotal,
		ShippingCost:    o.ShippingCost,
		Discount:        o.Discount,
		TotalAmount:     o.TotalAmount,
		PaymentMethod:   o.PaymentMethod,
		DeliveryAddress: o.DeliveryAddress,
		Items:           items,
	}
}

type OrderStatusUpdatedEvent struct {
	OrderID        int64       `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	CustomerName   string      `json:"customer_name"`
	CustomerEmail  string      `json:"customer_email"`
	PreviousStatus OrderStatus `json:"previous_status"`
	Status         OrderStatus `json:"status"`
}

type UserRegisteredEvent struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

type ContactReceivedEvent struct {
	ContactID int64  `json:"contact_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Subject   string `json:"subject"`
}

// EmailRequestedEvent carries an explicit POST /api/email request to the
// notification consumer unchanged.
type EmailRequestedEvent struct {
	Type EmailTemplate   `json:"type"`
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}
