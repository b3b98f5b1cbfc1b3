package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        int64      `db:"id" json:"id"`
	Owner     Owner      `db:"-" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	Items     []CartItem `db:"-" json:"items"`
}

type CartItem struct {
	ID          int64           `db:"id" json:"id"`
	CartID      int64           `db:"cart_id" json:"cart_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	Quantity    int32           `db:"quantity" json:"quantity"`
	PriceAtTime decimal.Decimal `db:"price_at_time" json:"price_at_time"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`

	ProductName string `db:"product_name" json:"product_name"`
	ProductSKU  string `db:"product_sku" json:"product_sku"`
	ImageURL    string `db:"image_url" json:"image_url"`
	Stock       int64  `db:"stock_quantity" json:"stock_quantity"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt32(i.Quantity))
}

func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += int(item.Quantity)
	}
	return count
}

func (c *Cart) Subtotal() decimal.Decimal {
	return Subtotal(c.Items)
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Subtotal sums price_at_time × quantity over the given lines.
func Subtotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

type cartJSON struct {
	ID        int64      `json:"id"`
	UserID    *int64     `json:"user_id"`
	SessionID *string    `json:"session_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Items     []CartItem `json:"items"`
}

// MarshalJSON flattens the owner into the nullable user_id/session_id pair.
func (c Cart) MarshalJSON() ([]byte, error) {
	userID, sessionID := c.Owner.Columns()

	items := c.Items
	if items == nil {
		items = []CartItem{}
	}

	return json.Marshal(cartJSON{
		ID:        c.ID,
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Items:     items,
	})
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var raw cartJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	owner, err := ParseOwner(raw.UserID, raw.SessionID)
	if err != nil {
		owner = Owner{}
	}

	*c = Cart{
		ID:        raw.ID,
		Owner:     owner,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
		Items:     raw.Items,
	}

	return nil
}

type AddCartItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity" validate:"required,gt=0"`
	// PriceAtTime is what the client saw; the stored snapshot is always read
	// from the product row.
	PriceAtTime *decimal.Decimal `json:"price_at_time,omitempty"`
}

type UpdateCartItemInput struct {
	Quantity int32 `json:"quantity"`
}
