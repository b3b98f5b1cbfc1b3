package cartclient

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client keeps a local copy of the shopper's cart in sync with the API.
// Local state changes only after the API confirmed the mutation.
type Client struct {
	api      API
	storage  Storage
	notifier Notifier
	logger   *zap.Logger

	mu      sync.RWMutex
	cart    *domain.Cart
	user    *AuthUser
	loading bool
}

func NewClient(api API, storage Storage, notifier Notifier, logger *zap.Logger) *Client {
	return &Client{
		api:      api,
		storage:  storage,
		notifier: notifier,
		logger:   logger,
	}
}

// Init resolves the cart for user, or for the anonymous session when user
// is nil, and loads it. Calling it again with another user re-initialises.
func (c *Client) Init(ctx context.Context, user *AuthUser) error {
	c.mu.Lock()
	c.loading = true
	c.user = user
	c.mu.Unlock()

	cart, err := c.load(ctx, user)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.loading = false
	c.cart = cart

	if err != nil {
		c.logger.Error("Failed to initialize cart", zap.Error(err))
		c.notifier.Error("Failed to load cart")
		return err
	}

	return nil
}

func (c *Client) load(ctx context.Context, user *AuthUser) (*domain.Cart, error) {
	sessionID, err := c.sessionID()
	if err != nil {
		return nil, err
	}

	var owner domain.Owner
	if user != nil && user.ID > 0 {
		owner, err = domain.UserOwner(user.ID)
	} else {
		owner, err = domain.AnonymousOwner(sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve cart owner: %w", err)
	}

	cartID, err := c.api.GetOrCreateCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	if prev, ok := storedCartID(c.storage); ok && prev != cartID {
		c.logger.Debug("Cart changed", zap.Int64("previous", prev), zap.Int64("cart_id", cartID))
	}

	if err := c.storage.Set(KeyCartID, strconv.FormatInt(cartID, 10)); err != nil {
		return nil, fmt.Errorf("persist cart id: %w", err)
	}

	cart, err := c.api.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	cart.ID = cartID

	return cart, nil
}

// SessionID returns the persisted anonymous session id, creating one on
// first use.
func (c *Client) SessionID() (string, error) {
	return c.sessionID()
}

func (c *Client) sessionID() (string, error) {
	if id, ok := c.storage.Get(KeySessionID); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	if err := c.storage.Set(KeySessionID, id); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}

	return id, nil
}

func (c *Client) currentCartID() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cart == nil {
		return 0, ErrCartNotInitialized
	}
	return c.cart.ID, nil
}

func (c *Client) AddItem(ctx context.Context, product domain.Product, quantity int32) error {
	cartID, err := c.currentCartID()
	if err != nil {
		c.notifier.Error("Cart is not ready yet")
		return err
	}

	price := product.Price
	item, err := c.api.AddItem(ctx, cartID, domain.AddCartItemInput{
		ProductID:   product.ID,
		Quantity:    quantity,
		PriceAtTime: &price,
	})
	if err != nil {
		c.logger.Error("Failed to add item", zap.Int64("product_id", product.ID), zap.Error(err))
		c.notifier.Error("Failed to add item to cart")
		return err
	}

	if item.ProductName == "" {
		item.ProductName = product.Name
		item.ProductSKU = product.SKU
		item.ImageURL = product.ImageURL
		item.Stock = product.StockQuantity
	}

	c.mu.Lock()
	if c.cart != nil && c.cart.ID == cartID {
		c.cart.Items = upsertItem(c.cart.Items, *item)
	}
	c.mu.Unlock()

	c.notifier.Success(product.Name + " added to cart")

	return nil
}

// UpdateItem sets the quantity of a line; quantity <= 0 removes it.
func (c *Client) UpdateItem(ctx context.Context, itemID int64, quantity int32) error {
	if quantity <= 0 {
		return c.RemoveItem(ctx, itemID)
	}

	if _, err := c.currentCartID(); err != nil {
		c.notifier.Error("Cart is not ready yet")
		return err
	}

	item, err := c.api.UpdateItem(ctx, itemID, quantity)
	if err != nil {
		c.logger.Error("Failed to update item", zap.Int64("item_id", itemID), zap.Error(err))
		c.notifier.Error("Failed to update cart")
		return err
	}

	c.mu.Lock()
	if c.cart != nil {
		if item == nil {
			c.cart.Items = removeItem(c.cart.Items, itemID)
		} else {
			for i := range c.cart.Items {
				if c.cart.Items[i].ID == itemID {
					c.cart.Items[i].Quantity = item.Quantity
				}
			}
		}
	}
	c.mu.Unlock()

	return nil
}

func (c *Client) RemoveItem(ctx context.Context, itemID int64) error {
	if _, err := c.currentCartID(); err != nil {
		c.notifier.Error("Cart is not ready yet")
		return err
	}

	if err := c.api.RemoveItem(ctx, itemID); err != nil {
		c.logger.Error("Failed to remove item", zap.Int64("item_id", itemID), zap.Error(err))
		c.notifier.Error("Failed to remove item")
		return err
	}

	c.mu.Lock()
	if c.cart != nil {
		c.cart.Items = removeItem(c.cart.Items, itemID)
	}
	c.mu.Unlock()

	c.notifier.Success("Item removed from cart")

	return nil
}

// Reset forgets the current cart, typically after a successful checkout.
func (c *Client) Reset() error {
	c.mu.Lock()
	c.cart = nil
	c.mu.Unlock()

	return c.storage.Delete(KeyCartID)
}

// Cart returns a copy of the local cart, or nil before Init succeeded.
func (c *Client) Cart() *domain.Cart {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cart == nil {
		return nil
	}

	cp := *c.cart
	cp.Items = append([]domain.CartItem(nil), c.cart.Items...)
	return &cp
}

func (c *Client) Items() []domain.CartItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cart == nil {
		return nil
	}
	return append([]domain.CartItem(nil), c.cart.Items...)
}

func (c *Client) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cart == nil {
		return 0
	}
	return c.cart.ItemCount()
}

func (c *Client) Subtotal() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cart == nil {
		return decimal.Zero
	}
	return c.cart.Subtotal()
}

func (c *Client) LineSubtotal(item domain.CartItem) decimal.Decimal {
	return item.LineTotal()
}

func (c *Client) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.loading
}

func (c *Client) User() *AuthUser {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.user
}

func upsertItem(items []domain.CartItem, item domain.CartItem) []domain.CartItem {
	for i := range items {
		if items[i].ID == item.ID || items[i].ProductID == item.ProductID {
			items[i].ID = item.ID
			items[i].Quantity = item.Quantity
			items[i].PriceAtTime = item.PriceAtTime
			return items
		}
	}
	return append(items, item)
}

func removeItem(items []domain.CartItem, itemID int64) []domain.CartItem {
	out := items[:0]
	for _, item := range items {
		if item.ID != itemID {
			out = append(out, item)
		}
	}
	return out
}
