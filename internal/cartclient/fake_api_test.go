package cartclient_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/shopspring/decimal"
)

var errAPIDown = errors.New("store api unavailable")

// fakeAPI is an in-memory store API that merges lines by product id like
// the real server.
type fakeAPI struct {
	mu sync.Mutex

	prices map[int64]decimal.Decimal
	owners map[string]int64
	carts  map[int64]*domain.Cart

	nextCartID  int64
	nextItemID  int64
	nextOrderID int64

	ordersByKey map[string]*domain.Order
	orderKeys   []string
	orders      []*domain.CreateOrderInput

	failGetOrCreate error
	failAdd         error
	failCreateOrder error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		prices: map[int64]decimal.Decimal{
			1: decimal.NewFromInt(100),
			2: decimal.NewFromInt(200),
			3: decimal.NewFromInt(300),
		},
		owners:      make(map[string]int64),
		carts:       make(map[int64]*domain.Cart),
		ordersByKey: make(map[string]*domain.Order),
	}
}

func (f *fakeAPI) GetOrCreateCart(_ context.Context, owner domain.Owner) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failGetOrCreate != nil {
		return 0, f.failGetOrCreate
	}

	if id, ok := f.owners[owner.String()]; ok {
		return id, nil
	}

	f.nextCartID++
	f.owners[owner.String()] = f.nextCartID
	f.carts[f.nextCartID] = &domain.Cart{ID: f.nextCartID, Owner: owner}

	return f.nextCartID, nil
}

func (f *fakeAPI) GetCart(_ context.Context, cartID int64) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cart, ok := f.carts[cartID]
	if !ok {
		return nil, fmt.Errorf("cart %d not found", cartID)
	}

	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	return &cp, nil
}

func (f *fakeAPI) AddItem(_ context.Context, cartID int64, input domain.AddCartItemInput) (*domain.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAdd != nil {
		return nil, f.failAdd
	}

	cart := f.carts[cartID]
	for i := range cart.Items {
		if cart.Items[i].ProductID == input.ProductID {
			cart.Items[i].Quantity += input.Quantity
			item := cart.Items[i]
			return &item, nil
		}
	}

	f.nextItemID++
	item := domain.CartItem{
		ID:          f.nextItemID,
		CartID:      cartID,
		ProductID:   input.ProductID,
		Quantity:    input.Quantity,
		PriceAtTime: f.prices[input.ProductID],
		ProductName: fmt.Sprintf("Product %d", input.ProductID),
	}
	cart.Items = append(cart.Items, item)

	return &item, nil
}

func (f *fakeAPI) UpdateItem(ctx context.Context, itemID int64, quantity int32) (*domain.CartItem, error) {
	if quantity <= 0 {
		return nil, f.RemoveItem(ctx, itemID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, cart := range f.carts {
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items[i].Quantity = quantity
				item := cart.Items[i]
				return &item, nil
			}
		}
	}

	return nil, fmt.Errorf("item %d not found", itemID)
}

func (f *fakeAPI) RemoveItem(_ context.Context, itemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, cart := range f.carts {
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
				return nil
			}
		}
	}

	return fmt.Errorf("item %d not found", itemID)
}

func (f *fakeAPI) CreateOrder(_ context.Context, input *domain.CreateOrderInput, key string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.orderKeys = append(f.orderKeys, key)

	if f.failCreateOrder != nil {
		return nil, f.failCreateOrder
	}

	if order, ok := f.ordersByKey[key]; ok {
		return order, nil
	}

	f.nextOrderID++
	order := &domain.Order{
		ID:          f.nextOrderID,
		OrderNumber: fmt.Sprintf("ORD-1700000000000-%d", f.nextOrderID),
		UserID:      input.UserID,
		SessionID:   input.SessionID,
		Status:      domain.OrderStatusPending,
	}

	for _, line := range input.Items {
		item := domain.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		}
		item.Recalculate()
		order.Items = append(order.Items, item)
	}
	order.ApplyTotals(domain.DefaultPricingRules().CalculateTotals(order.ItemsSubtotal(), input.PromoCode))

	if input.CartID != nil {
		if cart, ok := f.carts[*input.CartID]; ok {
			cart.Items = nil
		}
	}

	f.ordersByKey[key] = order
	f.orders = append(f.orders, input)

	return order, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}
