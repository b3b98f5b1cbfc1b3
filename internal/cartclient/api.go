package cartclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 10 * time.Second
	headerIdempotencyKey  = "Idempotency-Key"
	headerSessionID       = "X-Session-ID"
)

// API is the subset of the store HTTP API the cart client talks to.
type API interface {
	GetOrCreateCart(ctx context.Context, owner domain.Owner) (int64, error)
	GetCart(ctx context.Context, cartID int64) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID int64, input domain.AddCartItemInput) (*domain.CartItem, error)
	// UpdateItem returns a nil item when the server removed the line.
	UpdateItem(ctx context.Context, itemID int64, quantity int32) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, itemID int64) error
	CreateOrder(ctx context.Context, input *domain.CreateOrderInput, idempotencyKey string) (*domain.Order, error)
}

type HTTPAPI struct {
	baseURL string
	timeout time.Duration
	token   func() string
	session func() string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

type HTTPOption func(*HTTPAPI)

func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(a *HTTPAPI) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithTokenSource sets where the bearer token is read from before each call.
func WithTokenSource(fn func() string) HTTPOption {
	return func(a *HTTPAPI) {
		a.token = fn
	}
}

// StorageTokenSource reads the token persisted under KeyAuthToken.
func StorageTokenSource(s Storage) func() string {
	return func() string {
		tok, _ := s.Get(KeyAuthToken)
		return tok
	}
}

// WithSessionSource sets where the anonymous session id is read from. The
// server only serves a session cart to requests carrying its id.
func WithSessionSource(fn func() string) HTTPOption {
	return func(a *HTTPAPI) {
		a.session = fn
	}
}

// StorageSessionSource reads the session id persisted under KeySessionID.
func StorageSessionSource(s Storage) func() string {
	return func() string {
		sid, _ := s.Get(KeySessionID)
		return sid
	}
}

func NewHTTPAPI(baseURL string, logger *zap.Logger, opts ...HTTPOption) *HTTPAPI {
	a := &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultRequestTimeout,
		token:   func() string { return "" },
		session: func() string { return "" },
		logger:  logger,
	}

	for _, opt := range opts {
		opt(a)
	}

	// 4xx answers mean the API is healthy and the request was wrong.
	a.breaker = utils.NewBreaker("store-api", logger, func(err error) bool {
		if err == nil {
			return true
		}
		var apiErr *APIError
		return errors.As(err, &apiErr) && !apiErr.Temporary()
	})

	return a
}

type envelope struct {
	Success    bool              `json:"success"`
	Data       json.RawMessage   `json:"data"`
	Message    string            `json:"message"`
	Error      string            `json:"error"`
	StatusCode int               `json:"statusCode"`
	Fields     map[string]string `json:"fields"`
}

type cartOwnerRequest struct {
	UserID    *int64  `json:"user_id,omitempty"`
	SessionID *string `json:"session_id,omitempty"`
}

func (a *HTTPAPI) GetOrCreateCart(ctx context.Context, owner domain.Owner) (int64, error) {
	userID, sessionID := owner.Columns()

	var out struct {
		CartID int64 `json:"cart_id"`
	}
	if err := a.call(ctx, fiber.MethodPost, "/api/carts", cartOwnerRequest{UserID: userID, SessionID: sessionID}, nil, &out); err != nil {
		return 0, fmt.Errorf("get or create cart: %w", err)
	}

	return out.CartID, nil
}

func (a *HTTPAPI) GetCart(ctx context.Context, cartID int64) (*domain.Cart, error) {
	cart := new(domain.Cart)
	if err := a.call(ctx, fiber.MethodGet, fmt.Sprintf("/api/carts/%d", cartID), nil, nil, cart); err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

func (a *HTTPAPI) AddItem(ctx context.Context, cartID int64, input domain.AddCartItemInput) (*domain.CartItem, error) {
	item := new(domain.CartItem)
	if err := a.call(ctx, fiber.MethodPost, fmt.Sprintf("/api/carts/%d/items", cartID), input, nil, item); err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	return item, nil
}

func (a *HTTPAPI) UpdateItem(ctx context.Context, itemID int64, quantity int32) (*domain.CartItem, error) {
	var item *domain.CartItem
	body := domain.UpdateCartItemInput{Quantity: quantity}
	if err := a.call(ctx, fiber.MethodPut, fmt.Sprintf("/api/carts/items/%d", itemID), body, nil, &item); err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}

	return item, nil
}

func (a *HTTPAPI) RemoveItem(ctx context.Context, itemID int64) error {
	if err := a.call(ctx, fiber.MethodDelete, fmt.Sprintf("/api/carts/items/%d", itemID), nil, nil, nil); err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}

	return nil
}

func (a *HTTPAPI) CreateOrder(ctx context.Context, input *domain.CreateOrderInput, idempotencyKey string) (*domain.Order, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers[headerIdempotencyKey] = idempotencyKey
	}

	order := new(domain.Order)
	if err := a.call(ctx, fiber.MethodPost, "/api/orders", input, headers, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func (a *HTTPAPI) call(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := utils.ExecuteWithBreaker(a.breaker, func() (struct{}, error) {
		return struct{}{}, a.send(ctx, method, path, body, headers, out)
	})

	return err
}

func (a *HTTPAPI) send(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(a.baseURL + path)

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return fmt.Errorf("build request: %w", err)
	}

	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if tok := a.token(); tok != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+tok)
	}
	if sid := a.session(); sid != "" {
		agent.Set(headerSessionID, sid)
	}
	for k, v := range headers {
		agent.Set(k, v)
	}
	if body != nil {
		agent.JSON(body)
	}
	agent.Timeout(timeout)

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %w", method, path, multierr.Combine(errs...))
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && status < fiber.StatusMultipleChoices {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if status >= fiber.StatusMultipleChoices {
		apiErr := &APIError{
			StatusCode: status,
			Code:       env.Error,
			Message:    env.Message,
			Fields:     env.Fields,
		}
		if apiErr.Temporary() {
			a.logger.Warn(
				"Store API request failed",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", status),
			)
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}

	return nil
}
