package cartclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sakashimaa/ravolux/internal/cartclient"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestHTTPAPI_CartRoundTrip(t *testing.T) {
	var gotAuth string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/carts", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["session_id"] != "sess-1" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_request", "message": "session_id", "statusCode": 400})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"cart_id": 9}})
	})
	mux.HandleFunc("GET /api/carts/9", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Session-ID") != "sess-1" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found", "message": "cart not found", "statusCode": 404})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"id":         9,
			"session_id": "sess-1",
			"items": []map[string]any{
				{"id": 1, "product_id": 3, "quantity": 2, "price_at_time": "129.99"},
			},
		}})
	})
	mux.HandleFunc("PUT /api/carts/items/1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": nil, "message": "Item removed from cart"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	storage := cartclient.NewMemoryStorage()
	require.NoError(t, storage.Set(cartclient.KeySessionID, "sess-1"))

	anonymous := cartclient.NewHTTPAPI(srv.URL, zap.NewNop())
	_, err := anonymous.GetCart(context.Background(), 9)
	var apiErr *cartclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	api := cartclient.NewHTTPAPI(
		srv.URL,
		zap.NewNop(),
		cartclient.WithTokenSource(func() string { return "jwt" }),
		cartclient.WithSessionSource(cartclient.StorageSessionSource(storage)),
	)
	ctx := context.Background()

	owner, err := domain.AnonymousOwner("sess-1")
	require.NoError(t, err)

	cartID, err := api.GetOrCreateCart(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(9), cartID)
	assert.Equal(t, "Bearer jwt", gotAuth)

	cart, err := api.GetCart(ctx, cartID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, decimal.RequireFromString("259.98").Equal(cart.Subtotal()))
	sid, ok := cart.Owner.SessionID()
	assert.True(t, ok)
	assert.Equal(t, "sess-1", sid)

	item, err := api.UpdateItem(ctx, 1, 0)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestHTTPAPI_CreateOrderSendsIdempotencyKey(t *testing.T) {
	var gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{
			"id":           5,
			"order_number": "ORD-1700000000000-5",
			"total_amount": "250.00",
		}})
	}))
	defer srv.Close()

	api := cartclient.NewHTTPAPI(srv.URL, zap.NewNop())
	order, err := api.CreateOrder(context.Background(), &domain.CreateOrderInput{}, "key-1")
	require.NoError(t, err)

	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "ORD-1700000000000-5", order.OrderNumber)
	assert.True(t, decimal.NewFromInt(250).Equal(order.TotalAmount))
}

func TestHTTPAPI_ErrorEnvelopeBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "validation_error",
			"message":    "validation failed",
			"statusCode": 400,
			"fields":     map[string]string{"items": "items is required"},
		})
	}))
	defer srv.Close()

	api := cartclient.NewHTTPAPI(srv.URL, zap.NewNop())
	_, err := api.CreateOrder(context.Background(), &domain.CreateOrderInput{}, "")

	var apiErr *cartclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation_error", apiErr.Code)
	assert.Equal(t, "items is required", apiErr.Fields["items"])
	assert.False(t, apiErr.Temporary())
}

func TestHTTPAPI_BreakerOpensOnServerErrorsOnly(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		code := int(status.Load())
		writeJSON(w, code, map[string]any{"error": "x", "message": "x", "statusCode": code})
	}))
	defer srv.Close()

	api := cartclient.NewHTTPAPI(srv.URL, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := api.GetCart(ctx, 1)
		var apiErr *cartclient.APIError
		require.ErrorAs(t, err, &apiErr)
	}

	status.Store(http.StatusInternalServerError)

	var (
		opened bool
		before int32
	)
	for i := 0; i < 20 && !opened; i++ {
		before = hits.Load()
		_, err := api.GetCart(ctx, 1)
		opened = errors.Is(err, gobreaker.ErrOpenState)
	}

	require.True(t, opened)
	assert.Equal(t, before, hits.Load())
}

func TestHTTPAPI_CanceledContext(t *testing.T) {
	api := cartclient.NewHTTPAPI("http://127.0.0.1:1", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := api.GetCart(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
