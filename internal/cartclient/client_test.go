package cartclient_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/sakashimaa/ravolux/internal/cartclient"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func product(id int64, price int64) domain.Product {
	return domain.Product{
		ID:    id,
		Name:  "Product " + strconv.FormatInt(id, 10),
		Price: decimal.NewFromInt(price),
	}
}

func newClient(t *testing.T) (*cartclient.Client, *fakeAPI, *cartclient.MemoryStorage, *recordingNotifier) {
	t.Helper()

	api := newFakeAPI()
	storage := cartclient.NewMemoryStorage()
	notifier := &recordingNotifier{}

	return cartclient.NewClient(api, storage, notifier, zap.NewNop()), api, storage, notifier
}

func TestClient_InitAnonymousPersistsSessionAndCart(t *testing.T) {
	ctx := context.Background()
	client, _, storage, _ := newClient(t)

	require.NoError(t, client.Init(ctx, nil))

	sessionID, ok := storage.Get(cartclient.KeySessionID)
	require.True(t, ok)
	require.NotEmpty(t, sessionID)

	cartID, ok := storage.Get(cartclient.KeyCartID)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(client.Cart().ID, 10), cartID)
	assert.False(t, client.Loading())

	first := client.Cart().ID
	require.NoError(t, client.Init(ctx, nil))

	again, _ := storage.Get(cartclient.KeySessionID)
	assert.Equal(t, sessionID, again)
	assert.Equal(t, first, client.Cart().ID)
}

func TestClient_InitWithUserSwitchesCart(t *testing.T) {
	ctx := context.Background()
	client, _, storage, _ := newClient(t)

	require.NoError(t, client.Init(ctx, nil))
	anonymous := client.Cart().ID

	require.NoError(t, client.Init(ctx, &cartclient.AuthUser{ID: 7, Email: "ana@example.com"}))
	assert.NotEqual(t, anonymous, client.Cart().ID)

	stored, _ := storage.Get(cartclient.KeyCartID)
	assert.Equal(t, strconv.FormatInt(client.Cart().ID, 10), stored)
}

func TestClient_InitFailureLeavesNoCart(t *testing.T) {
	client, api, _, notifier := newClient(t)
	api.failGetOrCreate = errAPIDown

	err := client.Init(context.Background(), nil)
	require.ErrorIs(t, err, errAPIDown)

	assert.Nil(t, client.Cart())
	assert.False(t, client.Loading())
	assert.Equal(t, []string{"Failed to load cart"}, notifier.errors)
}

func TestClient_MutationsRequireInit(t *testing.T) {
	ctx := context.Background()
	client, _, _, notifier := newClient(t)

	assert.ErrorIs(t, client.AddItem(ctx, product(1, 100), 1), cartclient.ErrCartNotInitialized)
	assert.ErrorIs(t, client.UpdateItem(ctx, 1, 2), cartclient.ErrCartNotInitialized)
	assert.ErrorIs(t, client.RemoveItem(ctx, 1), cartclient.ErrCartNotInitialized)
	assert.Len(t, notifier.errors, 3)
}

func TestClient_AddSameProductMergesLine(t *testing.T) {
	ctx := context.Background()
	client, _, _, notifier := newClient(t)
	require.NoError(t, client.Init(ctx, nil))

	require.NoError(t, client.AddItem(ctx, product(2, 200), 1))
	require.NoError(t, client.AddItem(ctx, product(2, 200), 2))

	items := client.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int32(3), items[0].Quantity)
	assert.Equal(t, 3, client.ItemCount())
	assert.True(t, decimal.NewFromInt(600).Equal(client.Subtotal()))
	assert.True(t, decimal.NewFromInt(600).Equal(client.LineSubtotal(items[0])))
	assert.Len(t, notifier.successes, 2)
}

func TestClient_FailedAddKeepsLocalState(t *testing.T) {
	ctx := context.Background()
	client, api, _, notifier := newClient(t)
	require.NoError(t, client.Init(ctx, nil))
	require.NoError(t, client.AddItem(ctx, product(1, 100), 1))

	api.failAdd = errAPIDown
	err := client.AddItem(ctx, product(3, 300), 1)
	require.ErrorIs(t, err, errAPIDown)

	assert.Len(t, client.Items(), 1)
	assert.Equal(t, 1, client.ItemCount())
	assert.Equal(t, []string{"Failed to add item to cart"}, notifier.errors)
}

func TestClient_UpdateToZeroRemovesLine(t *testing.T) {
	ctx := context.Background()
	client, api, _, _ := newClient(t)
	require.NoError(t, client.Init(ctx, nil))
	require.NoError(t, client.AddItem(ctx, product(1, 100), 2))

	itemID := client.Items()[0].ID
	require.NoError(t, client.UpdateItem(ctx, itemID, 0))

	assert.Empty(t, client.Items())

	remote, err := api.GetCart(ctx, client.Cart().ID)
	require.NoError(t, err)
	assert.Empty(t, remote.Items)
}

func TestClient_DerivedValuesFollowEveryMutation(t *testing.T) {
	ctx := context.Background()
	client, api, _, _ := newClient(t)
	require.NoError(t, client.Init(ctx, nil))

	check := func() {
		t.Helper()

		var count int
		sum := decimal.Zero
		for _, item := range client.Items() {
			count += int(item.Quantity)
			sum = sum.Add(item.PriceAtTime.Mul(decimal.NewFromInt32(item.Quantity)))
		}
		assert.Equal(t, count, client.ItemCount())
		assert.True(t, sum.Equal(client.Subtotal()), "subtotal %s != %s", client.Subtotal(), sum)

		remote, err := api.GetCart(ctx, client.Cart().ID)
		require.NoError(t, err)
		assert.Equal(t, remote.ItemCount(), client.ItemCount())
	}

	require.NoError(t, client.AddItem(ctx, product(1, 100), 2))
	check()
	require.NoError(t, client.AddItem(ctx, product(2, 200), 1))
	check()
	require.NoError(t, client.AddItem(ctx, product(1, 100), 3))
	check()

	lines := client.Items()
	require.NoError(t, client.UpdateItem(ctx, lines[1].ID, 4))
	check()
	require.NoError(t, client.RemoveItem(ctx, lines[0].ID))
	check()
	require.NoError(t, client.UpdateItem(ctx, lines[1].ID, -1))
	check()

	assert.Zero(t, client.ItemCount())
}

func TestClient_ResetClearsCartID(t *testing.T) {
	ctx := context.Background()
	client, _, storage, _ := newClient(t)
	require.NoError(t, client.Init(ctx, nil))

	require.NoError(t, client.Reset())

	_, ok := storage.Get(cartclient.KeyCartID)
	assert.False(t, ok)
	assert.Nil(t, client.Cart())

	_, ok = storage.Get(cartclient.KeySessionID)
	assert.True(t, ok)
}
