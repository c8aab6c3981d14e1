package wishlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/apiclient"
	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/mockapi"
	"github.com/example/ec-storefront/internal/result"
	"github.com/example/ec-storefront/internal/session"
	"github.com/example/ec-storefront/internal/storage"
)

type env struct {
	srv      *mockapi.Server
	ids      []string
	tokens   *storage.TokenStore
	sess     *session.Store
	cart     *cart.Store
	wishlist *Store
}

func newEnv(t *testing.T, pub events.Publisher) *env {
	t.Helper()
	srv := mockapi.New()
	ids, err := srv.Seed()
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	tokens := storage.NewTokenStore(storage.NewMemoryStorage())
	client, err := apiclient.New(apiclient.Config{BaseURL: ts.URL + "/api", Tokens: tokens})
	require.NoError(t, err)

	sess := session.NewStore(client, tokens)
	client.SetRefresher(sess)
	client.OnSessionExpired(sess.HandleExpired)

	cartStore := cart.NewStore(client, cart.Options{})
	wl := NewStore(client, cartStore, pub)
	sess.Subscribe(cartStore.HandleSession)
	sess.Subscribe(wl.HandleSession)
	t.Cleanup(func() {
		wl.Close()
		cartStore.Close()
	})

	e := &env{srv: srv, ids: ids, tokens: tokens, sess: sess, cart: cartStore, wishlist: wl}
	res := sess.Login(context.Background(), session.Credentials{Email: mockapi.DemoEmail, Password: mockapi.DemoPassword})
	require.True(t, res.Success, res.Error)
	cartStore.Wait()
	wl.Wait()
	return e
}

func mustOK[T any](t *testing.T, r result.Result[T]) T {
	t.Helper()
	require.True(t, r.Success, r.Error)
	return r.Data
}

func TestLoadOnLogin(t *testing.T) {
	e := newEnv(t, nil)

	w := e.wishlist.Snapshot()
	require.NotNil(t, w)
	assert.Equal(t, "My Wishlist", w.Name)
	assert.Empty(t, w.Items)
	assert.False(t, e.wishlist.Loading())
}

func TestAddItem_DefaultsToMediumPriority(t *testing.T) {
	e := newEnv(t, nil)
	id := e.ids[0]

	mustOK(t, e.wishlist.AddItem(context.Background(), id, "birthday", ""))

	item, ok := e.wishlist.Item(id)
	require.True(t, ok)
	assert.Equal(t, PriorityMedium, item.Priority)
	assert.Equal(t, "birthday", item.Notes)
	assert.True(t, e.wishlist.IsInWishlist(id))
	assert.Equal(t, 1, e.wishlist.ItemCount())
}

func TestAddItem_Duplicate(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	mustOK(t, e.wishlist.AddItem(ctx, e.ids[0], "", PriorityHigh))
	before := e.wishlist.Snapshot()

	res := e.wishlist.AddItem(ctx, e.ids[0], "", PriorityLow)

	assert.False(t, res.Success)
	assert.Equal(t, "Product already in wishlist", res.Error)
	assert.Equal(t, before, e.wishlist.Snapshot())
}

func TestAddItem_InvalidPriorityNeverReachesServer(t *testing.T) {
	e := newEnv(t, nil)
	res := e.wishlist.AddItem(context.Background(), e.ids[0], "", "urgent")
	assert.False(t, res.Success)
	assert.Equal(t, 0, e.srv.Calls("POST /wishlist/items"))
}

func TestUpdateRemoveClear(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	mustOK(t, e.wishlist.AddItem(ctx, e.ids[0], "", PriorityLow))
	mustOK(t, e.wishlist.AddItem(ctx, e.ids[1], "", PriorityLow))

	high := PriorityHigh
	notes := "size M"
	mustOK(t, e.wishlist.UpdateItem(ctx, e.ids[0], ItemUpdate{Priority: &high, Notes: &notes}))
	item, _ := e.wishlist.Item(e.ids[0])
	assert.Equal(t, PriorityHigh, item.Priority)
	assert.Equal(t, "size M", item.Notes)

	byPriority := mustOK(t, e.wishlist.ItemsByPriority(ctx, PriorityHigh))
	require.Len(t, byPriority, 1)
	assert.Equal(t, e.ids[0], byPriority[0].Product.ID)

	mustOK(t, e.wishlist.RemoveItem(ctx, e.ids[1]))
	assert.False(t, e.wishlist.IsInWishlist(e.ids[1]))

	mustOK(t, e.wishlist.Clear(ctx))
	assert.Equal(t, 0, e.wishlist.ItemCount())
}

func TestCheckInWishlist(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	mustOK(t, e.wishlist.AddItem(ctx, e.ids[0], "", ""))

	assert.True(t, mustOK(t, e.wishlist.CheckInWishlist(ctx, e.ids[0])))
	assert.False(t, mustOK(t, e.wishlist.CheckInWishlist(ctx, e.ids[1])))
}

func TestUpdateSettings(t *testing.T) {
	e := newEnv(t, nil)
	name := "Winter"
	w := mustOK(t, e.wishlist.UpdateSettings(context.Background(), Settings{Name: &name}))
	assert.Equal(t, "Winter", w.Name)
}

// ============================================
// Move to cart
// ============================================

func TestMoveToCart_UpdatesBothStores(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	id := e.ids[0]
	mustOK(t, e.wishlist.AddItem(ctx, id, "", ""))

	moved := mustOK(t, e.wishlist.MoveToCart(ctx, id, 2, &cart.Variant{Size: "M"}))

	assert.False(t, e.wishlist.IsInWishlist(id))
	assert.True(t, e.cart.IsInCart(id, nil))
	assert.Equal(t, 2, e.cart.ItemQuantity(id, &cart.Variant{Size: "M"}))
	assert.Empty(t, moved.Wishlist.Items)
	assert.Equal(t, 1, e.srv.Calls("POST /wishlist/move-to-cart/{id}"))
	assert.Equal(t, 1, e.srv.Calls("GET /cart"), "cart is not refetched")
}

func TestMoveToCart_NeverObservablyHalfDone(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	id := e.ids[0]
	mustOK(t, e.wishlist.AddItem(ctx, id, "", ""))

	var stop atomic.Bool
	var violations atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			lock := e.cart.StateLock()
			lock.RLock()
			inWishlist := e.wishlist.wishlist.find(id) >= 0
			inCart := e.cart.SnapshotLocked().IsInCart(id, nil)
			lock.RUnlock()
			if inWishlist == inCart {
				violations.Add(1)
			}
		}
	}()

	mustOK(t, e.wishlist.MoveToCart(ctx, id, 1, nil))
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, violations.Load())
}

func TestMoveToCart_FailureChangesNeither(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	belt := e.ids[5]
	mustOK(t, e.wishlist.AddItem(ctx, belt, "", ""))

	res := e.wishlist.MoveToCart(ctx, belt, 10, nil)

	assert.False(t, res.Success)
	assert.Equal(t, "Insufficient stock. Only 3 available", res.Error)
	assert.True(t, e.wishlist.IsInWishlist(belt))
	assert.False(t, e.cart.IsInCart(belt, nil))
}

// ============================================
// Sharing
// ============================================

func TestShareAndRevoke(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	mustOK(t, e.wishlist.AddItem(ctx, e.ids[0], "", ""))

	share := mustOK(t, e.wishlist.GenerateShareToken(ctx))
	assert.True(t, share.IsPublic)
	assert.Equal(t, "https://shop.example/wishlist/shared/"+share.ShareToken, e.wishlist.ShareURL("https://shop.example/"))

	shared := mustOK(t, e.wishlist.GetSharedWishlist(ctx, share.ShareToken))
	require.Len(t, shared.Items, 1)

	w := mustOK(t, e.wishlist.RevokeShareToken(ctx))
	assert.False(t, w.IsPublic)
	assert.Empty(t, w.ShareToken)
	assert.Empty(t, e.wishlist.ShareURL("https://shop.example"))

	gone := e.wishlist.GetSharedWishlist(ctx, share.ShareToken)
	assert.False(t, gone.Success)
	assert.Equal(t, "Wishlist not found or is private", gone.Error)
}

func TestGetSharedWishlist_SentWithoutCredentials(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	share := mustOK(t, e.wishlist.GenerateShareToken(ctx))

	var auth atomic.Value
	auth.Store("unset")
	e.srv.Hook("GET /wishlist/shared/{token}", func(r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
	})

	mustOK(t, e.wishlist.GetSharedWishlist(ctx, share.ShareToken))
	assert.Equal(t, "", auth.Load())

	e.sess.Logout(ctx)
	mustOK(t, e.wishlist.GetSharedWishlist(ctx, share.ShareToken))
}

// ============================================
// Session changes
// ============================================

func TestLogoutDropsWishlist(t *testing.T) {
	bus := events.NewBus()
	var resets atomic.Int32
	bus.Subscribe(events.WishlistReset, func(context.Context, events.Event) { resets.Add(1) })

	e := newEnv(t, bus)
	ctx := context.Background()
	mustOK(t, e.wishlist.AddItem(ctx, e.ids[0], "", ""))

	e.sess.Logout(ctx)

	assert.Nil(t, e.wishlist.Snapshot())
	assert.Equal(t, 0, e.wishlist.ItemCount())
	assert.False(t, e.wishlist.IsInWishlist(e.ids[0]))
	assert.Equal(t, int32(1), resets.Load())
}
