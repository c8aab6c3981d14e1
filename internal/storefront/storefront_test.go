package storefront

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/apiclient"
	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/mockapi"
	"github.com/example/ec-storefront/internal/orders"
	"github.com/example/ec-storefront/internal/session"
	"github.com/example/ec-storefront/internal/storage"
	"github.com/example/ec-storefront/internal/wishlist"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Send(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) actions(eventType string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e.Action)
		}
	}
	return out
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type env struct {
	srv   *mockapi.Server
	ids   []string
	cfg   *config.Config
	store *storage.MemoryStorage
}

func setup(t *testing.T) *env {
	t.Helper()
	srv := mockapi.New()
	ids, err := srv.Seed()
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.APIURL = ts.URL + "/api"
	return &env{srv: srv, ids: ids, cfg: cfg, store: storage.NewMemoryStorage()}
}

func (e *env) open(t *testing.T, opts Options) *App {
	t.Helper()
	opts.Storage = e.store
	app, err := New(context.Background(), e.cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func login(t *testing.T, app *App) {
	t.Helper()
	res := app.Session.Login(context.Background(), session.Credentials{Email: mockapi.DemoEmail, Password: mockapi.DemoPassword})
	require.True(t, res.Success, res.Error)
	app.Cart.Wait()
	app.Wishlist.Wait()
}

var address = orders.ShippingAddress{FullName: "Demo Customer", Street: "1 Main St", City: "Springfield", ZipCode: "12345", Country: "US"}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CartCachePolicy = "sometimes"

	_, err := New(context.Background(), cfg, Options{Storage: storage.NewMemoryStorage()})
	assert.Error(t, err)
}

func TestStart_WithoutPersistedSession(t *testing.T) {
	e := setup(t)
	app := e.open(t, Options{})

	res := app.Start(context.Background())

	require.True(t, res.Success)
	assert.False(t, app.Session.IsAuthenticated())
	assert.Nil(t, app.Cart.Snapshot())
	assert.Nil(t, app.Wishlist.Snapshot())
}

func TestLogin_LoadsDependentStores(t *testing.T) {
	e := setup(t)
	app := e.open(t, Options{})
	app.Start(context.Background())

	login(t, app)

	require.NotNil(t, app.Cart.Snapshot())
	require.NotNil(t, app.Wishlist.Snapshot())
	assert.Equal(t, 1, e.srv.Calls("GET /cart"))
	assert.Equal(t, 1, e.srv.Calls("GET /wishlist"))
}

func TestStart_RestoresPersistedSession(t *testing.T) {
	e := setup(t)
	first := e.open(t, Options{})
	first.Start(context.Background())
	login(t, first)
	require.True(t, first.Cart.AddItem(context.Background(), e.ids[4], 2, nil).Success)
	require.NoError(t, first.Close())

	second := e.open(t, Options{})
	res := second.Start(context.Background())

	require.True(t, res.Success, res.Error)
	assert.True(t, second.Session.IsAuthenticated())
	assert.Equal(t, 2, second.Cart.ItemCount())
}

func TestGuestCart_SurvivesRestart(t *testing.T) {
	e := setup(t)
	first := e.open(t, Options{})
	require.True(t, first.Cart.AddItem(context.Background(), e.ids[4], 1, nil).Success)
	require.NoError(t, first.Close())

	second := e.open(t, Options{})
	res := second.Cart.Load(context.Background())

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.Data.ItemCount())
}

func TestCheckout(t *testing.T) {
	e := setup(t)
	rec := &recorder{}
	app := e.open(t, Options{Sinks: []events.Sink{rec}})
	app.Start(context.Background())
	login(t, app)
	ctx := context.Background()
	require.True(t, app.Cart.AddItem(ctx, e.ids[0], 1, &cart.Variant{Size: "L"}).Success)

	res := app.Checkout(ctx, orders.CreateRequest{ShippingAddress: address, PaymentMethod: "card"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "269.99", res.Data.TotalPrice.StringFixed(2))
	assert.Equal(t, 0, app.Cart.ItemCount())
	assert.Contains(t, rec.types(), events.OrderPlaced)
}

func TestCheckout_RequiresLogin(t *testing.T) {
	e := setup(t)
	app := e.open(t, Options{})

	res := app.Checkout(context.Background(), orders.CreateRequest{ShippingAddress: address, PaymentMethod: "card"})

	assert.False(t, res.Success)
	assert.Equal(t, msgNotAuthenticated, res.Error)
	assert.Zero(t, e.srv.Calls("POST /orders"))
}

func TestCheckout_EmptyCart(t *testing.T) {
	e := setup(t)
	app := e.open(t, Options{})
	app.Start(context.Background())
	login(t, app)

	res := app.Checkout(context.Background(), orders.CreateRequest{ShippingAddress: address, PaymentMethod: "card"})

	assert.False(t, res.Success)
	assert.Equal(t, "Cart is empty", res.Error)
}

func TestSessionExpiry_ClearsStoresAndNotifies(t *testing.T) {
	e := setup(t)
	var expired atomic.Int32
	app := e.open(t, Options{OnSessionExpired: func() { expired.Add(1) }})
	app.Start(context.Background())
	login(t, app)

	e.srv.RevokeSessions()
	res := app.Cart.Load(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, apiclient.SessionExpiredMessage, res.Error)
	assert.Equal(t, int32(1), expired.Load())
	assert.False(t, app.Session.IsAuthenticated())
	assert.Nil(t, app.Wishlist.Snapshot())
}

func TestSessionEvents(t *testing.T) {
	e := setup(t)
	rec := &recorder{}
	app := e.open(t, Options{Sinks: []events.Sink{rec}})
	app.Start(context.Background())

	login(t, app)
	app.Session.Logout(context.Background())

	assert.Equal(t, []string{"login", "logout"}, rec.actions(events.SessionChanged))
}

func TestShareURL(t *testing.T) {
	e := setup(t)
	e.cfg.PublicOrigin = "https://shop.example"
	app := e.open(t, Options{})
	app.Start(context.Background())
	login(t, app)
	ctx := context.Background()
	require.True(t, app.Wishlist.AddItem(ctx, e.ids[2], "", wishlist.PriorityHigh).Success)

	share := app.Wishlist.GenerateShareToken(ctx)

	require.True(t, share.Success, share.Error)
	assert.Equal(t, "https://shop.example/wishlist/shared/"+share.Data.ShareToken, app.ShareURL())
}
