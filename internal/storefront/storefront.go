// Package storefront constructs the client stores, wires them to each other
// and owns their lifecycle. It is the single entry point a view layer uses.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/example/ec-storefront/internal/apiclient"
	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/orders"
	"github.com/example/ec-storefront/internal/result"
	"github.com/example/ec-storefront/internal/session"
	"github.com/example/ec-storefront/internal/storage"
	"github.com/example/ec-storefront/internal/wishlist"
)

const (
	msgCheckoutFailed   = "Checkout failed"
	msgNotAuthenticated = "Please log in to continue"
)

// Options overrides parts of the wiring, mainly for tests and the demo.
type Options struct {
	// HTTPClient replaces the default transport.
	HTTPClient *http.Client
	// Storage replaces the backend selected by the config. The App closes it.
	Storage storage.Storage
	// Sinks receive every event in addition to the Kafka sink.
	Sinks []events.Sink
	// OnSessionExpired runs after an expired session has been cleared,
	// typically to navigate to the login page.
	OnSessionExpired func()
}

// App holds the wired stores.
type App struct {
	Config   *config.Config
	Events   *events.Bus
	Session  *session.Store
	Cart     *cart.Store
	Wishlist *wishlist.Store
	Catalog  *catalog.Service
	Orders   *orders.Service

	storage     storage.Storage
	unsubscribe []func()
}

// New builds an App from cfg. Call Start before using auth-dependent state
// and Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := opts.Storage
	if store == nil {
		var err error
		if store, err = storage.Open(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
	}

	guestID, err := storage.GuestID(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load guest id: %w", err)
	}

	tokens := storage.NewTokenStore(store)
	client, err := apiclient.New(apiclient.Config{
		BaseURL:    cfg.APIURL,
		Timeout:    cfg.Timeout(),
		HTTPClient: opts.HTTPClient,
		Tokens:     tokens,
		GuestID:    guestID,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sinks := opts.Sinks
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(brokers, cfg.KafkaTopic))
		log.Printf("[Storefront] Forwarding activity to Kafka topic %s", cfg.KafkaTopic)
	}
	bus := events.NewBus(sinks...)

	sess := session.NewStore(client, tokens)
	client.SetRefresher(sess)
	client.OnSessionExpired(func() {
		sess.HandleExpired()
		if opts.OnSessionExpired != nil {
			opts.OnSessionExpired()
		}
	})

	cartStore := cart.NewStore(client, cart.Options{
		Cache:              store,
		ClearCacheOnLogout: cfg.CartCachePolicy == config.CartCacheClear,
		Currency:           cfg.CurrencyUnit(),
		Events:             bus,
	})
	cartStore.Hydrate(ctx)
	wishlistStore := wishlist.NewStore(client, cartStore, bus)

	app := &App{
		Config:   cfg,
		Events:   bus,
		Session:  sess,
		Cart:     cartStore,
		Wishlist: wishlistStore,
		Catalog:  catalog.NewService(client),
		Orders:   orders.NewService(client),
		storage:  store,
	}
	app.unsubscribe = append(app.unsubscribe,
		sess.Subscribe(cartStore.HandleSession),
		sess.Subscribe(wishlistStore.HandleSession),
		sess.Subscribe(func(s session.Session) {
			bus.Publish(context.Background(), events.New(events.SessionChanged, s.UserID, sessionAction(s), nil))
		}),
	)
	return app, nil
}

func sessionAction(s session.Session) string {
	if s.Authenticated {
		return "login"
	}
	return "logout"
}

// Start restores a persisted session and waits for the dependent stores to
// finish loading it.
func (a *App) Start(ctx context.Context) result.Result[session.Session] {
	res := a.Session.RestoreSession(ctx)
	a.Cart.Wait()
	a.Wishlist.Wait()
	return res
}

// Checkout places an order from the server-side cart and reloads the cart,
// which the server empties on success.
func (a *App) Checkout(ctx context.Context, req orders.CreateRequest) result.Result[*orders.Order] {
	sess := a.Session.Current()
	if !sess.Authenticated {
		return result.Fail[*orders.Order](msgNotAuthenticated)
	}
	if err := req.Validate(); err != nil {
		return result.Fail[*orders.Order](err.Error())
	}

	order, err := a.Orders.Create(ctx, req)
	if err != nil {
		log.Printf("[Storefront] Checkout failed: %v", err)
		return result.Fail[*orders.Order](apiclient.Message(err, msgCheckoutFailed))
	}
	if res := a.Cart.Load(ctx); !res.Success {
		log.Printf("[Storefront] Failed to reload cart after checkout: %s", res.Error)
	}

	a.Events.Publish(ctx, events.New(events.OrderPlaced, sess.UserID, "checkout", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       order.TotalPrice.String(),
	}))
	return result.OK(order)
}

// ShareURL is the public link of the user's wishlist under the configured origin.
func (a *App) ShareURL() string {
	return a.Wishlist.ShareURL(a.Config.PublicOrigin)
}

// Close stops background work and releases storage and sinks.
func (a *App) Close() error {
	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	a.Wishlist.Close()
	a.Cart.Close()
	return errors.Join(a.Events.Close(), a.storage.Close())
}
