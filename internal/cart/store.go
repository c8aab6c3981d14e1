// Package cart keeps the client's cart in sync with the backend. The server
// response to every mutation is the new local truth; nothing is applied
// optimistically.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/example/ec-storefront/internal/apiclient"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/money"
	"github.com/example/ec-storefront/internal/result"
	"github.com/example/ec-storefront/internal/session"
	"github.com/example/ec-storefront/internal/storage"
)

const (
	msgLoadFailed      = "Failed to load cart"
	msgAddFailed       = "Add failed"
	msgUpdateFailed    = "Update failed"
	msgRemoveFailed    = "Remove failed"
	msgClearFailed     = "Clear failed"
	msgCouponFailed    = "Coupon failed"
	msgRemoveCoupon    = "Remove coupon failed"
	msgShippingFailed  = "Shipping update failed"
	msgValidateFailed  = "Stock validation failed"
	msgMergeFailed     = "Merge failed"
	msgCountFailed     = "Failed to get cart count"
	msgSessionChanged  = "Your session changed. Please try again."
	msgProductRequired = "Product is required"
	msgNegativeQty     = "Quantity cannot be negative"
)

// API is the subset of the HTTP client the store needs.
type API interface {
	Do(ctx context.Context, r apiclient.Request, out apiclient.Payload) (*apiclient.Response, error)
}

// Options configures a Store.
type Options struct {
	// Cache mirrors the cart for instant paint on the next start. Nil disables it.
	Cache storage.Storage
	// ClearCacheOnLogout drops the cached cart when the session ends.
	ClearCacheOnLogout bool
	Currency           currency.Unit
	Events             events.Publisher
	// StateLock guards the cart state. The wishlist store shares it so a
	// move-to-cart response updates both stores at once.
	StateLock *sync.RWMutex
}

// Store is the cart store.
type Store struct {
	api           API
	cache         storage.Storage
	clearOnLogout bool
	currency      currency.Unit
	events        events.Publisher

	state   *sync.RWMutex
	cart    *Cart
	owner   string
	epoch   uint64
	loading bool

	// ops is the operation slot: one mutation or load at a time, in issue order.
	ops     chan struct{}
	cacheMu sync.Mutex

	loadMu     sync.Mutex
	cancelLoad context.CancelFunc
	baseCtx    context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
}

// NewStore creates an empty cart store.
func NewStore(api API, opts Options) *Store {
	if opts.StateLock == nil {
		opts.StateLock = &sync.RWMutex{}
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Currency == (currency.Unit{}) {
		opts.Currency = money.DefaultCurrency
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Store{
		api:           api,
		cache:         opts.Cache,
		clearOnLogout: opts.ClearCacheOnLogout,
		currency:      opts.Currency,
		events:        opts.Events,
		state:         opts.StateLock,
		epoch:         1,
		ops:           make(chan struct{}, 1),
		baseCtx:       ctx,
		stop:          stop,
	}
}

// ============================================
// Lifecycle
// ============================================

// Hydrate paints the cached cart before the session is known. A cached cart
// that fails validation is discarded.
func (s *Store) Hydrate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	raw, err := s.cache.Get(ctx, storage.KeyCart)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("[Cart] Failed to read cached cart: %v", err)
		}
		return
	}

	var cached Cart
	err = json.Unmarshal([]byte(raw), &cached)
	if err == nil {
		err = cached.Validate()
	}
	if err != nil {
		log.Printf("[Cart] Discarding invalid cached cart: %v", err)
		s.dropCache()
		return
	}

	s.state.Lock()
	if s.cart == nil {
		s.cart = &cached
	}
	s.state.Unlock()
}

// HandleSession reacts to a session transition. A new user gets a fresh
// load that supersedes any load still in flight; the end of a session empties
// the in-memory cart.
func (s *Store) HandleSession(sess session.Session) {
	owner := ""
	if sess.Authenticated {
		owner = sess.UserID
	}

	s.state.Lock()
	prev := s.owner
	if owner == prev {
		s.state.Unlock()
		return
	}
	s.epoch++
	epoch := s.epoch
	s.owner = owner
	s.cart = nil
	s.loading = owner != ""
	s.state.Unlock()

	s.cancelPendingLoad(nil)
	if prev != "" {
		s.events.Publish(context.Background(), events.New(events.CartReset, prev, "session", nil))
		if owner == "" && s.clearOnLogout {
			s.dropCache()
		}
	}
	if owner == "" {
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancelPendingLoad(cancel)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if res := s.load(ctx, epoch); !res.Success && ctx.Err() == nil {
			log.Printf("[Cart] Session load failed: %s", res.Error)
		}
	}()
}

func (s *Store) cancelPendingLoad(next context.CancelFunc) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.cancelLoad = next
}

// Wait blocks until background loads have finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels background loads and waits for them.
func (s *Store) Close() {
	s.stop()
	s.wg.Wait()
}

// ============================================
// Operation slot and epochs
// ============================================

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.ops <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.ops
}

// Serialize runs fn in the cart's operation slot, ordered with every other
// cart mutation.
func (s *Store) Serialize(ctx context.Context, fn func() error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn()
}

// StateLock returns the lock guarding cart state.
func (s *Store) StateLock() *sync.RWMutex {
	return s.state
}

// Ticket returns the current session epoch.
func (s *Store) Ticket() uint64 {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.epoch
}

func (s *Store) current(epoch uint64) bool {
	return s.Ticket() == epoch
}

// AdoptLocked replaces the cart with c if epoch is still current. The caller
// must hold the state lock for writing.
func (s *Store) AdoptLocked(epoch uint64, c *Cart) bool {
	if s.epoch != epoch {
		return false
	}
	s.cart = c
	s.loading = false
	return true
}

// SnapshotLocked is Snapshot for callers already holding the state lock.
func (s *Store) SnapshotLocked() *Cart {
	return s.cart.Clone()
}

func (s *Store) adopt(epoch uint64, c *Cart) bool {
	s.state.Lock()
	defer s.state.Unlock()
	return s.AdoptLocked(epoch, c)
}

// Announce mirrors an adopted cart to the cache and publishes the change.
func (s *Store) Announce(ctx context.Context, epoch uint64, action string, c *Cart) {
	s.persist(ctx, epoch, c)

	s.state.RLock()
	owner := s.owner
	s.state.RUnlock()
	s.events.Publish(ctx, events.New(events.CartUpdated, owner, action, map[string]any{
		"itemCount": c.ItemCount(),
		"total":     c.Total().String(),
	}))
}

func (s *Store) persist(ctx context.Context, epoch uint64, c *Cart) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		log.Printf("[Cart] Failed to encode cart cache: %v", err)
		return
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if !s.current(epoch) {
		return
	}
	if err := s.cache.Set(context.WithoutCancel(ctx), storage.KeyCart, string(data)); err != nil {
		log.Printf("[Cart] Failed to write cart cache: %v", err)
	}
}

func (s *Store) dropCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if err := s.cache.Delete(context.Background(), storage.KeyCart); err != nil {
		log.Printf("[Cart] Failed to clear cart cache: %v", err)
	}
}

// ============================================
// Loading and mutations
// ============================================

// Load fetches the server cart and replaces local state.
func (s *Store) Load(ctx context.Context) result.Result[*Cart] {
	return s.load(ctx, s.Ticket())
}

func (s *Store) load(ctx context.Context, epoch uint64) result.Result[*Cart] {
	return s.exchange(ctx, epoch, "load", msgLoadFailed, apiclient.Request{Method: http.MethodGet, Path: "/cart"})
}

func (s *Store) mutate(ctx context.Context, action, fallback string, req apiclient.Request) result.Result[*Cart] {
	return s.exchange(ctx, 0, action, fallback, req)
}

// exchange runs req in the operation slot and adopts the returned cart.
// An epoch of 0 means the epoch current when the slot is acquired; epochs
// start at 1.
func (s *Store) exchange(ctx context.Context, epoch uint64, action, fallback string, req apiclient.Request) result.Result[*Cart] {
	if err := s.acquire(ctx); err != nil {
		return result.Fail[*Cart](fallback)
	}
	defer s.release()

	if epoch == 0 {
		epoch = s.Ticket()
	} else if !s.current(epoch) {
		return result.Fail[*Cart](msgSessionChanged)
	}

	var out cartPayload
	if _, err := s.api.Do(ctx, req, &out); err != nil {
		if ctx.Err() == nil {
			log.Printf("[Cart] %s failed: %v", action, err)
		}
		if action == "load" {
			s.state.Lock()
			if s.epoch == epoch {
				s.loading = false
			}
			s.state.Unlock()
		}
		return result.Fail[*Cart](apiclient.Message(err, fallback))
	}

	if !s.adopt(epoch, out.Cart) {
		log.Printf("[Cart] Discarding %s response from a previous session", action)
		return result.Fail[*Cart](msgSessionChanged)
	}
	s.Announce(ctx, epoch, action, out.Cart)
	return result.OK(out.Cart.Clone())
}

type itemBody struct {
	ProductID string   `json:"productId,omitempty"`
	Quantity  *int     `json:"quantity,omitempty"`
	Variant   *Variant `json:"variant"`
}

// AddItem adds quantity of a product. Adding an existing product/variant
// pair increases its quantity on the server.
func (s *Store) AddItem(ctx context.Context, productID string, quantity int, variant *Variant) result.Result[*Cart] {
	if productID == "" {
		return result.Fail[*Cart](msgProductRequired)
	}
	if quantity < 1 {
		return result.Fail[*Cart](ErrInvalidQuantity.Error())
	}
	body := itemBody{ProductID: productID, Quantity: &quantity, Variant: variant}
	return s.mutate(ctx, "add", msgAddFailed, apiclient.Request{Method: http.MethodPost, Path: "/cart/items", Body: body})
}

// UpdateQuantity sets the quantity of a line. Zero removes it.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int, variant *Variant) result.Result[*Cart] {
	if productID == "" {
		return result.Fail[*Cart](msgProductRequired)
	}
	if quantity < 0 {
		return result.Fail[*Cart](msgNegativeQty)
	}
	body := itemBody{Quantity: &quantity, Variant: variant}
	path := "/cart/items/" + apiclient.PathEscape(productID)
	return s.mutate(ctx, "update", msgUpdateFailed, apiclient.Request{Method: http.MethodPut, Path: path, Body: body})
}

// RemoveItem removes a line. A nil variant removes every variant of the product.
func (s *Store) RemoveItem(ctx context.Context, productID string, variant *Variant) result.Result[*Cart] {
	if productID == "" {
		return result.Fail[*Cart](msgProductRequired)
	}
	path := "/cart/items/" + apiclient.PathEscape(productID)
	return s.mutate(ctx, "remove", msgRemoveFailed, apiclient.Request{Method: http.MethodDelete, Path: path, Body: itemBody{Variant: variant}})
}

// Clear empties the cart and drops its coupon.
func (s *Store) Clear(ctx context.Context) result.Result[*Cart] {
	return s.mutate(ctx, "clear", msgClearFailed, apiclient.Request{Method: http.MethodDelete, Path: "/cart"})
}

// ApplyCoupon applies a discount code.
func (s *Store) ApplyCoupon(ctx context.Context, code string, discount decimal.Decimal, couponType CouponType) result.Result[*Cart] {
	if code == "" {
		return result.Fail[*Cart]("Coupon code is required")
	}
	if couponType == "" {
		couponType = CouponPercentage
	}
	body := CouponRequest{Code: code, Discount: discount, Type: couponType}
	return s.mutate(ctx, "coupon", msgCouponFailed, apiclient.Request{Method: http.MethodPost, Path: "/cart/coupon", Body: body})
}

// RemoveCoupon drops the applied coupon.
func (s *Store) RemoveCoupon(ctx context.Context) result.Result[*Cart] {
	return s.mutate(ctx, "remove-coupon", msgRemoveCoupon, apiclient.Request{Method: http.MethodDelete, Path: "/cart/coupon"})
}

// SetShippingMethod selects the shipping method.
func (s *Store) SetShippingMethod(ctx context.Context, method string) result.Result[*Cart] {
	if method == "" {
		return result.Fail[*Cart]("Shipping method is required")
	}
	body := map[string]string{"method": method}
	return s.mutate(ctx, "shipping", msgShippingFailed, apiclient.Request{Method: http.MethodPut, Path: "/cart/shipping", Body: body})
}

// MergeGuestCart merges a cart built before login into the user's cart.
func (s *Store) MergeGuestCart(ctx context.Context, guest *Cart) result.Result[*Cart] {
	if guest == nil || len(guest.Items) == 0 {
		return result.OK(s.Snapshot())
	}
	body := map[string]*Cart{"guestCart": guest}
	return s.mutate(ctx, "merge", msgMergeFailed, apiclient.Request{Method: http.MethodPost, Path: "/cart/merge", Body: body})
}

// ValidateStock asks the server whether current quantities can be fulfilled.
// It never changes local state.
func (s *Store) ValidateStock(ctx context.Context) result.Result[ValidationReport] {
	var out ValidationReport
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/cart/validate"}, &out); err != nil {
		return result.Fail[ValidationReport](apiclient.Message(err, msgValidateFailed))
	}
	return result.OK(out)
}

// RemoteCount returns the server's item count without touching local state.
func (s *Store) RemoteCount(ctx context.Context) result.Result[int] {
	var out countPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/cart/count"}, &out); err != nil {
		return result.Fail[int](apiclient.Message(err, msgCountFailed))
	}
	return result.OK(*out.Count)
}

// ============================================
// Local reads
// ============================================

// Snapshot returns a deep copy of the cart, or nil when none is loaded.
func (s *Store) Snapshot() *Cart {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.cart.Clone()
}

// Loading reports whether a session load is pending.
func (s *Store) Loading() bool {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.loading
}

// Total is the sum of unit price times quantity over all items.
func (s *Store) Total() decimal.Decimal {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.cart.Total()
}

// TotalMoney is Total in the store's currency.
func (s *Store) TotalMoney() money.Money {
	return money.New(s.Total(), s.currency)
}

// Discount is the amount the applied coupon takes off Total.
func (s *Store) Discount() decimal.Decimal {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.cart.Discount()
}

// GrandTotal is Total minus Discount.
func (s *Store) GrandTotal() decimal.Decimal {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.cart.GrandTotal()
}

// ItemCount is the sum of item quantities.
func (s *Store) ItemCount() int {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.cart.ItemCount()
}

// IsInCart reports whether the product is in the cart. A nil variant matches any variant.
func (s *Store) IsInCart(productID string, variant *Variant) bool {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.cart.IsInCart(productID, variant)
}

// ItemQuantity is the quantity held for the product. A nil variant sums every variant.
func (s *Store) ItemQuantity(productID string, variant *Variant) int {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.cart.ItemQuantity(productID, variant)
}
