// Package wishlist keeps the user's wishlist in sync with the backend and
// moves wishlist items into the cart.
package wishlist

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/example/ec-storefront/internal/apiclient"
	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/result"
	"github.com/example/ec-storefront/internal/session"
)

const (
	msgLoadFailed     = "Failed to load wishlist"
	msgAddFailed      = "Failed to add item to wishlist"
	msgRemoveFailed   = "Failed to remove item from wishlist"
	msgClearFailed    = "Failed to clear wishlist"
	msgUpdateFailed   = "Failed to update wishlist item"
	msgCheckFailed    = "Failed to check wishlist"
	msgMoveFailed     = "Failed to move item to cart"
	msgShareFailed    = "Failed to generate share token"
	msgRevokeFailed   = "Failed to revoke share token"
	msgSettingsFailed = "Failed to update wishlist settings"
	msgPriorityFailed = "Failed to get items by priority"
	msgSharedFailed   = "Failed to get shared wishlist"
	msgSessionChanged = "Your session changed. Please try again."
	msgProductMissing = "Product is required"
)

// API is the subset of the HTTP client the store needs.
type API interface {
	Do(ctx context.Context, r apiclient.Request, out apiclient.Payload) (*apiclient.Response, error)
}

// Store is the wishlist store. It shares the cart store's state lock.
type Store struct {
	api    API
	cart   *cart.Store
	events events.Publisher

	state    *sync.RWMutex
	wishlist *Wishlist
	owner    string
	epoch    uint64
	loading  bool

	ops chan struct{}

	loadMu     sync.Mutex
	cancelLoad context.CancelFunc
	baseCtx    context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
}

// NewStore creates an empty wishlist store bound to cartStore.
func NewStore(api API, cartStore *cart.Store, pub events.Publisher) *Store {
	if pub == nil {
		pub = events.Discard
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Store{
		api:     api,
		cart:    cartStore,
		events:  pub,
		state:   cartStore.StateLock(),
		epoch:   1,
		ops:     make(chan struct{}, 1),
		baseCtx: ctx,
		stop:    stop,
	}
}

// ============================================
// Lifecycle
// ============================================

// HandleSession reloads the wishlist for a new user and drops it when the
// session ends.
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
	s.wishlist = nil
	s.loading = owner != ""
	s.state.Unlock()

	s.setPendingLoad(nil)
	if prev != "" {
		s.events.Publish(context.Background(), events.New(events.WishlistReset, prev, "session", nil))
	}
	if owner == "" {
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.setPendingLoad(cancel)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if res := s.load(ctx, epoch); !res.Success && ctx.Err() == nil {
			log.Printf("[Wishlist] Session load failed: %s", res.Error)
		}
	}()
}

func (s *Store) setPendingLoad(next context.CancelFunc) {
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

func (s *Store) ticket() uint64 {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.epoch
}

func (s *Store) adopt(epoch uint64, w *Wishlist) bool {
	s.state.Lock()
	defer s.state.Unlock()
	if s.epoch != epoch {
		return false
	}
	s.wishlist = w
	s.loading = false
	return true
}

func (s *Store) publish(ctx context.Context, action string, w *Wishlist) {
	s.state.RLock()
	owner := s.owner
	s.state.RUnlock()
	s.events.Publish(ctx, events.New(events.WishlistUpdated, owner, action, map[string]any{
		"itemCount": len(w.Items),
	}))
}

// ============================================
// Loading and mutations
// ============================================

// Load fetches the wishlist and replaces local state.
func (s *Store) Load(ctx context.Context) result.Result[*Wishlist] {
	return s.load(ctx, s.ticket())
}

func (s *Store) load(ctx context.Context, epoch uint64) result.Result[*Wishlist] {
	return s.exchange(ctx, epoch, "load", msgLoadFailed, apiclient.Request{Method: http.MethodGet, Path: "/wishlist"})
}

func (s *Store) mutate(ctx context.Context, action, fallback string, req apiclient.Request) result.Result[*Wishlist] {
	return s.exchange(ctx, 0, action, fallback, req)
}

// exchange runs req in the operation slot and adopts the returned wishlist.
// An epoch of 0 means the epoch current when the slot is acquired.
func (s *Store) exchange(ctx context.Context, epoch uint64, action, fallback string, req apiclient.Request) result.Result[*Wishlist] {
	if err := s.acquire(ctx); err != nil {
		return result.Fail[*Wishlist](fallback)
	}
	defer s.release()

	if epoch == 0 {
		epoch = s.ticket()
	} else if s.ticket() != epoch {
		return result.Fail[*Wishlist](msgSessionChanged)
	}

	var out wishlistPayload
	if _, err := s.api.Do(ctx, req, &out); err != nil {
		if ctx.Err() == nil {
			log.Printf("[Wishlist] %s failed: %v", action, err)
		}
		if action == "load" {
			s.state.Lock()
			if s.epoch == epoch {
				s.loading = false
			}
			s.state.Unlock()
		}
		return result.Fail[*Wishlist](apiclient.Message(err, fallback))
	}

	if !s.adopt(epoch, out.Wishlist) {
		log.Printf("[Wishlist] Discarding %s response from a previous session", action)
		return result.Fail[*Wishlist](msgSessionChanged)
	}
	s.publish(ctx, action, out.Wishlist)
	return result.OK(out.Wishlist.Clone())
}

type addBody struct {
	ProductID string   `json:"productId"`
	Notes     string   `json:"notes"`
	Priority  Priority `json:"priority"`
}

// AddItem saves a product. Priority defaults to medium.
func (s *Store) AddItem(ctx context.Context, productID, notes string, priority Priority) result.Result[*Wishlist] {
	if productID == "" {
		return result.Fail[*Wishlist](msgProductMissing)
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return result.Fail[*Wishlist](ErrInvalidPriority.Error())
	}
	body := addBody{ProductID: productID, Notes: notes, Priority: priority}
	return s.mutate(ctx, "add", msgAddFailed, apiclient.Request{Method: http.MethodPost, Path: "/wishlist/items", Body: body})
}

// RemoveItem removes a product.
func (s *Store) RemoveItem(ctx context.Context, productID string) result.Result[*Wishlist] {
	if productID == "" {
		return result.Fail[*Wishlist](msgProductMissing)
	}
	path := "/wishlist/items/" + apiclient.PathEscape(productID)
	return s.mutate(ctx, "remove", msgRemoveFailed, apiclient.Request{Method: http.MethodDelete, Path: path})
}

// UpdateItem changes notes or priority of a saved product.
func (s *Store) UpdateItem(ctx context.Context, productID string, update ItemUpdate) result.Result[*Wishlist] {
	if productID == "" {
		return result.Fail[*Wishlist](msgProductMissing)
	}
	if update.Priority != nil && !update.Priority.Valid() {
		return result.Fail[*Wishlist](ErrInvalidPriority.Error())
	}
	path := "/wishlist/items/" + apiclient.PathEscape(productID)
	return s.mutate(ctx, "update", msgUpdateFailed, apiclient.Request{Method: http.MethodPut, Path: path, Body: update})
}

// Clear removes every item.
func (s *Store) Clear(ctx context.Context) result.Result[*Wishlist] {
	return s.mutate(ctx, "clear", msgClearFailed, apiclient.Request{Method: http.MethodDelete, Path: "/wishlist"})
}

// UpdateSettings changes the wishlist name or visibility.
func (s *Store) UpdateSettings(ctx context.Context, settings Settings) result.Result[*Wishlist] {
	return s.mutate(ctx, "settings", msgSettingsFailed, apiclient.Request{Method: http.MethodPut, Path: "/wishlist/settings", Body: settings})
}

// MoveToCart moves a product into the cart. The server returns both
// documents and both stores adopt them under one lock, so no reader ever
// sees the product in both or neither.
func (s *Store) MoveToCart(ctx context.Context, productID string, quantity int, variant *cart.Variant) result.Result[MoveResult] {
	if productID == "" {
		return result.Fail[MoveResult](msgProductMissing)
	}
	if quantity < 1 {
		quantity = 1
	}

	if err := s.acquire(ctx); err != nil {
		return result.Fail[MoveResult](msgMoveFailed)
	}
	defer s.release()

	res := result.Fail[MoveResult](msgMoveFailed)
	err := s.cart.Serialize(ctx, func() error {
		wishlistEpoch := s.ticket()
		cartEpoch := s.cart.Ticket()

		body := map[string]any{"quantity": quantity, "variant": variant}
		path := "/wishlist/move-to-cart/" + apiclient.PathEscape(productID)
		var out movePayload
		if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: path, Body: body}, &out); err != nil {
			log.Printf("[Wishlist] move-to-cart failed: %v", err)
			res = result.Fail[MoveResult](apiclient.Message(err, msgMoveFailed))
			return nil
		}

		s.state.Lock()
		adopted := s.epoch == wishlistEpoch && s.cart.AdoptLocked(cartEpoch, out.Cart)
		if adopted {
			s.wishlist = out.Wishlist
			s.loading = false
		}
		s.state.Unlock()

		if !adopted {
			log.Printf("[Wishlist] Discarding move-to-cart response from a previous session")
			res = result.Fail[MoveResult](msgSessionChanged)
			return nil
		}
		s.cart.Announce(ctx, cartEpoch, "move-from-wishlist", out.Cart)
		s.publish(ctx, "move-to-cart", out.Wishlist)
		res = result.OK(MoveResult{Wishlist: out.Wishlist.Clone(), Cart: out.Cart.Clone()})
		return nil
	})
	if err != nil {
		return result.Fail[MoveResult](msgMoveFailed)
	}
	return res
}

// GenerateShareToken makes the wishlist public and returns its share token.
func (s *Store) GenerateShareToken(ctx context.Context) result.Result[ShareInfo] {
	if err := s.acquire(ctx); err != nil {
		return result.Fail[ShareInfo](msgShareFailed)
	}
	defer s.release()
	epoch := s.ticket()

	var out ShareInfo
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: "/wishlist/share"}, &out); err != nil {
		return result.Fail[ShareInfo](apiclient.Message(err, msgShareFailed))
	}
	if !s.applyShare(epoch, out.ShareToken, out.IsPublic) {
		return result.Fail[ShareInfo](msgSessionChanged)
	}
	return result.OK(out)
}

// RevokeShareToken makes the wishlist private again.
func (s *Store) RevokeShareToken(ctx context.Context) result.Result[*Wishlist] {
	if err := s.acquire(ctx); err != nil {
		return result.Fail[*Wishlist](msgRevokeFailed)
	}
	defer s.release()
	epoch := s.ticket()

	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Path: "/wishlist/share"}, nil); err != nil {
		return result.Fail[*Wishlist](apiclient.Message(err, msgRevokeFailed))
	}
	if !s.applyShare(epoch, "", false) {
		return result.Fail[*Wishlist](msgSessionChanged)
	}
	return result.OK(s.Snapshot())
}

func (s *Store) applyShare(epoch uint64, token string, public bool) bool {
	s.state.Lock()
	defer s.state.Unlock()
	if s.epoch != epoch {
		return false
	}
	if s.wishlist != nil {
		next := s.wishlist.Clone()
		next.ShareToken = token
		next.IsPublic = public
		s.wishlist = next
	}
	return true
}

// ============================================
// Remote reads
// ============================================

// ItemsByPriority returns the server's list of items with the given priority.
func (s *Store) ItemsByPriority(ctx context.Context, priority Priority) result.Result[[]Item] {
	if !priority.Valid() {
		return result.Fail[[]Item](ErrInvalidPriority.Error())
	}
	var out itemsPayload
	path := "/wishlist/priority/" + string(priority)
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path}, &out); err != nil {
		return result.Fail[[]Item](apiclient.Message(err, msgPriorityFailed))
	}
	return result.OK(out.Items)
}

// CheckInWishlist asks the server whether a product is saved.
func (s *Store) CheckInWishlist(ctx context.Context, productID string) result.Result[bool] {
	if productID == "" {
		return result.Fail[bool](msgProductMissing)
	}
	var out checkPayload
	path := "/wishlist/check/" + apiclient.PathEscape(productID)
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path}, &out); err != nil {
		return result.Fail[bool](apiclient.Message(err, msgCheckFailed))
	}
	return result.OK(*out.IsInWishlist)
}

// GetSharedWishlist reads someone's public wishlist by token. It never sends
// the caller's credentials.
func (s *Store) GetSharedWishlist(ctx context.Context, token string) result.Result[*Wishlist] {
	if token == "" {
		return result.Fail[*Wishlist]("Share token is required")
	}
	var out wishlistPayload
	req := apiclient.Request{Method: http.MethodGet, Path: "/wishlist/shared/" + apiclient.PathEscape(token), Public: true}
	if _, err := s.api.Do(ctx, req, &out); err != nil {
		return result.Fail[*Wishlist](apiclient.Message(err, msgSharedFailed))
	}
	return result.OK(out.Wishlist)
}

// ============================================
// Local reads
// ============================================

// Snapshot returns a deep copy of the wishlist, or nil when none is loaded.
func (s *Store) Snapshot() *Wishlist {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.wishlist.Clone()
}

func (s *Store) Loading() bool {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.loading
}

func (s *Store) IsInWishlist(productID string) bool {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.wishlist.find(productID) >= 0
}

// Item returns the saved item for productID.
func (s *Store) Item(productID string) (Item, bool) {
	s.state.RLock()
	defer s.state.RUnlock()
	i := s.wishlist.find(productID)
	if i < 0 {
		return Item{}, false
	}
	return s.wishlist.Clone().Items[i], true
}

func (s *Store) ItemCount() int {
	s.state.RLock()
	defer s.state.RUnlock()
	if s.wishlist == nil {
		return 0
	}
	return len(s.wishlist.Items)
}

// ShareURL returns the public link for the wishlist, or "" when it is not shared.
func (s *Store) ShareURL(origin string) string {
	s.state.RLock()
	defer s.state.RUnlock()
	if s.wishlist == nil || s.wishlist.ShareToken == "" {
		return ""
	}
	return strings.TrimRight(origin, "/") + "/wishlist/shared/" + s.wishlist.ShareToken
}
