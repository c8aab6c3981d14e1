// Package mockapi is an in-memory fake of the shop's REST backend. It serves
// the same routes and envelopes as the real service so the stores can be
// exercised end to end with httptest, and it lets tests inject failures,
// count calls and hold requests at a route.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/catalog"
)

// Failure makes a route answer with an error instead of running its handler.
type Failure struct {
	Status  int
	Message string
	// Times limits how many requests fail; 0 means every request.
	Times int
}

type access int

const (
	public access = iota
	// userOrGuest accepts a bearer token or falls back to the X-Guest-ID header.
	userOrGuest
	user
	admin
)

// caller is who a request was made by.
type caller struct {
	claims  *auth.Claims
	guestID string
}

func (c *caller) userID() string {
	if c.claims == nil {
		return ""
	}
	return c.claims.UserID
}

// owner keys carts and wishlists.
func (c *caller) owner() string {
	if c.claims != nil {
		return "user:" + c.claims.UserID
	}
	return "guest:" + c.guestID
}

func (c *caller) isAdmin() bool {
	return c.claims != nil && c.claims.Role == auth.RoleAdmin
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, c *caller)

// Option configures a Server.
type Option func(*Server)

// WithIssuer replaces the default token issuer.
func WithIssuer(issuer *auth.Issuer) Option {
	return func(s *Server) { s.issuer = issuer }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

// Server is the fake backend.
type Server struct {
	issuer     *auth.Issuer
	bcryptCost int
	mux        *http.ServeMux
	now        func() time.Time

	mu            sync.Mutex
	users         map[string]*userRecord
	usersByEmail  map[string]string
	sessions      map[string]*sessionRecord
	validAccess   map[string]string
	verifyTokens  map[string]string
	resetTokens   map[string]string
	products      map[string]*catalog.Product
	productOrder  []string
	categories    map[string]*catalog.Category
	categoryOrder []string
	carts         map[string]*cartRecord
	wishlists     map[string]*wishlistRecord
	shareTokens   map[string]string
	orders        map[string]*orderRecord
	orderOrder    []string

	hookMu   sync.Mutex
	calls    map[string]int
	failures map[string]*Failure
	hooks    map[string]func(*http.Request)
}

// New creates an empty fake backend.
func New(opts ...Option) *Server {
	s := &Server{
		issuer:       auth.NewIssuer("mockapi-secret", 15*time.Minute, 7*24*time.Hour),
		bcryptCost:   bcrypt.MinCost,
		mux:          http.NewServeMux(),
		now:          time.Now,
		users:        make(map[string]*userRecord),
		usersByEmail: make(map[string]string),
		sessions:     make(map[string]*sessionRecord),
		validAccess:  make(map[string]string),
		verifyTokens: make(map[string]string),
		resetTokens:  make(map[string]string),
		products:     make(map[string]*catalog.Product),
		categories:   make(map[string]*catalog.Category),
		carts:        make(map[string]*cartRecord),
		wishlists:    make(map[string]*wishlistRecord),
		shareTokens:  make(map[string]string),
		orders:       make(map[string]*orderRecord),
		calls:        make(map[string]int),
		failures:     make(map[string]*Failure),
		hooks:        make(map[string]func(*http.Request)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler serves the API under /api.
func (s *Server) Handler() http.Handler {
	return http.StripPrefix("/api", s.mux)
}

func (s *Server) routes() {
	s.handle("POST /auth/register", public, s.register)
	s.handle("POST /auth/login", public, s.login)
	s.handle("POST /auth/logout", user, s.logout)
	s.handle("GET /auth/me", user, s.me)
	s.handle("POST /auth/refresh", public, s.refresh)
	s.handle("POST /auth/verify-email", public, s.verifyEmail)
	s.handle("POST /auth/forgot-password", public, s.forgotPassword)
	s.handle("POST /auth/reset-password", public, s.resetPassword)
	s.handle("POST /auth/resend-verification", public, s.resendVerification)

	s.handle("PUT /users/profile", user, s.updateProfile)
	s.handle("PUT /users/password", user, s.updatePassword)
	s.handle("POST /users/addresses", user, s.addAddress)
	s.handle("PUT /users/addresses/{id}", user, s.updateAddress)
	s.handle("DELETE /users/addresses/{id}", user, s.deleteAddress)
	s.handle("POST /users/avatar", user, s.uploadAvatar)

	s.handle("GET /products", public, s.listProducts)
	s.handle("GET /products/featured", public, s.featuredProducts)
	s.handle("GET /products/filters/all", public, s.productFilters)
	s.handle("GET /products/slug/{slug}", public, s.productBySlug)
	s.handle("GET /products/{id}", public, s.getProduct)
	// The two literal routes above are more specific and take precedence.
	s.handle("GET /products/{id}/{sub}", public, s.productSubresource)
	s.handle("POST /products/{id}/reviews", user, s.addReview)
	s.handle("PUT /products/{id}/reviews/{reviewId}", user, s.updateReview)
	s.handle("DELETE /products/{id}/reviews/{reviewId}", user, s.deleteReview)
	s.handle("POST /products/{id}/images", admin, s.uploadImages)
	s.handle("DELETE /products/{id}/images/{publicId}", admin, s.deleteImage)
	s.handle("POST /products", admin, s.createProduct)
	s.handle("PUT /products/{id}", admin, s.updateProduct)
	s.handle("DELETE /products/{id}", admin, s.deleteProduct)
	s.handle("GET /admin/products", admin, s.adminProducts)

	s.handle("GET /categories", public, s.listCategories)
	s.handle("GET /admin/categories", admin, s.adminCategories)
	s.handle("POST /admin/categories", admin, s.createCategory)
	s.handle("PUT /admin/categories/{id}", admin, s.updateCategory)
	s.handle("DELETE /admin/categories/{id}", admin, s.deleteCategory)

	s.handle("GET /cart", userOrGuest, s.getCart)
	s.handle("POST /cart/items", userOrGuest, s.addCartItem)
	s.handle("PUT /cart/items/{id}", userOrGuest, s.updateCartItem)
	s.handle("DELETE /cart/items/{id}", userOrGuest, s.removeCartItem)
	s.handle("DELETE /cart", userOrGuest, s.clearCart)
	s.handle("POST /cart/coupon", userOrGuest, s.applyCoupon)
	s.handle("DELETE /cart/coupon", userOrGuest, s.removeCoupon)
	s.handle("PUT /cart/shipping", userOrGuest, s.setShipping)
	s.handle("GET /cart/validate", userOrGuest, s.validateCart)
	s.handle("POST /cart/merge", user, s.mergeCart)
	s.handle("GET /cart/count", userOrGuest, s.cartCount)

	s.handle("GET /wishlist", user, s.getWishlist)
	s.handle("POST /wishlist/items", user, s.addWishlistItem)
	s.handle("PUT /wishlist/items/{id}", user, s.updateWishlistItem)
	s.handle("DELETE /wishlist/items/{id}", user, s.removeWishlistItem)
	s.handle("DELETE /wishlist", user, s.clearWishlist)
	s.handle("GET /wishlist/check/{id}", user, s.checkWishlist)
	s.handle("POST /wishlist/move-to-cart/{id}", user, s.moveToCart)
	s.handle("POST /wishlist/share", user, s.shareWishlist)
	s.handle("DELETE /wishlist/share", user, s.revokeShare)
	s.handle("GET /wishlist/shared/{token}", public, s.sharedWishlist)
	s.handle("PUT /wishlist/settings", user, s.wishlistSettings)
	s.handle("GET /wishlist/priority/{priority}", user, s.wishlistByPriority)

	s.handle("POST /orders", user, s.createOrder)
	s.handle("GET /orders", user, s.listOrders)
	s.handle("GET /orders/{id}", user, s.getOrder)
	s.handle("PUT /orders/{id}/cancel", user, s.cancelOrder)
	s.handle("GET /orders/admin/stats", admin, s.orderStats)
	s.handle("GET /orders/admin/all", admin, s.allOrders)
	s.handle("PUT /orders/{id}/status", admin, s.updateOrderStatus)
}

func (s *Server) handle(route string, level access, h handlerFunc) {
	s.mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		s.hookMu.Lock()
		s.calls[route]++
		hook := s.hooks[route]
		failure := s.takeFailure(route)
		s.hookMu.Unlock()

		if hook != nil {
			hook(r)
		}

		c, ok := s.authenticate(w, r, level)
		if !ok {
			return
		}
		if failure != nil {
			respondError(w, failure.Message, failure.Status)
			return
		}
		h(w, r, c)
	})
}

func (s *Server) takeFailure(route string) *Failure {
	f, ok := s.failures[route]
	if !ok {
		return nil
	}
	out := *f
	if f.Times > 0 {
		f.Times--
		if f.Times == 0 {
			delete(s.failures, route)
		}
	}
	return &out
}

// ============================================
// Test controls
// ============================================

// Fail makes route (for example "POST /cart/items") answer with f.
func (s *Server) Fail(route string, f Failure) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.failures[route] = &f
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.failures = make(map[string]*Failure)
}

// Hook runs fn at the start of every request to route, before the handler.
// A hook that blocks holds the request; other routes keep being served.
func (s *Server) Hook(route string, fn func(*http.Request)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	if fn == nil {
		delete(s.hooks, route)
		return
	}
	s.hooks[route] = fn
}

// Calls returns how many requests route has received.
func (s *Server) Calls(route string) int {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	return s.calls[route]
}

// ExpireAccessTokens invalidates every access token issued so far, as if
// they had all expired. Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validAccess = make(map[string]string)
}

// RevokeSessions invalidates every access and refresh token.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validAccess = make(map[string]string)
	s.sessions = make(map[string]*sessionRecord)
}

// ============================================
// Authentication
// ============================================

// extractToken reads the bearer token.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, level access) (*caller, bool) {
	c := &caller{guestID: r.Header.Get("X-Guest-ID")}
	token := extractToken(r)

	if token != "" && level != public {
		claims, err := s.issuer.ValidateAccess(token)
		if err == nil {
			s.mu.Lock()
			_, live := s.validAccess[claims.ID]
			s.mu.Unlock()
			if !live {
				err = auth.ErrExpiredToken
			}
		}
		if err != nil {
			respondError(w, "Not authorized, token failed", http.StatusUnauthorized)
			return nil, false
		}
		c.claims = claims
	}

	switch level {
	case userOrGuest:
		if c.claims == nil && c.guestID == "" {
			respondError(w, "Not authorized, no token", http.StatusUnauthorized)
			return nil, false
		}
	case user, admin:
		if c.claims == nil {
			respondError(w, "Not authorized, no token", http.StatusUnauthorized)
			return nil, false
		}
		if level == admin && !c.isAdmin() {
			respondError(w, "Admin access required", http.StatusForbidden)
			return nil, false
		}
	}
	return c, true
}

// ============================================
// Responses
// ============================================

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Message: message})
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Message: message})
}

var errBadBody = errors.New("invalid request body")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, errBadBody.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

const maxUploadBytes = 10 << 20

// uploads reads the files sent under field of a multipart request.
func uploads(w http.ResponseWriter, r *http.Request, field string) ([]*multipart.FileHeader, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, "Invalid upload", http.StatusBadRequest)
		return nil, false
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		respondError(w, "No file uploaded", http.StatusBadRequest)
		return nil, false
	}
	return files, true
}

// Wait blocks until release is closed or ctx is done. Hooks use it to hold
// a request until a test lets it through or the client gives up.
func Wait(ctx context.Context, release <-chan struct{}) {
	select {
	case <-release:
	case <-ctx.Done():
	}
}
