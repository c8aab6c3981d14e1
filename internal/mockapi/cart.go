package mockapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var coupons = map[string]couponDoc{
	"SAVE10":    {Code: "SAVE10", Discount: decimal.NewFromInt(10), Type: "percentage"},
	"WELCOME20": {Code: "WELCOME20", Discount: decimal.NewFromInt(20), Type: "percentage"},
	"FLAT15":    {Code: "FLAT15", Discount: decimal.NewFromInt(15), Type: "fixed"},
}

var shippingMethods = map[string]bool{"standard": true, "express": true, "overnight": true}

type reqError struct {
	status  int
	message string
}

func (e *reqError) Error() string { return e.message }

func badRequest(format string, args ...any) *reqError {
	return &reqError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func notFound(message string) *reqError {
	return &reqError{status: http.StatusNotFound, message: message}
}

// cartFor returns the cart of owner, creating it. Caller holds s.mu.
func (s *Server) cartFor(owner string) *cartRecord {
	c, ok := s.carts[owner]
	if !ok {
		c = &cartRecord{ID: uuid.New().String(), UpdatedAt: s.now()}
		s.carts[owner] = c
	}
	return c
}

// view renders a cart the way the API returns it. Caller holds s.mu.
func (s *Server) view(c *cartRecord) cartView {
	v := cartView{ID: c.ID, Items: []cartItemView{}, ShippingMethod: c.ShippingMethod, UpdatedAt: c.UpdatedAt}
	for _, line := range c.Lines {
		item := cartItemView{ID: line.ID, Product: s.ref(line.ProductID), Quantity: line.Quantity}
		if line.Variant != nil {
			variant := *line.Variant
			item.Variant = &variant
		}
		v.Items = append(v.Items, item)
	}
	if c.Coupon != nil {
		coupon := *c.Coupon
		v.Coupon = &coupon
	}
	return v
}

// quantityOf sums the quantity of productID across variants, skipping skip.
func (c *cartRecord) quantityOf(productID string, skip int) int {
	n := 0
	for i, line := range c.Lines {
		if i != skip && line.ProductID == productID {
			n += line.Quantity
		}
	}
	return n
}

func (c *cartRecord) find(productID string, variant *variantDoc) int {
	for i, line := range c.Lines {
		if line.ProductID == productID && line.Variant.same(variant) {
			return i
		}
	}
	return -1
}

// add puts quantity of a product into the cart, merging with an existing line
// for the same variant. Caller holds s.mu.
func (s *Server) add(c *cartRecord, productID string, quantity int, variant *variantDoc) *reqError {
	if quantity < 1 {
		return badRequest("Quantity must be at least 1")
	}
	p, ok := s.products[productID]
	if !ok {
		return notFound("Product not found")
	}
	if !p.IsActive {
		return badRequest("Product is not available")
	}

	idx := c.find(productID, variant)
	next := quantity
	if idx >= 0 {
		next += c.Lines[idx].Quantity
	}
	if c.quantityOf(productID, idx)+next > p.Stock {
		return badRequest("Insufficient stock. Only %d available", p.Stock)
	}

	if idx >= 0 {
		c.Lines[idx].Quantity = next
	} else {
		c.Lines = append(c.Lines, cartLine{ID: uuid.New().String(), ProductID: productID, Quantity: quantity, Variant: variant})
	}
	c.UpdatedAt = s.now()
	return nil
}

// setQuantity updates a line in place; zero removes it. Caller holds s.mu.
func (s *Server) setQuantity(c *cartRecord, productID string, quantity int, variant *variantDoc) *reqError {
	if quantity < 0 {
		return badRequest("Quantity cannot be negative")
	}
	idx := c.find(productID, variant)
	if idx < 0 {
		return notFound("Item not found in cart")
	}
	if quantity == 0 {
		c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
		c.UpdatedAt = s.now()
		return nil
	}
	if p, ok := s.products[productID]; ok && c.quantityOf(productID, idx)+quantity > p.Stock {
		return badRequest("Insufficient stock. Only %d available", p.Stock)
	}
	c.Lines[idx].Quantity = quantity
	c.UpdatedAt = s.now()
	return nil
}

// cartCall runs fn against the caller's cart and answers with the result.
func (s *Server) cartCall(w http.ResponseWriter, c *caller, status int, message string, fn func(*cartRecord) *reqError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cartFor(c.owner())
	if err := fn(cart); err != nil {
		respondError(w, err.message, err.status)
		return
	}
	respondJSON(w, status, map[string]any{"cart": s.view(cart)}, message)
}

type cartItemRequest struct {
	ProductID string      `json:"productId"`
	Quantity  *int        `json:"quantity"`
	Variant   *variantDoc `json:"variant"`
}

// ============================================
// Cart handlers
// ============================================

func (s *Server) getCart(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.cartCall(w, c, http.StatusOK, "", func(*cartRecord) *reqError { return nil })
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request, c *caller) {
	var req cartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	s.cartCall(w, c, http.StatusOK, "Item added to cart", func(cart *cartRecord) *reqError {
		return s.add(cart, req.ProductID, quantity, req.Variant)
	})
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request, c *caller) {
	var req cartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, "Quantity is required", http.StatusBadRequest)
		return
	}
	s.cartCall(w, c, http.StatusOK, "Cart updated", func(cart *cartRecord) *reqError {
		return s.setQuantity(cart, r.PathValue("id"), *req.Quantity, req.Variant)
	})
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request, c *caller) {
	var req cartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	productID := r.PathValue("id")
	s.cartCall(w, c, http.StatusOK, "Item removed from cart", func(cart *cartRecord) *reqError {
		kept := cart.Lines[:0]
		removed := false
		for _, line := range cart.Lines {
			if line.ProductID == productID && (req.Variant == nil || line.Variant.same(req.Variant)) {
				removed = true
				continue
			}
			kept = append(kept, line)
		}
		if !removed {
			return notFound("Item not found in cart")
		}
		cart.Lines = kept
		cart.UpdatedAt = s.now()
		return nil
	})
}

func (s *Server) clearCart(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.cartCall(w, c, http.StatusOK, "Cart cleared", func(cart *cartRecord) *reqError {
		cart.Lines = nil
		cart.Coupon = nil
		cart.UpdatedAt = s.now()
		return nil
	})
}

func (s *Server) applyCoupon(w http.ResponseWriter, r *http.Request, c *caller) {
	var req couponDoc
	if !decodeBody(w, r, &req) {
		return
	}
	s.cartCall(w, c, http.StatusOK, "Coupon applied", func(cart *cartRecord) *reqError {
		coupon, ok := coupons[strings.ToUpper(req.Code)]
		if !ok {
			return badRequest("Invalid coupon code")
		}
		if len(cart.Lines) == 0 {
			return badRequest("Cannot apply a coupon to an empty cart")
		}
		cart.Coupon = &coupon
		cart.UpdatedAt = s.now()
		return nil
	})
}

func (s *Server) removeCoupon(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.cartCall(w, c, http.StatusOK, "Coupon removed", func(cart *cartRecord) *reqError {
		cart.Coupon = nil
		cart.UpdatedAt = s.now()
		return nil
	})
}

func (s *Server) setShipping(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		Method string `json:"method"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.cartCall(w, c, http.StatusOK, "Shipping method updated", func(cart *cartRecord) *reqError {
		if !shippingMethods[req.Method] {
			return badRequest("Invalid shipping method")
		}
		cart.ShippingMethod = req.Method
		cart.UpdatedAt = s.now()
		return nil
	})
}

func (s *Server) validateCart(w http.ResponseWriter, _ *http.Request, c *caller) {
	type issue struct {
		ProductID string `json:"productId"`
		Name      string `json:"name"`
		Requested int    `json:"requested"`
		Available int    `json:"available"`
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	issues := []issue{}
	for _, line := range s.cartFor(c.owner()).Lines {
		available := 0
		name := "Unavailable product"
		if p, ok := s.products[line.ProductID]; ok && p.IsActive {
			available = p.Stock
			name = p.Name
		}
		if line.Quantity > available {
			issues = append(issues, issue{ProductID: line.ProductID, Name: name, Requested: line.Quantity, Available: available})
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"valid": len(issues) == 0, "issues": issues}, "")
}

func (s *Server) mergeCart(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		GuestCart struct {
			Items []struct {
				Product struct {
					ID string `json:"_id"`
				} `json:"product"`
				Quantity int         `json:"quantity"`
				Variant  *variantDoc `json:"variant"`
			} `json:"items"`
		} `json:"guestCart"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.cartCall(w, c, http.StatusOK, "Guest cart merged", func(cart *cartRecord) *reqError {
		for _, item := range req.GuestCart.Items {
			p, ok := s.products[item.Product.ID]
			if !ok || !p.IsActive || item.Quantity < 1 {
				continue
			}
			// Merged quantities are capped at stock rather than rejected.
			room := p.Stock - cart.quantityOf(p.ID, -1)
			if q := min(item.Quantity, room); q > 0 {
				_ = s.add(cart, p.ID, q, item.Variant)
			}
		}
		return nil
	})
}

func (s *Server) cartCount(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cartFor(c.owner())
	respondJSON(w, http.StatusOK, map[string]int{"count": countAll(cart)}, "")
}

func countAll(c *cartRecord) int {
	n := 0
	for _, line := range c.Lines {
		n += line.Quantity
	}
	return n
}
