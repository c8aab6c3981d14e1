package mockapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

var priorities = map[string]bool{"low": true, "medium": true, "high": true}

// wishlistFor returns the wishlist of owner, creating it. Caller holds s.mu.
func (s *Server) wishlistFor(owner string) *wishlistRecord {
	wl, ok := s.wishlists[owner]
	if !ok {
		wl = &wishlistRecord{ID: uuid.New().String(), Owner: owner, Name: "My Wishlist"}
		s.wishlists[owner] = wl
	}
	return wl
}

func (s *Server) wishItemView(item wishItem) wishItemView {
	return wishItemView{ID: item.ID, Product: s.ref(item.ProductID), Notes: item.Notes, Priority: item.Priority, AddedAt: item.AddedAt}
}

// wishlistView renders a wishlist. Caller holds s.mu.
func (s *Server) wishlistView(wl *wishlistRecord) wishlistView {
	v := wishlistView{ID: wl.ID, Name: wl.Name, Items: []wishItemView{}, IsPublic: wl.IsPublic}
	if wl.ShareToken != "" {
		token := wl.ShareToken
		v.ShareToken = &token
	}
	for _, item := range wl.Items {
		v.Items = append(v.Items, s.wishItemView(item))
	}
	return v
}

func (wl *wishlistRecord) find(productID string) int {
	for i, item := range wl.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Server) wishlistCall(w http.ResponseWriter, c *caller, status int, message string, fn func(*wishlistRecord) *reqError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wl := s.wishlistFor(c.owner())
	if err := fn(wl); err != nil {
		respondError(w, err.message, err.status)
		return
	}
	respondJSON(w, status, map[string]any{"wishlist": s.wishlistView(wl)}, message)
}

// ============================================
// Wishlist handlers
// ============================================

func (s *Server) getWishlist(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.wishlistCall(w, c, http.StatusOK, "", func(*wishlistRecord) *reqError { return nil })
}

func (s *Server) addWishlistItem(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		ProductID string `json:"productId"`
		Notes     string `json:"notes"`
		Priority  string `json:"priority"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}
	s.wishlistCall(w, c, http.StatusOK, "Item added to wishlist", func(wl *wishlistRecord) *reqError {
		if !priorities[req.Priority] {
			return badRequest("Invalid priority")
		}
		if _, ok := s.products[req.ProductID]; !ok {
			return notFound("Product not found")
		}
		if wl.find(req.ProductID) >= 0 {
			return badRequest("Product already in wishlist")
		}
		wl.Items = append(wl.Items, wishItem{
			ID:        uuid.New().String(),
			ProductID: req.ProductID,
			Notes:     req.Notes,
			Priority:  req.Priority,
			AddedAt:   s.now(),
		})
		return nil
	})
}

func (s *Server) updateWishlistItem(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		Notes    *string `json:"notes"`
		Priority *string `json:"priority"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.wishlistCall(w, c, http.StatusOK, "Wishlist item updated", func(wl *wishlistRecord) *reqError {
		idx := wl.find(r.PathValue("id"))
		if idx < 0 {
			return notFound("Item not found in wishlist")
		}
		if req.Priority != nil {
			if !priorities[*req.Priority] {
				return badRequest("Invalid priority")
			}
			wl.Items[idx].Priority = *req.Priority
		}
		if req.Notes != nil {
			wl.Items[idx].Notes = *req.Notes
		}
		return nil
	})
}

func (s *Server) removeWishlistItem(w http.ResponseWriter, r *http.Request, c *caller) {
	s.wishlistCall(w, c, http.StatusOK, "Item removed from wishlist", func(wl *wishlistRecord) *reqError {
		idx := wl.find(r.PathValue("id"))
		if idx < 0 {
			return notFound("Item not found in wishlist")
		}
		wl.Items = append(wl.Items[:idx], wl.Items[idx+1:]...)
		return nil
	})
}

func (s *Server) clearWishlist(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.wishlistCall(w, c, http.StatusOK, "Wishlist cleared", func(wl *wishlistRecord) *reqError {
		wl.Items = nil
		return nil
	})
}

func (s *Server) checkWishlist(w http.ResponseWriter, r *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.wishlistFor(c.owner()).find(r.PathValue("id")) >= 0
	respondJSON(w, http.StatusOK, map[string]bool{"isInWishlist": found}, "")
}

func (s *Server) moveToCart(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		Quantity int         `json:"quantity"`
		Variant  *variantDoc `json:"variant"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wl := s.wishlistFor(c.owner())
	idx := wl.find(r.PathValue("id"))
	if idx < 0 {
		respondError(w, "Item not found in wishlist", http.StatusNotFound)
		return
	}
	cart := s.cartFor(c.owner())
	if err := s.add(cart, wl.Items[idx].ProductID, req.Quantity, req.Variant); err != nil {
		respondError(w, err.message, err.status)
		return
	}
	wl.Items = append(wl.Items[:idx], wl.Items[idx+1:]...)
	respondJSON(w, http.StatusOK, map[string]any{
		"wishlist": s.wishlistView(wl),
		"cart":     s.view(cart),
	}, "Item moved to cart")
}

func (s *Server) shareWishlist(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wl := s.wishlistFor(c.owner())
	if wl.ShareToken != "" {
		delete(s.shareTokens, wl.ShareToken)
	}
	wl.ShareToken = strings.ReplaceAll(uuid.New().String(), "-", "")
	wl.IsPublic = true
	s.shareTokens[wl.ShareToken] = c.owner()
	respondJSON(w, http.StatusOK, map[string]any{"shareToken": wl.ShareToken, "isPublic": true}, "Share link generated")
}

func (s *Server) revokeShare(w http.ResponseWriter, _ *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wl := s.wishlistFor(c.owner())
	delete(s.shareTokens, wl.ShareToken)
	wl.ShareToken = ""
	wl.IsPublic = false
	respondJSON(w, http.StatusOK, nil, "Share link revoked")
}

func (s *Server) sharedWishlist(w http.ResponseWriter, r *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.shareTokens[r.PathValue("token")]
	wl := s.wishlists[owner]
	if !ok || wl == nil || !wl.IsPublic {
		respondError(w, "Wishlist not found or is private", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"wishlist": s.wishlistView(wl)}, "")
}

func (s *Server) wishlistSettings(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		Name     *string `json:"name"`
		IsPublic *bool   `json:"isPublic"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.wishlistCall(w, c, http.StatusOK, "Wishlist settings updated", func(wl *wishlistRecord) *reqError {
		if req.Name != nil {
			if *req.Name == "" {
				return badRequest("Wishlist name cannot be empty")
			}
			wl.Name = *req.Name
		}
		if req.IsPublic != nil {
			wl.IsPublic = *req.IsPublic
		}
		return nil
	})
}

func (s *Server) wishlistByPriority(w http.ResponseWriter, r *http.Request, c *caller) {
	priority := r.PathValue("priority")
	if !priorities[priority] {
		respondError(w, "Invalid priority", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := []wishItemView{}
	for _, item := range s.wishlistFor(c.owner()).Items {
		if item.Priority == priority {
			items = append(items, s.wishItemView(item))
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items}, "")
}
