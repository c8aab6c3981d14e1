package wishlist

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/catalog"
)

var (
	ErrInvalidPriority = errors.New("priority must be low, medium or high")
	ErrDuplicateItem   = errors.New("duplicate wishlist item")
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Item is a saved product.
type Item struct {
	ID       string             `json:"_id,omitempty"`
	Product  catalog.ProductRef `json:"product"`
	Notes    string             `json:"notes"`
	Priority Priority           `json:"priority"`
	AddedAt  time.Time          `json:"addedAt,omitzero"`
}

// Wishlist is the server-authoritative wishlist document. Items are unique
// by product.
type Wishlist struct {
	ID         string `json:"_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Items      []Item `json:"items"`
	ShareToken string `json:"shareToken,omitempty"`
	IsPublic   bool   `json:"isPublic"`
}

func (w *Wishlist) Validate() error {
	seen := make(map[string]bool, len(w.Items))
	for i, item := range w.Items {
		if err := item.Product.Validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		if !item.Priority.Valid() {
			return fmt.Errorf("items[%d]: %w", i, ErrInvalidPriority)
		}
		if seen[item.Product.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, item.Product.ID)
		}
		seen[item.Product.ID] = true
	}
	return nil
}

// Clone returns a deep copy of w.
func (w *Wishlist) Clone() *Wishlist {
	if w == nil {
		return nil
	}
	out := *w
	out.Items = make([]Item, len(w.Items))
	for i, item := range w.Items {
		item.Product.Images = append([]catalog.Image(nil), item.Product.Images...)
		out.Items[i] = item
	}
	return &out
}

func (w *Wishlist) find(productID string) int {
	if w == nil {
		return -1
	}
	for i, item := range w.Items {
		if item.Product.ID == productID {
			return i
		}
	}
	return -1
}

// ItemUpdate changes the notes or priority of an item. Nil fields are kept.
type ItemUpdate struct {
	Notes    *string   `json:"notes,omitempty"`
	Priority *Priority `json:"priority,omitempty"`
}

// Settings changes wishlist-level fields. Nil fields are kept.
type Settings struct {
	Name     *string `json:"name,omitempty"`
	IsPublic *bool   `json:"isPublic,omitempty"`
}

// ShareInfo is returned when a share token is generated.
type ShareInfo struct {
	ShareToken string `json:"shareToken"`
	IsPublic   bool   `json:"isPublic"`
}

func (s *ShareInfo) Validate() error {
	if s.ShareToken == "" {
		return errors.New("share token missing")
	}
	return nil
}

// MoveResult carries both documents returned by a move-to-cart.
type MoveResult struct {
	Wishlist *Wishlist
	Cart     *cart.Cart
}

type wishlistPayload struct {
	Wishlist *Wishlist `json:"wishlist"`
}

func (p *wishlistPayload) Validate() error {
	if p.Wishlist == nil {
		return errors.New("wishlist missing")
	}
	return p.Wishlist.Validate()
}

type movePayload struct {
	Wishlist *Wishlist  `json:"wishlist"`
	Cart     *cart.Cart `json:"cart"`
}

func (p *movePayload) Validate() error {
	if p.Wishlist == nil || p.Cart == nil {
		return errors.New("wishlist and cart are both required")
	}
	if err := p.Wishlist.Validate(); err != nil {
		return err
	}
	return p.Cart.Validate()
}

type itemsPayload struct {
	Items []Item `json:"items"`
}

func (p *itemsPayload) Validate() error {
	for i, item := range p.Items {
		if err := item.Product.Validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	return nil
}

type checkPayload struct {
	IsInWishlist *bool `json:"isInWishlist"`
}

func (p *checkPayload) Validate() error {
	if p.IsInWishlist == nil {
		return errors.New("isInWishlist missing")
	}
	return nil
}
