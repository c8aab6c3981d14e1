package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingProductID = errors.New("product id is required")
	ErrNegativePrice    = errors.New("price must not be negative")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrNoImages         = errors.New("at least one image is required")
)

// ProductRef is the product summary embedded in cart, wishlist and order items.
type ProductRef struct {
	ID     string          `json:"_id"`
	Name   string          `json:"name"`
	Slug   string          `json:"slug,omitempty"`
	Price  decimal.Decimal `json:"price"`
	Images []Image         `json:"images,omitempty"`
	Stock  int             `json:"stock,omitempty"`
}

// Validate checks the fields every store relies on.
func (p ProductRef) Validate() error {
	if p.ID == "" {
		return ErrMissingProductID
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("product %s: %w", p.ID, ErrNegativePrice)
	}
	return nil
}

// Image is a product image hosted by the backend's media store.
type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id,omitempty"`
	Alt      string `json:"alt,omitempty"`
}

// Review is a customer review of a product.
type Review struct {
	ID        string    `json:"_id,omitempty"`
	User      string    `json:"user,omitempty"`
	UserName  string    `json:"name,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Product is the full catalog entry.
type Product struct {
	ID           string          `json:"_id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	ComparePrice decimal.Decimal `json:"comparePrice,omitempty"`
	Category     string          `json:"category,omitempty"`
	Brand        string          `json:"brand,omitempty"`
	Images       []Image         `json:"images,omitempty"`
	Sizes        []string        `json:"sizes,omitempty"`
	Colors       []string        `json:"colors,omitempty"`
	Stock        int             `json:"stock"`
	Rating       float64         `json:"rating"`
	NumReviews   int             `json:"numReviews"`
	Reviews      []Review        `json:"reviews,omitempty"`
	IsFeatured   bool            `json:"isFeatured"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt,omitempty"`
}

// Ref returns the embedded summary of p.
func (p Product) Ref() ProductRef {
	return ProductRef{ID: p.ID, Name: p.Name, Slug: p.Slug, Price: p.Price, Images: p.Images, Stock: p.Stock}
}

// ProductInput is the admin create/update body.
type ProductInput struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	ComparePrice decimal.Decimal `json:"comparePrice,omitempty"`
	Category     string          `json:"category"`
	Brand        string          `json:"brand,omitempty"`
	Sizes        []string        `json:"sizes,omitempty"`
	Colors       []string        `json:"colors,omitempty"`
	Stock        int             `json:"stock"`
	IsFeatured   bool            `json:"isFeatured"`
	IsActive     bool            `json:"isActive"`
}

// Validate runs the admin form checks.
func (in ProductInput) Validate() error {
	if in.Name == "" {
		return errors.New("product name is required")
	}
	if in.Price.IsNegative() {
		return ErrNegativePrice
	}
	if in.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	return nil
}

// Category groups products. Parent is empty for top-level categories.
type Category struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	Parent      string    `json:"parent,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// CategoryInput is the admin create/update body.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parent      string `json:"parent,omitempty"`
	IsActive    bool   `json:"isActive"`
}

// ProductQuery filters the product listing.
type ProductQuery struct {
	Page     int
	Limit    int
	Category string
	Search   string
	Sort     string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Featured bool
}

// Pagination is the listing cursor returned by the backend.
type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
	Limit int `json:"limit"`
}

// ProductPage is one page of products.
type ProductPage struct {
	Products   []Product  `json:"products"`
	Pagination Pagination `json:"pagination"`
}

// Filters are the facet values offered by the shop sidebar.
type Filters struct {
	Categories []string        `json:"categories"`
	Brands     []string        `json:"brands"`
	Sizes      []string        `json:"sizes"`
	Colors     []string        `json:"colors"`
	MinPrice   decimal.Decimal `json:"minPrice"`
	MaxPrice   decimal.Decimal `json:"maxPrice"`
}
