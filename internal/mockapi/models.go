package mockapi

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/catalog"
)

// hashToken hashes a refresh token for storage.
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

type addressDoc struct {
	ID        string `json:"_id"`
	Label     string `json:"label,omitempty"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
	IsDefault bool   `json:"isDefault"`
}

type userRecord struct {
	ID              string       `json:"_id"`
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	Phone           string       `json:"phone,omitempty"`
	Role            string       `json:"role"`
	IsEmailVerified bool         `json:"isEmailVerified"`
	Addresses       []addressDoc `json:"addresses"`
	Avatar          string       `json:"avatar,omitempty"`
	PasswordHash    string       `json:"-"`
	CreatedAt       time.Time    `json:"createdAt"`
}

type sessionRecord struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

type variantDoc struct {
	Size            string          `json:"size,omitempty"`
	Color           string          `json:"color,omitempty"`
	SKU             string          `json:"sku,omitempty"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
}

func (v *variantDoc) same(o *variantDoc) bool {
	if v == nil || o == nil {
		return v == nil && o == nil
	}
	return v.Size == o.Size && v.Color == o.Color && v.SKU == o.SKU
}

type couponDoc struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Type     string          `json:"type"`
}

type cartLine struct {
	ID        string
	ProductID string
	Quantity  int
	Variant   *variantDoc
}

type cartRecord struct {
	ID             string
	Lines          []cartLine
	Coupon         *couponDoc
	ShippingMethod string
	UpdatedAt      time.Time
}

type cartItemView struct {
	ID       string             `json:"_id"`
	Product  catalog.ProductRef `json:"product"`
	Quantity int                `json:"quantity"`
	Variant  *variantDoc        `json:"variant,omitempty"`
}

type cartView struct {
	ID             string         `json:"_id"`
	Items          []cartItemView `json:"items"`
	Coupon         *couponDoc     `json:"coupon,omitempty"`
	ShippingMethod string         `json:"shippingMethod,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type wishItem struct {
	ID        string
	ProductID string
	Notes     string
	Priority  string
	AddedAt   time.Time
}

type wishlistRecord struct {
	ID         string
	Owner      string
	Name       string
	Items      []wishItem
	ShareToken string
	IsPublic   bool
}

type wishItemView struct {
	ID       string             `json:"_id"`
	Product  catalog.ProductRef `json:"product"`
	Notes    string             `json:"notes"`
	Priority string             `json:"priority"`
	AddedAt  time.Time          `json:"addedAt"`
}

type wishlistView struct {
	ID         string         `json:"_id"`
	Name       string         `json:"name"`
	Items      []wishItemView `json:"items"`
	ShareToken *string        `json:"shareToken"`
	IsPublic   bool           `json:"isPublic"`
}

type orderItemDoc struct {
	Product  catalog.ProductRef `json:"product"`
	Name     string             `json:"name"`
	Quantity int                `json:"quantity"`
	Price    decimal.Decimal    `json:"price"`
	Variant  *variantDoc        `json:"variant,omitempty"`
}

type shippingAddressDoc struct {
	FullName string `json:"fullName"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state,omitempty"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
	Phone    string `json:"phone,omitempty"`
}

type orderRecord struct {
	ID              string             `json:"_id"`
	OrderNumber     string             `json:"orderNumber"`
	User            string             `json:"user"`
	Items           []orderItemDoc     `json:"items"`
	ShippingAddress shippingAddressDoc `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	ShippingMethod  string             `json:"shippingMethod,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	ItemsPrice      decimal.Decimal    `json:"itemsPrice"`
	ShippingPrice   decimal.Decimal    `json:"shippingPrice"`
	TaxPrice        decimal.Decimal    `json:"taxPrice"`
	Discount        decimal.Decimal    `json:"discount"`
	TotalPrice      decimal.Decimal    `json:"totalPrice"`
	Status          string             `json:"status"`
	IsPaid          bool               `json:"isPaid"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}
