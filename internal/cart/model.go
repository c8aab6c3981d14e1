package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/catalog"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrDuplicateItem   = errors.New("duplicate cart item")
	ErrInvalidCoupon   = errors.New("invalid coupon")
)

// Variant selects a size/color option of a product. Two variants describe
// the same option when size, color and SKU all match.
type Variant struct {
	Size            string          `json:"size,omitempty"`
	Color           string          `json:"color,omitempty"`
	SKU             string          `json:"sku,omitempty"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
}

// Equal reports whether v and o identify the same option. A nil variant
// only equals another nil variant.
func (v *Variant) Equal(o *Variant) bool {
	if v == nil || o == nil {
		return v == nil && o == nil
	}
	return v.Size == o.Size && v.Color == o.Color && v.SKU == o.SKU
}

func (v *Variant) clone() *Variant {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (v *Variant) String() string {
	if v == nil {
		return "default"
	}
	return fmt.Sprintf("%s/%s", v.Size, v.Color)
}

// matches is the lookup rule for local reads: a nil query matches any variant.
func matches(item *Variant, query *Variant) bool {
	return query == nil || item.Equal(query)
}

// Item is one line of the cart.
type Item struct {
	ID       string             `json:"_id,omitempty"`
	Product  catalog.ProductRef `json:"product"`
	Quantity int                `json:"quantity"`
	Variant  *Variant           `json:"variant,omitempty"`
}

// UnitPrice is the product price plus the variant's adjustment.
func (i Item) UnitPrice() decimal.Decimal {
	price := i.Product.Price
	if i.Variant != nil {
		price = price.Add(i.Variant.PriceAdjustment)
	}
	return price
}

// LineTotal is UnitPrice times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

// Coupon is a discount applied to the whole cart.
type Coupon struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Type     CouponType      `json:"type"`
}

func (c *Coupon) validate() error {
	if c.Code == "" {
		return fmt.Errorf("%w: code missing", ErrInvalidCoupon)
	}
	if c.Discount.IsNegative() {
		return fmt.Errorf("%w: negative discount", ErrInvalidCoupon)
	}
	switch c.Type {
	case CouponPercentage, CouponFixed:
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCoupon, c.Type)
	}
}

// Cart is the server-authoritative cart document.
type Cart struct {
	ID             string    `json:"_id,omitempty"`
	Items          []Item    `json:"items"`
	Coupon         *Coupon   `json:"coupon,omitempty"`
	ShippingMethod string    `json:"shippingMethod,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero"`
}

// Validate enforces the cart invariants on data received from the server.
func (c *Cart) Validate() error {
	for i, item := range c.Items {
		if err := item.Product.Validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		for _, prev := range c.Items[:i] {
			if prev.Product.ID == item.Product.ID && prev.Variant.Equal(item.Variant) {
				return fmt.Errorf("%w: product %s variant %s", ErrDuplicateItem, item.Product.ID, item.Variant)
			}
		}
	}
	if c.Coupon != nil {
		if err := c.Coupon.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = make([]Item, len(c.Items))
	for i, item := range c.Items {
		item.Variant = item.Variant.clone()
		item.Product.Images = append([]catalog.Image(nil), item.Product.Images...)
		out.Items[i] = item
	}
	if c.Coupon != nil {
		coupon := *c.Coupon
		out.Coupon = &coupon
	}
	return &out
}

// Total is the sum of line totals before any coupon.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Discount is the coupon's reduction, never more than the total.
func (c *Cart) Discount() decimal.Decimal {
	if c == nil || c.Coupon == nil {
		return decimal.Zero
	}
	total := c.Total()
	var off decimal.Decimal
	switch c.Coupon.Type {
	case CouponPercentage:
		off = total.Mul(c.Coupon.Discount).Div(decimal.NewFromInt(100))
	case CouponFixed:
		off = c.Coupon.Discount
	}
	return decimal.Min(off, total)
}

// GrandTotal is Total minus Discount.
func (c *Cart) GrandTotal() decimal.Decimal {
	return c.Total().Sub(c.Discount())
}

// ItemCount is the sum of quantities.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// IsInCart reports whether the product (in the given variant, or any variant
// when variant is nil) is in the cart.
func (c *Cart) IsInCart(productID string, variant *Variant) bool {
	return c.find(productID, variant) >= 0
}

// ItemQuantity returns the quantity of the matching line, or the sum over all
// variants when variant is nil.
func (c *Cart) ItemQuantity(productID string, variant *Variant) int {
	if c == nil {
		return 0
	}
	n := 0
	for _, item := range c.Items {
		if item.Product.ID == productID && matches(item.Variant, variant) {
			n += item.Quantity
		}
	}
	return n
}

func (c *Cart) find(productID string, variant *Variant) int {
	if c == nil {
		return -1
	}
	for i, item := range c.Items {
		if item.Product.ID == productID && matches(item.Variant, variant) {
			return i
		}
	}
	return -1
}

// StockIssue describes one line that can no longer be fulfilled.
type StockIssue struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// ValidationReport is the result of a stock check.
type ValidationReport struct {
	Valid  bool         `json:"valid"`
	Issues []StockIssue `json:"issues"`
}

func (r *ValidationReport) Validate() error {
	if !r.Valid && len(r.Issues) == 0 {
		return errors.New("invalid report without issues")
	}
	return nil
}

// CouponRequest is the apply-coupon body.
type CouponRequest struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Type     CouponType      `json:"type"`
}

type cartPayload struct {
	Cart *Cart `json:"cart"`
}

func (p *cartPayload) Validate() error {
	if p.Cart == nil {
		return errors.New("cart missing")
	}
	return p.Cart.Validate()
}

type countPayload struct {
	Count *int `json:"count"`
}

func (p *countPayload) Validate() error {
	if p.Count == nil || *p.Count < 0 {
		return errors.New("count missing")
	}
	return nil
}
