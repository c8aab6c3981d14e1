package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/catalog"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

var ErrInvalidStatus = errors.New("invalid order status")

// ShippingAddress is the delivery address copied onto an order.
type ShippingAddress struct {
	FullName string `json:"fullName"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state,omitempty"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
	Phone    string `json:"phone,omitempty"`
}

func (a ShippingAddress) Validate() error {
	if a.FullName == "" || a.Street == "" || a.City == "" || a.ZipCode == "" || a.Country == "" {
		return errors.New("shipping address is incomplete")
	}
	return nil
}

// Item is one ordered line, priced at the time of purchase.
type Item struct {
	Product  catalog.ProductRef `json:"product"`
	Name     string             `json:"name"`
	Quantity int                `json:"quantity"`
	Price    decimal.Decimal    `json:"price"`
	Variant  *cart.Variant      `json:"variant,omitempty"`
}

// Order is a placed order.
type Order struct {
	ID              string          `json:"_id"`
	OrderNumber     string          `json:"orderNumber"`
	User            string          `json:"user,omitempty"`
	Items           []Item          `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	ShippingMethod  string          `json:"shippingMethod,omitempty"`
	ItemsPrice      decimal.Decimal `json:"itemsPrice"`
	ShippingPrice   decimal.Decimal `json:"shippingPrice"`
	TaxPrice        decimal.Decimal `json:"taxPrice"`
	Discount        decimal.Decimal `json:"discount"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	Status          Status          `json:"status"`
	IsPaid          bool            `json:"isPaid"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt,omitzero"`
}

func (o *Order) Validate() error {
	if o.ID == "" {
		return errors.New("order id missing")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, o.Status)
	}
	for i, item := range o.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("items[%d]: %w", i, cart.ErrInvalidQuantity)
		}
	}
	return nil
}

// CanCancel reports whether the customer may still cancel the order.
func (o *Order) CanCancel() bool {
	return o.Status == StatusPending || o.Status == StatusProcessing
}

// CreateRequest is the body of a new order. Items come from the server-side cart.
type CreateRequest struct {
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	Notes           string          `json:"notes,omitempty"`
}

func (r CreateRequest) Validate() error {
	if err := r.ShippingAddress.Validate(); err != nil {
		return err
	}
	if r.PaymentMethod == "" {
		return errors.New("payment method is required")
	}
	return nil
}

// ListQuery pages through orders.
type ListQuery struct {
	Page   int
	Limit  int
	Status Status
}

// Pagination is the listing cursor.
type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

// Page is one page of orders.
type Page struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalOrders   int             `json:"totalOrders"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	AverageOrder  decimal.Decimal `json:"averageOrderValue"`
	StatusCounts  map[Status]int  `json:"statusCounts"`
	PendingOrders int             `json:"pendingOrders"`
}

type orderPayload struct {
	Order *Order `json:"order"`
}

func (p *orderPayload) Validate() error {
	if p.Order == nil {
		return errors.New("order missing")
	}
	return p.Order.Validate()
}

type pagePayload Page

func (p *pagePayload) Validate() error {
	for i := range p.Orders {
		if err := p.Orders[i].Validate(); err != nil {
			return fmt.Errorf("orders[%d]: %w", i, err)
		}
	}
	return nil
}

type statsPayload struct {
	Stats *Stats `json:"stats"`
}

func (p *statsPayload) Validate() error {
	if p.Stats == nil {
		return errors.New("stats missing")
	}
	return nil
}
