package mockapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	taxRate               = decimal.RequireFromString("0.08")
	freeShippingThreshold = decimal.NewFromInt(100)
	shippingRates         = map[string]decimal.Decimal{
		"standard":  decimal.NewFromInt(10),
		"express":   decimal.NewFromInt(20),
		"overnight": decimal.NewFromInt(35),
	}
	orderStatuses = map[string]bool{"pending": true, "processing": true, "shipped": true, "delivered": true, "cancelled": true}
)

func shippingPrice(method string, subtotal decimal.Decimal) decimal.Decimal {
	if method == "" {
		method = "standard"
	}
	if method == "standard" && subtotal.GreaterThanOrEqual(freeShippingThreshold) {
		return decimal.Zero
	}
	return shippingRates[method]
}

func couponDiscount(c *couponDoc, subtotal decimal.Decimal) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	off := c.Discount
	if c.Type == "percentage" {
		off = subtotal.Mul(c.Discount).Div(decimal.NewFromInt(100))
	}
	return decimal.Min(off, subtotal).Round(2)
}

// ============================================
// Order handlers
// ============================================

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		ShippingAddress shippingAddressDoc `json:"shippingAddress"`
		PaymentMethod   string             `json:"paymentMethod"`
		Notes           string             `json:"notes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	addr := req.ShippingAddress
	if addr.FullName == "" || addr.Street == "" || addr.City == "" || addr.ZipCode == "" || addr.Country == "" {
		respondError(w, "Shipping address is incomplete", http.StatusBadRequest)
		return
	}
	if req.PaymentMethod == "" {
		respondError(w, "Payment method is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cartFor(c.owner())
	if len(cart.Lines) == 0 {
		respondError(w, "Cart is empty", http.StatusBadRequest)
		return
	}

	items := make([]orderItemDoc, 0, len(cart.Lines))
	subtotal := decimal.Zero
	for _, line := range cart.Lines {
		p, ok := s.products[line.ProductID]
		if !ok || !p.IsActive {
			respondError(w, "A product in your cart is no longer available", http.StatusBadRequest)
			return
		}
		if cart.quantityOf(p.ID, -1) > p.Stock {
			respondError(w, "Insufficient stock for "+p.Name, http.StatusBadRequest)
			return
		}
		price := p.Price
		if line.Variant != nil {
			price = price.Add(line.Variant.PriceAdjustment)
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		items = append(items, orderItemDoc{Product: p.Ref(), Name: p.Name, Quantity: line.Quantity, Price: price, Variant: line.Variant})
	}
	for _, line := range cart.Lines {
		s.products[line.ProductID].Stock -= line.Quantity
	}

	discount := couponDiscount(cart.Coupon, subtotal)
	shipping := shippingPrice(cart.ShippingMethod, subtotal)
	tax := subtotal.Sub(discount).Mul(taxRate).Round(2)
	now := s.now()
	order := &orderRecord{
		ID:              uuid.New().String(),
		OrderNumber:     "ORD-" + strings.ToUpper(uuid.New().String()[:8]),
		User:            c.userID(),
		Items:           items,
		ShippingAddress: addr,
		PaymentMethod:   req.PaymentMethod,
		ShippingMethod:  cart.ShippingMethod,
		Notes:           req.Notes,
		ItemsPrice:      subtotal,
		ShippingPrice:   shipping,
		TaxPrice:        tax,
		Discount:        discount,
		TotalPrice:      subtotal.Sub(discount).Add(shipping).Add(tax),
		Status:          "pending",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.orders[order.ID] = order
	s.orderOrder = append(s.orderOrder, order.ID)

	cart.Lines = nil
	cart.Coupon = nil
	cart.UpdatedAt = now
	respondJSON(w, http.StatusCreated, map[string]any{"order": order}, "Order placed successfully")
}

// pageOrders filters and pages orders newest first. Caller holds s.mu.
func (s *Server) pageOrders(r *http.Request, keep func(*orderRecord) bool) map[string]any {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 10
	}

	matched := []orderRecord{}
	for _, id := range s.orderOrder {
		o := s.orders[id]
		if keep(o) && (q.Get("status") == "" || o.Status == q.Get("status")) {
			matched = append(matched, *o)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	return map[string]any{
		"orders":     matched[start:end],
		"pagination": map[string]int{"page": page, "pages": (total + limit - 1) / limit, "total": total},
	}
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	respondJSON(w, http.StatusOK, s.pageOrders(r, func(o *orderRecord) bool { return o.User == c.userID() }), "")
}

func (s *Server) allOrders(w http.ResponseWriter, r *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	respondJSON(w, http.StatusOK, s.pageOrders(r, func(*orderRecord) bool { return true }), "")
}

// visibleOrder returns the order if the caller owns it or is an admin. Caller holds s.mu.
func (s *Server) visibleOrder(w http.ResponseWriter, r *http.Request, c *caller) (*orderRecord, bool) {
	o, ok := s.orders[r.PathValue("id")]
	if !ok || (o.User != c.userID() && !c.isAdmin()) {
		respondError(w, "Order not found", http.StatusNotFound)
		return nil, false
	}
	return o, true
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.visibleOrder(w, r, c); ok {
		respondJSON(w, http.StatusOK, map[string]any{"order": o}, "")
	}
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.visibleOrder(w, r, c)
	if !ok {
		return
	}
	if o.Status != "pending" && o.Status != "processing" {
		respondError(w, "Order cannot be cancelled", http.StatusBadRequest)
		return
	}
	for _, item := range o.Items {
		if p, ok := s.products[item.Product.ID]; ok {
			p.Stock += item.Quantity
		}
	}
	o.Status = "cancelled"
	o.UpdatedAt = s.now()
	respondJSON(w, http.StatusOK, map[string]any{"order": o}, "Order cancelled")
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !orderStatuses[req.Status] {
		respondError(w, "Invalid order status", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.visibleOrder(w, r, c)
	if !ok {
		return
	}
	o.Status = req.Status
	if req.Status == "delivered" {
		o.IsPaid = true
	}
	o.UpdatedAt = s.now()
	respondJSON(w, http.StatusOK, map[string]any{"order": o}, "Order status updated")
}

func (s *Server) orderStats(w http.ResponseWriter, _ *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	revenue := decimal.Zero
	for _, o := range s.orders {
		counts[o.Status]++
		if o.Status != "cancelled" {
			revenue = revenue.Add(o.TotalPrice)
		}
	}
	average := decimal.Zero
	if billable := len(s.orders) - counts["cancelled"]; billable > 0 {
		average = revenue.Div(decimal.NewFromInt(int64(billable))).Round(2)
	}
	respondJSON(w, http.StatusOK, map[string]any{"stats": map[string]any{
		"totalOrders":       len(s.orders),
		"totalRevenue":      revenue,
		"averageOrderValue": average,
		"statusCounts":      counts,
		"pendingOrders":     counts["pending"],
	}}, "")
}
