// Package orders places and tracks orders.
package orders

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/example/ec-storefront/internal/apiclient"
)

// API is the subset of the HTTP client the service needs.
type API interface {
	Do(ctx context.Context, r apiclient.Request, out apiclient.Payload) (*apiclient.Response, error)
}

// Service wraps the order endpoints.
type Service struct {
	api API
}

func NewService(api API) *Service {
	return &Service{api: api}
}

// Create places an order from the user's server-side cart.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.orderCall(ctx, apiclient.Request{Method: http.MethodPost, Path: "/orders", Body: req}, "create order")
}

// List returns the caller's orders.
func (s *Service) List(ctx context.Context, q ListQuery) (*Page, error) {
	return s.page(ctx, "/orders", q)
}

// Get returns one of the caller's orders.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orderCall(ctx, apiclient.Request{Method: http.MethodGet, Path: "/orders/" + apiclient.PathEscape(id)}, "get order")
}

// Cancel cancels a pending or processing order.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	path := "/orders/" + apiclient.PathEscape(id) + "/cancel"
	return s.orderCall(ctx, apiclient.Request{Method: http.MethodPut, Path: path}, "cancel order")
}

// Stats is an admin operation.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var out statsPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/orders/admin/stats"}, &out); err != nil {
		return nil, fmt.Errorf("failed to get order stats: %w", err)
	}
	return out.Stats, nil
}

// All lists every order. Admin operation.
func (s *Service) All(ctx context.Context, q ListQuery) (*Page, error) {
	return s.page(ctx, "/orders/admin/all", q)
}

// UpdateStatus is an admin operation.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	path := "/orders/" + apiclient.PathEscape(id) + "/status"
	body := map[string]Status{"status": status}
	return s.orderCall(ctx, apiclient.Request{Method: http.MethodPut, Path: path, Body: body}, "update order status")
}

func (s *Service) orderCall(ctx context.Context, req apiclient.Request, what string) (*Order, error) {
	var out orderPayload
	if _, err := s.api.Do(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return out.Order, nil
}

func (s *Service) page(ctx context.Context, path string, q ListQuery) (*Page, error) {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}

	var out pagePayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path, Query: v}, &out); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	page := Page(out)
	return &page, nil
}
