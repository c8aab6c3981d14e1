// Package catalog reads products and categories and exposes the admin
// catalog operations.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/example/ec-storefront/internal/apiclient"
)

// API is the subset of the HTTP client the catalog needs.
type API interface {
	Do(ctx context.Context, r apiclient.Request, out apiclient.Payload) (*apiclient.Response, error)
}

// Service wraps the catalog endpoints.
type Service struct {
	api API
}

func NewService(api API) *Service {
	return &Service{api: api}
}

// Products lists one page of active products.
func (s *Service) Products(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	return s.page(ctx, "/products", q)
}

// AdminProducts lists every product, inactive ones included. Admin only.
func (s *Service) AdminProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	return s.page(ctx, "/admin/products", q)
}

func (s *Service) page(ctx context.Context, path string, q ProductQuery) (*ProductPage, error) {
	var out pagePayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path, Query: q.values()}, &out); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	page := ProductPage(out)
	return &page, nil
}

// Product fetches one product by ID.
func (s *Service) Product(ctx context.Context, id string) (*Product, error) {
	return s.getProduct(ctx, "/products/"+apiclient.PathEscape(id))
}

// ProductBySlug fetches one product by its URL slug.
func (s *Service) ProductBySlug(ctx context.Context, slug string) (*Product, error) {
	return s.getProduct(ctx, "/products/slug/"+apiclient.PathEscape(slug))
}

func (s *Service) getProduct(ctx context.Context, path string) (*Product, error) {
	var out productPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path}, &out); err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return out.Product, nil
}

// Featured lists featured products.
func (s *Service) Featured(ctx context.Context) ([]Product, error) {
	return s.listProducts(ctx, "/products/featured")
}

// Related lists products related to id.
func (s *Service) Related(ctx context.Context, id string) ([]Product, error) {
	return s.listProducts(ctx, "/products/"+apiclient.PathEscape(id)+"/related")
}

func (s *Service) listProducts(ctx context.Context, path string) ([]Product, error) {
	var out productsPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path}, &out); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return out.Products, nil
}

// Filters returns the available facet values.
func (s *Service) Filters(ctx context.Context) (*Filters, error) {
	var out filtersPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/products/filters/all"}, &out); err != nil {
		return nil, fmt.Errorf("failed to get filters: %w", err)
	}
	return out.Filters, nil
}

// AddReview posts a review and returns the updated product.
func (s *Service) AddReview(ctx context.Context, productID string, rating int, comment string) (*Product, error) {
	if err := validateRating(rating); err != nil {
		return nil, err
	}
	body := map[string]any{"rating": rating, "comment": comment}
	return s.productCall(ctx, apiclient.Request{Method: http.MethodPost, Path: reviewsPath(productID), Body: body}, "add review")
}

// UpdateReview edits one of the caller's reviews.
func (s *Service) UpdateReview(ctx context.Context, productID, reviewID string, rating int, comment string) (*Product, error) {
	if err := validateRating(rating); err != nil {
		return nil, err
	}
	body := map[string]any{"rating": rating, "comment": comment}
	path := reviewsPath(productID) + "/" + apiclient.PathEscape(reviewID)
	return s.productCall(ctx, apiclient.Request{Method: http.MethodPut, Path: path, Body: body}, "update review")
}

// DeleteReview removes a review. Authors may delete their own; admins any.
func (s *Service) DeleteReview(ctx context.Context, productID, reviewID string) (*Product, error) {
	path := reviewsPath(productID) + "/" + apiclient.PathEscape(reviewID)
	return s.productCall(ctx, apiclient.Request{Method: http.MethodDelete, Path: path}, "delete review")
}

func reviewsPath(productID string) string {
	return "/products/" + apiclient.PathEscape(productID) + "/reviews"
}

func validateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w, got %d", ErrInvalidRating, rating)
	}
	return nil
}

func (s *Service) productCall(ctx context.Context, req apiclient.Request, what string) (*Product, error) {
	var out productPayload
	if _, err := s.api.Do(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return out.Product, nil
}

// CreateProduct is an admin operation.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out productPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: "/products", Body: in}, &out); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return out.Product, nil
}

// UpdateProduct is an admin operation.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out productPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Path: "/products/" + apiclient.PathEscape(id), Body: in}, &out); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return out.Product, nil
}

// DeleteProduct is an admin operation.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Path: "/products/" + apiclient.PathEscape(id)}, nil); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// UploadImages attaches images to a product. Admin only.
func (s *Service) UploadImages(ctx context.Context, productID string, files []apiclient.File) (*Product, error) {
	if len(files) == 0 {
		return nil, ErrNoImages
	}
	body := apiclient.Multipart{Field: "images", Files: files}
	path := "/products/" + apiclient.PathEscape(productID) + "/images"
	return s.productCall(ctx, apiclient.Request{Method: http.MethodPost, Path: path, Body: body}, "upload images")
}

// DeleteImage removes the image stored under publicID. Admin only.
func (s *Service) DeleteImage(ctx context.Context, productID, publicID string) (*Product, error) {
	path := "/products/" + apiclient.PathEscape(productID) + "/images/" + apiclient.PathEscape(publicID)
	return s.productCall(ctx, apiclient.Request{Method: http.MethodDelete, Path: path}, "delete image")
}

// Categories lists the active categories shown in the shop.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	var out categoriesPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/categories"}, &out); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return out.Categories, nil
}

// AdminCategories lists every category, inactive ones included. Admin only.
func (s *Service) AdminCategories(ctx context.Context) ([]Category, error) {
	var out categoriesPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/admin/categories"}, &out); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return out.Categories, nil
}

// CreateCategory is an admin operation.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("category name is required")
	}
	var out categoryPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: "/admin/categories", Body: in}, &out); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return out.Category, nil
}

// UpdateCategory is an admin operation.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*Category, error) {
	var out categoryPayload
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Path: "/admin/categories/" + apiclient.PathEscape(id), Body: in}, &out); err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return out.Category, nil
}

// DeleteCategory is an admin operation.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := s.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Path: "/admin/categories/" + apiclient.PathEscape(id)}, nil); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.MinPrice != nil {
		v.Set("minPrice", q.MinPrice.String())
	}
	if q.MaxPrice != nil {
		v.Set("maxPrice", q.MaxPrice.String())
	}
	if q.Featured {
		v.Set("featured", "true")
	}
	return v
}
