package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/apiclient"
)

// mockAPI records requests and answers with a canned data payload.
type mockAPI struct {
	requests []apiclient.Request
	data     string
	err      error
}

func (m *mockAPI) Do(_ context.Context, r apiclient.Request, out apiclient.Payload) (*apiclient.Response, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return nil, m.err
	}
	if out != nil {
		if err := json.Unmarshal([]byte(m.data), out); err != nil {
			return nil, err
		}
		if err := out.Validate(); err != nil {
			return nil, err
		}
	}
	return &apiclient.Response{Status: http.StatusOK}, nil
}

func (m *mockAPI) last() apiclient.Request {
	return m.requests[len(m.requests)-1]
}

// ============================================
// Product reads
// ============================================

func TestProducts_EncodesQuery(t *testing.T) {
	api := &mockAPI{data: `{"products":[{"_id":"p1","name":"Coat","price":"120.00"}],"pagination":{"page":2,"pages":3,"total":25,"limit":10}}`}
	svc := NewService(api)

	floor := decimal.NewFromInt(50)
	page, err := svc.Products(context.Background(), ProductQuery{Page: 2, Limit: 10, Category: "outerwear", MinPrice: &floor, Featured: true})
	require.NoError(t, err)

	require.Len(t, page.Products, 1)
	assert.True(t, decimal.RequireFromString("120").Equal(page.Products[0].Price))
	assert.Equal(t, 3, page.Pagination.Pages)

	req := api.last()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/products", req.Path)
	assert.Equal(t, "2", req.Query.Get("page"))
	assert.Equal(t, "outerwear", req.Query.Get("category"))
	assert.Equal(t, "50", req.Query.Get("minPrice"))
	assert.Equal(t, "true", req.Query.Get("featured"))
	assert.Empty(t, req.Query.Get("maxPrice"))
}

func TestProducts_RejectsProductWithoutID(t *testing.T) {
	api := &mockAPI{data: `{"products":[{"name":"Ghost","price":"1"}]}`}
	_, err := NewService(api).Products(context.Background(), ProductQuery{})
	assert.ErrorIs(t, err, ErrMissingProductID)
}

func TestProductBySlug_EscapesPath(t *testing.T) {
	api := &mockAPI{data: `{"product":{"_id":"p1","name":"Coat","price":"10"}}`}
	p, err := NewService(api).ProductBySlug(context.Background(), "wool coat")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "/products/slug/wool%20coat", api.last().Path)
}

func TestProduct_Ref(t *testing.T) {
	p := Product{ID: "p1", Name: "Coat", Slug: "coat", Price: decimal.NewFromInt(10), Stock: 4}
	ref := p.Ref()
	assert.Equal(t, "p1", ref.ID)
	assert.Equal(t, 4, ref.Stock)
	assert.NoError(t, ref.Validate())
}

func TestProductRef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ref     ProductRef
		wantErr error
	}{
		{"valid", ProductRef{ID: "p1", Price: decimal.NewFromInt(1)}, nil},
		{"missing id", ProductRef{Price: decimal.NewFromInt(1)}, ErrMissingProductID},
		{"negative price", ProductRef{ID: "p1", Price: decimal.NewFromInt(-1)}, ErrNegativePrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadPaths(t *testing.T) {
	tests := []struct {
		name string
		data string
		call func(*Service) error
		path string
	}{
		{"related", `{"products":[]}`, func(s *Service) error {
			_, err := s.Related(context.Background(), "p/1")
			return err
		}, "/products/p%2F1/related"},
		{"filters", `{"filters":{"categories":[],"brands":[],"sizes":[],"colors":[],"minPrice":"0","maxPrice":"0"}}`, func(s *Service) error {
			_, err := s.Filters(context.Background())
			return err
		}, "/products/filters/all"},
		{"admin products", `{"products":[],"pagination":{"page":1,"pages":0,"total":0,"limit":12}}`, func(s *Service) error {
			_, err := s.AdminProducts(context.Background(), ProductQuery{Page: 1})
			return err
		}, "/admin/products"},
		{"admin categories", `{"categories":[]}`, func(s *Service) error {
			_, err := s.AdminCategories(context.Background())
			return err
		}, "/admin/categories"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{data: tt.data}
			require.NoError(t, tt.call(NewService(api)))
			assert.Equal(t, http.MethodGet, api.last().Method)
			assert.Equal(t, tt.path, api.last().Path)
		})
	}
}

// ============================================
// Reviews
// ============================================

func TestAddReview_RatingOutOfRange(t *testing.T) {
	api := &mockAPI{}
	_, err := NewService(api).AddReview(context.Background(), "p1", 6, "great")
	assert.ErrorIs(t, err, ErrInvalidRating)
	assert.Empty(t, api.requests)
}

func TestUpdateReview(t *testing.T) {
	api := &mockAPI{data: `{"product":{"_id":"p1","name":"Coat","price":"120","rating":4,"numReviews":1}}`}
	p, err := NewService(api).UpdateReview(context.Background(), "p1", "r1", 4, "warm")
	require.NoError(t, err)
	assert.Equal(t, 4.0, p.Rating)

	req := api.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/products/p1/reviews/r1", req.Path)
	assert.Equal(t, map[string]any{"rating": 4, "comment": "warm"}, req.Body)
}

func TestUpdateReview_RatingOutOfRange(t *testing.T) {
	api := &mockAPI{}
	_, err := NewService(api).UpdateReview(context.Background(), "p1", "r1", 0, "")
	assert.ErrorIs(t, err, ErrInvalidRating)
	assert.Empty(t, api.requests)
}

func TestDeleteReview_WrapsError(t *testing.T) {
	api := &mockAPI{err: &apiclient.APIError{Status: http.StatusForbidden, Message: "Not authorized to modify this review"}}
	_, err := NewService(api).DeleteReview(context.Background(), "p1", "r1")
	assert.True(t, apiclient.IsStatus(err, http.StatusForbidden))
	assert.Equal(t, http.MethodDelete, api.last().Method)
	assert.Equal(t, "/products/p1/reviews/r1", api.last().Path)
}

// ============================================
// Admin operations
// ============================================

func TestCreateProduct_ValidatesBeforeSending(t *testing.T) {
	api := &mockAPI{}
	_, err := NewService(api).CreateProduct(context.Background(), ProductInput{Price: decimal.NewFromInt(5)})
	assert.Error(t, err)
	assert.Empty(t, api.requests)
}

func TestCreateProduct(t *testing.T) {
	api := &mockAPI{data: `{"product":{"_id":"p9","name":"Scarf","price":"35"}}`}
	p, err := NewService(api).CreateProduct(context.Background(), ProductInput{Name: "Scarf", Price: decimal.NewFromInt(35), Stock: 3})
	require.NoError(t, err)
	assert.Equal(t, "p9", p.ID)
	assert.Equal(t, http.MethodPost, api.last().Method)
}

func TestUploadImages_SendsMultipart(t *testing.T) {
	api := &mockAPI{data: `{"product":{"_id":"p1","name":"Coat","price":"120","images":[{"url":"/uploads/products/a.jpg","public_id":"a"}]}}`}
	files := []apiclient.File{{Name: "a.jpg", Content: []byte("jpeg")}}
	p, err := NewService(api).UploadImages(context.Background(), "p1", files)
	require.NoError(t, err)
	require.Len(t, p.Images, 1)
	assert.Equal(t, "a", p.Images[0].PublicID)

	req := api.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/products/p1/images", req.Path)
	assert.Equal(t, apiclient.Multipart{Field: "images", Files: files}, req.Body)
}

func TestUploadImages_NoFiles(t *testing.T) {
	api := &mockAPI{}
	_, err := NewService(api).UploadImages(context.Background(), "p1", nil)
	assert.ErrorIs(t, err, ErrNoImages)
	assert.Empty(t, api.requests)
}

func TestDeleteImage(t *testing.T) {
	api := &mockAPI{data: `{"product":{"_id":"p1","name":"Coat","price":"120"}}`}
	_, err := NewService(api).DeleteImage(context.Background(), "p1", "img 1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, api.last().Method)
	assert.Equal(t, "/products/p1/images/img%201", api.last().Path)
}

func TestDeleteCategory_WrapsError(t *testing.T) {
	api := &mockAPI{err: &apiclient.APIError{Status: http.StatusForbidden, Message: "Admin access required"}}
	err := NewService(api).DeleteCategory(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, apiclient.IsStatus(err, http.StatusForbidden))
	assert.Equal(t, "/admin/categories/c1", api.last().Path)
	assert.Equal(t, "Admin access required", apiclient.Message(err, "fallback"))
}

func TestCategories(t *testing.T) {
	api := &mockAPI{data: `{"categories":[{"_id":"c1","name":"Coats","slug":"coats","isActive":true}]}`}
	cats, err := NewService(api).Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "coats", cats[0].Slug)
}

func TestCategories_MalformedPayload(t *testing.T) {
	api := &mockAPI{data: `{"categories":[{"name":"Nameless"}]}`}
	_, err := NewService(api).Categories(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingProductID))
}
