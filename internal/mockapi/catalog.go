package mockapi

import (
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/catalog"
)

const defaultPageSize = 12

// AddProduct stores p and returns its ID. Empty IDs and slugs are generated.
func (s *Server) AddProduct(p catalog.Product) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putProduct(p)
}

func (s *Server) putProduct(p catalog.Product) string {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Slug == "" {
		p.Slug = slugify(p.Name)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.UpdatedAt = s.now()
	if _, exists := s.products[p.ID]; !exists {
		s.productOrder = append(s.productOrder, p.ID)
	}
	s.products[p.ID] = &p
	return p.ID
}

// SetStock changes a product's stock level.
func (s *Server) SetStock(productID string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.Stock = stock
	}
}

// AddCategory stores c and returns its ID.
func (s *Server) AddCategory(c catalog.Category) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putCategory(c)
}

func (s *Server) putCategory(c catalog.Category) string {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Slug == "" {
		c.Slug = slugify(c.Name)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if _, exists := s.categories[c.ID]; !exists {
		s.categoryOrder = append(s.categoryOrder, c.ID)
	}
	s.categories[c.ID] = &c
	return c.ID
}

func slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// ref returns the product summary embedded in carts and wishlists. Deleted
// products keep a placeholder so documents stay renderable. Caller holds s.mu.
func (s *Server) ref(productID string) catalog.ProductRef {
	if p, ok := s.products[productID]; ok {
		return p.Ref()
	}
	return catalog.ProductRef{ID: productID, Name: "Unavailable product"}
}

// activeProducts returns active products in insertion order. Caller holds s.mu.
func (s *Server) activeProducts() []catalog.Product {
	out := make([]catalog.Product, 0, len(s.productOrder))
	for _, p := range s.allProducts() {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

// allProducts returns every product in insertion order. Caller holds s.mu.
func (s *Server) allProducts() []catalog.Product {
	out := make([]catalog.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		if p, ok := s.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// rate recomputes the rating summary from p's reviews.
func rate(p *catalog.Product) {
	p.NumReviews = len(p.Reviews)
	if p.NumReviews == 0 {
		p.Rating = 0
		return
	}
	sum := 0
	for _, rev := range p.Reviews {
		sum += rev.Rating
	}
	p.Rating = float64(sum) / float64(p.NumReviews)
}

// ============================================
// Product handlers
// ============================================

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request, _ *caller) {
	s.mu.Lock()
	all := s.activeProducts()
	s.mu.Unlock()
	pageProducts(w, r, all)
}

// adminProducts pages every product, inactive ones included.
func (s *Server) adminProducts(w http.ResponseWriter, r *http.Request, _ *caller) {
	s.mu.Lock()
	all := s.allProducts()
	s.mu.Unlock()
	pageProducts(w, r, all)
}

// pageProducts applies the listing query to all and writes one page.
func pageProducts(w http.ResponseWriter, r *http.Request, all []catalog.Product) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultPageSize
	}

	filtered := all[:0]
	search := strings.ToLower(q.Get("search"))
	minPrice, minErr := decimal.NewFromString(q.Get("minPrice"))
	maxPrice, maxErr := decimal.NewFromString(q.Get("maxPrice"))
	for _, p := range all {
		switch {
		case q.Get("category") != "" && p.Category != q.Get("category"):
		case search != "" && !strings.Contains(strings.ToLower(p.Name), search):
		case minErr == nil && p.Price.LessThan(minPrice):
		case maxErr == nil && p.Price.GreaterThan(maxPrice):
		case q.Get("featured") == "true" && !p.IsFeatured:
		default:
			filtered = append(filtered, p)
		}
	}

	switch q.Get("sort") {
	case "price":
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Price.LessThan(filtered[j].Price) })
	case "-price":
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Price.GreaterThan(filtered[j].Price) })
	case "name":
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })
	case "newest":
		sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].CreatedAt.After(filtered[j].CreatedAt) })
	}

	total := len(filtered)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	respondJSON(w, http.StatusOK, catalog.ProductPage{
		Products: filtered[start:end],
		Pagination: catalog.Pagination{
			Page:  page,
			Pages: (total + limit - 1) / limit,
			Total: total,
			Limit: limit,
		},
	}, "")
}

func (s *Server) featuredProducts(w http.ResponseWriter, _ *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	featured := []catalog.Product{}
	for _, p := range s.activeProducts() {
		if p.IsFeatured {
			featured = append(featured, p)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"products": featured}, "")
}

func (s *Server) productFilters(w http.ResponseWriter, _ *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := catalog.Filters{Categories: []string{}, Brands: []string{}, Sizes: []string{}, Colors: []string{}}
	seen := map[string]bool{}
	add := func(list *[]string, kind, v string) {
		if v != "" && !seen[kind+v] {
			seen[kind+v] = true
			*list = append(*list, v)
		}
	}
	for i, p := range s.activeProducts() {
		add(&f.Categories, "c", p.Category)
		add(&f.Brands, "b", p.Brand)
		for _, size := range p.Sizes {
			add(&f.Sizes, "s", size)
		}
		for _, color := range p.Colors {
			add(&f.Colors, "o", color)
		}
		if i == 0 || p.Price.LessThan(f.MinPrice) {
			f.MinPrice = p.Price
		}
		if p.Price.GreaterThan(f.MaxPrice) {
			f.MaxPrice = p.Price
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"filters": f}, "")
}

func (s *Server) productBySlug(w http.ResponseWriter, r *http.Request, _ *caller) {
	slug := r.PathValue("slug")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.activeProducts() {
		if p.Slug == slug {
			respondJSON(w, http.StatusOK, map[string]any{"product": p}, "")
			return
		}
	}
	respondError(w, "Product not found", http.StatusNotFound)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[r.PathValue("id")]
	if !ok {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"product": p}, "")
}

// productSubresource serves GET /products/{id}/{sub}. Only "related" exists.
func (s *Server) productSubresource(w http.ResponseWriter, r *http.Request, c *caller) {
	if r.PathValue("sub") != "related" {
		respondError(w, "Route not found", http.StatusNotFound)
		return
	}
	s.relatedProducts(w, r, c)
}

func (s *Server) relatedProducts(w http.ResponseWriter, r *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[r.PathValue("id")]
	if !ok {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}
	related := []catalog.Product{}
	for _, other := range s.activeProducts() {
		if other.ID != p.ID && other.Category == p.Category && len(related) < 4 {
			related = append(related, other)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"products": related}, "")
}

func (s *Server) addReview(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respondError(w, "Rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[r.PathValue("id")]
	if !ok {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}
	for _, rev := range p.Reviews {
		if rev.User == c.userID() {
			respondError(w, "Product already reviewed", http.StatusBadRequest)
			return
		}
	}
	name := ""
	if u, ok := s.users[c.userID()]; ok {
		name = u.Name
	}
	p.Reviews = append(p.Reviews, catalog.Review{
		ID:        uuid.New().String(),
		User:      c.userID(),
		UserName:  name,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: s.now(),
	})
	rate(p)
	respondJSON(w, http.StatusCreated, map[string]any{"product": p}, "Review added")
}

// ownReview finds the review named in the path. Only its author or an admin
// may change it. Caller holds s.mu.
func (s *Server) ownReview(w http.ResponseWriter, r *http.Request, c *caller) (*catalog.Product, int, bool) {
	p, ok := s.products[r.PathValue("id")]
	if !ok {
		respondError(w, "Product not found", http.StatusNotFound)
		return nil, 0, false
	}
	for i, rev := range p.Reviews {
		if rev.ID != r.PathValue("reviewId") {
			continue
		}
		if rev.User != c.userID() && !c.isAdmin() {
			respondError(w, "Not authorized to modify this review", http.StatusForbidden)
			return nil, 0, false
		}
		return p, i, true
	}
	respondError(w, "Review not found", http.StatusNotFound)
	return nil, 0, false
}

func (s *Server) updateReview(w http.ResponseWriter, r *http.Request, c *caller) {
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respondError(w, "Rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, i, ok := s.ownReview(w, r, c)
	if !ok {
		return
	}
	p.Reviews[i].Rating = req.Rating
	p.Reviews[i].Comment = req.Comment
	rate(p)
	respondJSON(w, http.StatusOK, map[string]any{"product": p}, "Review updated")
}

func (s *Server) deleteReview(w http.ResponseWriter, r *http.Request, c *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, i, ok := s.ownReview(w, r, c)
	if !ok {
		return
	}
	p.Reviews = append(p.Reviews[:i], p.Reviews[i+1:]...)
	rate(p)
	respondJSON(w, http.StatusOK, map[string]any{"product": p}, "Review deleted")
}

// ============================================
// Product image handlers
// ============================================

func (s *Server) uploadImages(w http.ResponseWriter, r *http.Request, _ *caller) {
	files, ok := uploads(w, r, "images")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[r.PathValue("id")]
	if !ok {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}
	for _, fh := range files {
		publicID := uuid.New().String()
		p.Images = append(p.Images, catalog.Image{
			URL:      "/uploads/products/" + publicID + path.Ext(fh.Filename),
			PublicID: publicID,
			Alt:      fh.Filename,
		})
	}
	p.UpdatedAt = s.now()
	respondJSON(w, http.StatusOK, map[string]any{"product": p}, "Images uploaded")
}

func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[r.PathValue("id")]
	if !ok {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}
	for i, img := range p.Images {
		if img.PublicID == r.PathValue("publicId") {
			p.Images = append(p.Images[:i], p.Images[i+1:]...)
			p.UpdatedAt = s.now()
			respondJSON(w, http.StatusOK, map[string]any{"product": p}, "Image deleted")
			return
		}
	}
	respondError(w, "Image not found", http.StatusNotFound)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request, _ *caller) {
	var in catalog.ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.putProduct(productFromInput(catalog.Product{}, in))
	respondJSON(w, http.StatusCreated, map[string]any{"product": s.products[id]}, "Product created")
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request, _ *caller) {
	var in catalog.ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[r.PathValue("id")]
	if !ok {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}
	id := s.putProduct(productFromInput(*existing, in))
	respondJSON(w, http.StatusOK, map[string]any{"product": s.products[id]}, "Product updated")
}

func productFromInput(p catalog.Product, in catalog.ProductInput) catalog.Product {
	p.Name = in.Name
	p.Slug = slugify(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.ComparePrice = in.ComparePrice
	p.Category = in.Category
	p.Brand = in.Brand
	p.Sizes = in.Sizes
	p.Colors = in.Colors
	p.Stock = in.Stock
	p.IsFeatured = in.IsFeatured
	p.IsActive = in.IsActive
	return p
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := s.products[id]; !ok {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	respondJSON(w, http.StatusOK, nil, "Product deleted")
}

// ============================================
// Category handlers
// ============================================

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{"categories": s.categoryList(true)}, "")
}

func (s *Server) adminCategories(w http.ResponseWriter, _ *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{"categories": s.categoryList(false)}, "")
}

// categoryList returns categories in insertion order. Caller holds s.mu.
func (s *Server) categoryList(activeOnly bool) []catalog.Category {
	out := make([]catalog.Category, 0, len(s.categoryOrder))
	for _, id := range s.categoryOrder {
		if c := s.categories[id]; c.IsActive || !activeOnly {
			out = append(out, *c)
		}
	}
	return out
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request, _ *caller) {
	var in catalog.CategoryInput
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Name == "" {
		respondError(w, "Category name is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, in.Name) {
			respondError(w, "Category already exists", http.StatusBadRequest)
			return
		}
	}
	id := s.putCategory(catalog.Category{Name: in.Name, Description: in.Description, Parent: in.Parent, IsActive: in.IsActive})
	respondJSON(w, http.StatusCreated, map[string]any{"category": s.categories[id]}, "Category created")
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request, _ *caller) {
	var in catalog.CategoryInput
	if !decodeBody(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[r.PathValue("id")]
	if !ok {
		respondError(w, "Category not found", http.StatusNotFound)
		return
	}
	if in.Name != "" {
		c.Name = in.Name
		c.Slug = slugify(in.Name)
	}
	c.Description = in.Description
	c.Parent = in.Parent
	c.IsActive = in.IsActive
	respondJSON(w, http.StatusOK, map[string]any{"category": c}, "Category updated")
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request, _ *caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := s.categories[id]; !ok {
		respondError(w, "Category not found", http.StatusNotFound)
		return
	}
	delete(s.categories, id)
	for i, cid := range s.categoryOrder {
		if cid == id {
			s.categoryOrder = append(s.categoryOrder[:i], s.categoryOrder[i+1:]...)
			break
		}
	}
	respondJSON(w, http.StatusOK, nil, "Category deleted")
}
