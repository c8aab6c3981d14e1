package mockapi

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/catalog"
)

// Demo accounts created by Seed.
const (
	DemoEmail     = "demo@luxe.shop"
	DemoPassword  = "demo1234"
	AdminEmail    = "admin@luxe.shop"
	AdminPassword = "admin1234"
)

type seedProduct struct {
	name     string
	category string
	price    string
	stock    int
	featured bool
	sizes    []string
	colors   []string
}

var seedProducts = []seedProduct{
	{"Classic Leather Jacket", "Outerwear", "249.99", 12, true, []string{"S", "M", "L", "XL"}, []string{"Black", "Brown"}},
	{"Wool Overcoat", "Outerwear", "319.00", 6, false, []string{"M", "L"}, []string{"Camel", "Charcoal"}},
	{"Silk Evening Dress", "Dresses", "189.50", 8, true, []string{"XS", "S", "M"}, []string{"Emerald", "Black"}},
	{"Linen Summer Dress", "Dresses", "79.00", 20, false, []string{"S", "M", "L"}, []string{"White", "Sky"}},
	{"Cashmere Scarf", "Accessories", "59.99", 30, true, nil, []string{"Grey", "Navy"}},
	{"Leather Belt", "Accessories", "35.00", 3, false, []string{"85", "90", "95"}, []string{"Black"}},
}

// Seed fills the server with demo categories, products and two accounts, a
// verified customer and an admin. It returns the product IDs in seed order.
func (s *Server) Seed() ([]string, error) {
	if _, err := s.AddUser(SeedUser{Name: "Demo Customer", Email: DemoEmail, Password: DemoPassword, Verified: true}); err != nil {
		return nil, fmt.Errorf("failed to seed demo user: %w", err)
	}
	if _, err := s.AddUser(SeedUser{Name: "Store Admin", Email: AdminEmail, Password: AdminPassword, Role: auth.RoleAdmin, Verified: true}); err != nil {
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	}

	categories := map[string]string{}
	ids := make([]string, 0, len(seedProducts))
	for _, sp := range seedProducts {
		if _, ok := categories[sp.category]; !ok {
			categories[sp.category] = s.AddCategory(catalog.Category{Name: sp.category, IsActive: true})
		}
		ids = append(ids, s.AddProduct(catalog.Product{
			Name:        sp.name,
			Description: sp.name + " from the Luxe collection.",
			Price:       decimal.RequireFromString(sp.price),
			Category:    categories[sp.category],
			Sizes:       sp.sizes,
			Colors:      sp.colors,
			Stock:       sp.stock,
			IsFeatured:  sp.featured,
			IsActive:    true,
		}))
	}
	return ids, nil
}
