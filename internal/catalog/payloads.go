package catalog

import (
	"errors"
	"fmt"
)

type productPayload struct {
	Product *Product `json:"product"`
}

func (p *productPayload) Validate() error {
	if p.Product == nil {
		return errors.New("product missing")
	}
	return p.Product.Ref().Validate()
}

type pagePayload ProductPage

func (p *pagePayload) Validate() error {
	for i, prod := range p.Products {
		if err := prod.Ref().Validate(); err != nil {
			return fmt.Errorf("products[%d]: %w", i, err)
		}
	}
	return nil
}

type productsPayload struct {
	Products []Product `json:"products"`
}

func (p *productsPayload) Validate() error {
	for i, prod := range p.Products {
		if err := prod.Ref().Validate(); err != nil {
			return fmt.Errorf("products[%d]: %w", i, err)
		}
	}
	return nil
}

type filtersPayload struct {
	Filters *Filters `json:"filters"`
}

func (p *filtersPayload) Validate() error {
	if p.Filters == nil {
		return errors.New("filters missing")
	}
	return nil
}

type categoryPayload struct {
	Category *Category `json:"category"`
}

func (p *categoryPayload) Validate() error {
	if p.Category == nil || p.Category.ID == "" {
		return errors.New("category missing")
	}
	return nil
}

type categoriesPayload struct {
	Categories []Category `json:"categories"`
}

func (p *categoriesPayload) Validate() error {
	for i, c := range p.Categories {
		if c.ID == "" {
			return fmt.Errorf("categories[%d]: id missing", i)
		}
	}
	return nil
}
