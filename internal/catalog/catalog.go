// Package catalog serves the static product list. The list is embedded
// at build time and loaded once; there is no mutation path.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/luckpoint/my-cafe-demo/internal/order"
)

//go:embed products.json
var productsJSON []byte

type Product struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Category    string               `json:"category"`
	Image       string               `json:"image"`
	Price       map[order.Size]int64 `json:"price"`
	Rating      float64              `json:"rating,omitempty"`
	Reviews     int                  `json:"reviews,omitempty"`
}

// PriceFor resolves the unit price for a serving size. A product with
// no entry for the requested size falls back to its tall price; this
// single fallback rule is applied everywhere prices are resolved.
func (p *Product) PriceFor(size order.Size) int64 {
	if price, ok := p.Price[size]; ok {
		return price
	}
	return p.Price[order.SizeTall]
}

type Catalog struct {
	products []Product
	byID     map[string]*Product
}

func Load() (*Catalog, error) {
	var doc struct {
		Products []Product `json:"products"`
	}
	if err := json.Unmarshal(productsJSON, &doc); err != nil {
		return nil, fmt.Errorf("parse product catalog: %w", err)
	}

	c := &Catalog{
		products: doc.Products,
		byID:     make(map[string]*Product, len(doc.Products)),
	}
	for i := range c.products {
		c.byID[c.products[i].ID] = &c.products[i]
	}
	return c, nil
}

func (c *Catalog) All() []Product {
	return c.products
}

func (c *Catalog) ByID(id string) (*Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) ByCategory(category string) []Product {
	var result []Product
	for _, p := range c.products {
		if p.Category == category {
			result = append(result, p)
		}
	}
	return result
}
