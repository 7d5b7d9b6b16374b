package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gitshopapp/storefront/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

// Catalog is an immutable in-memory product index.
type Catalog struct {
	shop     ShopConfig
	products []Product
	byID     map[string]Product
}

func Load(path string) (*Catalog, error) {
	file, err := NewParser().ParseFile(path)
	if err != nil {
		return nil, err
	}
	return New(file)
}

func New(file *File) (*Catalog, error) {
	if err := NewValidator().Validate(file); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	c := &Catalog{
		shop:     file.Shop,
		products: append([]Product(nil), file.Products...),
		byID:     make(map[string]Product, len(file.Products)),
	}
	for _, product := range file.Products {
		c.byID[product.ID] = product
	}
	return c, nil
}

func (c *Catalog) Shop() ShopConfig {
	return c.shop
}

// Products returns the active products in file order.
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.products))
	for _, product := range c.products {
		if product.Active {
			out = append(out, product)
		}
	}
	return out
}

// FindByID returns an active product. Inactive products are treated as
// missing so they cannot be bought.
func (c *Catalog) FindByID(_ context.Context, id string) (Product, error) {
	product, ok := c.byID[id]
	if !ok || !product.Active {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return product, nil
}

// Snapshot freezes the product into an order line.
func (p Product) Snapshot(quantity int) models.LineItem {
	return models.LineItem{
		ProductID:  p.ID,
		Code:       p.Code,
		Name:       p.Name,
		Thumbnail:  p.Thumbnail,
		Quantity:   quantity,
		UnitPrice:  p.Price,
		UnitWeight: p.Weight,
	}
}

// ParseQuantity reads a form or JSON quantity. Anything that is not a
// positive whole number yields 1.
func ParseQuantity(value any) int {
	switch v := value.(type) {
	case int:
		if v > 0 {
			return v
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
			return i
		}
	case float64:
		if v > 0 && v == float64(int(v)) {
			return int(v)
		}
	}

	return 1
}
