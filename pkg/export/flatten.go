// Package export turns catalog products into CSV export rows.
package export

import (
	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
)

// DefaultVariantTitle is the title Shopify gives the only variant of a
// product without options. It is exported as an empty variant name.
const DefaultVariantTitle = "Default Title"

// Row is one line of the export.
type Row struct {
	ProductID         int64
	VariantID         int64
	SKU               string
	ProductName       string
	VariantName       string
	InventoryQuantity int
	Price             string

	// Placeholder marks the row standing in for a product without variants.
	Placeholder bool
}

// Flatten emits one row per variant in product-then-variant order.
// A product without variants yields a single placeholder row so that every
// product appears in the export.
func Flatten(products []catalog.Product) []Row {
	rows := make([]Row, 0, len(products))

	for _, p := range products {
		if len(p.Variants) == 0 {
			rows = append(rows, Row{
				ProductID:   p.ID,
				ProductName: p.Title,
				Price:       catalog.DefaultPrice,
				Placeholder: true,
			})
			continue
		}

		for _, v := range p.Variants {
			rows = append(rows, Row{
				ProductID:         p.ID,
				VariantID:         v.ID,
				SKU:               v.SKU,
				ProductName:       p.Title,
				VariantName:       variantName(v.Title),
				InventoryQuantity: v.InventoryQuantity,
				Price:             price(v.Price),
			})
		}
	}

	return rows
}

func variantName(title string) string {
	if title == DefaultVariantTitle {
		return ""
	}
	return title
}

func price(p string) string {
	if p == "" {
		return catalog.DefaultPrice
	}
	return p
}
