// Package catalog defines the product records exchanged between the catalog
// source adapter, the pagination aggregator and the CSV export, together with
// the error taxonomy shared by those layers.
package catalog

// Product is a single product as returned by the catalog source.
type Product struct {
	ID       int64
	Title    string
	Variants []Variant
}

// Variant is a purchasable variant of a product.
// Null upstream values are normalised by the adapter: SKU to "",
// InventoryQuantity to 0 and Price to "0.00".
type Variant struct {
	ID                int64
	SKU               string
	Title             string
	InventoryQuantity int
	Price             string
}

// Shop describes the store behind the configured credentials.
type Shop struct {
	Name     string
	Email    string
	PlanName string
}

// DefaultPrice is used for variants without a price.
const DefaultPrice = "0.00"
