package export

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
)

// Mode selects the column set of the export.
type Mode string

const (
	// ModeBasic exports SKU, product name, variant name and stock.
	ModeBasic Mode = "basic"

	// ModeFull adds product id, variant id and price.
	ModeFull Mode = "full"
)

// ParseMode validates a mode name. An empty name yields def.
func ParseMode(name string, def Mode) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return def, nil
	case ModeBasic:
		return ModeBasic, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown export mode %q (want %s or %s)", name, ModeBasic, ModeFull)
	}
}

// Header returns the header line of the mode, without terminator.
func (m Mode) Header() string {
	if m == ModeFull {
		return "ID,Variant_ID,SKU,Nome_do_Produto,Variação,Quantidade,Preço"
	}
	return "SKU,Nome do Produto,Variação,Quantidade em Estoque"
}

// Serialize renders rows as CSV.
func Serialize(mode Mode, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, mode, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes the header and one line per row to w.
//
// Product names are always quoted, variant names whenever they are not
// empty, and SKUs only when they contain a quote, comma or line break.
// Embedded quotes are doubled. Numeric columns are never quoted. Lines end
// with "\n".
func WriteCSV(w io.Writer, mode Mode, rows []Row) error {
	bw := bufio.NewWriter(w)

	bw.WriteString(mode.Header())
	bw.WriteByte('\n')

	for i, r := range rows {
		for _, f := range [...]struct{ name, value string }{
			{"sku", r.SKU},
			{"product_name", r.ProductName},
			{"variant_name", r.VariantName},
		} {
			if !utf8.ValidString(f.value) {
				return &catalog.SerializationError{Row: i + 1, Field: f.name, Err: catalog.ErrInvalidUTF8}
			}
		}

		if mode == ModeFull {
			bw.WriteString(strconv.FormatInt(r.ProductID, 10))
			bw.WriteByte(',')
			if !r.Placeholder {
				bw.WriteString(strconv.FormatInt(r.VariantID, 10))
			}
			bw.WriteByte(',')
		}

		bw.WriteString(skuField(r.SKU))
		bw.WriteByte(',')
		bw.WriteString(quote(r.ProductName))
		bw.WriteByte(',')
		if r.VariantName != "" {
			bw.WriteString(quote(r.VariantName))
		}
		bw.WriteByte(',')
		bw.WriteString(strconv.Itoa(r.InventoryQuantity))

		if mode == ModeFull {
			bw.WriteByte(',')
			bw.WriteString(r.Price)
		}
		bw.WriteByte('\n')
	}

	if err := bw.Flush(); err != nil {
		return &catalog.SerializationError{Row: len(rows), Err: err}
	}
	return nil
}

// quote wraps s in double quotes, doubling embedded quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func skuField(s string) string {
	if strings.ContainsAny(s, "\",\r\n") {
		return quote(s)
	}
	return s
}
