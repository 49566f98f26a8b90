// Package testutil provides a mock Shopify Admin API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockVariant is a variant as served by the mock. Nil pointers are served
// as JSON null.
type MockVariant struct {
	ID                int64   `json:"id"`
	SKU               *string `json:"sku"`
	Title             string  `json:"title"`
	InventoryQuantity *int    `json:"inventory_quantity"`
	Price             *string `json:"price"`
}

// MockProduct is a product as served by the mock.
type MockProduct struct {
	ID       int64         `json:"id"`
	Title    string        `json:"title"`
	Variants []MockVariant `json:"variants"`
}

// MockShop is served by shop.json.
type MockShop struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	PlanName string `json:"plan_name"`
}

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockShopify is a configurable mock of the Shopify Admin REST API. It
// serves products.json with page, since_id and page_info pagination,
// products/count.json and shop.json.
type MockShopify struct {
	server *httptest.Server

	mu       sync.RWMutex
	products []MockProduct
	shop     MockShop
	handlers map[string]http.HandlerFunc

	// CallLimit is sent as X-Shopify-Shop-Api-Call-Limit.
	callLimit string

	// product list failure injection
	failFrom   int
	failCount  int
	failStatus int

	// Tracking
	productRequests []url.Values
	requestCount    int
	lastAuthUser    string
	lastAuthPass    string
	lastPath        string
}

// NewMockShopify creates a new mock Shopify server serving products.
func NewMockShopify(products []MockProduct) *MockShopify {
	mock := &MockShopify{
		handlers:  make(map[string]http.HandlerFunc),
		callLimit: "1/40",
		shop: MockShop{
			Name:     "Mock Store",
			Email:    "owner@mock-store.test",
			PlanName: "basic",
		},
	}
	mock.SetProducts(products)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastPath = r.URL.Path
		mock.lastAuthUser, mock.lastAuthPass, _ = r.BasicAuth()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "/products/count.json"):
			mock.countHandler(w, r)
		case strings.HasSuffix(r.URL.Path, "/products.json"):
			mock.productsHandler(w, r)
		case strings.HasSuffix(r.URL.Path, "/shop.json"):
			mock.shopHandler(w, r)
		default:
			mock.writeJSON(w, http.StatusNotFound, map[string]string{"errors": "Not Found"})
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockShopify) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockShopify) Close() {
	m.server.Close()
}

// Transport returns a transport that sends requests for any
// *.myshopify.com host to the mock.
func (m *MockShopify) Transport() *RewriteTransport {
	return NewRewriteTransport(m.server.URL)
}

// SetProducts replaces the catalog. Products are served in ID order.
func (m *MockShopify) SetProducts(products []MockProduct) {
	sorted := append([]MockProduct(nil), products...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = sorted
}

// SetShop configures the shop.json payload.
func (m *MockShopify) SetShop(shop MockShop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shop = shop
}

// SetCallLimit configures the X-Shopify-Shop-Api-Call-Limit header value.
func (m *MockShopify) SetCallLimit(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLimit = value
}

// FailProductRequests makes product list requests number from (1-based)
// onwards answer with status. count bounds the number of failures; 0 fails
// every request from then on.
func (m *MockShopify) FailProductRequests(from, count, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFrom = from
	m.failCount = count
	m.failStatus = status
}

// SetHandler sets a custom handler for a specific path.
func (m *MockShopify) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockShopify) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockShopify) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// ProductRequests returns the query of every product list request.
func (m *MockShopify) ProductRequests() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]url.Values(nil), m.productRequests...)
}

// LastBasicAuth returns the basic auth credentials of the last request.
func (m *MockShopify) LastBasicAuth() (user, pass string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAuthUser, m.lastAuthPass
}

// LastPath returns the path of the last request.
func (m *MockShopify) LastPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPath
}

func (m *MockShopify) productsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	m.mu.Lock()
	m.productRequests = append(m.productRequests, query)
	n := len(m.productRequests)
	failing := m.failFrom > 0 && n >= m.failFrom && (m.failCount == 0 || n < m.failFrom+m.failCount)
	status := m.failStatus
	products := m.products
	m.mu.Unlock()

	if failing {
		m.writeJSON(w, status, map[string]string{"errors": http.StatusText(status)})
		return
	}

	limit := 50
	if v := query.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 || l > 250 {
			m.writeJSON(w, http.StatusBadRequest, map[string]string{"errors": "invalid limit"})
			return
		}
		limit = l
	}

	offset := 0
	switch {
	case query.Get("page_info") != "":
		for key := range query {
			if key != "page_info" && key != "limit" && key != "fields" {
				m.writeJSON(w, http.StatusBadRequest, map[string]string{
					"errors": fmt.Sprintf("page_info - Invalid value. %s cannot be passed", key),
				})
				return
			}
		}
		o, ok := decodePageInfo(query.Get("page_info"))
		if !ok {
			m.writeJSON(w, http.StatusBadRequest, map[string]string{"errors": "page_info - Invalid value."})
			return
		}
		offset = o

	case query.Get("since_id") != "":
		sinceID, err := strconv.ParseInt(query.Get("since_id"), 10, 64)
		if err != nil {
			m.writeJSON(w, http.StatusBadRequest, map[string]string{"errors": "invalid since_id"})
			return
		}
		offset = sort.Search(len(products), func(i int) bool { return products[i].ID > sinceID })

	case query.Get("page") != "":
		page, err := strconv.Atoi(query.Get("page"))
		if err != nil || page < 1 {
			m.writeJSON(w, http.StatusBadRequest, map[string]string{"errors": "invalid page"})
			return
		}
		offset = (page - 1) * limit
	}

	end := min(offset+limit, len(products))
	pageProducts := []MockProduct{}
	if offset < len(products) {
		pageProducts = products[offset:end]
	}

	if end < len(products) {
		next := url.Values{}
		next.Set("limit", strconv.Itoa(limit))
		next.Set("page_info", encodePageInfo(end))
		link := url.URL{Scheme: "https", Host: r.Host, Path: r.URL.Path, RawQuery: next.Encode()}
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, link.String()))
	}

	m.writeJSON(w, http.StatusOK, map[string][]MockProduct{"products": pageProducts})
}

func (m *MockShopify) countHandler(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	count := len(m.products)
	m.mu.RUnlock()

	m.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (m *MockShopify) shopHandler(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	shop := m.shop
	m.mu.RUnlock()

	m.writeJSON(w, http.StatusOK, map[string]MockShop{"shop": shop})
}

func (m *MockShopify) writeJSON(w http.ResponseWriter, status int, body any) {
	m.mu.RLock()
	callLimit := m.callLimit
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if callLimit != "" {
		w.Header().Set("X-Shopify-Shop-Api-Call-Limit", callLimit)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func encodePageInfo(offset int) string {
	return "cursor-" + strconv.Itoa(offset)
}

func decodePageInfo(token string) (int, bool) {
	v, ok := strings.CutPrefix(token, "cursor-")
	if !ok {
		return 0, false
	}
	offset, err := strconv.Atoi(v)
	if err != nil || offset < 0 {
		return 0, false
	}
	return offset, true
}

// NewCatalog builds n products with IDs 1..n, each with variantsPer
// variants priced at 1.00 and stocked with 1 unit.
func NewCatalog(n, variantsPer int) []MockProduct {
	products := make([]MockProduct, 0, n)
	for i := 1; i <= n; i++ {
		p := MockProduct{ID: int64(i), Title: fmt.Sprintf("Product %d", i)}
		for j := 1; j <= variantsPer; j++ {
			sku := fmt.Sprintf("SKU-%d-%d", i, j)
			qty := 1
			price := "1.00"
			p.Variants = append(p.Variants, MockVariant{
				ID:                int64(i*1000 + j),
				SKU:               &sku,
				Title:             fmt.Sprintf("Variant %d", j),
				InventoryQuantity: &qty,
				Price:             &price,
			})
		}
		products = append(products, p)
	}
	return products
}
