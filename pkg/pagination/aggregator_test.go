package pagination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
)

// fakeSource serves pages through serve and records every call.
type fakeSource struct {
	serve   func(call, limit int, cursor Cursor) (Page, error)
	calls   int
	cursors []Cursor
}

func (f *fakeSource) ListProducts(_ context.Context, limit int, cursor Cursor) (Page, error) {
	f.calls++
	f.cursors = append(f.cursors, cursor)
	return f.serve(f.calls, limit, cursor)
}

// countingSource adds CountProducts to fakeSource.
type countingSource struct {
	*fakeSource
	total int
	err   error
}

func (c *countingSource) CountProducts(context.Context) (int, error) {
	return c.total, c.err
}

func makeProducts(from, to int64) []catalog.Product {
	var out []catalog.Product
	for id := from; id <= to; id++ {
		out = append(out, catalog.Product{ID: id, Title: fmt.Sprintf("Product %d", id)})
	}
	return out
}

// catalogSource serves products in id order and understands all three
// cursor kinds. Tokens have the form "off:<offset>".
func catalogSource(products []catalog.Product, withTokens bool) *fakeSource {
	return &fakeSource{serve: func(_ int, limit int, cursor Cursor) (Page, error) {
		offset := 0
		switch {
		case cursor.Token != "":
			n, err := strconv.Atoi(strings.TrimPrefix(cursor.Token, "off:"))
			if err != nil {
				return Page{}, err
			}
			offset = n
		case cursor.Page > 0:
			offset = (cursor.Page - 1) * limit
		case cursor.SinceID > 0:
			offset = len(products)
			for i, p := range products {
				if p.ID > cursor.SinceID {
					offset = i
					break
				}
			}
		}

		if offset > len(products) {
			offset = len(products)
		}
		end := offset + limit
		if end > len(products) {
			end = len(products)
		}

		page := Page{Products: products[offset:end]}
		if withTokens && end < len(products) {
			page.NextToken = "off:" + strconv.Itoa(end)
		}
		return page, nil
	}}
}

// sizedSource serves pages of the given sizes with increasing ids.
func sizedSource(sizes ...int) *fakeSource {
	next := int64(1)
	return &fakeSource{serve: func(call, _ int, _ Cursor) (Page, error) {
		if call > len(sizes) {
			return Page{}, nil
		}
		n := int64(sizes[call-1])
		page := Page{Products: makeProducts(next, next+n-1)}
		next += n
		if call < len(sizes) {
			page.NextToken = "t" + strconv.Itoa(call)
		}
		return page, nil
	}}
}

func ids(products []catalog.Product) []int64 {
	out := make([]int64, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewAggregator_Defaults(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantSize int
		wantMax  int
	}{
		{name: "zero config", config: Config{}, wantSize: 250, wantMax: 100},
		{name: "page size above maximum", config: Config{PageSize: 1000, MaxPages: 5}, wantSize: 250, wantMax: 5},
		{name: "explicit values", config: Config{PageSize: 50, MaxPages: 10}, wantSize: 50, wantMax: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(&fakeSource{}, nil, tt.config)
			cfg := agg.Config()
			if cfg.PageSize != tt.wantSize {
				t.Errorf("PageSize = %d, want %d", cfg.PageSize, tt.wantSize)
			}
			if cfg.MaxPages != tt.wantMax {
				t.Errorf("MaxPages = %d, want %d", cfg.MaxPages, tt.wantMax)
			}
		})
	}
}

func TestFetchAll_StopsOnShortPage(t *testing.T) {
	src := sizedSource(250, 250, 40)
	agg := NewAggregator(src, PageInfoStrategy{}, Config{PageSize: 250, MaxPages: 100})

	result, err := agg.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if src.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", src.calls)
	}
	if len(result.Products) != 540 {
		t.Errorf("products = %d, want 540", len(result.Products))
	}
	if result.Pages != 3 {
		t.Errorf("Pages = %d, want 3", result.Pages)
	}
	if result.Truncated {
		t.Error("Truncated should be false")
	}
}

func TestFetchAll_AllStrategiesCollectWholeCatalog(t *testing.T) {
	products := makeProducts(1, 23)

	for _, strategy := range []Strategy{PageNumberStrategy{}, PageInfoStrategy{}, SinceIDStrategy{}} {
		t.Run(strategy.Name(), func(t *testing.T) {
			src := catalogSource(products, true)
			agg := NewAggregator(src, strategy, Config{PageSize: 5, MaxPages: 100})

			result, err := agg.FetchAll(context.Background(), nil)
			if err != nil {
				t.Fatalf("FetchAll() error = %v", err)
			}
			if !equalIDs(ids(result.Products), ids(products)) {
				t.Errorf("ids = %v, want 1..23", ids(result.Products))
			}
			if src.calls != 5 {
				t.Errorf("fetch calls = %d, want 5", src.calls)
			}
		})
	}
}

func TestFetchAll_Range(t *testing.T) {
	products := makeProducts(1, 40)
	want := []int64{10, 11, 12, 13, 14, 15}

	tests := []struct {
		name      string
		strategy  Strategy
		tokens    bool
		wantCalls int
		wantFirst Cursor
	}{
		{
			name:      "page number seeks to the page holding start",
			strategy:  PageNumberStrategy{},
			wantCalls: 2,
			wantFirst: Cursor{Page: 2},
		},
		{
			name:      "page info walks from the beginning",
			strategy:  PageInfoStrategy{},
			tokens:    true,
			wantCalls: 3,
			wantFirst: Cursor{},
		},
		{
			name:      "since id walks from the beginning",
			strategy:  SinceIDStrategy{},
			wantCalls: 3,
			wantFirst: Cursor{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := catalogSource(products, tt.tokens)
			agg := NewAggregator(src, tt.strategy, Config{PageSize: 5, MaxPages: 100})

			result, err := agg.FetchAll(context.Background(), &Range{Start: 10, End: 15})
			if err != nil {
				t.Fatalf("FetchAll() error = %v", err)
			}

			if got := ids(result.Products); !equalIDs(got, want) {
				t.Errorf("ids = %v, want %v", got, want)
			}
			if src.calls != tt.wantCalls {
				t.Errorf("fetch calls = %d, want %d", src.calls, tt.wantCalls)
			}
			if src.cursors[0] != tt.wantFirst {
				t.Errorf("first cursor = %+v, want %+v", src.cursors[0], tt.wantFirst)
			}
		})
	}
}

func TestFetchAll_RangeBeyondCatalog(t *testing.T) {
	src := catalogSource(makeProducts(1, 12), false)
	agg := NewAggregator(src, PageNumberStrategy{}, Config{PageSize: 5, MaxPages: 100})

	result, err := agg.FetchAll(context.Background(), &Range{Start: 8, End: 1000})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	want := []int64{8, 9, 10, 11, 12}
	if got := ids(result.Products); !equalIDs(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestFetchAll_InvalidRange(t *testing.T) {
	tests := []struct {
		name string
		rng  Range
	}{
		{name: "start zero", rng: Range{Start: 0, End: 10}},
		{name: "end before start", rng: Range{Start: 10, End: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := catalogSource(makeProducts(1, 10), false)
			agg := NewAggregator(src, PageNumberStrategy{}, DefaultConfig())

			_, err := agg.FetchAll(context.Background(), &tt.rng)
			if !errors.Is(err, ErrInvalidRange) {
				t.Errorf("error = %v, want ErrInvalidRange", err)
			}
			if src.calls != 0 {
				t.Errorf("fetch calls = %d, want 0", src.calls)
			}
		})
	}
}

func TestFetchAll_SafetyBound(t *testing.T) {
	next := int64(1)
	src := &fakeSource{serve: func(_, limit int, _ Cursor) (Page, error) {
		page := Page{Products: makeProducts(next, next+int64(limit)-1), NextToken: "more"}
		next += int64(limit)
		return page, nil
	}}
	agg := NewAggregator(src, PageInfoStrategy{}, Config{PageSize: 10, MaxPages: 7})

	result, err := agg.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if src.calls != 7 {
		t.Errorf("fetch calls = %d, want 7", src.calls)
	}
	if !result.Truncated {
		t.Error("Truncated should be true when the bound is hit")
	}
	if len(result.Products) != 70 {
		t.Errorf("products = %d, want 70", len(result.Products))
	}
}

func TestFetchAll_SafetyBoundOnLastFullPage(t *testing.T) {
	tests := []struct {
		name          string
		size          int64
		count         int // 0 means the source cannot count
		rng           *Range
		wantTruncated bool
	}{
		{name: "count reached", size: 10, count: 10},
		{name: "count ahead", size: 15, count: 15, wantTruncated: true},
		{name: "no count", size: 10, wantTruncated: true},
		{name: "seeked range", size: 15, count: 15, rng: &Range{Start: 6, End: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := catalogSource(makeProducts(1, tt.size), false)
			var src Source = fake
			if tt.count > 0 {
				src = &countingSource{fakeSource: fake, total: tt.count}
			}
			agg := NewAggregator(src, PageNumberStrategy{}, Config{PageSize: 5, MaxPages: 2})

			result, err := agg.FetchAll(context.Background(), tt.rng)
			if err != nil {
				t.Fatalf("FetchAll() error = %v", err)
			}
			if fake.calls != 2 {
				t.Errorf("fetch calls = %d, want 2", fake.calls)
			}
			if result.Truncated != tt.wantTruncated {
				t.Errorf("Truncated = %v, want %v", result.Truncated, tt.wantTruncated)
			}
			if len(result.Products) != 10 {
				t.Errorf("products = %d, want 10", len(result.Products))
			}
		})
	}
}

func TestFetchAll_RangePastSafetyBound(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		start    int
		wantErr  bool
	}{
		{name: "page_info past bound", strategy: PageInfoStrategy{}, start: 21, wantErr: true},
		{name: "since_id past bound", strategy: SinceIDStrategy{}, start: 25, wantErr: true},
		{name: "page_info on last reachable product", strategy: PageInfoStrategy{}, start: 20},
		{name: "page number seeks", strategy: PageNumberStrategy{}, start: 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := catalogSource(makeProducts(1, 40), true)
			agg := NewAggregator(src, tt.strategy, Config{PageSize: 5, MaxPages: 4})

			result, err := agg.FetchAll(context.Background(), &Range{Start: tt.start, End: tt.start + 2})

			if tt.wantErr {
				if !errors.Is(err, ErrRangeUnreachable) {
					t.Fatalf("error = %v, want ErrRangeUnreachable", err)
				}
				if src.calls != 0 {
					t.Errorf("fetch calls = %d, want 0", src.calls)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchAll() error = %v", err)
			}
			if len(result.Products) == 0 || result.Products[0].ID != int64(tt.start) {
				t.Errorf("products = %v, want to start at %d", result.Products, tt.start)
			}
		})
	}
}

func TestFetchAll_PartialFailure(t *testing.T) {
	upstream := &catalog.UpstreamError{StatusCode: 503, Class: catalog.ErrorClassServer}
	base := sizedSource(250, 250, 40)
	src := &fakeSource{serve: func(call, limit int, cursor Cursor) (Page, error) {
		if call == 2 {
			return Page{}, upstream
		}
		return base.serve(call, limit, cursor)
	}}
	agg := NewAggregator(src, PageInfoStrategy{}, DefaultConfig())

	result, err := agg.FetchAll(context.Background(), nil)
	if result != nil {
		t.Errorf("result = %+v, want nil on failure", result)
	}

	var partial *catalog.PartialDataError
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want PartialDataError", err)
	}
	if partial.Pages != 1 || partial.Products != 250 {
		t.Errorf("PartialDataError = %+v, want pages=1 products=250", partial)
	}
	if !errors.Is(err, upstream) {
		t.Error("PartialDataError should wrap the upstream error")
	}
	if src.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", src.calls)
	}
}

func TestFetchAll_FirstPageFailure(t *testing.T) {
	upstream := &catalog.UpstreamError{StatusCode: 401, Class: catalog.ErrorClassClient}
	src := &fakeSource{serve: func(int, int, Cursor) (Page, error) {
		return Page{}, upstream
	}}
	agg := NewAggregator(src, PageInfoStrategy{}, DefaultConfig())

	_, err := agg.FetchAll(context.Background(), nil)

	var partial *catalog.PartialDataError
	if errors.As(err, &partial) {
		t.Error("first page failure should not be reported as partial data")
	}
	var got *catalog.UpstreamError
	if !errors.As(err, &got) || got.StatusCode != 401 {
		t.Errorf("error = %v, want UpstreamError with status 401", err)
	}
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := sizedSource(10, 10, 10, 10)
	src := &fakeSource{serve: func(call, limit int, cursor Cursor) (Page, error) {
		if call == 2 {
			cancel()
		}
		return base.serve(call, limit, cursor)
	}}
	agg := NewAggregator(src, PageInfoStrategy{}, Config{PageSize: 10, MaxPages: 100})

	_, err := agg.FetchAll(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if src.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", src.calls)
	}
}

func TestFetchAll_Deduplicates(t *testing.T) {
	pages := [][]catalog.Product{
		makeProducts(1, 5),
		makeProducts(4, 8),
		makeProducts(9, 9),
	}
	src := &fakeSource{serve: func(call, _ int, _ Cursor) (Page, error) {
		return Page{Products: pages[call-1], NextToken: "next"}, nil
	}}
	agg := NewAggregator(src, PageInfoStrategy{}, Config{PageSize: 5, MaxPages: 100})

	result, err := agg.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	want := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if got := ids(result.Products); !equalIDs(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestFetchAll_StopsWhenUpstreamRepeats(t *testing.T) {
	src := &fakeSource{serve: func(int, int, Cursor) (Page, error) {
		return Page{Products: makeProducts(1, 5), NextToken: "same"}, nil
	}}
	agg := NewAggregator(src, PageInfoStrategy{}, Config{PageSize: 5, MaxPages: 100})

	result, err := agg.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if src.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", src.calls)
	}
	if len(result.Products) != 5 {
		t.Errorf("products = %d, want 5", len(result.Products))
	}
}

func TestFetchAll_TokenChainEnds(t *testing.T) {
	// 10 products, page size 5: the second page is full but carries no token.
	src := catalogSource(makeProducts(1, 10), true)
	agg := NewAggregator(src, PageInfoStrategy{}, Config{PageSize: 5, MaxPages: 100})

	result, err := agg.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if src.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", src.calls)
	}
	if len(result.Products) != 10 {
		t.Errorf("products = %d, want 10", len(result.Products))
	}
}

func TestFetchAll_PageNumberFollowsToken(t *testing.T) {
	src := catalogSource(makeProducts(1, 12), true)
	agg := NewAggregator(src, PageNumberStrategy{}, Config{PageSize: 5, MaxPages: 100})

	if _, err := agg.FetchAll(context.Background(), nil); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	want := []Cursor{{Page: 1}, {Token: "off:5"}, {Token: "off:10"}}
	if len(src.cursors) != len(want) {
		t.Fatalf("cursors = %+v, want %+v", src.cursors, want)
	}
	for i := range want {
		if src.cursors[i] != want[i] {
			t.Errorf("cursor[%d] = %+v, want %+v", i, src.cursors[i], want[i])
		}
	}
}

func TestFetchAll_CountFailureIsIgnored(t *testing.T) {
	src := &countingSource{fakeSource: sizedSource(3), err: errors.New("count unavailable")}
	agg := NewAggregator(src, PageInfoStrategy{}, Config{PageSize: 5, MaxPages: 100})

	result, err := agg.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(result.Products) != 3 {
		t.Errorf("products = %d, want 3", len(result.Products))
	}
}

func TestRange_Len(t *testing.T) {
	if got := (Range{Start: 10, End: 15}).Len(); got != 6 {
		t.Errorf("Len() = %d, want 6", got)
	}
}
