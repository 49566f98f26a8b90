package pagination

import (
	"testing"

	"github.com/Sternrassler/shopify-catalog-export/pkg/catalog"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "page", want: StrategyPageNumber},
		{input: "offset", want: StrategyPageNumber},
		{input: "page_info", want: StrategyPageInfo},
		{input: " PAGE_INFO ", want: StrategyPageInfo},
		{input: "", want: StrategyPageInfo},
		{input: "since_id", want: StrategySinceID},
		{input: "graphql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s, err := ParseStrategy(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseStrategy(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStrategy(%q) error = %v", tt.input, err)
			}
			if s.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", s.Name(), tt.want)
			}
		})
	}
}

func TestPageNumberStrategy(t *testing.T) {
	s := PageNumberStrategy{}

	cur, seeked := s.Start(3)
	if !seeked || cur.Page != 3 {
		t.Errorf("Start(3) = %+v, %v; want page 3, seeked", cur, seeked)
	}

	cur, _ = s.Start(0)
	if cur.Page != 1 {
		t.Errorf("Start(0) page = %d, want 1", cur.Page)
	}

	next, more := s.Next(Cursor{Page: 3}, Page{})
	if !more || next.Page != 4 {
		t.Errorf("Next() = %+v, %v; want page 4", next, more)
	}

	next, more = s.Next(Cursor{Page: 3}, Page{NextToken: "abc"})
	if !more || next.Token != "abc" || next.Page != 0 {
		t.Errorf("Next() with token = %+v, %v; want token to take precedence", next, more)
	}

	if _, more = s.Next(Cursor{Token: "abc"}, Page{}); more {
		t.Error("Next() should stop once a followed token chain ends")
	}
}

func TestPageInfoStrategy(t *testing.T) {
	s := PageInfoStrategy{}

	if cur, seeked := s.Start(5); seeked || cur != (Cursor{}) {
		t.Errorf("Start(5) = %+v, %v; want empty cursor, not seeked", cur, seeked)
	}

	next, more := s.Next(Cursor{}, Page{NextToken: "tok"})
	if !more || next.Token != "tok" {
		t.Errorf("Next() = %+v, %v; want token tok", next, more)
	}

	if _, more = s.Next(Cursor{Token: "tok"}, Page{}); more {
		t.Error("Next() without token should stop")
	}
}

func TestSinceIDStrategy(t *testing.T) {
	s := SinceIDStrategy{}

	if _, seeked := s.Start(2); seeked {
		t.Error("since_id cannot seek")
	}

	page := Page{Products: []catalog.Product{{ID: 7}, {ID: 9}, {ID: 12}}}
	next, more := s.Next(Cursor{}, page)
	if !more || next.SinceID != 12 {
		t.Errorf("Next() = %+v, %v; want since_id 12", next, more)
	}

	if _, more = s.Next(Cursor{SinceID: 12}, Page{}); more {
		t.Error("Next() on an empty page should stop")
	}
}
