package pagination

import "testing"

func TestPageRequest_Defaults(t *testing.T) {
	tests := []struct {
		name         string
		in           PageRequest
		wantPage     int
		wantPageSize int
	}{
		{name: "empty", in: PageRequest{}, wantPage: 1, wantPageSize: DefaultPageSize},
		{name: "explicit", in: PageRequest{Page: 3, PageSize: 5}, wantPage: 3, wantPageSize: 5},
		{name: "oversized", in: PageRequest{Page: 1, PageSize: 1000}, wantPage: 1, wantPageSize: MaxPageSize},
		{name: "negative", in: PageRequest{Page: -2, PageSize: -1}, wantPage: 1, wantPageSize: DefaultPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			p.Defaults()
			if p.Page != tt.wantPage || p.PageSize != tt.wantPageSize {
				t.Errorf("got page %d size %d, want %d and %d", p.Page, p.PageSize, tt.wantPage, tt.wantPageSize)
			}
		})
	}
}

func TestNewPageResponse(t *testing.T) {
	t.Run("counts pages", func(t *testing.T) {
		resp := NewPageResponse([]int{1, 2}, 1, 2, 5)
		if resp.TotalPages != 3 {
			t.Errorf("expected 3 pages, got %d", resp.TotalPages)
		}
		if !resp.HasNext {
			t.Error("expected a next page")
		}
	})

	t.Run("last page", func(t *testing.T) {
		resp := NewPageResponse([]int{5}, 3, 2, 5)
		if resp.HasNext {
			t.Error("expected no next page")
		}
	})

	t.Run("nil data becomes empty", func(t *testing.T) {
		resp := NewPageResponse[int](nil, 1, 20, 0)
		if resp.Data == nil || len(resp.Data) != 0 {
			t.Errorf("expected empty data, got %v", resp.Data)
		}
		if resp.TotalPages != 0 || resp.HasNext {
			t.Errorf("unexpected page counts %+v", resp)
		}
	})
}
