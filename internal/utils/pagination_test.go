package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 20, 20},
		{"3", 1, 3},
		{"-2", 1, -2},
		{"007", 1, 7},
		{"two", 1, 1},
		{" 5", 20, 20}, // no trimming
		{"999999999999999999999999", 20, 20},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		name           string
		page, size     string
		wantPage, want int
	}{
		{"defaults", "", "", DefaultPage, DefaultPageSize},
		{"explicit", "3", "10", 3, 10},
		{"zero page", "0", "10", 1, 10},
		{"negative size", "2", "-5", 2, 1},
		{"oversized", "1", "1000", 1, MaxPageSize},
		{"garbage", "x", "y", DefaultPage, DefaultPageSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, size := ClampPage(tc.page, tc.size)
			if page != tc.wantPage || size != tc.want {
				t.Fatalf("ClampPage(%q, %q) = %d, %d; want %d, %d", tc.page, tc.size, page, size, tc.wantPage, tc.want)
			}
		})
	}
}

func TestNewPagination(t *testing.T) {
	cases := []struct {
		page, size int
		total      int64
		want       Pagination
	}{
		{1, 20, 0, Pagination{Page: 1, PageSize: 20}},
		{1, 2, 3, Pagination{Page: 1, PageSize: 2, Total: 3, TotalPages: 2, HasNext: true}},
		{2, 2, 3, Pagination{Page: 2, PageSize: 2, Total: 3, TotalPages: 2}},
		{5, 10, 30, Pagination{Page: 5, PageSize: 10, Total: 30, TotalPages: 3}},
	}
	for _, tc := range cases {
		if got := NewPagination(tc.page, tc.size, tc.total); got != tc.want {
			t.Fatalf("NewPagination(%d, %d, %d) = %+v; want %+v", tc.page, tc.size, tc.total, got, tc.want)
		}
	}
}
