package avito

import (
	"net/url"
	"testing"
)

func TestPageCount(t *testing.T) {
	tests := []struct {
		total    int
		hasTotal bool
		perPage  int
		want     int
	}{
		{95, true, 10, 10},
		{100, true, 10, 10},
		{101, true, 10, 11},
		{1, true, 10, 1},
		{0, false, 10, 10}, // unknown total falls back to the fixed bound
		{50, true, 0, 50},  // perPage 0 treated as 1, no division error
		{7, true, 50, 1},
	}

	for _, tt := range tests {
		got := PageCount(tt.total, tt.hasTotal, tt.perPage)
		if got != tt.want {
			t.Errorf("PageCount(%d, %v, %d) = %d; want %d",
				tt.total, tt.hasTotal, tt.perPage, got, tt.want)
		}
	}
}

func TestSetPageStripsParamForPageOne(t *testing.T) {
	got, err := SetPage("https://www.avito.ru/moskva/fototehnika?q=canon&p=4", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("result is not a URL: %v", err)
	}
	if u.Query().Has("p") {
		t.Errorf("page 1 URL still carries p: %s", got)
	}
	if u.Query().Get("q") != "canon" {
		t.Errorf("unrelated parameter q changed: %s", got)
	}
}

func TestSetPageSetsParam(t *testing.T) {
	got, err := SetPage("https://www.avito.ru/moskva/fototehnika?q=canon&s=104", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("result is not a URL: %v", err)
	}
	if u.Query().Get("p") != "3" {
		t.Errorf("p = %q; want %q (url: %s)", u.Query().Get("p"), "3", got)
	}
	if u.Query().Get("q") != "canon" || u.Query().Get("s") != "104" {
		t.Errorf("unrelated parameters changed: %s", got)
	}
	if u.Path != "/moskva/fototehnika" {
		t.Errorf("path changed: %s", u.Path)
	}
}

func TestSetPageOverwritesExistingParam(t *testing.T) {
	got, err := SetPage("https://www.avito.ru/moskva/fototehnika?p=2", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, _ := url.Parse(got)
	if u.Query().Get("p") != "5" {
		t.Errorf("p = %q; want %q", u.Query().Get("p"), "5")
	}
}
