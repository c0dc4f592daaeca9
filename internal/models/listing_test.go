package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestDedupKey(t *testing.T) {
	tests := []struct {
		name     string
		source   Source
		id       string
		url      string
		expected string
	}{
		{"id wins over url", SourceEbay, "123", "https://www.ebay.com/itm/123", "ebay|id:123"},
		{"source is case folded", Source("eBay"), "123", "", "ebay|id:123"},
		{"missing id falls back to url", SourceMercari, "", "https://jp.mercari.com/item/m1", "mercari|url:https://jp.mercari.com/item/m1"},
		{"unknown id falls back to url", SourceMercari, UnknownListingID, "https://jp.mercari.com/item/m1", "mercari|url:https://jp.mercari.com/item/m1"},
		{"whitespace trimmed", SourceEbay, " 9 ", "", "ebay|id:9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DedupKey(tt.source, tt.id, tt.url); got != tt.expected {
				t.Errorf("DedupKey() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNormalizeGradingCompany(t *testing.T) {
	tests := []struct {
		input    string
		expected GradingCompany
	}{
		{"psa", CompanyPSA},
		{"Beckett", CompanyBGS},
		{" bgs ", CompanyBGS},
		{"CGC", CompanyCGC},
		{"sgc", CompanySGC},
		{"tag", CompanyTAG},
		{"HGA", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeGradingCompany(tt.input); got != tt.expected {
			t.Errorf("NormalizeGradingCompany(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestValidateRequired(t *testing.T) {
	l := Listing{Title: "Charizard", ListingURL: "u", Source: SourceEbay}
	if err := l.ValidateRequired(); err != nil {
		t.Fatalf("ValidateRequired() = %v, want nil", err)
	}

	l.ListingURL = " "
	err := l.ValidateRequired()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidateRequired() = %v, want ErrValidation", err)
	}
	if err.Error() != "missing required fields: listing_url" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestResultCodes(t *testing.T) {
	tests := []struct {
		err      error
		code     ResultCode
		exitCode int
	}{
		{nil, ResultSuccess, 0},
		{fmt.Errorf("load: %w", ErrInputNotFound), ResultInputNotFound, 2},
		{fmt.Errorf("read: %w", ErrSchemaMismatch), ResultSchemaMismatch, 3},
		{fmt.Errorf("read: %w", ErrMalformedInput), ResultMalformedInput, 3},
		{fmt.Errorf("%w: 2 deletions failed", ErrPartialFailure), ResultPartialFailure, 4},
		{os.ErrPermission, ResultFailure, 1},
	}

	for _, tt := range tests {
		code := ResultCodeFor(tt.err)
		if code != tt.code {
			t.Errorf("ResultCodeFor(%v) = %s, want %s", tt.err, code, tt.code)
		}
		if code.ExitCode() != tt.exitCode {
			t.Errorf("%s.ExitCode() = %d, want %d", code, code.ExitCode(), tt.exitCode)
		}
	}
}

func TestPriceTextUnmarshal(t *testing.T) {
	var raw RawListing
	if err := json.Unmarshal([]byte(`{"title":"t","price":1200.5}`), &raw); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if raw.Price != "1200.5" {
		t.Errorf("Price = %q, want 1200.5", raw.Price)
	}

	if err := json.Unmarshal([]byte(`{"price":"$45.00"}`), &raw); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if raw.Price != "$45.00" {
		t.Errorf("Price = %q, want $45.00", raw.Price)
	}

	if err := json.Unmarshal([]byte(`{"price":[1]}`), &raw); err == nil {
		t.Error("expected error for array price")
	}
}

func TestDatasetKeys(t *testing.T) {
	var nilDS *Dataset
	if nilDS.Len() != 0 {
		t.Error("nil dataset should have length 0")
	}

	ds := NewDataset()
	ds.Append(Listing{Source: SourceEbay, ListingID: "1"})
	ds.Append(Listing{Source: SourceMercari, ListingURL: "u"})

	keys := ds.Keys()
	if len(keys) != 2 || keys[0] != "ebay|id:1" || keys[1] != "mercari|url:u" {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestCleanupResultAdd(t *testing.T) {
	r := CleanupResult{FilesDeleted: 1, DirectoriesKept: []string{"a"}}
	r.Add(CleanupResult{FilesDeleted: 2, DirectoriesDeleted: 1, DirectoriesKept: []string{"b"}, Failures: 1})

	if r.FilesDeleted != 3 || r.DirectoriesDeleted != 1 || r.Failures != 1 || len(r.DirectoriesKept) != 2 {
		t.Errorf("Add() = %+v", r)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-15T10:30:45.123456", time.Date(2024, 1, 15, 10, 30, 45, 123456000, time.UTC)},
		{"2024-01-15T10:30:45", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
		{"2024-01-15 10:30:45", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
		{"2024-01-15T10:30:45Z", time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) error = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseTimestamp("15/01/2024"); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestListingUnmarshalZonelessDate(t *testing.T) {
	var l Listing
	data := `{"title":"Charizard PSA 10","listing_url":"u","source":"ebay","scraped_date":"2024-01-15T10:30:45.123456"}`
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if l.Title != "Charizard PSA 10" || l.ScrapedDate.Nanosecond() != 123456000 {
		t.Errorf("unexpected listing %+v", l)
	}
}
