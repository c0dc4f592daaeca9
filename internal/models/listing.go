package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Source string

const (
	SourceEbay    Source = "ebay"
	SourceMercari Source = "mercari"
)

type GradingCompany string

const (
	CompanyPSA GradingCompany = "PSA"
	CompanyBGS GradingCompany = "BGS"
	CompanyCGC GradingCompany = "CGC"
	CompanySGC GradingCompany = "SGC"
	CompanyTAG GradingCompany = "TAG"
)

// UnknownListingID is stored when the marketplace did not expose an item id.
const UnknownListingID = "unknown"

// GradePristine10 is the literal grade some companies assign above a plain 10.
const GradePristine10 = "10 Pristine"

// Listing is one normalized marketplace offer.
// Empty strings stand in for null text fields; Price is nil when unknown.
type Listing struct {
	ID             uint           `json:"-" gorm:"primaryKey"`
	DedupKey       string         `json:"-" gorm:"uniqueIndex;not null"`
	Title          string         `json:"title" gorm:"not null"`
	CardName       string         `json:"card_name"`
	GradingCompany GradingCompany `json:"grading_company" gorm:"index"`
	Grade          string         `json:"grade" gorm:"index"`
	Price          *float64       `json:"price"`
	ListingURL     string         `json:"listing_url" gorm:"not null"`
	ListingID      string         `json:"listing_id"`
	ImageURLs      []string       `json:"image_urls" gorm:"serializer:json"`
	Source         Source         `json:"source" gorm:"not null;index"`
	ScrapedDate    time.Time      `json:"scraped_date"`
	Images         []string       `json:"images" gorm:"serializer:json"`
}

// TimestampLayouts are the scraped_date forms accepted on read; the first is
// used on write. The scrapers emit zone-less ISO timestamps.
var TimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// ParseTimestamp parses s with the first matching layout. Zone-less values
// are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range TimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrMalformedInput, s)
}

// UnmarshalJSON accepts any of TimestampLayouts for scraped_date, plus null
// or an empty string for an unknown date.
func (l *Listing) UnmarshalJSON(data []byte) error {
	type listingFields Listing
	aux := struct {
		*listingFields
		ScrapedDate *string `json:"scraped_date"`
	}{listingFields: (*listingFields)(l)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	l.ScrapedDate = time.Time{}
	if aux.ScrapedDate == nil || strings.TrimSpace(*aux.ScrapedDate) == "" {
		return nil
	}
	t, err := ParseTimestamp(strings.TrimSpace(*aux.ScrapedDate))
	if err != nil {
		return err
	}
	l.ScrapedDate = t
	return nil
}

// Key returns the identity used for deduplication across runs and sources.
func (l *Listing) Key() string {
	return DedupKey(l.Source, l.ListingID, l.ListingURL)
}

// DedupKey builds (source, listing_id), falling back to (source, listing_url)
// when the id is missing.
func DedupKey(source Source, listingID, listingURL string) string {
	src := strings.ToLower(strings.TrimSpace(string(source)))
	id := strings.TrimSpace(listingID)
	if id != "" && id != UnknownListingID {
		return src + "|id:" + id
	}
	return src + "|url:" + strings.TrimSpace(listingURL)
}

// HasGrade reports whether a grade was recorded or extracted.
func (l *Listing) HasGrade() bool {
	return strings.TrimSpace(l.Grade) != ""
}

// ValidateRequired checks the fields a listing cannot exist without.
func (l *Listing) ValidateRequired() error {
	var missing []string
	if strings.TrimSpace(l.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(l.ListingURL) == "" {
		missing = append(missing, "listing_url")
	}
	if strings.TrimSpace(string(l.Source)) == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// NormalizeGradingCompany maps marketplace spellings to a canonical company.
// Unrecognized values map to the empty company.
func NormalizeGradingCompany(s string) GradingCompany {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PSA":
		return CompanyPSA
	case "BGS", "BECKETT":
		return CompanyBGS
	case "CGC":
		return CompanyCGC
	case "SGC":
		return CompanySGC
	case "TAG":
		return CompanyTAG
	default:
		return ""
	}
}

// NormalizeSource lowercases and trims a source tag.
func NormalizeSource(s string) Source {
	return Source(strings.ToLower(strings.TrimSpace(s)))
}

// RawListing is what the external fetch layer yields before normalization.
type RawListing struct {
	Title      string    `json:"title"`
	Price      PriceText `json:"price"`
	ListingURL string    `json:"listing_url"`
	ListingID  string    `json:"listing_id"`
	ImageURLs  []string  `json:"image_urls"`
	Source     string    `json:"source"`
}

// PriceText is a marketplace price as displayed ("$1,200.00"). Feeds that
// already emit a number are accepted too.
type PriceText string

func (p *PriceText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PriceText(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = PriceText(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// GradeInfo is the structured result of grading extraction.
type GradeInfo struct {
	CardName       string         `json:"card_name"`
	GradingCompany GradingCompany `json:"grading_company"`
	Grade          string         `json:"grade"`
	Rule           string         `json:"rule,omitempty"`
}

// Found reports whether a grade was extracted.
func (g GradeInfo) Found() bool {
	return g.Grade != ""
}
