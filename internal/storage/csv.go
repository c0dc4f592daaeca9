package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

// Columns is the exact header a dataset CSV must carry, in order.
var Columns = []string{
	"title", "card_name", "grading_company", "grade", "price", "listing_url",
	"listing_id", "image_urls", "source", "scraped_date", "images",
}

const listSeparator = ", "

// Image URLs may contain bare commas (Cloudinary transformations), so they
// split only on a comma followed by whitespace. Local paths never contain commas.
var imageURLSeparator = regexp.MustCompile(`,\s+`)

// WriteCSV writes ds with the dataset header. List fields are joined with ", ".
func WriteCSV(w io.Writer, ds *models.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for i := range ds.Listings {
		if err := cw.Write(listingRow(&ds.Listings[i])); err != nil {
			return fmt.Errorf("csv: write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func listingRow(l *models.Listing) []string {
	price := ""
	if l.Price != nil {
		price = strconv.FormatFloat(*l.Price, 'f', -1, 64)
	}
	scraped := ""
	if !l.ScrapedDate.IsZero() {
		scraped = l.ScrapedDate.Format(models.TimestampLayouts[0])
	}
	return []string{
		l.Title,
		l.CardName,
		string(l.GradingCompany),
		l.Grade,
		price,
		l.ListingURL,
		l.ListingID,
		strings.Join(l.ImageURLs, listSeparator),
		string(l.Source),
		scraped,
		strings.Join(l.Images, listSeparator),
	}
}

// ReadCSV parses a dataset CSV. A header that differs from Columns in any
// way is a schema mismatch; rows that cannot be parsed make the whole input
// malformed.
func ReadCSV(r io.Reader) (*models.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv", models.ErrMalformedInput)
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount) {
			return nil, fmt.Errorf("%w: header has %d columns, want %d", models.ErrSchemaMismatch, len(header), len(Columns))
		}
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	ds := models.NewDataset()
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
		}
		l, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrMalformedInput, line, err)
		}
		ds.Append(l)
	}
	return ds, nil
}

func checkHeader(header []string) error {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if len(header) != len(Columns) {
		return fmt.Errorf("%w: header has %d columns, want %d", models.ErrSchemaMismatch, len(header), len(Columns))
	}
	for i, col := range Columns {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("%w: column %d is %q, want %q", models.ErrSchemaMismatch, i+1, header[i], col)
		}
	}
	return nil
}

func parseRow(rec []string) (models.Listing, error) {
	l := models.Listing{
		Title:          rec[0],
		CardName:       rec[1],
		GradingCompany: models.GradingCompany(strings.TrimSpace(rec[2])),
		Grade:          strings.TrimSpace(rec[3]),
		ListingURL:     strings.TrimSpace(rec[5]),
		ListingID:      strings.TrimSpace(rec[6]),
		ImageURLs:      splitList(rec[7], imageURLSeparator),
		Source:         models.Source(strings.TrimSpace(rec[8])),
		Images:         splitPaths(rec[10]),
	}

	if p := strings.TrimSpace(rec[4]); p != "" {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return l, fmt.Errorf("price %q: %w", p, err)
		}
		l.Price = &v
	}

	if d := strings.TrimSpace(rec[9]); d != "" {
		t, err := models.ParseTimestamp(d)
		if err != nil {
			return l, fmt.Errorf("scraped_date: %w", err)
		}
		l.ScrapedDate = t
	}
	return l, nil
}

func splitList(s string, sep *regexp.Regexp) []string {
	out := []string{}
	for _, part := range sep.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitPaths(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
