// Package storage reads and writes persisted datasets and raw listing feeds.
package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unsupported dataset extension %q", filepath.Ext(path))
	}
}

// Load reads a dataset from a .csv or .json file.
func Load(path string) (*models.Dataset, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var ds *models.Dataset
	switch format {
	case FormatCSV:
		ds, err = ReadCSV(f)
	case FormatJSON:
		ds, err = ReadJSON(f)
	default:
		return nil, fmt.Errorf("%s is a raw listing feed, not a dataset", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// LoadOrEmpty is Load, except a missing file yields an empty dataset.
func LoadOrEmpty(path string) (*models.Dataset, error) {
	ds, err := Load(path)
	if errors.Is(err, models.ErrInputNotFound) {
		return models.NewDataset(), nil
	}
	return ds, err
}

// Save writes ds to path in the format implied by its extension. The file is
// written beside the target and renamed into place.
func Save(path string, ds *models.Dataset) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	switch format {
	case FormatCSV:
		err = WriteCSV(tmp, ds)
	case FormatJSON:
		err = WriteJSON(tmp, ds)
	default:
		err = fmt.Errorf("cannot save a dataset as %s", format)
	}
	if err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Convert rewrites a dataset in another serialization format and returns the
// number of listings written.
func Convert(inPath, outPath string) (int, error) {
	ds, err := Load(inPath)
	if err != nil {
		return 0, err
	}
	if err := Save(outPath, ds); err != nil {
		return 0, err
	}
	return ds.Len(), nil
}

// ReadJSON parses a JSON array of listings.
func ReadJSON(r io.Reader) (*models.Dataset, error) {
	var listings []models.Listing
	if err := json.NewDecoder(r).Decode(&listings); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	for i := range listings {
		if listings[i].ImageURLs == nil {
			listings[i].ImageURLs = []string{}
		}
		if listings[i].Images == nil {
			listings[i].Images = []string{}
		}
	}
	return models.NewDataset(listings...), nil
}

// WriteJSON writes ds as an indented JSON array.
func WriteJSON(w io.Writer, ds *models.Dataset) error {
	listings := ds.Listings
	if listings == nil {
		listings = []models.Listing{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(listings)
}

// ReadRawListings reads the fetch layer's output: JSON lines or a JSON array
// of unnormalized records.
func ReadRawListings(path string) ([]models.RawListing, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	switch format {
	case FormatJSON:
		var raws []models.RawListing
		if err := json.NewDecoder(f).Decode(&raws); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", path, models.ErrMalformedInput, err)
		}
		return raws, nil
	case FormatJSONL:
		return readJSONLines(path, f)
	default:
		return nil, fmt.Errorf("%s: raw listings must be .json or .jsonl", path)
	}
}

func readJSONLines(path string, r io.Reader) ([]models.RawListing, error) {
	var raws []models.RawListing
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var raw models.RawListing
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("%s: %w: line %d: %v", path, models.ErrMalformedInput, line, err)
		}
		raws = append(raws, raw)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, models.ErrMalformedInput, err)
	}
	return raws, nil
}

func openInput(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrInputNotFound, path)
		}
		return nil, err
	}
	return f, nil
}
