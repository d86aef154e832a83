package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"pricing-history/models"
)

// ErrMissingColumn is returned when the input CSV lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// LoadPricingPages reads the vetted (domain, pricing_url) pairs from a CSV
// file with a header row. Extra columns are ignored, rows without a URL are
// skipped, and input order is preserved.
func LoadPricingPages(path string) ([]models.PricingPage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open input %q: %w", path, err)
	}
	defer f.Close()

	return ReadPricingPages(f)
}

// ReadPricingPages is LoadPricingPages over an arbitrary reader.
func ReadPricingPages(r io.Reader) ([]models.PricingPage, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	domainCol, urlCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "domain":
			domainCol = i
		case "pricing_url":
			urlCol = i
		}
	}
	if domainCol < 0 {
		return nil, fmt.Errorf("csv: %w: domain", ErrMissingColumn)
	}
	if urlCol < 0 {
		return nil, fmt.Errorf("csv: %w: pricing_url", ErrMissingColumn)
	}

	var pages []models.PricingPage
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read row: %w", err)
		}
		if domainCol >= len(rec) || urlCol >= len(rec) {
			continue
		}

		url := strings.TrimSpace(rec[urlCol])
		if url == "" {
			continue
		}
		pages = append(pages, models.PricingPage{
			Domain: NormalizeDomain(rec[domainCol]),
			URL:    url,
		})
	}
	return pages, nil
}

// NormalizeDomain strips a scheme and any path from a domain cell.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return d
}
