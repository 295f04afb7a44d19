// Package geofeed decodes RFC 8805 style geofeed CSV files, the format used
// by Linode and DigitalOcean to publish their ranges.
package geofeed

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/ipranges/internal/domain"
)

// Parse decodes body into ranges. Comment lines starting with '#', blank
// lines and rows with fewer than three fields are skipped; the optional
// fourth column is the city. Rows whose first column is not a prefix are
// skipped too, but a non-empty feed without a single valid row is an error.
func Parse(body []byte) ([]domain.GeoRange, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	ranges := []domain.GeoRange{}
	rows, skipped := 0, 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows++
		if len(rec) < 3 {
			skipped++
			continue
		}
		prefix := strings.TrimSpace(rec[0])
		if _, err := netip.ParsePrefix(prefix); err != nil {
			skipped++
			continue
		}
		gr := domain.GeoRange{
			IPPrefix:   prefix,
			Alpha2Code: strings.TrimSpace(rec[1]),
			Region:     strings.TrimSpace(rec[2]),
		}
		if len(rec) > 3 {
			gr.City = strings.TrimSpace(rec[3])
		}
		ranges = append(ranges, gr)
	}

	if rows > 0 && len(ranges) == 0 {
		return nil, fmt.Errorf("no valid rows among %d", rows)
	}
	return ranges, nil
}
