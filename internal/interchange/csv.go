// Package interchange implements the canonical CSV schema for estimation
// items and the versioned artifact store estimation snapshots are written to.
// The codec and the store are deliberately independent: the schema can evolve
// without touching how snapshot files are named or located.
package interchange

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"backoffice/internal/core"

	"github.com/shopspring/decimal"
)

// Header is the canonical column order. Files are read positionally after
// the header row is verified, so reordered columns are rejected rather than
// silently misparsed. The margin-discount column keeps its historical name.
var Header = []string{
	"category",
	"room_name",
	"item_name",
	"quantity",
	"unit",
	"unit_price",
	"width",
	"height",
	"item_discount_percentage",
	"discount_kg_charges_percentage",
	"status",
}

// WriteItems encodes items in the canonical schema. Numeric fields are
// written with 2 decimal places so a round trip preserves monetary values
// exactly; zero-valued optional fields (width, height, discounts) are
// written empty.
func WriteItems(w io.Writer, items []core.RawItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, it := range items {
		record := []string{
			it.Category,
			it.RoomName,
			it.ItemName,
			it.Quantity.StringFixed(2),
			it.Unit,
			it.UnitPrice.StringFixed(2),
			optionalField(it.Width),
			optionalField(it.Height),
			optionalField(it.ItemDiscountPercentage),
			optionalField(it.MarginDiscountPercentage),
			it.Status,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write item %q: %w", it.ItemName, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadItems decodes a canonical-schema file. The header row must match
// Header exactly (case-insensitive, surrounding whitespace ignored).
func ReadItems(r io.Reader) ([]core.RawItem, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := verifyHeader(header); err != nil {
		return nil, err
	}

	var items []core.RawItem
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		it := core.RawItem{
			Category: strings.TrimSpace(record[0]),
			RoomName: strings.TrimSpace(record[1]),
			ItemName: strings.TrimSpace(record[2]),
			Unit:     strings.TrimSpace(record[4]),
			Status:   strings.TrimSpace(record[10]),
		}
		if it.Category == "" {
			return nil, fmt.Errorf("line %d: category is required", line)
		}
		if it.ItemName == "" {
			return nil, fmt.Errorf("line %d: item_name is required", line)
		}

		numeric := []struct {
			name  string
			value string
			dst   *decimal.Decimal
		}{
			{"quantity", record[3], &it.Quantity},
			{"unit_price", record[5], &it.UnitPrice},
			{"width", record[6], &it.Width},
			{"height", record[7], &it.Height},
			{"item_discount_percentage", record[8], &it.ItemDiscountPercentage},
			{"discount_kg_charges_percentage", record[9], &it.MarginDiscountPercentage},
		}
		for _, f := range numeric {
			s := strings.TrimSpace(f.value)
			if s == "" {
				continue
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s %q is not a number", line, f.name, s)
			}
			*f.dst = d
		}

		items = append(items, it)
	}
	return items, nil
}

func verifyHeader(header []string) error {
	if len(header) != len(Header) {
		return fmt.Errorf("header has %d columns, want %d", len(header), len(Header))
	}
	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(col), Header[i]) {
			return fmt.Errorf("header column %d is %q, want %q", i+1, col, Header[i])
		}
	}
	return nil
}

func optionalField(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}
