// Package catalog loads the Restaurant Depot "All Items" price export into an
// in-memory SKU lookup table.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Column headers of the vendor export.
const (
	colUPC         = "UPC"
	colDescription = "Description"
	colUnitCase    = "Unit/Case"
	colQty         = "Qty"
	colEstPrice    = "Est.Price"
)

const (
	// unavailableSentinel appears in the Est.Price column for items the
	// vendor currently cannot supply.
	unavailableSentinel = "N/A"

	// terminatorSentinel marks the summary row at the bottom of the export.
	// Everything after it is totals, not items.
	terminatorSentinel = "Total:"
)

// Entry is one priced (or unavailable) catalog item. Entries are immutable
// after Load returns; the catalog is shared read-only across workers.
type Entry struct {
	Name      string
	UnitPrice decimal.Decimal
	Available bool
}

// Catalog maps vendor SKU/UPC to its entry.
type Catalog map[string]Entry

// Lookup returns the entry for a SKU.
func (c Catalog) Lookup(sku string) (Entry, bool) {
	e, ok := c[sku]
	return e, ok
}

// RowError is a recoverable, per-row parse failure. The loader skips the row
// and keeps going; callers decide whether to log or fail the whole load.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Line, e.Err) }

func (e RowError) Unwrap() error { return e.Err }

// Load parses a price export. A row with an empty UPC amends the previous
// SKU's price (a per-case restatement) and keeps its name. Returned RowErrors
// cover malformed rows only; a non-nil error means the input itself was
// unreadable.
func Load(r io.Reader) (Catalog, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "read header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, want := range []string{colUPC, colDescription, colUnitCase, colQty, colEstPrice} {
		if _, ok := cols[want]; !ok {
			return nil, nil, errors.Errorf("missing column %q", want)
		}
	}

	cat := make(Catalog)
	var rowErrs []RowError
	lastSKU := ""
	line := 1

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}

		field := func(name string) string {
			i := cols[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		if field(colUnitCase) == terminatorSentinel {
			break
		}

		upc := field(colUPC)
		price := field(colEstPrice)

		if upc == "" {
			// Continuation row: case-price amendment to the row above.
			if err := amend(cat, lastSKU, price, field(colQty)); err != nil {
				rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			}
			continue
		}

		if price == unavailableSentinel {
			cat[upc] = Entry{Name: field(colDescription), Available: false}
			lastSKU = upc
			continue
		}

		unit, err := unitPrice(price, field(colQty))
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		cat[upc] = Entry{Name: field(colDescription), UnitPrice: unit, Available: true}
		lastSKU = upc
	}

	return cat, rowErrs, nil
}

// amend applies a continuation row to the previously seen SKU. An unavailable
// or unknown predecessor rejects the row: a case price must not resurrect an
// entry that carries no price.
func amend(cat Catalog, sku, price, qty string) error {
	if sku == "" {
		return errors.New("continuation row without a preceding UPC")
	}
	prev, ok := cat[sku]
	if !ok {
		return errors.Errorf("continuation row for unknown UPC %q", sku)
	}
	if price == unavailableSentinel {
		return errors.Errorf("continuation row for UPC %q marked %s", sku, unavailableSentinel)
	}
	if !prev.Available {
		return errors.Errorf("continuation row for unavailable UPC %q", sku)
	}
	unit, err := unitPrice(price, qty)
	if err != nil {
		return err
	}
	cat[sku] = Entry{Name: prev.Name, UnitPrice: unit, Available: true}
	return nil
}

func unitPrice(price, qty string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(strings.TrimPrefix(price, "$"))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "price %q", price)
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "qty %q", qty)
	}
	if !q.IsPositive() {
		return decimal.Zero, errors.Errorf("qty %q is not positive", qty)
	}
	if p.IsNegative() {
		return decimal.Zero, errors.Errorf("price %q is negative", price)
	}
	return p.Div(q), nil
}
