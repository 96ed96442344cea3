package catalog

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Row is one line of a price export about to be written. Qty/Price describe a
// case (or a single unit with Qty 1); unavailable rows carry neither.
type Row struct {
	UPC       string
	Name      string
	Qty       decimal.Decimal
	Price     decimal.Decimal
	Available bool
}

// WriteCSV writes rows in the same shape Load consumes, terminator included,
// so a scrape run can be re-read as a catalog.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{colUPC, colDescription, colUnitCase, colQty, colEstPrice}); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, r := range rows {
		rec := []string{r.UPC, r.Name, "", "", unavailableSentinel}
		if r.Available {
			rec[3] = r.Qty.String()
			rec[4] = "$" + r.Price.StringFixed(2)
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "write UPC %q", r.UPC)
		}
	}
	if err := cw.Write([]string{"", "", terminatorSentinel, "", ""}); err != nil {
		return errors.Wrap(err, "write terminator")
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush")
}
