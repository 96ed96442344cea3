package scraper

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// parseMoney turns "$12.34" (whitespace and tabs tolerated) into a decimal.
func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "price %q", s)
	}
	return d, nil
}

// parseMoneyLabel strips a leading label ("Unit $3.50", "Case $41.00") before
// parsing.
func parseMoneyLabel(s, label string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, label)
	return parseMoney(s)
}

// parsePriceCell extracts the dollar amount from a pricing-table cell such as
// "\n\t$41.99/Case". Only the part before the slash is a price.
func parsePriceCell(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer("\n", "", "\t", "").Replace(s)
	s = strings.SplitN(s, "/", 2)[0]
	return parseMoney(s)
}
