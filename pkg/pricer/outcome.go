// Package pricer drains scheduled price-fetch jobs against a loaded catalog
// and persists one outcome per job to the ERP.
package pricer

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/PricePaper/odoo-nsa/pkg/catalog"
)

// Job is one scheduled fetch: the competitor SKU and the ERP reference id the
// result is written against.
type Job struct {
	SKU   string
	RefID int
}

// Kind enumerates the three possible results of processing a job.
type Kind int

const (
	NotFound Kind = iota
	Unavailable
	PriceRecorded
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unavailable:
		return "unavailable"
	case PriceRecorded:
		return "price_recorded"
	}
	return "unknown"
}

// Outcome is the classified result of one catalog lookup. Name/Price/At are
// meaningful only for PriceRecorded.
type Outcome struct {
	Kind  Kind
	Name  string
	Price decimal.Decimal
	At    time.Time
}

// Classify looks up a SKU and decides the outcome. It never touches the
// ledger; Updater.Process applies the side effects.
func Classify(cat catalog.Catalog, sku string, now time.Time) Outcome {
	entry, ok := cat.Lookup(sku)
	if !ok {
		return Outcome{Kind: NotFound}
	}
	if !entry.Available {
		return Outcome{Kind: Unavailable}
	}
	return Outcome{Kind: PriceRecorded, Name: entry.Name, Price: entry.UnitPrice, At: now}
}
