package pricer

import (
	"time"

	"go.uber.org/zap"

	"github.com/PricePaper/odoo-nsa/pkg/catalog"
	"github.com/PricePaper/odoo-nsa/pkg/odoo"
)

// Exception messages stored on the SKU reference. The not-found text is what
// back-office users grep for, so it stays stable.
const (
	msgUnavailable = "Temporarily unavailable"
	msgNotFound    = "Couldn't fetch price due to unknown reason, please check if the product is added in the scrape list setup in restaurant depot website."
)

// Ledger is the remote-write surface a worker needs. *odoo.Client implements
// it; tests substitute a recorder.
type Ledger interface {
	LogException(refID int, msg string) error
	CreatePriceRecord(rec odoo.PriceRecord) error
	FindPendingSchedule(refID int) (int, bool, error)
	DeleteSchedule(scheduleID int) error
}

// Updater applies the per-job logic: classify against the catalog, then make
// exactly one ledger write (plus the schedule unlink on a recorded price).
type Updater struct {
	Catalog catalog.Catalog
	Ledger  Ledger
	Log     *zap.SugaredLogger

	// Now is stubbed in tests; nil means time.Now.
	Now func() time.Time
}

// Process handles one job. The returned outcome is always valid; a non-nil
// error means its ledger write failed (the job is still considered handled).
func (u *Updater) Process(job Job) (Outcome, error) {
	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	out := Classify(u.Catalog, job.SKU, now())

	switch out.Kind {
	case NotFound:
		return out, u.Ledger.LogException(job.RefID, msgNotFound)

	case Unavailable:
		return out, u.Ledger.LogException(job.RefID, msgUnavailable)

	default:
		err := u.Ledger.CreatePriceRecord(odoo.PriceRecord{
			SKURefID:  job.RefID,
			Name:      out.Name,
			Price:     out.Price,
			UpdatedAt: out.At,
		})
		if err != nil {
			return out, err
		}
		u.Log.Infow("recorded price", "sku", job.SKU, "name", out.Name, "price", out.Price)

		schedID, found, err := u.Ledger.FindPendingSchedule(job.RefID)
		if err != nil || !found {
			return out, err
		}
		return out, u.Ledger.DeleteSchedule(schedID)
	}
}
