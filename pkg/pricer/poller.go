package pricer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/PricePaper/odoo-nsa/pkg/catalog"
	"github.com/PricePaper/odoo-nsa/pkg/odoo"
	"github.com/PricePaper/odoo-nsa/pkg/scraper"
)

const msgUnknownFailure = "Couldn't fetch price due to unknown reason, please check."

// Poller runs the scheduled-fetch cycle: read the per-site credentials from
// the ERP, scrape whichever competitors have pending schedule entries, and
// write the results back. Site access is injected so cycles are testable
// offline.
type Poller struct {
	Client  *odoo.Client
	Workers int
	Log     *zap.SugaredLogger

	// ScrapeDepot crawls the Restaurant Depot shopping list into a catalog.
	ScrapeDepot func(cfg odoo.ScrapingConfig) (catalog.Catalog, error)
	// FetchWebstaurant resolves one SKU on Webstaurant Store.
	FetchWebstaurant func(ctx context.Context, cfg odoo.ScrapingConfig, sku, productURL string) (scraper.SearchResult, error)
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := p.Cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Cycle performs one poll. Per-SKU failures are written to the ledger and do
// not fail the cycle; a missing site configuration does, since no work can
// proceed without it.
func (p *Poller) Cycle(ctx context.Context) error {
	log := p.Log.With("cycle", uuid.NewString()[:8])
	log.Info("polling queue")

	configs, err := p.Client.ScrapingConfigs()
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return errors.New("website configuration required")
	}

	if cfg, ok := configs[odoo.CompetitorWebstaurant]; ok {
		if err := p.webstaurantPass(ctx, cfg, log); err != nil {
			return err
		}
	}

	if cfg, ok := configs[odoo.CompetitorRestaurantDepot]; ok {
		if err := p.depotPass(cfg, log); err != nil {
			return err
		}
	}
	return nil
}

// webstaurantPass fetches each pending wdepot SKU sequentially: the site
// rate-limits aggressively, so no pool here.
func (p *Poller) webstaurantPass(ctx context.Context, cfg odoo.ScrapingConfig, log *zap.SugaredLogger) error {
	entries, err := p.Client.PendingSchedules()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Info("no webstaurant product in the queue")
		return nil
	}
	refIDs := make([]int, len(entries))
	for i, e := range entries {
		refIDs[i] = e.SKURefID
	}
	refs, err := p.Client.CompetitorSKUs(refIDs, odoo.CompetitorWebstaurant)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		log.Info("no webstaurant product in the queue")
		return nil
	}

	for _, ref := range refs {
		res, err := p.FetchWebstaurant(ctx, cfg, ref.SKU, ref.WebsiteLink)
		if err != nil {
			log.Errorw("webstaurant fetch failed", "sku", ref.SKU, "err", err)
			if lerr := p.Client.LogException(ref.ID, msgUnknownFailure); lerr != nil {
				log.Errorw("log exception failed", "sku", ref.SKU, "err", lerr)
			}
			continue
		}

		if res.URL != "" {
			if err := p.Client.WriteWebsiteLink(ref.ID, res.URL); err != nil {
				log.Errorw("write website link failed", "sku", ref.SKU, "err", err)
			}
		}
		err = p.Client.CreatePriceRecord(odoo.PriceRecord{
			SKURefID:  ref.ID,
			Name:      res.Name,
			Price:     res.Price,
			UpdatedAt: time.Now(),
		})
		if err != nil {
			log.Errorw("create price record failed", "sku", ref.SKU, "err", err)
			continue
		}
		log.Infow("recorded price", "sku", ref.SKU, "name", res.Name, "price", res.Price)

		schedID, found, err := p.Client.FindPendingSchedule(ref.ID)
		if err != nil {
			log.Errorw("find schedule failed", "sku", ref.SKU, "err", err)
			continue
		}
		if found {
			if err := p.Client.DeleteSchedule(schedID); err != nil {
				log.Errorw("delete schedule failed", "sku", ref.SKU, "err", err)
			}
		}
	}
	return nil
}

// depotPass crawls the shopping list once, then drains the pending rdepot
// jobs against the scraped catalog with the worker pool.
func (p *Poller) depotPass(cfg odoo.ScrapingConfig, log *zap.SugaredLogger) error {
	jobs, err := Pending(p.Client, odoo.CompetitorRestaurantDepot)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		log.Info("no restaurant depot product in the queue")
		return nil
	}

	cat, err := p.ScrapeDepot(cfg)
	if err != nil {
		return err
	}

	runner := &Runner{
		Workers: p.Workers,
		Dial:    p.dialLedger,
		Log:     log,
	}
	tally, err := runner.Run(cat, jobs)
	log.Infow("depot drain finished",
		"recorded", tally.Recorded,
		"unavailable", tally.Unavailable,
		"not_found", tally.NotFound,
		"failed", tally.Failed,
	)
	return err
}

func (p *Poller) dialLedger() (Ledger, error) {
	return odoo.Dial(p.Client.ClientConfig())
}
