package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	cli "github.com/jawher/mow.cli"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/PricePaper/odoo-nsa/pkg/catalog"
	"github.com/PricePaper/odoo-nsa/pkg/config"
	"github.com/PricePaper/odoo-nsa/pkg/odoo"
	"github.com/PricePaper/odoo-nsa/pkg/pricer"
	"github.com/PricePaper/odoo-nsa/pkg/scraper"
)

func main() {
	app := cli.App("pricefetch", "Poll Odoo for price-fetch schedules and record competitor grocery prices")
	app.Spec = "[-d]"

	debug := app.BoolOpt("d debug", false, "enable debug logging")

	var log *zap.SugaredLogger
	app.Before = func() {
		log = newLogger(*debug)
	}

	app.Command("update", "record prices from a catalog export and clear fulfilled schedules", func(cmd *cli.Cmd) {
		cmdUpdate(cmd, &log)
	})
	app.Command("poll", "poll the schedule queue and scrape competitor sites until interrupted", func(cmd *cli.Cmd) {
		cmdPoll(cmd, &log)
	})
	app.Command("scrape", "crawl the Restaurant Depot shopping list into a catalog export", func(cmd *cli.Cmd) {
		cmdScrape(cmd, &log)
	})

	if err := app.Run(os.Args); err != nil {
		cli.Exit(1)
	}
}

func newLogger(debug bool) *zap.SugaredLogger {
	var l *zap.Logger
	if debug {
		l, _ = zap.NewDevelopment()
	} else {
		l, _ = zap.NewProduction()
	}
	return l.Sugar()
}

func cmdUpdate(cmd *cli.Cmd, log **zap.SugaredLogger) {
	cmd.Spec = "[-f] [-w]"
	csvPath := cmd.StringOpt("f csv", "", "catalog export to load (default NSA_CATALOG_CSV)")
	workers := cmd.IntOpt("w workers", 0, "worker count (default NSA_WORKERS)")

	cmd.Action = func() {
		logger := *log
		cfg, err := config.Load()
		if err != nil {
			logger.Fatalw("configuration", "err", err)
		}
		path := cfg.CatalogCSV
		if *csvPath != "" {
			path = *csvPath
		}
		n := cfg.Workers
		if *workers > 0 {
			n = *workers
		}

		f, err := os.Open(path)
		if err != nil {
			logger.Fatalw("open catalog", "path", path, "err", err)
		}
		cat, rowErrs, err := catalog.Load(f)
		f.Close()
		if err != nil {
			logger.Fatalw("load catalog", "path", path, "err", err)
		}
		for _, re := range rowErrs {
			logger.Warnw("catalog row skipped", "path", path, "err", re)
		}
		logger.Infow("catalog loaded", "path", path, "entries", len(cat), "bad_rows", len(rowErrs))

		odooCfg := odooConfig(cfg)
		client, err := odoo.Dial(odooCfg)
		if err != nil {
			logger.Fatalw("dial odoo", "err", err)
		}
		defer client.Close()

		jobs, err := pricer.Pending(client, odoo.CompetitorRestaurantDepot)
		if err != nil {
			logger.Fatalw("list pending schedules", "err", err)
		}
		if len(jobs) == 0 {
			logger.Info("nothing scheduled")
			return
		}

		runner := &pricer.Runner{
			Workers: n,
			Dial: func() (pricer.Ledger, error) {
				return odoo.Dial(odooCfg)
			},
			Log: logger,
		}
		tally, err := runner.Run(cat, jobs)
		logger.Infow("drain finished",
			"jobs", len(jobs),
			"recorded", tally.Recorded,
			"unavailable", tally.Unavailable,
			"not_found", tally.NotFound,
			"failed", tally.Failed,
		)
		if err != nil {
			logger.Fatalw("drain", "err", err)
		}
	}
}

func cmdPoll(cmd *cli.Cmd, log **zap.SugaredLogger) {
	cmd.Spec = "[-i]"
	interval := cmd.StringOpt("i interval", "", "poll interval, e.g. 120s (default NSA_POLL_INTERVAL)")

	cmd.Action = func() {
		logger := *log
		cfg, err := config.Load()
		if err != nil {
			logger.Fatalw("configuration", "err", err)
		}
		every := cfg.PollInterval
		if *interval != "" {
			every, err = time.ParseDuration(*interval)
			if err != nil {
				logger.Fatalw("bad interval", "interval", *interval, "err", err)
			}
		}

		client, err := odoo.Dial(odooConfig(cfg))
		if err != nil {
			logger.Fatalw("dial odoo", "err", err)
		}
		defer client.Close()

		p := &pricer.Poller{
			Client:  client,
			Workers: cfg.Workers,
			Log:     logger,
			ScrapeDepot: func(site odoo.ScrapingConfig) (catalog.Catalog, error) {
				items, err := crawlDepot(site.HomePageURL, cfg.CacheDir, cfg.Workers, logger)
				if err != nil {
					return nil, err
				}
				cat := make(catalog.Catalog, len(items))
				for _, it := range items {
					cat[it.UPC] = catalog.Entry{Name: it.Name, UnitPrice: it.UnitPrice, Available: true}
				}
				return cat, nil
			},
			FetchWebstaurant: func(ctx context.Context, site odoo.ScrapingConfig, sku, productURL string) (scraper.SearchResult, error) {
				return scraper.NewWebstaurantScraper(site.HomePageURL, logger).Fetch(ctx, sku, productURL)
			},
		}
		if err := p.Run(context.Background(), every); err != nil {
			logger.Fatalw("poll loop", "err", err)
		}
	}
}

func cmdScrape(cmd *cli.Cmd, log **zap.SugaredLogger) {
	cmd.Spec = "URL [-o] [-c] [-w] [--overwrite]"
	listURL := cmd.StringArg("URL", "", "shopping-list URL to crawl")
	outDir := cmd.StringOpt("o out", "./data", "directory in which to write the catalog export")
	cacheDir := cmd.StringOpt("c cache", "", "cache directory")
	threads := cmd.IntOpt("w workers", 4, "crawler thread count")
	overwrite := cmd.BoolOpt("overwrite", false, "write directly into the out dir instead of a timestamped subdirectory")

	cmd.Action = func() {
		logger := *log

		dirname := *outDir
		if !*overwrite {
			dirname = filepath.Join(dirname, time.Now().Format("2006-01-02T15-04-05Z-0700"))
		}
		if err := os.MkdirAll(dirname, os.ModeDir|0755); err != nil {
			logger.Fatalw("create out dir", "dir", dirname, "err", err)
		}

		items, err := crawlDepot(*listURL, *cacheDir, *threads, logger)
		if err != nil {
			logger.Fatalw("crawl", "url", *listURL, "err", err)
		}

		rows := make([]catalog.Row, 0, len(items))
		for _, it := range items {
			row := catalog.Row{UPC: it.UPC, Name: it.Name, Available: true}
			if it.HasCase {
				row.Qty = it.UnitsInCase
				row.Price = it.CasePrice
			} else {
				row.Qty = one
				row.Price = it.UnitPrice
			}
			rows = append(rows, row)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].UPC < rows[j].UPC })

		out := filepath.Join(dirname, "Allitems.csv")
		f, err := os.Create(out)
		if err != nil {
			logger.Fatalw("create export", "path", out, "err", err)
		}
		defer f.Close()
		if err := catalog.WriteCSV(f, rows); err != nil {
			logger.Fatalw("write export", "path", out, "err", err)
		}
		logger.Infow("export written", "path", out, "items", len(rows))
	}
}

var one = decimal.NewFromInt(1)

func crawlDepot(listURL, cacheDir string, threads int, logger *zap.SugaredLogger) ([]scraper.Item, error) {
	var mu sync.Mutex
	var items []scraper.Item
	s, err := scraper.NewDepotScraper(listURL, cacheDir, threads, logger, func(it scraper.Item) {
		mu.Lock()
		items = append(items, it)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return items, nil
}

func odooConfig(cfg config.Config) odoo.Config {
	return odoo.Config{
		URL:         cfg.XMLRPCURL,
		Database:    cfg.Database,
		UID:         cfg.UID,
		Password:    cfg.Password,
		InsecureTLS: cfg.InsecureTLS,
	}
}
