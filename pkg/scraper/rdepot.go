// Package scraper fetches competitor prices: a Restaurant Depot shopping-list
// crawl and a Webstaurant Store per-SKU lookup.
package scraper

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	collyqueue "github.com/gocolly/colly/v2/queue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxNumRetries = 5

// Item is one shopping-list product as scraped from Restaurant Depot.
type Item struct {
	UPC         string
	Name        string
	ItemNumber  string
	UnitsInCase decimal.Decimal
	UnitPrice   decimal.Decimal
	CasePrice   decimal.Decimal
	HasCase     bool
}

type ItemCallbackFunc func(it Item)

// DepotScraper walks the paginated shopping list and emits one Item per
// product row. cacheDir can be empty to disable response caching.
type DepotScraper struct {
	colly    *colly.Collector
	q        *collyqueue.Queue
	log      *zap.SugaredLogger
	startURL string

	mutex       sync.Mutex
	urlBackoffs map[string]int
}

func NewDepotScraper(listURL, cacheDir string, threads int, log *zap.SugaredLogger, callback ItemCallbackFunc) (*DepotScraper, error) {
	u, err := url.Parse(listURL)
	if err != nil {
		return nil, err
	}

	options := []colly.CollectorOption{
		colly.AllowedDomains(u.Hostname()),
		colly.UserAgent("Mozilla/5.0 (Windows NT x.y; Win64; x64; rv:10.0) Gecko/20100101 Firefox/10.0"),
	}
	if cacheDir != "" {
		options = append(options, colly.CacheDir(cacheDir))
	}

	// InMemoryQueueStorage Init can't fail
	q, _ := collyqueue.New(threads, &collyqueue.InMemoryQueueStorage{MaxSize: 10000})

	s := &DepotScraper{
		colly:       colly.NewCollector(options...),
		q:           q,
		log:         log,
		startURL:    listURL,
		urlBackoffs: make(map[string]int),
	}

	s.colly.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: threads,
		Delay:       1 * time.Second,
		RandomDelay: 1 * time.Second,
	})

	s.colly.OnError(func(r *colly.Response, err error) {
		s.mutex.Lock()
		s.urlBackoffs[r.Request.URL.String()]++
		numRetries := s.urlBackoffs[r.Request.URL.String()]
		s.mutex.Unlock()

		if numRetries > maxNumRetries {
			s.log.Errorw("giving up on page", "url", r.Request.URL.String(), "retries", numRetries-1, "err", err)
			return
		}

		duration := time.Duration(math.Pow(2, float64(numRetries))) * time.Second
		s.log.Warnw("page failed, retrying", "url", r.Request.URL.String(), "status", r.StatusCode, "backoff", duration, "err", err)
		time.Sleep(duration)
		if err := r.Request.Retry(); err != nil {
			s.log.Errorw("retry failed", "url", r.Request.URL.String(), "err", err)
		}
	})

	s.colly.OnHTML("div#items-list ol.products.list.items.product-items li.item.product.product-item", func(e *colly.HTMLElement) {
		it, err := parseDepotItem(e.DOM)
		if err != nil {
			s.log.Warnw("skipping product row", "url", e.Request.URL.String(), "err", err)
			return
		}
		callback(it)
	})

	// Follow pagination until the "next" arrow goes inactive.
	s.colly.OnHTML("div.pages-item-next:not(.inactive) a.action.next[href]", func(e *colly.HTMLElement) {
		next := e.Request.AbsoluteURL(e.Attr("href"))
		if err := s.visit(next); err != nil && err != colly.ErrAlreadyVisited {
			s.log.Errorw("queue next page", "url", next, "err", err)
		}
	})

	s.colly.OnRequest(func(r *colly.Request) {
		s.log.Debugw("visiting", "url", r.URL.String())
	})

	return s, nil
}

// Start crawls from the shopping-list URL and blocks until every queued page
// has been processed.
func (s *DepotScraper) Start() error {
	if err := s.visit(s.startURL); err != nil {
		return err
	}
	if err := s.q.Run(s.colly); err != nil {
		return err
	}
	s.colly.Wait()
	return nil
}

func (s *DepotScraper) visit(url string) error {
	if visited, err := s.colly.HasVisited(url); err != nil {
		return err
	} else if visited {
		return colly.ErrAlreadyVisited
	}
	return s.q.AddURL(url)
}

var itemLabelCleaner = regexp.MustCompile(`^(Item:|UPC:|Units per case:)\s*`)

// parseDepotItem pulls one product out of a list row. The data column is a
// positional <li> list: name, item number, UPC, units per case.
func parseDepotItem(row *goquery.Selection) (Item, error) {
	var it Item

	row.Find(".col-md-12.data-col li").EachWithBreak(func(i int, li *goquery.Selection) bool {
		text := strings.TrimSpace(itemLabelCleaner.ReplaceAllString(strings.TrimSpace(li.Text()), ""))
		switch i {
		case 0:
			it.Name = text
		case 1:
			it.ItemNumber = text
		case 2:
			it.UPC = text
		case 3:
			if n, err := decimal.NewFromString(text); err == nil {
				it.UnitsInCase = n
			}
			return false
		}
		return true
	})

	// Single-priced items carry span.select-price; items sold per unit or
	// per case expose a package <select> instead.
	if price := strings.TrimSpace(row.Find("span.select-price").Text()); price != "" {
		unit, err := parseMoney(price)
		if err != nil {
			return it, err
		}
		it.UnitPrice = unit
		return it, nil
	}

	sel := row.Find("div.select-div-box select.product-package-select")
	unit, err := parseMoneyLabel(sel.Find(`option[value="1"]`).Text(), "Unit")
	if err != nil {
		return it, err
	}
	it.UnitPrice = unit
	if caseText := sel.Find(`option[value="2"]`).Text(); strings.TrimSpace(caseText) != "" {
		if casePrice, err := parseMoneyLabel(caseText, "Case"); err == nil {
			it.CasePrice = casePrice
			it.HasCase = true
		}
	}
	return it, nil
}
