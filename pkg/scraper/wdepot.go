package scraper

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoPrice means the product page rendered but carried no recognizable
// pricing block.
var ErrNoPrice = errors.New("no price found on page")

// SearchResult is one fetched Webstaurant product price.
type SearchResult struct {
	Name  string
	Price decimal.Decimal
	URL   string
}

// WebstaurantScraper looks prices up one SKU at a time: site search first,
// then the stored product URL as a fallback. Requests that fail are retried
// once with a fresh connection before giving up.
type WebstaurantScraper struct {
	base   string
	client *http.Client
	log    *zap.SugaredLogger
}

func NewWebstaurantScraper(baseURL string, log *zap.SugaredLogger) *WebstaurantScraper {
	return &WebstaurantScraper{
		base:   trimTrailingSlash(baseURL),
		client: &http.Client{Timeout: 60 * time.Second},
		log:    log,
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Fetch resolves one SKU. productURL may be empty; when set it is tried after
// a fruitless search.
func (s *WebstaurantScraper) Fetch(ctx context.Context, sku, productURL string) (SearchResult, error) {
	searchURL := s.base + "/search/" + url.PathEscape(sku) + "/"

	res, err := s.fetchPage(ctx, searchURL)
	if err == nil {
		return res, nil
	}
	if productURL == "" {
		return SearchResult{}, err
	}
	s.log.Infow("search came up empty, retrying with stored product URL", "sku", sku, "url", productURL)
	return s.fetchPage(ctx, productURL)
}

func (s *WebstaurantScraper) fetchPage(ctx context.Context, pageURL string) (SearchResult, error) {
	doc, finalURL, err := s.get(ctx, pageURL)
	if err != nil {
		// one retry on transport errors, fresh request
		s.log.Warnw("page fetch failed, retrying", "url", pageURL, "err", err)
		time.Sleep(2 * time.Second)
		doc, finalURL, err = s.get(ctx, pageURL)
		if err != nil {
			return SearchResult{}, err
		}
	}
	res, err := parseWebstaurantProduct(doc)
	if err != nil {
		return SearchResult{}, errors.Wrapf(err, "parse %q", finalURL)
	}
	res.URL = finalURL
	return res, nil
}

func (s *WebstaurantScraper) get(ctx context.Context, pageURL string) (*goquery.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("GET %s: %s", pageURL, resp.Status)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", err
	}
	// searches redirect to the product page; record where we landed
	return doc, resp.Request.URL.String(), nil
}

// parseWebstaurantProduct reads the pricing table and takes the highest row
// price (the per-unit quote; bulk rows are discounted). Pages without the
// table fall back to the itemprop marker.
func parseWebstaurantProduct(doc *goquery.Document) (SearchResult, error) {
	var res SearchResult
	res.Name = doc.Find(`h1[itemprop="Name"]`).First().Text()

	found := false
	doc.Find("div.pricing tr").Each(func(_ int, tr *goquery.Selection) {
		td := tr.Find("td").First()
		if td.Length() == 0 {
			return
		}
		p, err := parsePriceCell(td.Text())
		if err != nil {
			return
		}
		if !found || p.GreaterThan(res.Price) {
			res.Price = p
		}
		found = true
	})
	if found {
		return res, nil
	}

	if span := doc.Find(`span[itemprop="price"]`).First(); span.Length() > 0 {
		p, err := parseMoney(span.Text())
		if err != nil {
			return res, err
		}
		res.Price = p
		return res, nil
	}

	return res, ErrNoPrice
}
