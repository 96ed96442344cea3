// Package odoo is a thin XML-RPC client for the ERP models this service
// reads and writes. Model and method names are the wire contract and are
// kept verbatim, misspellings included.
package odoo

import (
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Competitor codes as stored on product.sku.reference.
const (
	CompetitorRestaurantDepot = "rdepot"
	CompetitorWebstaurant     = "wdepot"
)

type Config struct {
	URL      string
	Database string
	UID      int
	Password string

	// InsecureTLS skips certificate verification. The ERP instances this
	// talks to run self-signed certs.
	InsecureTLS bool
}

// Client wraps one XML-RPC connection. Connections are not safe to share
// across workers; each worker dials its own.
type Client struct {
	rpc *xmlrpc.Client
	cfg Config
}

func Dial(cfg Config) (*Client, error) {
	var transport http.RoundTripper
	if cfg.InsecureTLS {
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	rpc, err := xmlrpc.NewClient(strings.TrimRight(cfg.URL, "/")+"/xmlrpc/object", transport)
	if err != nil {
		return nil, errors.Wrapf(err, "odoo: dial %q", cfg.URL)
	}
	return &Client{rpc: rpc, cfg: cfg}, nil
}

func (c *Client) Close() error { return c.rpc.Close() }

// ClientConfig returns the dial configuration so collaborators can open their
// own connections instead of sharing this one.
func (c *Client) ClientConfig() Config { return c.cfg }

func (c *Client) execute(result interface{}, model, method string, args ...interface{}) error {
	params := append([]interface{}{c.cfg.Database, c.cfg.UID, c.cfg.Password, model, method}, args...)
	return errors.Wrapf(c.rpc.Call("execute", params, result), "odoo: %s.%s", model, method)
}

// PriceRecord is one competitor price observation to persist.
type PriceRecord struct {
	SKURefID  int
	Name      string
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// CreatePriceRecord writes one competitor.website.price row.
func (c *Client) CreatePriceRecord(rec PriceRecord) error {
	vals := map[string]interface{}{
		"product_sku_ref_id": rec.SKURefID,
		"item_name":          rec.Name,
		"item_price":         rec.Price.InexactFloat64(),
		"update_date":        rec.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
	var id interface{}
	return c.execute(&id, "competitor.website.price", "create", vals)
}

// LogException records a fetch failure against the SKU reference.
func (c *Client) LogException(refID int, msg string) error {
	var res interface{}
	return c.execute(&res, "product.sku.reference", "log_exception_error", refID, msg)
}

// FindPendingSchedule returns the first schedule entry still open for a SKU
// reference, if any.
func (c *Client) FindPendingSchedule(refID int) (int, bool, error) {
	var raw interface{}
	err := c.execute(&raw, "price.fetch.schedule", "search",
		[]interface{}{[]interface{}{"product_sku_ref_id", "=", refID}}, 0, 1)
	if err != nil {
		return 0, false, err
	}
	ids := asIntSlice(raw)
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// DeleteSchedule removes a fulfilled schedule entry.
func (c *Client) DeleteSchedule(scheduleID int) error {
	var res interface{}
	return c.execute(&res, "price.fetch.schedule", "unlink", []interface{}{scheduleID})
}

// WriteWebsiteLink stores the product page URL that fulfilled a fetch, so the
// next run can skip the site search.
func (c *Client) WriteWebsiteLink(refID int, url string) error {
	var res interface{}
	return c.execute(&res, "product.sku.reference", "write", refID,
		map[string]interface{}{"website_link": url})
}

// ScheduleEntry is one outstanding price-fetch request.
type ScheduleEntry struct {
	ID       int
	SKURefID int
}

// PendingSchedules lists every open price.fetch.schedule entry.
func (c *Client) PendingSchedules() ([]ScheduleEntry, error) {
	var raw interface{}
	err := c.execute(&raw, "price.fetch.schedule", "search_read",
		[]interface{}{}, []string{"id", "product_sku_ref_id"})
	if err != nil {
		return nil, err
	}
	var out []ScheduleEntry
	for _, row := range asMapSlice(raw) {
		id, ok := asInt(row["id"])
		if !ok {
			continue
		}
		// many2one fields come back as [id, display_name]
		ref, ok := asRefID(row["product_sku_ref_id"])
		if !ok {
			continue
		}
		out = append(out, ScheduleEntry{ID: id, SKURefID: ref})
	}
	return out, nil
}

// SKURef is a product.sku.reference row for one competitor.
type SKURef struct {
	ID          int
	SKU         string
	WebsiteLink string
	// QtyInUOM mirrors the server's field list; pricing derives its own
	// quantities from the crawl, so nothing consumes it yet.
	QtyInUOM float64
}

// CompetitorSKUs resolves schedule reference ids to the competitor's SKU rows,
// skipping references already flagged in_exception.
func (c *Client) CompetitorSKUs(refIDs []int, competitor string) ([]SKURef, error) {
	ids := make([]interface{}, len(refIDs))
	for i, id := range refIDs {
		ids[i] = id
	}
	domain := []interface{}{
		[]interface{}{"id", "in", ids},
		[]interface{}{"competitor", "=", competitor},
		[]interface{}{"in_exception", "=", false},
	}
	var raw interface{}
	err := c.execute(&raw, "product.sku.reference", "search_read",
		domain, []string{"id", "competitor_sku", "website_link", "qty_in_uom"})
	if err != nil {
		return nil, err
	}
	var out []SKURef
	for _, row := range asMapSlice(raw) {
		id, ok := asInt(row["id"])
		if !ok {
			continue
		}
		qty, _ := asFloat(row["qty_in_uom"])
		out = append(out, SKURef{
			ID:          id,
			SKU:         asString(row["competitor_sku"]),
			WebsiteLink: asString(row["website_link"]),
			QtyInUOM:    qty,
		})
	}
	return out, nil
}

// ScrapingConfig is the per-competitor login configuration maintained in the
// ERP.
type ScrapingConfig struct {
	Competitor  string
	HomePageURL string
	Username    string
	Password    string
}

// ScrapingConfigs reads the per-competitor site credentials, keyed by
// competitor code. The model name typo is live on the server.
func (c *Client) ScrapingConfigs() (map[string]ScrapingConfig, error) {
	var raw interface{}
	err := c.execute(&raw, "website.scraping.cofig", "search_read",
		[]interface{}{}, []string{"id", "home_page_url", "username", "password", "competitor"})
	if err != nil {
		return nil, err
	}
	out := make(map[string]ScrapingConfig)
	for _, row := range asMapSlice(raw) {
		cfg := ScrapingConfig{
			Competitor:  asString(row["competitor"]),
			HomePageURL: asString(row["home_page_url"]),
			Username:    asString(row["username"]),
			Password:    asString(row["password"]),
		}
		if cfg.Competitor != "" {
			out[cfg.Competitor] = cfg
		}
	}
	return out, nil
}
