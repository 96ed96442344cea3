package catalog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const header = "UPC,Description,Unit/Case,Qty,Est.Price\n"

func load(t *testing.T, csv string) (Catalog, []RowError) {
	t.Helper()
	cat, rowErrs, err := Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cat, rowErrs
}

func wantPrice(t *testing.T, cat Catalog, sku, price string) {
	t.Helper()
	e, ok := cat.Lookup(sku)
	if !ok {
		t.Fatalf("SKU %q not loaded", sku)
	}
	if !e.Available {
		t.Fatalf("SKU %q unexpectedly unavailable", sku)
	}
	want := decimal.RequireFromString(price)
	if !e.UnitPrice.Equal(want) {
		t.Errorf("SKU %q unit price = %s, want %s", sku, e.UnitPrice, want)
	}
}

func TestLoadUnitPrice(t *testing.T) {
	cat, rowErrs := load(t, header+
		"123,Rice 50lb,Case,20,$50.00\n"+
		"456,Beans,Unit,4,$10.00\n")
	if len(rowErrs) != 0 {
		t.Fatalf("unexpected row errors: %v", rowErrs)
	}
	wantPrice(t, cat, "123", "2.5")
	wantPrice(t, cat, "456", "2.5")
	if e, _ := cat.Lookup("123"); e.Name != "Rice 50lb" {
		t.Errorf("name = %q, want Rice 50lb", e.Name)
	}
}

func TestLoadUnavailable(t *testing.T) {
	cat, rowErrs := load(t, header+"789,Flour,Unit,1,N/A\n")
	if len(rowErrs) != 0 {
		t.Fatalf("unexpected row errors: %v", rowErrs)
	}
	e, ok := cat.Lookup("789")
	if !ok {
		t.Fatal("SKU 789 not loaded")
	}
	if e.Available {
		t.Error("N/A row should be unavailable")
	}
	if !e.UnitPrice.IsZero() {
		t.Errorf("unavailable entry carries price %s", e.UnitPrice)
	}
}

func TestLoadContinuationAmendsPreviousSKU(t *testing.T) {
	cat, rowErrs := load(t, header+
		"123,Rice 50lb,Unit,1,$3.00\n"+
		",,Case,4,$10.00\n")
	if len(rowErrs) != 0 {
		t.Fatalf("unexpected row errors: %v", rowErrs)
	}
	// the case row replaces the unit quote but inherits the name
	wantPrice(t, cat, "123", "2.5")
	if e, _ := cat.Lookup("123"); e.Name != "Rice 50lb" {
		t.Errorf("continuation lost the name: %q", e.Name)
	}
}

func TestLoadContinuationAfterUnavailableIsRejected(t *testing.T) {
	cat, rowErrs := load(t, header+
		"456,Beans,Unit,1,N/A\n"+
		",,Case,4,$10.00\n")
	e, ok := cat.Lookup("456")
	if !ok {
		t.Fatal("SKU 456 not loaded")
	}
	if e.Available {
		t.Error("456 must stay unavailable; a case price cannot resurrect it")
	}
	if len(rowErrs) != 1 {
		t.Fatalf("want 1 row error, got %v", rowErrs)
	}
	if rowErrs[0].Line != 3 {
		t.Errorf("row error line = %d, want 3", rowErrs[0].Line)
	}
}

func TestLoadContinuationWithoutPredecessor(t *testing.T) {
	_, rowErrs := load(t, header+",,Case,4,$10.00\n")
	if len(rowErrs) != 1 {
		t.Fatalf("want 1 row error, got %v", rowErrs)
	}
}

func TestLoadTerminatorStopsParsing(t *testing.T) {
	cat, _ := load(t, header+
		"123,Rice,Unit,1,$3.00\n"+
		",,Total:,,\n"+
		"999,After Totals,Unit,1,$1.00\n")
	if _, ok := cat.Lookup("999"); ok {
		t.Error("rows after the terminator must be ignored")
	}
	if _, ok := cat.Lookup("123"); !ok {
		t.Error("rows before the terminator must be kept")
	}
}

func TestLoadBadRowsAreSkippedNotFatal(t *testing.T) {
	cat, rowErrs := load(t, header+
		"123,Rice,Unit,0,$3.00\n"+ // zero qty
		"456,Beans,Unit,x,$3.00\n"+ // malformed qty
		"789,Flour,Unit,2,three\n"+ // malformed price
		"999,Sugar,Unit,2,$3.00\n")
	if len(rowErrs) != 3 {
		t.Fatalf("want 3 row errors, got %d: %v", len(rowErrs), rowErrs)
	}
	if len(cat) != 1 {
		t.Fatalf("want 1 surviving entry, got %d", len(cat))
	}
	wantPrice(t, cat, "999", "1.5")
}

func TestWriteCSVRoundTrips(t *testing.T) {
	rows := []Row{
		{UPC: "123", Name: "Rice 50lb", Qty: decimal.NewFromInt(20), Price: decimal.NewFromInt(50), Available: true},
		{UPC: "456", Name: "Beans", Available: false},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	cat, rowErrs, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("unexpected row errors: %v", rowErrs)
	}
	wantPrice(t, cat, "123", "2.5")
	if e, _ := cat.Lookup("456"); e.Available {
		t.Error("456 should round-trip as unavailable")
	}
}
