package pricer

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/PricePaper/odoo-nsa/pkg/catalog"
	"github.com/PricePaper/odoo-nsa/pkg/odoo"
)

// fakeLedger records calls; individual operations can be made to fail.
type fakeLedger struct {
	mu         sync.Mutex
	exceptions map[int]string
	records    []odoo.PriceRecord
	deleted    []int

	scheduleID int // returned by FindPendingSchedule when > 0
	createErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{exceptions: map[int]string{}}
}

func (f *fakeLedger) LogException(refID int, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exceptions[refID] = msg
	return nil
}

func (f *fakeLedger) CreatePriceRecord(rec odoo.PriceRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLedger) FindPendingSchedule(refID int) (int, bool, error) {
	if f.scheduleID > 0 {
		return f.scheduleID, true, nil
	}
	return 0, false, nil
}

func (f *fakeLedger) DeleteSchedule(scheduleID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, scheduleID)
	return nil
}

func testCatalog() catalog.Catalog {
	return catalog.Catalog{
		"123": {Name: "Rice 50lb", UnitPrice: decimal.RequireFromString("2.5"), Available: true},
		"456": {Name: "Beans", Available: false},
	}
}

func testUpdater(led Ledger) *Updater {
	return &Updater{
		Catalog: testCatalog(),
		Ledger:  led,
		Log:     zap.NewNop().Sugar(),
		Now:     func() time.Time { return time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestClassify(t *testing.T) {
	cat := testCatalog()
	now := time.Now()

	if out := Classify(cat, "nope", now); out.Kind != NotFound {
		t.Errorf("unknown SKU = %s, want not_found", out.Kind)
	}
	if out := Classify(cat, "456", now); out.Kind != Unavailable {
		t.Errorf("unavailable SKU = %s, want unavailable", out.Kind)
	}
	out := Classify(cat, "123", now)
	if out.Kind != PriceRecorded {
		t.Fatalf("priced SKU = %s, want price_recorded", out.Kind)
	}
	if out.Name != "Rice 50lb" || !out.Price.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("got %q %s", out.Name, out.Price)
	}
}

func TestProcessRecordsPriceAndUnlinksSchedule(t *testing.T) {
	led := newFakeLedger()
	led.scheduleID = 55
	u := testUpdater(led)

	out, err := u.Process(Job{SKU: "123", RefID: 9})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Kind != PriceRecorded {
		t.Fatalf("outcome = %s", out.Kind)
	}
	if len(led.records) != 1 {
		t.Fatalf("want 1 price record, got %d", len(led.records))
	}
	rec := led.records[0]
	if rec.SKURefID != 9 || rec.Name != "Rice 50lb" || !rec.Price.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("record = %+v", rec)
	}
	if len(led.deleted) != 1 || led.deleted[0] != 55 {
		t.Errorf("schedule deletions = %v, want exactly [55]", led.deleted)
	}
	if len(led.exceptions) != 0 {
		t.Errorf("unexpected exception writes: %v", led.exceptions)
	}
}

func TestProcessUnavailableLogsAndKeepsSchedule(t *testing.T) {
	led := newFakeLedger()
	led.scheduleID = 55
	u := testUpdater(led)

	out, err := u.Process(Job{SKU: "456", RefID: 7})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Kind != Unavailable {
		t.Fatalf("outcome = %s", out.Kind)
	}
	if led.exceptions[7] != "Temporarily unavailable" {
		t.Errorf("exception = %q", led.exceptions[7])
	}
	if len(led.deleted) != 0 {
		t.Errorf("unavailable must not unlink schedules, got %v", led.deleted)
	}
	if len(led.records) != 0 {
		t.Errorf("unavailable must not create price records, got %v", led.records)
	}
}

func TestProcessUnknownSKULogsNotFound(t *testing.T) {
	led := newFakeLedger()
	u := testUpdater(led)

	out, err := u.Process(Job{SKU: "000", RefID: 3})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Kind != NotFound {
		t.Fatalf("outcome = %s", out.Kind)
	}
	if _, ok := led.exceptions[3]; !ok {
		t.Error("not-found must write an exception record")
	}
	if len(led.records) != 0 {
		t.Error("not-found must never create a price record")
	}
}

func TestRunnerDrainsEveryJob(t *testing.T) {
	led := newFakeLedger()
	led.scheduleID = 1

	jobs := []Job{
		{SKU: "123", RefID: 1},
		{SKU: "456", RefID: 2},
		{SKU: "000", RefID: 3},
		{SKU: "123", RefID: 4},
		{SKU: "123", RefID: 5},
	}
	r := &Runner{
		Workers: 3,
		Dial:    func() (Ledger, error) { return led, nil },
		Log:     zap.NewNop().Sugar(),
	}
	tally, err := r.Run(testCatalog(), jobs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Total() != len(jobs) {
		t.Fatalf("outcomes = %d, want %d", tally.Total(), len(jobs))
	}
	if tally.Recorded != 3 || tally.Unavailable != 1 || tally.NotFound != 1 || tally.Failed != 0 {
		t.Errorf("tally = %+v", tally)
	}
}

func TestRunnerRemoteFailureDoesNotBlockDrain(t *testing.T) {
	led := newFakeLedger()
	led.createErr = errors.New("connection reset")

	jobs := []Job{
		{SKU: "123", RefID: 1},
		{SKU: "456", RefID: 2},
		{SKU: "000", RefID: 3},
	}
	r := &Runner{
		Workers: 2,
		Dial:    func() (Ledger, error) { return led, nil },
		Log:     zap.NewNop().Sugar(),
	}
	tally, err := r.Run(testCatalog(), jobs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Total() != len(jobs) {
		t.Fatalf("outcomes = %d, want %d", tally.Total(), len(jobs))
	}
	// the priced job fails its write; the other two still land
	if tally.Failed != 1 || tally.Unavailable != 1 || tally.NotFound != 1 {
		t.Errorf("tally = %+v", tally)
	}
}

// panickyLedger blows up on price writes instead of returning an error.
type panickyLedger struct{ *fakeLedger }

func (p *panickyLedger) CreatePriceRecord(rec odoo.PriceRecord) error {
	panic("ledger connection corrupted")
}

func TestRunnerPanicDoesNotBlockDrain(t *testing.T) {
	led := &panickyLedger{fakeLedger: newFakeLedger()}

	jobs := []Job{
		{SKU: "123", RefID: 1}, // priced, hits the panicking write
		{SKU: "456", RefID: 2},
		{SKU: "000", RefID: 3},
	}
	r := &Runner{
		Workers: 2,
		Dial:    func() (Ledger, error) { return led, nil },
		Log:     zap.NewNop().Sugar(),
	}
	done := make(chan struct{})
	var tally Tally
	var err error
	go func() {
		tally, err = r.Run(testCatalog(), jobs)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run hung after a panic")
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Total() != len(jobs) {
		t.Fatalf("outcomes = %d, want %d", tally.Total(), len(jobs))
	}
	if tally.Failed != 1 || tally.Unavailable != 1 || tally.NotFound != 1 {
		t.Errorf("tally = %+v", tally)
	}
}

func TestRunnerDialFailureStillDrains(t *testing.T) {
	jobs := []Job{{SKU: "123", RefID: 1}, {SKU: "456", RefID: 2}}
	r := &Runner{
		Workers: 2,
		Dial:    func() (Ledger, error) { return nil, errors.New("no route to host") },
		Log:     zap.NewNop().Sugar(),
	}
	done := make(chan struct{})
	var tally Tally
	var err error
	go func() {
		tally, err = r.Run(testCatalog(), jobs)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run hung on dial failure")
	}
	if err == nil {
		t.Error("Run should surface the dial error")
	}
	if tally.Failed != len(jobs) {
		t.Errorf("failed = %d, want %d", tally.Failed, len(jobs))
	}
}
