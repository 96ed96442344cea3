package pricer

import (
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PricePaper/odoo-nsa/pkg/catalog"
	"github.com/PricePaper/odoo-nsa/pkg/jobqueue"
	"github.com/PricePaper/odoo-nsa/pkg/odoo"
)

// Tally counts outcomes for one drain.
type Tally struct {
	Recorded    int
	Unavailable int
	NotFound    int
	Failed      int
}

func (t Tally) Total() int { return t.Recorded + t.Unavailable + t.NotFound + t.Failed }

// Runner drains a job list with a fixed pool of workers. Each worker dials
// its own ledger connection; the queue and the catalog are the only shared
// state, and the catalog is read-only.
type Runner struct {
	Workers int
	Dial    func() (Ledger, error)
	Log     *zap.SugaredLogger
}

// Run enqueues every job, starts the pool, and blocks until all jobs have
// been acknowledged. A failed job (RPC error, panic) is logged and counted;
// it never blocks sibling workers or the drain.
func (r *Runner) Run(cat catalog.Catalog, jobs []Job) (Tally, error) {
	q := jobqueue.New[Job]()
	for _, j := range jobs {
		q.Enqueue(j)
	}

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var tally Tally

	var g errgroup.Group
	for i := 1; i <= workers; i++ {
		log := r.Log.With("worker", i)
		g.Go(func() error {
			led, err := r.Dial()
			if err != nil {
				// Still drain our share so Join can release; the jobs
				// are failed, not lost silently.
				log.Errorw("dial ledger", "err", err)
				for {
					job, ok := q.TryDequeue()
					if !ok {
						break
					}
					log.Errorw("job skipped, no ledger connection", "sku", job.SKU)
					mu.Lock()
					tally.Failed++
					mu.Unlock()
					q.Done()
				}
				return err
			}
			defer func() {
				if cl, ok := led.(io.Closer); ok {
					cl.Close()
				}
			}()

			u := &Updater{Catalog: cat, Ledger: led, Log: log}
			for {
				job, ok := q.TryDequeue()
				if !ok {
					return nil
				}
				r.processOne(u, log, job, &mu, &tally)
				q.Done()
			}
		})
	}

	q.Join()
	err := g.Wait()
	return tally, err
}

func (r *Runner) processOne(u *Updater, log *zap.SugaredLogger, job Job, mu *sync.Mutex, tally *Tally) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorw("panic processing job", "sku", job.SKU, "panic", p)
			mu.Lock()
			tally.Failed++
			mu.Unlock()
		}
	}()

	out, err := u.Process(job)
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		log.Errorw("job failed", "sku", job.SKU, "ref_id", job.RefID, "err", err)
		tally.Failed++
		return
	}
	switch out.Kind {
	case PriceRecorded:
		tally.Recorded++
	case Unavailable:
		tally.Unavailable++
	default:
		tally.NotFound++
	}
}

// Pending builds the job list for one competitor from the open schedule
// entries.
func Pending(cli *odoo.Client, competitor string) ([]Job, error) {
	entries, err := cli.PendingSchedules()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	refIDs := make([]int, len(entries))
	for i, e := range entries {
		refIDs[i] = e.SKURefID
	}
	refs, err := cli.CompetitorSKUs(refIDs, competitor)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(refs))
	for _, ref := range refs {
		jobs = append(jobs, Job{SKU: ref.SKU, RefID: ref.ID})
	}
	return jobs, nil
}
