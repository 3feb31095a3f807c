package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/chesschain/gasreld/pkg/logging"
)

const (
	actorScanLimit = 100
	gcInterval     = time.Hour
)

// Store is the subset of the store the dispatcher's scan loop needs.
type Store interface {
	WorkerStore
	ListActiveActors(ctx context.Context, limit int) ([]string, error)
	GCOld(ctx context.Context) (int64, error)
}

// Dispatcher scans for actors with pending work and runs at most one worker
// per actor at a time, tracked by a process-local in-flight set. The
// database's claim_next row lock remains the authoritative guarantee; the
// in-flight set only avoids redundant claim attempts within this process.
type Dispatcher struct {
	store    Store
	worker   *Worker
	interval time.Duration

	inFlight   map[string]bool
	inFlightMu sync.Mutex

	wg  sync.WaitGroup
	log *logging.Logger
}

// New returns a Dispatcher that scans store every interval and drains
// claimed work through worker.
func New(store Store, worker *Worker, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		store:    store,
		worker:   worker,
		interval: interval,
		inFlight: make(map[string]bool),
		log:      logging.GetDefault().Component("dispatcher"),
	}
}

// Run blocks, scanning for work until ctx is cancelled. On cancellation it
// stops scheduling new workers, waits for in-flight workers to finish their
// current intent attempt, and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	scanTicker := time.NewTicker(d.interval)
	defer scanTicker.Stop()

	gcTicker := time.NewTicker(gcInterval)
	defer gcTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return

		case <-scanTicker.C:
			d.scanOnce(ctx)

		case <-gcTicker.C:
			n, err := d.store.GCOld(ctx)
			if err != nil {
				d.log.Error("gc_old failed", "error", err)
				continue
			}
			if n > 0 {
				d.log.Info("gc_old removed rows", "count", n)
			}
		}
	}
}

func (d *Dispatcher) scanOnce(ctx context.Context) {
	actors, err := d.store.ListActiveActors(ctx, actorScanLimit)
	if err != nil {
		d.log.Error("list_active_actors failed", "error", err)
		return
	}

	for _, actor := range actors {
		if !d.tryMarkInFlight(actor) {
			continue
		}

		d.wg.Add(1)
		go func(actor string) {
			defer d.wg.Done()
			defer d.clearInFlight(actor)
			d.worker.DrainActor(ctx, actor)
		}(actor)
	}
}

func (d *Dispatcher) tryMarkInFlight(actor string) bool {
	d.inFlightMu.Lock()
	defer d.inFlightMu.Unlock()
	if d.inFlight[actor] {
		return false
	}
	d.inFlight[actor] = true
	return true
}

func (d *Dispatcher) clearInFlight(actor string) {
	d.inFlightMu.Lock()
	defer d.inFlightMu.Unlock()
	delete(d.inFlight, actor)
}
