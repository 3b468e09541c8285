package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"dicer/internal/logging"
	"dicer/internal/runstate"
	"dicer/internal/services"
)

// warnUtilization is the committed-spend fraction at which the ledger logs
// a cap warning. The warning fires once per run.
const warnUtilization = 0.8

// Reservation is an outstanding hold against the cap. Exactly one of
// Commit or Release must follow every successful Reserve.
type Reservation struct {
	id       int64
	Provider string
	TaskID   string
	Estimate float64
}

// Ledger serializes all cap accounting for one run. Committed spend is
// durable in the run store; reservations live in memory only, so a crash
// releases them implicitly.
type Ledger struct {
	store  *runstate.Store
	logger *slog.Logger

	mu          sync.Mutex
	cap         float64
	committed   float64
	reserved    float64
	nextID      int64
	outstanding map[int64]float64
	warned      bool
}

// New builds a ledger seeded with the committed spend already recorded in
// the store, so a resumed run keeps counting from where it stopped.
func New(ctx context.Context, store *runstate.Store, cap float64, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	committed, _, err := store.CostTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load committed spend: %w", err)
	}
	return &Ledger{
		store:       store,
		logger:      logger.With(logging.String(logging.FieldComponent, "ledger")),
		cap:         cap,
		committed:   committed,
		outstanding: make(map[int64]float64),
	}, nil
}

// SetCap raises or lowers the cap for a resumed run.
func (l *Ledger) SetCap(cap float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cap = cap
}

// Cap returns the configured cap.
func (l *Ledger) Cap() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cap
}

// Reserve holds estimate against the cap. The check and the hold are one
// atomic step: committed + reserved + estimate must stay within the cap or
// the call fails with services.ErrCapExceeded and nothing is held.
func (l *Ledger) Reserve(provider, taskID string, estimate float64) (*Reservation, error) {
	if estimate < 0 {
		return nil, fmt.Errorf("negative estimate %.4f for provider %s", estimate, provider)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	projected := l.committed + l.reserved + estimate
	if projected > l.cap {
		return nil, services.Wrap(
			services.ErrCapExceeded,
			"ledger",
			"reserve",
			fmt.Sprintf("reserving %.4f for %s would bring projected spend to %.4f against cap %.2f", estimate, provider, projected, l.cap),
			nil,
		)
	}

	l.nextID++
	id := l.nextID
	l.outstanding[id] = estimate
	l.reserved += estimate
	return &Reservation{id: id, Provider: provider, TaskID: taskID, Estimate: estimate}, nil
}

// Commit converts a reservation into durable committed spend at the actual
// amount, which may differ from the estimate. The cost entry is appended to
// the store before the in-memory totals move.
func (l *Ledger) Commit(ctx context.Context, res *Reservation, actual float64) error {
	if res == nil {
		return fmt.Errorf("commit nil reservation")
	}
	entry := &runstate.CostEntry{Provider: res.Provider, TaskID: res.TaskID, Amount: actual}
	if err := l.store.AppendCostEntry(ctx, entry); err != nil {
		// Nothing durable was written, so the hold must not keep
		// shrinking the run's headroom.
		l.mu.Lock()
		if held, ok := l.outstanding[res.id]; ok {
			delete(l.outstanding, res.id)
			l.reserved -= held
		}
		l.mu.Unlock()
		return fmt.Errorf("commit reservation: %w", err)
	}

	l.mu.Lock()
	held, ok := l.outstanding[res.id]
	if ok {
		delete(l.outstanding, res.id)
		l.reserved -= held
	}
	l.committed += actual
	warn := !l.warned && l.cap > 0 && l.committed >= l.cap*warnUtilization
	if warn {
		l.warned = true
	}
	committed, cap := l.committed, l.cap
	l.mu.Unlock()

	if warn {
		l.logger.Warn("cost cap utilization high",
			logging.Float64("committed", committed),
			logging.Float64("cap", cap),
			logging.Float64("utilization", committed/cap))
	}
	return nil
}

// Release drops a reservation without committing spend, after a failed or
// skipped provider call.
func (l *Ledger) Release(res *Reservation) {
	if res == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.outstanding[res.id]
	if !ok {
		return
	}
	delete(l.outstanding, res.id)
	l.reserved -= held
}

// Committed returns durable spend recorded so far.
func (l *Ledger) Committed() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed
}

// Outstanding returns the sum of live reservations.
func (l *Ledger) Outstanding() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved
}

// Remaining returns the headroom under the cap counting both committed
// spend and live reservations.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := l.cap - l.committed - l.reserved
	if remaining < 0 {
		return 0
	}
	return remaining
}
