package seating

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tideland.dev/go/actor"
)

// ErrDirectoryClosed is returned by With after Close.
var ErrDirectoryClosed = errors.New("seating directory closed")

// StoreOpener opens the private store of the flight identified by key.
type StoreOpener func(ctx context.Context, key string) (Store, error)

// DirectoryConfig tunes activation and deactivation of flight actors.
type DirectoryConfig struct {
	// IdleTTL is how long an actor without callers stays active. Zero
	// keeps actors until Close.
	IdleTTL time.Duration
	// SweepInterval is the period of Run's idle check (default one minute).
	SweepInterval time.Duration
	// CallTimeout bounds each operation including queueing. Zero means
	// only the caller's context applies.
	CallTimeout time.Duration
	// QueueCapacity is the per-flight request queue size.
	QueueCapacity int
	Logger        *slog.Logger
}

// entry is one flight in the directory. ready is closed once activation
// finished; seating and err must not be read before that. A closing entry
// is being deactivated outside the lock and stays in the map until its
// actor stopped, then gone is closed.
type entry struct {
	ready    chan struct{}
	seating  *FlightSeating
	err      error
	leases   int
	lastUsed time.Time
	closing  bool
	gone     chan struct{}
}

func (e *entry) activated() bool {
	select {
	case <-e.ready:
		return e.err == nil
	default:
		return false
	}
}

func (e *entry) stopped() bool {
	select {
	case <-e.seating.Done():
		return true
	default:
		return false
	}
}

// Directory resolves flight keys to flight actors. For every key there is
// at most one live FlightSeating at any time; all callers using the same
// key reach that same instance, and it is activated on first use.
type Directory struct {
	open   StoreOpener
	cfg    DirectoryConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// NewDirectory creates a directory opening stores with open.
func NewDirectory(open StoreOpener, cfg DirectoryConfig) *Directory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Directory{
		open:    open,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// With runs fn against the flight actor for key. The actor cannot be
// deactivated while fn runs. A configured CallTimeout bounds ctx.
func (d *Directory) With(ctx context.Context, key string, fn func(f *FlightSeating) error) error {
	if d.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
	}
	e, err := d.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer d.release(e)
	return fn(e.seating)
}

// Active returns the number of currently active flights.
func (d *Directory) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.entries {
		if e.activated() && !e.closing {
			n++
		}
	}
	return n
}

func (d *Directory) acquire(ctx context.Context, key string) (*entry, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDirectoryClosed
	}
	e, ok := d.entries[key]
	if ok && e.closing {
		// Wait for the old actor to stop before activating a new one.
		d.mu.Unlock()
		select {
		case <-e.gone:
			return d.acquire(ctx, key)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ok && e.activated() && e.stopped() {
		// The actor died, e.g. after a panic. Replace it.
		delete(d.entries, key)
		ok = false
	}
	if !ok {
		e = &entry{ready: make(chan struct{}), leases: 1}
		d.entries[key] = e
		d.mu.Unlock()
		d.activate(ctx, key, e)
		if e.err != nil {
			return nil, e.err
		}
		return e, nil
	}
	e.leases++
	d.mu.Unlock()

	select {
	case <-e.ready:
	case <-ctx.Done():
		d.release(e)
		return nil, ctx.Err()
	}
	if e.err != nil {
		d.release(e)
		return nil, e.err
	}
	return e, nil
}

func (d *Directory) activate(ctx context.Context, key string, e *entry) {
	defer close(e.ready)

	store, err := d.open(ctx, key)
	var f *FlightSeating
	if err == nil {
		f, err = Activate(ctx, key, store, d.actorConfig(), d.logger)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil && d.closed {
		f.Close()
		err = ErrDirectoryClosed
	}
	if err != nil {
		d.logger.Error("flight activation failed", "flight", key, "error", err)
		if d.entries[key] == e {
			delete(d.entries, key)
		}
		e.leases--
		e.err = err
		return
	}
	e.seating = f
	e.lastUsed = d.now()
}

func (d *Directory) release(e *entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e.leases--
	e.lastUsed = d.now()
}

// actorConfig returns a fresh configuration per activation; the finalizer
// set by Activate is bound to one store. Deadlines come from the callers'
// contexts, so the actor itself has no action timeout.
func (d *Directory) actorConfig() *actor.Config {
	cfg := actor.NewConfig(context.Background())
	if d.cfg.QueueCapacity > 0 {
		cfg.SetQueueCapacity(d.cfg.QueueCapacity)
	}
	return cfg
}

// Sweep deactivates flights that have been idle for IdleTTL at now, and
// forgets actors that stopped on their own. It returns the number of
// flights removed. The actors are stopped outside the directory lock;
// their entries stay marked as closing until then, so a flight is never
// active twice.
func (d *Directory) Sweep(now time.Time) int {
	d.mu.Lock()
	var victims []*entry
	var keys []string
	for key, e := range d.entries {
		if !e.activated() || e.closing || e.leases > 0 {
			continue
		}
		idle := d.cfg.IdleTTL > 0 && now.Sub(e.lastUsed) >= d.cfg.IdleTTL
		if !idle && !e.stopped() {
			continue
		}
		e.closing = true
		e.gone = make(chan struct{})
		victims = append(victims, e)
		keys = append(keys, key)
	}
	d.mu.Unlock()

	for i, e := range victims {
		e.seating.Close()

		d.mu.Lock()
		if d.entries[keys[i]] == e {
			delete(d.entries, keys[i])
		}
		close(e.gone)
		d.mu.Unlock()
		d.logger.Debug("flight deactivated", "flight", keys[i])
	}
	return len(victims)
}

// Run sweeps idle flights periodically until ctx is done.
func (d *Directory) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Sweep(d.now()); n > 0 {
				d.logger.Info("idle flights deactivated", "count", n)
			}
		}
	}
}

// Close deactivates every flight. Later calls to With fail with
// ErrDirectoryClosed.
func (d *Directory) Close() {
	d.mu.Lock()
	d.closed = true
	var flights []*FlightSeating
	for key, e := range d.entries {
		if e.activated() && !e.closing {
			flights = append(flights, e.seating)
		}
		delete(d.entries, key)
	}
	d.mu.Unlock()

	for _, f := range flights {
		f.Close()
	}
}
