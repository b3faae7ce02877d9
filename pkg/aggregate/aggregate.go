// Package aggregate runs one listing or search against every enabled
// manager at once and merges the results into a single event stream.
//
// Each manager gets its own worker. A worker emits the manager's records in
// the order the tool printed them and then exactly one Finished event, even
// when the tool is missing, hangs or prints something unreadable. The
// stream is closed once every worker has finished.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"omnipkg/internal/executor"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/parser"
)

// eventBuffer is the capacity of the channel returned by Dispatch.
const eventBuffer = 64

// Runner runs a tool and streams its output. *executor.Executor
// implements it.
type Runner interface {
	Stream(ctx context.Context, c executor.Command, onLine func(string)) (executor.Result, error)
}

// Query selects what to list.
type Query struct {
	Kind manager.QueryKind
	// Text is the search term. Ignored for the other kinds.
	Text string
}

// EventType tells a package record from a manager's completion notice.
type EventType int

const (
	// EventPackage carries one record.
	EventPackage EventType = iota
	// EventFinished is the last event of a manager.
	EventFinished
)

// Status is how a manager's part of a query ended.
type Status int

const (
	StatusOK Status = iota
	// StatusFailed means the tool exited nonzero without usable output.
	StatusFailed
	// StatusUnavailable means the executable could not be found.
	StatusUnavailable
	// StatusUnrecognized means the output had no structure the grammar
	// knows, typically a changed or localized header.
	StatusUnrecognized
	StatusTimeout
	StatusCancelled
	// StatusUnsupported means the manager has no such listing.
	StatusUnsupported
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusUnavailable:
		return "unavailable"
	case StatusUnrecognized:
		return "unrecognized"
	case StatusTimeout:
		return "timeout"
	case StatusCancelled:
		return "cancelled"
	case StatusUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Event is one item of a dispatch stream.
type Event struct {
	Type    EventType
	Manager string

	// Package and NewVersion are set for EventPackage. NewVersion is only
	// filled by updates queries.
	Package    manager.Package
	NewVersion string
	// Cached marks records served from the cache before a refresh.
	Cached bool

	// Status, Err and Count are set for EventFinished. Count is the number
	// of records the manager emitted, cached ones included. Err may be set
	// with StatusOK when a background refresh failed after the cache was
	// served.
	Status Status
	Err    error
	Count  int
}

// Upgradable returns the record of an updates event.
func (e Event) Upgradable() manager.UpgradablePackage {
	u := manager.UpgradablePackage{Package: e.Package, NewVersion: e.NewVersion}
	if u.NewVersion == "" {
		u.NewVersion = manager.UnknownVersion
	}
	return u
}

// Options configures an Aggregator.
type Options struct {
	Runner Runner
	// Cache stores installed listings. nil disables caching.
	Cache *cache.Store
	// Retries is how often a failed updates listing or search is run
	// again.
	Retries int
	// Limit bounds how many managers run at once; 0 means no bound.
	Limit  int
	Logger *log.Logger
}

// Aggregator dispatches queries to managers.
type Aggregator struct {
	runner  Runner
	cache   *cache.Store
	retries int
	limit   int
	logger  *log.Logger
	now     func() time.Time
}

// New returns an aggregator.
func New(opts Options) *Aggregator {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Aggregator{
		runner:  opts.Runner,
		cache:   opts.Cache,
		retries: opts.Retries,
		limit:   opts.Limit,
		logger:  opts.Logger,
		now:     time.Now,
	}
}

// Dispatch runs q against every manager concurrently. The returned channel
// receives each manager's records followed by its Finished event and is
// closed after the last Finished. Callers must drain it or cancel ctx;
// once ctx ends, events that do not fit the buffer are dropped.
func (a *Aggregator) Dispatch(ctx context.Context, managers []manager.Manager, q Query) <-chan Event {
	out := make(chan Event, eventBuffer)

	var g errgroup.Group
	if a.limit > 0 {
		g.SetLimit(a.limit)
	}
	go func() {
		// Go blocks while the limit is reached. Managers left waiting when
		// ctx ends still report Finished, as cancelled.
		for _, m := range managers {
			w := &worker{agg: a, mgr: m, out: out, query: q}
			g.Go(func() error {
				if ctx.Err() != nil {
					w.finish(ctx, StatusCancelled, ctx.Err())
					return nil
				}
				w.run(ctx)
				return nil
			})
		}
		g.Wait() //nolint:errcheck
		close(out)
	}()
	return out
}

// Refresh lists a manager's installed packages, ignoring its cache policy,
// and merges the result into the cache.
func (a *Aggregator) Refresh(ctx context.Context, m manager.Manager) (int, error) {
	inv, err := m.ListInstalled()
	if err != nil {
		return 0, err
	}
	var rows []parser.Row
	att := a.attempt(ctx, m, inv, func(r parser.Row) { rows = append(rows, r) })
	if att.status != StatusOK {
		return 0, fmt.Errorf("%s: %s: %w", m.Descriptor().Name, att.status, att.err)
	}
	if a.cache != nil {
		if _, err := a.cache.Update(m.Descriptor().Name, cache.EncodeRows(rows)); err != nil {
			return len(rows), err
		}
	}
	return len(rows), nil
}

// runResult is the outcome of one tool run.
type runResult struct {
	status Status
	err    error
	rows   int
}

// attempt runs inv once, passing each parsed row to emit.
func (a *Aggregator) attempt(ctx context.Context, m manager.Manager, inv manager.Invocation, emit func(parser.Row)) runResult {
	d := m.Descriptor()
	if inv.Grammar == nil {
		return runResult{status: StatusFailed, err: errors.New("listing has no grammar")}
	}
	stream := inv.Grammar.Start()
	var rows int
	res, err := a.runner.Stream(ctx, d.QueryCommand(inv), func(line string) {
		if row, ok := stream.Feed(line); ok {
			rows++
			emit(row)
		}
	})
	report := stream.Report()
	for _, diag := range report.Diagnostics {
		a.logger.Debug("parse", "manager", d.Name, "diag", diag)
	}
	if report.Dropped > 0 {
		a.logger.Info("rows dropped", "manager", d.Name, "dropped", report.Dropped, "kept", report.Rows)
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return runResult{status: StatusCancelled, err: ctx.Err(), rows: rows}
	case errors.Is(err, executor.ErrTimeout), errors.Is(err, executor.ErrIdleTimeout):
		return runResult{status: StatusTimeout, err: err, rows: rows}
	case errors.Is(err, executor.ErrNotFound):
		return runResult{status: StatusUnavailable, err: err}
	default:
		return runResult{status: StatusFailed, err: err, rows: rows}
	}

	// Some tools exit nonzero on a valid listing ("npm outdated" exits 1
	// when something is outdated), so rows win over the exit code.
	switch {
	case rows > 0:
		return runResult{status: StatusOK, rows: rows}
	case res.ExitCode != 0:
		return runResult{status: StatusFailed, err: fmt.Errorf("exit code %d", res.ExitCode)}
	case !report.Recognized:
		return runResult{status: StatusUnrecognized, err: report.Err()}
	}
	return runResult{status: StatusOK}
}

// worker runs one manager's part of a dispatch.
type worker struct {
	agg   *Aggregator
	mgr   manager.Manager
	out   chan<- Event
	query Query
	count int
}

func (w *worker) name() string {
	return w.mgr.Descriptor().Name
}

func (w *worker) send(ctx context.Context, ev Event) {
	select {
	case w.out <- ev:
	case <-ctx.Done():
	}
}

// finish blocks until the Finished event is taken, unless ctx ended. A
// cancelled caller that keeps reading still gets it if the buffer has room.
func (w *worker) finish(ctx context.Context, status Status, err error) {
	if err != nil {
		w.agg.logger.Warn("listing finished", "manager", w.name(), "query", w.query.Kind, "status", status, "err", err)
	}
	ev := Event{Type: EventFinished, Manager: w.name(), Status: status, Err: err, Count: w.count}
	select {
	case w.out <- ev:
		return
	case <-ctx.Done():
	}
	select {
	case w.out <- ev:
	default:
		w.agg.logger.Debug("finished event dropped", "manager", w.name())
	}
}

func (w *worker) emit(ctx context.Context, row parser.Row, cached bool) {
	if row.ID == "" {
		return
	}
	d := w.mgr.Descriptor()
	ev := Event{Type: EventPackage, Manager: d.Name, Package: manager.ToPackage(d, row), Cached: cached}
	if w.query.Kind == manager.QueryUpdates {
		ev.NewVersion = manager.ToUpgradable(d, row).NewVersion
	}
	w.count++
	w.send(ctx, ev)
}

func (w *worker) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.finish(ctx, StatusFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	inv, err := manager.Query(w.mgr, w.query.Kind, w.query.Text)
	if err != nil {
		if errors.Is(err, manager.ErrUnsupported) {
			w.finish(ctx, StatusUnsupported, nil)
			return
		}
		w.finish(ctx, StatusFailed, err)
		return
	}
	if w.query.Kind == manager.QueryInstalled {
		w.installed(ctx, inv)
		return
	}

	emit := func(r parser.Row) { w.emit(ctx, r, false) }
	att := w.agg.attempt(ctx, w.mgr, inv, emit)
	for i := 0; i < w.agg.retries && retryable(att); i++ {
		w.agg.logger.Info("retrying", "manager", w.name(), "query", w.query.Kind, "status", att.status, "err", att.err)
		att = w.agg.attempt(ctx, w.mgr, inv, emit)
	}
	w.finish(ctx, att.status, att.err)
}

// retryable reports whether a run may be repeated. Runs that already
// emitted rows are not, so no record is delivered twice.
func retryable(att runResult) bool {
	if att.rows > 0 {
		return false
	}
	switch att.status {
	case StatusFailed, StatusUnavailable:
		return true
	}
	return false
}

// installed serves and refreshes the cached listing per the manager's
// policy. With a stale cache, the cached records come first and the fresh
// ones follow; Finished comes after the merged listing was written back.
func (w *worker) installed(ctx context.Context, inv manager.Invocation) {
	store := w.agg.cache
	if store == nil {
		att := w.agg.attempt(ctx, w.mgr, inv, func(r parser.Row) { w.emit(ctx, r, false) })
		w.finish(ctx, att.status, att.err)
		return
	}

	entry := store.Load(w.name())
	decision := w.mgr.CachePolicy().Decide(entry, w.agg.now())
	if decision.Serve {
		for _, row := range entry.Rows() {
			w.emit(ctx, row, true)
		}
	}
	if !decision.Refresh {
		w.finish(ctx, StatusOK, nil)
		return
	}

	var rows []parser.Row
	att := w.agg.attempt(ctx, w.mgr, inv, func(r parser.Row) {
		rows = append(rows, r)
		w.emit(ctx, r, false)
	})
	if att.status == StatusOK {
		if _, err := store.Update(w.name(), cache.EncodeRows(rows)); err != nil {
			w.agg.logger.Warn("cache write failed", "manager", w.name(), "err", err)
		}
	}
	if decision.Serve && !decision.Sync && att.status != StatusOK && att.status != StatusCancelled {
		// The cached listing stands in for the failed refresh.
		w.finish(ctx, StatusOK, att.err)
		return
	}
	w.finish(ctx, att.status, att.err)
}
