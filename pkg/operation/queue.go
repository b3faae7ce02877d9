package operation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"omnipkg/internal/executor"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
)

const (
	eventBuffer = 256
	// reserved is the room kept in an event channel for the lifecycle
	// events, so Running and Done are never dropped.
	reserved = 2
)

// Runner runs a tool and streams its output. *executor.Executor
// implements it.
type Runner interface {
	Stream(ctx context.Context, c executor.Command, onLine func(string)) (executor.Result, error)
}

// Managers resolves manager names. *manager.Registry implements it.
type Managers interface {
	Get(name string) (manager.Manager, bool)
}

// Options configures a Queue.
type Options struct {
	Runner   Runner
	Managers Managers
	// MaxParallel bounds the number of running operations; at least 1.
	MaxParallel int
	// OutputLines is how many output lines each operation retains.
	OutputLines int
	// Recorder receives every finished operation. Optional.
	Recorder Recorder
	// OnFinish runs for every finished operation before its Done event is
	// delivered. Optional.
	OnFinish func(Operation)
	Logger   *log.Logger
}

type pairKey struct {
	pkg, mgr string
}

// Queue admits and runs operations.
type Queue struct {
	runner   Runner
	managers Managers
	max      int
	lines    int
	recorder Recorder
	onFinish func(Operation)
	logger   *log.Logger

	mu      sync.Mutex
	seq     int
	closed  bool
	running int
	waiting []*op
	active  map[string]*op
	pending map[pairKey]string
	wg      sync.WaitGroup
}

// New returns a queue.
func New(opts Options) *Queue {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.OutputLines < 1 {
		opts.OutputLines = 200
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Queue{
		runner:   opts.Runner,
		managers: opts.Managers,
		max:      opts.MaxParallel,
		lines:    opts.OutputLines,
		recorder: opts.Recorder,
		onFinish: opts.OnFinish,
		logger:   opts.Logger,
		active:   make(map[string]*op),
		pending:  make(map[pairKey]string),
	}
}

// op is the mutable state of one operation. Fields below mu are guarded by
// it; the rest is set before the op is shared.
type op struct {
	id    string
	req   Request
	mgr   manager.Manager
	inv   manager.Invocation
	ctx   context.Context
	stop  context.CancelFunc
	out   *ring
	event chan Event
	done  chan struct{}

	mu        sync.Mutex
	state     State
	progress  int
	cancelled bool
	command   string
	result    Result
	queuedAt  time.Time
	startedAt time.Time
	endedAt   time.Time
}

func (o *op) snapshot() Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Operation{
		ID:         o.id,
		PackageID:  o.req.PackageID,
		Manager:    o.req.Manager,
		Kind:       o.req.Kind,
		Options:    o.req.Options,
		State:      o.state,
		Progress:   o.progress,
		Command:    o.command,
		Output:     o.out.Lines(),
		Result:     o.result,
		QueuedAt:   o.queuedAt,
		StartedAt:  o.startedAt,
		FinishedAt: o.endedAt,
	}
}

// emit delivers a lifecycle event. The channel always has room for it.
func (o *op) emit(ev Event) {
	ev.ID = o.id
	o.event <- ev
}

// notify delivers a line or progress event unless the consumer fell
// behind; the output ring keeps every line regardless.
func (o *op) notify(ev Event) {
	ev.ID = o.id
	if len(o.event) >= cap(o.event)-reserved {
		return
	}
	select {
	case o.event <- ev:
	default:
	}
}

// Handle follows one submitted operation.
type Handle struct {
	op *op
	q  *Queue
}

// ID returns the operation id.
func (h *Handle) ID() string {
	return h.op.id
}

// Events returns the operation's events. The channel is closed after
// EventDone. Line and progress events are dropped when the reader falls
// more than a buffer behind; lifecycle events never are.
func (h *Handle) Events() <-chan Event {
	return h.op.event
}

// Done is closed when the operation has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.op.done
}

// Wait blocks until the operation finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.op.done:
		return h.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the terminal result; zero until Done is closed.
func (h *Handle) Result() Result {
	h.op.mu.Lock()
	defer h.op.mu.Unlock()
	return h.op.result
}

// Snapshot returns the current state of the operation.
func (h *Handle) Snapshot() Operation {
	return h.op.snapshot()
}

// Cancel stops the operation.
func (h *Handle) Cancel() error {
	return h.q.Cancel(h.op.id)
}

// Submit validates and admits a request. The operation runs until it
// finishes, is cancelled or ctx ends; ending ctx counts as cancellation.
func (q *Queue) Submit(ctx context.Context, req Request) (*Handle, error) {
	if req.PackageID == "" {
		return nil, errors.New("package id is required")
	}
	mgr, ok := q.managers.Get(req.Manager)
	if !ok {
		return nil, fmt.Errorf("%s: %w", req.Manager, ErrUnknownManager)
	}
	if !mgr.Descriptor().Enabled {
		return nil, fmt.Errorf("%s: %w", req.Manager, ErrDisabled)
	}
	inv, err := manager.Operate(mgr, req.Kind, req.PackageID, req.Options)
	if err != nil {
		return nil, fmt.Errorf("%s %s on %s: %w", req.Kind, req.PackageID, req.Manager, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	key := pairKey{req.PackageID, req.Manager}
	if id, ok := q.pending[key]; ok {
		return nil, fmt.Errorf("%s on %s (operation %s): %w", req.PackageID, req.Manager, id, ErrAlreadyPending)
	}

	q.seq++
	runCtx, stop := context.WithCancel(ctx)
	o := &op{
		id:       fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), q.seq),
		req:      req,
		mgr:      mgr,
		inv:      inv,
		ctx:      runCtx,
		stop:     stop,
		out:      newRing(q.lines),
		event:    make(chan Event, eventBuffer),
		done:     make(chan struct{}),
		state:    Queued,
		queuedAt: time.Now(),
	}
	q.pending[key] = o.id
	q.active[o.id] = o
	q.waiting = append(q.waiting, o)
	o.emit(Event{Type: EventQueued})
	q.logger.Debug("queued", "id", o.id, "kind", req.Kind, "package", req.PackageID, "manager", req.Manager)

	// A context that ends while the operation waits cancels it.
	go func() {
		select {
		case <-runCtx.Done():
			q.Cancel(o.id) //nolint:errcheck
		case <-o.done:
		}
	}()

	q.scheduleLocked()
	return &Handle{op: o, q: q}, nil
}

// scheduleLocked starts waiting operations while workers are free.
func (q *Queue) scheduleLocked() {
	for q.running < q.max && len(q.waiting) > 0 {
		o := q.waiting[0]
		q.waiting = q.waiting[1:]
		q.running++
		o.mu.Lock()
		o.state = Running
		o.startedAt = time.Now()
		o.mu.Unlock()
		q.wg.Add(1)
		go q.run(o)
	}
}

// Cancel stops an operation. A queued one finishes at once; a running one
// has its process killed. Both end Failed with Cancelled set.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	o, ok := q.active[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	for i, w := range q.waiting {
		if w == o {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			q.mu.Unlock()
			o.mu.Lock()
			o.cancelled = true
			o.mu.Unlock()
			q.finish(o, Result{Outcome: classify.Failed, Cancelled: true, Reason: ReasonCancelled, ExitCode: -1})
			return nil
		}
	}
	q.mu.Unlock()

	o.mu.Lock()
	o.cancelled = true
	o.mu.Unlock()
	o.stop()
	return nil
}

// Active returns every queued or running operation, oldest first.
func (q *Queue) Active() []Operation {
	q.mu.Lock()
	ops := make([]*op, 0, len(q.active))
	for _, o := range q.active {
		ops = append(ops, o)
	}
	q.mu.Unlock()

	out := make([]Operation, len(ops))
	for i, o := range ops {
		out[i] = o.snapshot()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out
}

// Get returns the snapshot of an active operation.
func (q *Queue) Get(id string) (Operation, bool) {
	q.mu.Lock()
	o, ok := q.active[id]
	q.mu.Unlock()
	if !ok {
		return Operation{}, false
	}
	return o.snapshot(), true
}

// Close cancels every operation and waits for the running ones to end.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	ids := make([]string, 0, len(q.active))
	for id := range q.active {
		ids = append(ids, id)
	}
	q.mu.Unlock()

	for _, id := range ids {
		q.Cancel(id) //nolint:errcheck
	}
	q.wg.Wait()
}

func (q *Queue) run(o *op) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		q.running--
		q.scheduleLocked()
		q.mu.Unlock()
	}()

	d := o.mgr.Descriptor()
	cmd := d.OperationCommand(o.inv)
	o.mu.Lock()
	o.command = cmd.String()
	o.mu.Unlock()
	o.emit(Event{Type: EventRunning})
	q.logger.Info("running", "id", o.id, "cmd", cmd.String())

	c := classify.New(o.mgr.Rules(o.req.Kind))
	o.setProgress(c.Start())

	res, err := q.runner.Stream(o.ctx, cmd, func(line string) {
		o.out.Add(line)
		o.notify(Event{Type: EventLine, Line: line})
		if p, changed := c.Observe(line); changed {
			o.setProgress(p)
		}
	})

	o.mu.Lock()
	cancelled := o.cancelled
	o.mu.Unlock()

	var result Result
	switch {
	case cancelled || (err != nil && o.ctx.Err() != nil):
		result = Result{Outcome: classify.Failed, Cancelled: true, Reason: ReasonCancelled, ExitCode: res.ExitCode}
	case errors.Is(err, executor.ErrTimeout), errors.Is(err, executor.ErrIdleTimeout):
		result = Result{Outcome: classify.Failed, Reason: ReasonTimeout, ExitCode: res.ExitCode, Detail: err.Error()}
	case errors.Is(err, executor.ErrNotFound):
		result = Result{Outcome: classify.Failed, Reason: ReasonUnavailable, ExitCode: -1, Detail: err.Error()}
	case errors.Is(err, executor.ErrNoPrivileges):
		result = Result{Outcome: classify.NeedsElevation, Reason: ReasonNoPrivileges, ExitCode: -1, Detail: err.Error()}
	case err != nil:
		result = Result{Outcome: classify.Failed, ExitCode: res.ExitCode, Detail: err.Error()}
	case res.DryRun:
		result = Result{Outcome: classify.Succeeded, Reason: ReasonDryRun}
	default:
		v := c.Finish(res.ExitCode)
		result = Result{Outcome: v.Outcome, ExitCode: v.ExitCode, Detail: v.Detail}
		if desc, ok := o.mgr.(manager.Describer); ok && v.ExitCode != 0 && v.Source != classify.FromLine {
			if msg, known := desc.Describe(v.ExitCode); known {
				result.Detail = msg
			}
		}
	}
	if err != nil {
		q.logger.Warn("operation error", "id", o.id, "err", err)
	}
	q.finish(o, result)
}

func (o *op) setProgress(p int) {
	o.mu.Lock()
	o.progress = p
	o.mu.Unlock()
	o.notify(Event{Type: EventProgress, Progress: p})
}

// finish records the result, runs the finish hook, delivers Done and
// evicts the operation.
func (q *Queue) finish(o *op, result Result) {
	o.mu.Lock()
	o.state = Finished
	o.result = result
	o.progress = classify.Complete
	o.endedAt = time.Now()
	o.mu.Unlock()

	snap := o.snapshot()
	if q.recorder != nil {
		if err := q.recorder.Record(snap); err != nil {
			q.logger.Warn("recording operation", "id", o.id, "err", err)
		}
	}
	if q.onFinish != nil {
		q.onFinish(snap)
	}
	q.logger.Info("finished", "id", o.id, "package", o.req.PackageID, "manager", o.req.Manager, "result", result)

	o.emit(Event{Type: EventDone, Progress: classify.Complete, Result: result})

	// Evicted before done closes: a caller woken by Done may resubmit the
	// same pair at once.
	q.mu.Lock()
	delete(q.active, o.id)
	delete(q.pending, pairKey{o.req.PackageID, o.req.Manager})
	q.mu.Unlock()

	close(o.event)
	close(o.done)
	o.stop()
}
