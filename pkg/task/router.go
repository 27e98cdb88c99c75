package task

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/log"
)

// TaskHandler processes a task payload.
type TaskHandler func(ctx context.Context, payload any) error

// TaskOptions configures how a task is dispatched and executed.
type TaskOptions struct {
	// GroupKey serializes tasks that share it. Empty means the global group.
	GroupKey string

	// MaxAttempts bounds handler retries. 0 uses RouterConfig.DefaultMaxAttempts.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Task is one unit of work for the router.
type Task struct {
	Type    string
	Payload any
	Options TaskOptions
}

// RouterConfig configures a TaskRouter.
type RouterConfig struct {
	DefaultMaxAttempts int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration

	// GroupBuffer is the queue length of each group. Dispatch blocks when it is full.
	GroupBuffer int

	// GroupIdleTTL after which an idle group worker is stopped.
	GroupIdleTTL    time.Duration
	CleanupInterval time.Duration

	// GlobalMaxWorkers caps concurrent handler executions across groups. 0 means unlimited.
	GlobalMaxWorkers int
}

// Defaults returns a RouterConfig with the standard values.
func Defaults() RouterConfig {
	return RouterConfig{
		DefaultMaxAttempts: 3,
		InitialBackoff:     250 * time.Millisecond,
		MaxBackoff:         5 * time.Second,
		GroupBuffer:        256,
		GroupIdleTTL:       2 * time.Minute,
		CleanupInterval:    time.Minute,
	}
}

var (
	ErrRouterClosed    = errors.New("task router is closed")
	ErrUnknownTaskType = errors.New("unknown task type")
)

const globalGroup = "_global"

// TaskRouter runs tasks on per-group workers. Tasks of one group run one at a time in
// dispatch order; a failing task is retried in place before the next one starts.
type TaskRouter struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
	groups   map[string]*groupWorker
	closed   bool
	cfg      RouterConfig

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	execSem  chan struct{}

	randMu sync.Mutex
	rng    *rand.Rand

	executed atomic.Uint64
	failed   atomic.Uint64
	retried  atomic.Uint64
}

type groupWorker struct {
	key        string
	ch         chan *enqueuedTask
	quit       chan struct{}
	pending    int // senders between lookup and enqueue; guarded by TaskRouter.mu
	lastActive atomic.Int64
	busy       atomic.Bool
}

type enqueuedTask struct {
	task    Task
	handler TaskHandler
	opts    TaskOptions
}

// NewRouter creates a TaskRouter. Zero fields of cfg take their Defaults value.
func NewRouter(cfg RouterConfig) *TaskRouter {
	def := Defaults()
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.GroupBuffer <= 0 {
		cfg.GroupBuffer = def.GroupBuffer
	}
	if cfg.GroupIdleTTL <= 0 {
		cfg.GroupIdleTTL = def.GroupIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	tr := &TaskRouter{
		handlers: make(map[string]TaskHandler),
		groups:   make(map[string]*groupWorker),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.GlobalMaxWorkers > 0 {
		tr.execSem = make(chan struct{}, cfg.GlobalMaxWorkers)
	}

	tr.wg.Add(1)
	go tr.backgroundLoop()
	return tr
}

// RegisterHandler registers the handler for a task type, replacing any previous one.
func (tr *TaskRouter) RegisterHandler(taskType string, handler TaskHandler) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.handlers[taskType] = handler
}

// Dispatch enqueues t on its group. It blocks while the group queue is full, until ctx is
// done or the router closes.
func (tr *TaskRouter) Dispatch(ctx context.Context, t Task) error {
	tr.mu.Lock()
	if tr.closed {
		tr.mu.Unlock()
		return ErrRouterClosed
	}
	handler := tr.handlers[t.Type]
	if handler == nil {
		tr.mu.Unlock()
		return ErrUnknownTaskType
	}
	key := t.Options.GroupKey
	if key == "" {
		key = globalGroup
	}
	gw := tr.ensureGroupLocked(key)
	gw.pending++
	gw.lastActive.Store(time.Now().UnixNano())
	tr.mu.Unlock()

	defer func() {
		tr.mu.Lock()
		gw.pending--
		tr.mu.Unlock()
	}()

	enq := &enqueuedTask{task: t, handler: handler, opts: tr.effectiveOptions(t.Options)}
	select {
	case gw.ch <- enq:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-tr.stopCh:
		return ErrRouterClosed
	}
}

// Close stops accepting tasks, lets workers finish what is already queued without further
// retries, and waits for every goroutine to exit.
func (tr *TaskRouter) Close() {
	tr.stopOnce.Do(func() {
		tr.mu.Lock()
		tr.closed = true
		tr.mu.Unlock()
		close(tr.stopCh)
		tr.wg.Wait()
	})
}

// Stats is a snapshot of router counters.
type Stats struct {
	Groups          int    `json:"groups"`
	Queued          int    `json:"queued"`
	RegisteredTypes int    `json:"registered_types"`
	Executed        uint64 `json:"executed"`
	Retried         uint64 `json:"retried"`
	Failed          uint64 `json:"failed"`
	Closed          bool   `json:"closed"`
}

func (tr *TaskRouter) Stats() Stats {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	st := Stats{
		Groups:          len(tr.groups),
		RegisteredTypes: len(tr.handlers),
		Executed:        tr.executed.Load(),
		Retried:         tr.retried.Load(),
		Failed:          tr.failed.Load(),
		Closed:          tr.closed,
	}
	for _, gw := range tr.groups {
		st.Queued += len(gw.ch)
	}
	return st
}

func (tr *TaskRouter) effectiveOptions(opt TaskOptions) TaskOptions {
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = tr.cfg.DefaultMaxAttempts
	}
	if opt.InitialBackoff <= 0 {
		opt.InitialBackoff = tr.cfg.InitialBackoff
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = tr.cfg.MaxBackoff
	}
	return opt
}

func (tr *TaskRouter) ensureGroupLocked(key string) *groupWorker {
	if gw, ok := tr.groups[key]; ok {
		return gw
	}
	gw := &groupWorker{
		key:  key,
		ch:   make(chan *enqueuedTask, tr.cfg.GroupBuffer),
		quit: make(chan struct{}),
	}
	gw.lastActive.Store(time.Now().UnixNano())
	tr.groups[key] = gw
	tr.wg.Add(1)
	go tr.groupLoop(gw)
	return gw
}

func (tr *TaskRouter) groupLoop(gw *groupWorker) {
	defer tr.wg.Done()
	for {
		select {
		case enq := <-gw.ch:
			tr.run(gw, enq)
		case <-gw.quit:
			return
		case <-tr.stopCh:
			for {
				select {
				case enq := <-gw.ch:
					tr.run(gw, enq)
				default:
					return
				}
			}
		}
	}
}

func (tr *TaskRouter) run(gw *groupWorker, enq *enqueuedTask) {
	gw.busy.Store(true)
	defer func() {
		gw.lastActive.Store(time.Now().UnixNano())
		gw.busy.Store(false)
	}()

	for attempt := 1; ; attempt++ {
		err := tr.execute(enq)
		tr.executed.Add(1)
		if err == nil {
			return
		}
		if attempt >= enq.opts.MaxAttempts {
			tr.failed.Add(1)
			log.ErrorLoggerRaw().Error("Task failed; max attempts reached",
				"type", enq.task.Type,
				"group", gw.key,
				"attempts", attempt,
				"err", err,
			)
			return
		}

		delay := tr.computeBackoff(enq.opts.InitialBackoff, enq.opts.MaxBackoff, attempt)
		log.ApplicationLogger().Warn("Task failed, retrying",
			"type", enq.task.Type,
			"group", gw.key,
			"attempt", attempt+1,
			"max_attempts", enq.opts.MaxAttempts,
			"backoff", delay.String(),
			"err", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			tr.retried.Add(1)
		case <-tr.stopCh:
			timer.Stop()
			tr.failed.Add(1)
			return
		}
	}
}

func (tr *TaskRouter) execute(enq *enqueuedTask) (err error) {
	if tr.execSem != nil {
		tr.execSem <- struct{}{}
		defer func() { <-tr.execSem }()
	}
	defer func() {
		if r := recover(); r != nil {
			log.ErrorLoggerRaw().Error("Task handler panicked", "type", enq.task.Type, "panic", r)
			err = errHandlerPanic
		}
	}()
	return enq.handler(context.Background(), enq.task.Payload)
}

var errHandlerPanic = errors.New("task handler panicked")

// computeBackoff returns initial*2^(attempt-1) with 10% jitter, clamped to [initial, max].
func (tr *TaskRouter) computeBackoff(initial, maxBackoff time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
			break
		}
	}
	return clampDuration(backoff+tr.jitter(backoff, 0.1), initial, maxBackoff)
}

func (tr *TaskRouter) jitter(d time.Duration, ratio float64) time.Duration {
	delta := int64(float64(d) * ratio)
	if delta <= 0 {
		return 0
	}
	tr.randMu.Lock()
	defer tr.randMu.Unlock()
	return time.Duration(tr.rng.Int63n(2*delta+1) - delta)
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	return max(min(v, hi), lo)
}

func (tr *TaskRouter) backgroundLoop() {
	defer tr.wg.Done()
	t := time.NewTicker(tr.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-tr.stopCh:
			return
		case <-t.C:
			tr.cleanupOnce(time.Now())
		}
	}
}

// cleanupOnce stops groups that have been idle for GroupIdleTTL with nothing queued or running.
func (tr *TaskRouter) cleanupOnce(now time.Time) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for key, gw := range tr.groups {
		idle := now.Sub(time.Unix(0, gw.lastActive.Load()))
		if idle >= tr.cfg.GroupIdleTTL && gw.pending == 0 && len(gw.ch) == 0 && !gw.busy.Load() {
			close(gw.quit)
			delete(tr.groups, key)
		}
	}
}
