// Package tasksync keeps the family's task list in memory and in the KV
// cache, applies edits optimistically and reconciles with the backend.
package tasksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/api"
	"github.com/harrisonrobin/famtasks/pkg/auth"
	"github.com/harrisonrobin/famtasks/pkg/kv"
	"github.com/harrisonrobin/famtasks/pkg/model"
	"golang.org/x/sync/singleflight"
)

// DefaultInterval is how often Run re-syncs.
const DefaultInterval = 30 * time.Second

// ErrUnknownTask is returned for ids that are not in the task list.
var ErrUnknownTask = errors.New("unknown task")

// Remote is the subset of the backend client the engine needs.
type Remote interface {
	ListTasks(ctx context.Context, q api.Query) ([]model.Task, error)
	GetTask(ctx context.Context, id int64) (model.Task, error)
	CreateTask(ctx context.Context, d model.Draft) (model.Task, error)
	UpdateTask(ctx context.Context, id int64, p api.Patch) error
	DeleteTask(ctx context.Context, id int64) error
}

// Session reports and drops the backend session.
type Session interface {
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Degraded
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// Status is a snapshot of the engine's sync state. Err is the cause of the
// last degraded load, if any.
type Status struct {
	State    State
	Err      error
	LastSync time.Time
	Count    int
}

type Engine struct {
	remote   Remote
	session  Session
	store    kv.Store
	logger   *log.Logger
	interval time.Duration
	now      func() time.Time
	onChange func()

	loads singleflight.Group
	locks keyedMutex

	mu       sync.Mutex
	tasks    []model.Task
	loaded   bool
	state    State
	lastErr  error
	lastSync time.Time
	version  uint64
	revs     map[string]uint64
	pending  map[string]int
	aliases  map[string]model.ID

	persistMu sync.Mutex
	persisted uint64
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithOnChange registers fn to be called after the task list or state changes.
func WithOnChange(fn func()) Option {
	return func(e *Engine) { e.onChange = fn }
}

func New(remote Remote, session Session, store kv.Store, opts ...Option) *Engine {
	e := &Engine{
		remote:   remote,
		session:  session,
		store:    store,
		logger:   log.Default(),
		interval: DefaultInterval,
		now:      time.Now,
		revs:     map[string]uint64{},
		pending:  map[string]int{},
		aliases:  map[string]model.ID{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Tasks returns a copy of the current list.
func (e *Engine) Tasks() []model.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.tasks)
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{State: e.state, Err: e.lastErr, LastSync: e.lastSync, Count: len(e.tasks)}
}

// FilterByDateAndType filters the current list; see model.FilterByDateAndType.
func (e *Engine) FilterByDateAndType(day string, typ model.Type) []model.Task {
	return model.FilterByDateAndType(e.Tasks(), day, typ)
}

// Load fetches the task list from the backend. When the backend cannot be
// used it serves the cached list, reports Degraded and returns a nil error;
// only when there is nothing cached either does it return the cause.
// Concurrent calls share one fetch.
func (e *Engine) Load(ctx context.Context) ([]model.Task, error) {
	v, err, _ := e.loads.Do("load", func() (interface{}, error) {
		return e.load(ctx)
	})
	tasks, _ := v.([]model.Task)
	return tasks, err
}

func (e *Engine) load(ctx context.Context) ([]model.Task, error) {
	return e.fetch(ctx, true)
}

// reload refetches the list outside the shared Load call and without
// uploading local tasks. Rollbacks use it: they can run inside a Load, from
// an upload or an onChange callback, and joining that Load would never return.
func (e *Engine) reload(ctx context.Context) {
	if _, err := e.fetch(ctx, false); err != nil {
		e.logger.Printf("tasksync: reload after failed edit: %v", err)
	}
}

func (e *Engine) fetch(ctx context.Context, upload bool) ([]model.Task, error) {
	e.mu.Lock()
	e.state = Loading
	e.mu.Unlock()

	// Tasks created offline by an earlier process only exist in the cache.
	e.hydrate(ctx)

	if _, err := e.session.Token(ctx); err != nil {
		return e.fallback(ctx, err)
	}

	if upload {
		if err := e.reconcile(ctx); err != nil {
			e.logger.Printf("tasksync: local tasks not uploaded: %v", err)
		}
	}

	remote, err := e.remote.ListTasks(ctx, api.Query{})
	if err != nil {
		e.checkUnauthorized(ctx, err)
		return e.fallback(ctx, err)
	}

	e.mu.Lock()
	e.tasks = e.mergeLocked(remote)
	e.loaded = true
	e.state = Ready
	e.lastErr = nil
	e.lastSync = e.now()
	e.version++
	out := slices.Clone(e.tasks)
	e.mu.Unlock()

	e.persist(ctx)
	e.changed()
	return out, nil
}

// mergeLocked replaces the list with fetched, except that local-only tasks
// and tasks with a mutation in flight keep their current value. A task that
// is pending and absent locally was optimistically deleted and stays gone.
func (e *Engine) mergeLocked(fetched []model.Task) []model.Task {
	current := make(map[string]model.Task, len(e.tasks))
	for _, t := range e.tasks {
		current[t.ID.String()] = t
	}
	out := make([]model.Task, 0, len(fetched)+len(e.tasks))
	for _, t := range fetched {
		key := t.ID.String()
		if e.pending[key] > 0 {
			if cur, ok := current[key]; ok {
				out = append(out, cur)
			}
			continue
		}
		out = append(out, t)
	}
	for _, t := range e.tasks {
		if t.ID.IsLocal() {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) fallback(ctx context.Context, cause error) ([]model.Task, error) {
	e.hydrate(ctx)

	e.mu.Lock()
	e.state = Degraded
	e.lastErr = cause
	have := e.loaded
	out := slices.Clone(e.tasks)
	e.mu.Unlock()
	e.changed()

	if !have {
		return []model.Task{}, cause
	}
	if !errors.Is(cause, auth.ErrNoToken) {
		e.logger.Printf("tasksync: serving %d cached tasks: %v", len(out), cause)
	}
	return out, nil
}

// hydrate fills an engine that has never loaded from the cache.
func (e *Engine) hydrate(ctx context.Context) {
	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if loaded {
		return
	}

	cached, ok, err := e.readCache(ctx)
	if err != nil {
		e.logger.Printf("tasksync: %v", err)
	}
	e.mu.Lock()
	if ok && !e.loaded {
		e.tasks = cached
		e.loaded = true
		e.version++
	}
	e.mu.Unlock()
}

func (e *Engine) readCache(ctx context.Context) ([]model.Task, bool, error) {
	raw, ok, err := e.store.Get(ctx, kv.KeyTasks)
	if err != nil {
		return nil, false, fmt.Errorf("read task cache: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var tasks []model.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, false, fmt.Errorf("failed to decode task cache: %w", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, true, nil
}

// persist writes the latest list to the cache. Writes are serialized and a
// snapshot older than one already written is dropped.
func (e *Engine) persist(ctx context.Context) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	v := e.version
	snap := slices.Clone(e.tasks)
	loaded := e.loaded
	e.mu.Unlock()
	if v <= e.persisted || !loaded {
		return
	}
	if snap == nil {
		snap = []model.Task{}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		e.logger.Printf("tasksync: encode task cache: %v", err)
		return
	}
	if err := e.store.Set(ctx, kv.KeyTasks, string(b)); err != nil {
		e.logger.Printf("tasksync: write task cache: %v", err)
		return
	}
	e.persisted = v
}

// Reset forgets every task, in memory and in the cache. Used on logout.
func (e *Engine) Reset(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	e.tasks = nil
	e.loaded = false
	e.state = Uninitialized
	e.lastErr = nil
	e.lastSync = time.Time{}
	e.version++
	e.persisted = e.version
	clear(e.aliases)
	e.mu.Unlock()

	e.changed()
	if err := e.store.Remove(ctx, kv.KeyTasks); err != nil {
		return fmt.Errorf("clear task cache: %w", err)
	}
	return nil
}

// checkUnauthorized drops the session when the backend rejected the token.
func (e *Engine) checkUnauthorized(ctx context.Context, err error) {
	if !errors.Is(err, api.ErrUnauthorized) {
		return
	}
	e.logger.Printf("tasksync: session rejected by backend, signing out")
	if cerr := e.session.Clear(ctx); cerr != nil {
		e.logger.Printf("tasksync: clear session: %v", cerr)
	}
}

func (e *Engine) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}

func (e *Engine) indexLocked(id model.ID) int {
	key := id.String()
	return slices.IndexFunc(e.tasks, func(t model.Task) bool { return t.ID.String() == key })
}

// canonical maps a local handle that has since been uploaded to its remote id.
func (e *Engine) canonical(id model.ID) model.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id.IsLocal() {
		if remote, ok := e.aliases[id.Local]; ok {
			return remote
		}
	}
	return id
}

// Aliases maps local handles to the remote ids they were uploaded as.
func (e *Engine) Aliases() map[string]model.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.aliases)
}
