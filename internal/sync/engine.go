package sync

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/studypal/studypal/internal/backup"
	"github.com/studypal/studypal/internal/notify"
	"github.com/studypal/studypal/internal/remote"
	"github.com/studypal/studypal/internal/store"
)

var (
	// ErrSyncInFlight is returned when a push or pull is requested while one
	// is already running. At most one sync operation is active at a time.
	ErrSyncInFlight = errors.New("a sync operation is already in flight")

	// ErrNotSignedIn is returned for operations that need a remote session.
	ErrNotSignedIn = errors.New("not signed in to the remote store")

	// ErrConflictPending is returned when a plain backup/restore is requested
	// while a conflict awaits resolution.
	ErrConflictPending = errors.New("a conflict is pending resolution")

	// ErrNoConflict is returned when ResolveConflict is called outside the
	// conflict state.
	ErrNoConflict = errors.New("no conflict to resolve")
)

// Options tunes the engine. Zero values fall back to the defaults below.
type Options struct {
	// DebounceDelay is the quiet period after a burst of mutations before an
	// automatic push fires. Default 5s.
	DebounceDelay time.Duration
	// ClockSkewBuffer absorbs timestamp rounding when comparing the remote
	// modified time against the last sync timestamp. Default 1s.
	ClockSkewBuffer time.Duration
	// IncludeContent retains material payloads in remote backups.
	IncludeContent bool
}

const (
	defaultDebounceDelay   = 5 * time.Second
	defaultClockSkewBuffer = 1 * time.Second
)

// Engine is the sync reconciler. All state transitions happen under one
// mutex; network and database calls run outside it, and their results are
// applied only if the session that started them is still current.
type Engine struct {
	store      store.Store
	serializer *backup.Serializer
	adapter    remote.Adapter
	bus        *notify.Bus

	debounceDelay  time.Duration
	skewBuffer     time.Duration
	includeContent bool

	mu          sync.Mutex
	status      Status
	lastErr     error
	dirty       bool
	conflict    *ConflictDescriptor
	lastSync    time.Time
	hasLastSync bool
	inFlight    bool
	timer       *time.Timer
	authGen     uint64
	watchers    []chan Status

	ctx context.Context
	sub notify.Subscription
}

// NewEngine creates an engine over the given collaborators. Call Start
// before use.
func NewEngine(st store.Store, ser *backup.Serializer, adapter remote.Adapter, bus *notify.Bus, opts Options) *Engine {
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = defaultDebounceDelay
	}
	if opts.ClockSkewBuffer <= 0 {
		opts.ClockSkewBuffer = defaultClockSkewBuffer
	}
	return &Engine{
		store:          st,
		serializer:     ser,
		adapter:        adapter,
		bus:            bus,
		debounceDelay:  opts.DebounceDelay,
		skewBuffer:     opts.ClockSkewBuffer,
		includeContent: opts.IncludeContent,
		status:         StatusIdle,
		ctx:            context.Background(),
	}
}

// Start loads the persisted last-sync timestamp and subscribes to the change
// notifier. The context bounds background pushes spawned by the debounce
// scheduler.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()

	value, err := e.store.GetSetting(ctx, store.SettingLastSyncTimestamp)
	switch {
	case err == nil:
		millis, parseErr := strconv.ParseInt(value, 10, 64)
		if parseErr != nil {
			slog.Warn("ignoring malformed last sync timestamp",
				"component", "sync", "value", value, "error", parseErr)
		} else {
			e.mu.Lock()
			e.lastSync = time.UnixMilli(millis).UTC()
			e.hasLastSync = true
			e.mu.Unlock()
		}
	case errors.Is(err, store.ErrNotFound):
		// First run: no sync history.
	default:
		return err
	}

	if e.bus != nil {
		e.sub = e.bus.Subscribe(func(ev notify.Event) {
			if ev == notify.EventDataChanged {
				e.onLocalMutation()
			}
		})
	}
	return nil
}

// Stop unsubscribes from the notifier and cancels any pending debounce timer.
func (e *Engine) Stop() {
	if e.bus != nil {
		e.bus.Unsubscribe(e.sub)
	}
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()
}

// --- Observers ---

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// LastError returns the most recent failure, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// LastSyncTime returns the persisted last successful sync timestamp. The
// second result is false when there is no sync history.
func (e *Engine) LastSyncTime() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync, e.hasLastSync
}

// Conflict returns a copy of the current conflict descriptor, or nil.
func (e *Engine) Conflict() *ConflictDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conflict == nil {
		return nil
	}
	c := *e.conflict
	return &c
}

// Dirty reports whether local data has changed since the last confirmed sync.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// SubscribeStatus returns a channel that receives every status transition in
// the order it is produced, and a cancel function. The channel is buffered;
// a subscriber that falls more than bufferSize transitions behind loses the
// oldest ones.
func (e *Engine) SubscribeStatus(bufferSize int) (<-chan Status, func()) {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	ch := make(chan Status, bufferSize)

	e.mu.Lock()
	e.watchers = append(e.watchers, ch)
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, w := range e.watchers {
			if w == ch {
				e.watchers = append(e.watchers[:i], e.watchers[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// setStatusLocked transitions the status and fans it out to watchers in
// order. Callers hold e.mu, which is what guarantees watchers never observe
// transitions reordered.
func (e *Engine) setStatusLocked(s Status) {
	if e.status == s {
		return
	}
	e.status = s
	for _, w := range e.watchers {
		select {
		case w <- s:
		default:
			// Drop the oldest so the newest transition always lands.
			select {
			case <-w:
			default:
			}
			select {
			case w <- s:
			default:
			}
		}
	}
}

// --- Session ---

// SignIn establishes the remote session and runs the one-time
// reconciliation that decides the initial sync action.
func (e *Engine) SignIn(ctx context.Context) error {
	if err := e.openSession(ctx); err != nil {
		return err
	}
	return e.Reconcile(ctx)
}

// Check establishes the remote session if needed and compares local and
// remote state without moving any data. Where reconciliation would push, the
// dirty flag stays pending instead.
func (e *Engine) Check(ctx context.Context) error {
	if !e.adapter.Authenticated() {
		if err := e.openSession(ctx); err != nil {
			return err
		}
	}
	return e.reconcile(ctx, true)
}

// openSession authenticates the adapter and starts a new result generation.
func (e *Engine) openSession(ctx context.Context) error {
	if !e.adapter.Ready() {
		return remote.ErrNotConfigured
	}
	if err := e.adapter.SignIn(ctx); err != nil {
		e.mu.Lock()
		e.lastErr = err
		e.setStatusLocked(StatusError)
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.authGen++
	e.lastErr = nil
	e.mu.Unlock()
	return nil
}

// SignOut drops the remote session, clears the conflict descriptor and last
// error, and returns to idle. A push in flight is allowed to finish but its
// outcome is discarded.
func (e *Engine) SignOut() {
	e.adapter.SignOut()

	e.mu.Lock()
	e.authGen++
	e.conflict = nil
	e.lastErr = nil
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.setStatusLocked(StatusIdle)
	e.mu.Unlock()
}

// --- Debounce scheduler ---

// onLocalMutation is invoked by the change notifier on every committed local
// write. The first mutation after a clean state pushes immediately; every
// subsequent one while a push is pending restarts the trailing debounce
// timer. While unauthenticated or in conflict, mutations only mark the
// store dirty; the flag is consumed by the next reconciliation or explicit
// push.
func (e *Engine) onLocalMutation() {
	e.mu.Lock()
	defer e.mu.Unlock()

	wasDirty := e.dirty
	e.dirty = true

	if !e.adapter.Authenticated() || e.status == StatusConflict {
		return
	}

	if !wasDirty && !e.inFlight {
		go e.runScheduledPush(e.ctx)
		return
	}

	// A push is already pending or in flight: coalesce. A mutation during
	// an in-flight push does not cancel it; the re-armed timer guarantees
	// another cycle after the current one completes.
	e.resetTimerLocked()
}

// resetTimerLocked (re)starts the trailing debounce timer. Callers hold e.mu.
func (e *Engine) resetTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounceDelay, func() {
		e.runScheduledPush(e.ctx)
	})
}

// runScheduledPush performs a debounce-triggered push. Failures land in the
// observable error state; the dirty flag survives so the next trigger
// naturally retries.
func (e *Engine) runScheduledPush(ctx context.Context) {
	e.mu.Lock()
	if e.inFlight {
		// The timer fired while a push was running. Re-arm so the new
		// changes get their own cycle.
		e.resetTimerLocked()
		e.mu.Unlock()
		return
	}
	if !e.dirty || !e.adapter.Authenticated() || e.status == StatusConflict {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if err := e.push(ctx); err != nil && !errors.Is(err, ErrSyncInFlight) {
		slog.Warn("automatic backup failed",
			"component", "sync",
			"action", "auto_push_failed",
			"error", err,
		)
	}
}
