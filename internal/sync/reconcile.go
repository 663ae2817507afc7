package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/studypal/studypal/internal/backup"
	"github.com/studypal/studypal/internal/remote"
	"github.com/studypal/studypal/internal/store"
)

// Reconcile runs the one-time comparison between local and remote state and
// decides the initial sync action: push, conflict, or nothing. It is invoked
// on sign-in.
func (e *Engine) Reconcile(ctx context.Context) error {
	return e.reconcile(ctx, false)
}

// reconcile is the comparison behind Reconcile and Check. In dry mode the
// catch-up push is skipped: the dirty flag stays pending and the engine
// returns to idle so nothing moves on a read-only check.
func (e *Engine) reconcile(ctx context.Context, dry bool) error {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrSyncInFlight
	}
	if !e.adapter.Authenticated() {
		e.mu.Unlock()
		return ErrNotSignedIn
	}
	gen := e.authGen
	e.setStatusLocked(StatusChecking)
	dirty := e.dirty
	lastSync := e.lastSync
	hasLastSync := e.hasLastSync
	e.mu.Unlock()

	meta, err := e.adapter.FindBackup(ctx)
	if err != nil {
		return e.fail(gen, fmt.Errorf("check remote backup: %w", err))
	}

	if meta == nil {
		// No remote backup. Push local changes if there are any; otherwise
		// there is nothing to do.
		if dirty {
			if dry {
				e.finish(gen, StatusIdle)
				return nil
			}
			return e.push(ctx)
		}
		e.finish(gen, StatusUpToDate)
		return nil
	}

	if !hasLastSync {
		// First run or cleared storage: neither side can be assumed
		// authoritative, so the human decides.
		e.declareConflict(gen, meta)
		return nil
	}

	if meta.ModifiedTime.After(lastSync.Add(e.skewBuffer)) {
		// Remote changed since the last agreement. Even when local is
		// clean this is a conflict: the engine never pulls without the
		// user confirming, because silently replacing visible data was
		// judged unsafe.
		e.declareConflict(gen, meta)
		return nil
	}

	if dirty && !lastSync.Before(meta.ModifiedTime) {
		// Local is the only side that changed: safe catch-up push.
		if dry {
			e.finish(gen, StatusIdle)
			return nil
		}
		return e.push(ctx)
	}

	e.finish(gen, StatusUpToDate)
	return nil
}

// declareConflict records the divergence for the resolution dialog.
func (e *Engine) declareConflict(gen uint64, meta *remote.Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.authGen != gen {
		return
	}
	e.conflict = &ConflictDescriptor{
		DriveModified: meta.ModifiedTime,
		LocalModified: time.Now().UTC(),
		DriveSize:     meta.Size,
	}
	e.setStatusLocked(StatusConflict)
	slog.Info("sync conflict detected",
		"component", "sync",
		"action", "conflict_detected",
		"drive_modified", meta.ModifiedTime,
	)
}

// BackupNow pushes the local store to the remote immediately. It refuses to
// bypass a pending conflict; use ResolveConflict for that.
func (e *Engine) BackupNow(ctx context.Context) error {
	if e.Status() == StatusConflict {
		return ErrConflictPending
	}
	return e.push(ctx)
}

// RestoreNow replaces local collections with the remote backup immediately.
// It refuses to bypass a pending conflict; use ResolveConflict for that.
func (e *Engine) RestoreNow(ctx context.Context) error {
	if e.Status() == StatusConflict {
		return ErrConflictPending
	}
	return e.pull(ctx)
}

// ResolveConflict completes the conflict protocol. ChoiceLocal pushes local
// data, ChoiceDrive pulls the remote backup, ChoiceNone dismisses the dialog
// without resolving (the conflict is re-detected on the next
// reconciliation). The descriptor is cleared exactly when a resolution
// completes.
func (e *Engine) ResolveConflict(ctx context.Context, choice Choice) error {
	e.mu.Lock()
	if e.status != StatusConflict {
		e.mu.Unlock()
		return ErrNoConflict
	}
	if choice == ChoiceNone {
		e.conflict = nil
		e.setStatusLocked(StatusIdle)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	switch choice {
	case ChoiceLocal:
		return e.push(ctx)
	case ChoiceDrive:
		return e.pull(ctx)
	default:
		return fmt.Errorf("unknown conflict choice %q", choice)
	}
}

// push serializes the local store and uploads it as the remote backup.
// The dirty flag is consumed at export time, so a mutation arriving during
// the upload re-arms it and gets its own cycle afterwards.
func (e *Engine) push(ctx context.Context) error {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrSyncInFlight
	}
	if !e.adapter.Authenticated() {
		e.mu.Unlock()
		return ErrNotSignedIn
	}
	gen := e.authGen
	e.inFlight = true
	e.dirty = false // consumed by this snapshot; failure restores it
	e.setStatusLocked(StatusSyncingUp)
	e.mu.Unlock()

	meta, err := e.doPush(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false

	if e.authGen != gen {
		// Signed out (or re-signed-in) while the push was in flight: the
		// attempt finishes silently and its outcome is not applied. When the
		// upload failed the remote never saw this snapshot, so the consumed
		// dirty flag comes back; the edit still needs a push.
		if err != nil {
			e.dirty = true
		}
		slog.Info("discarding stale push result",
			"component", "sync", "action", "stale_push_discarded")
		return nil
	}

	if err != nil {
		e.dirty = true
		e.lastErr = err
		e.setStatusLocked(StatusError)
		return err
	}

	if err := e.persistLastSyncLocked(ctx, meta.ModifiedTime); err != nil {
		e.dirty = true
		e.lastErr = err
		e.setStatusLocked(StatusError)
		return err
	}

	e.conflict = nil
	e.lastErr = nil
	e.setStatusLocked(StatusUpToDate)
	slog.Info("backup pushed",
		"component", "sync",
		"action", "push_complete",
		"remote_modified", meta.ModifiedTime,
		"size", meta.Size,
	)
	return nil
}

// doPush runs the network half of a push without touching engine state.
func (e *Engine) doPush(ctx context.Context) (*remote.Metadata, error) {
	data, err := e.serializer.Export(ctx, backup.ExportOptions{IncludeContent: e.includeContent})
	if err != nil {
		return nil, fmt.Errorf("serialize local store: %w", err)
	}

	existing, err := e.adapter.FindBackup(ctx)
	if err != nil {
		return nil, fmt.Errorf("check remote backup: %w", err)
	}
	isUpdate := existing != nil

	var meta *remote.Metadata
	err = retry.Do(ctx, backoffPolicy(), func(ctx context.Context) error {
		var uploadErr error
		meta, uploadErr = e.adapter.Upload(ctx, data, isUpdate)
		return retryable(uploadErr)
	})
	if err != nil {
		return nil, fmt.Errorf("upload backup: %w", err)
	}
	return meta, nil
}

// pull downloads the remote backup and replaces local collections with it.
func (e *Engine) pull(ctx context.Context) error {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrSyncInFlight
	}
	if !e.adapter.Authenticated() {
		e.mu.Unlock()
		return ErrNotSignedIn
	}
	gen := e.authGen
	e.inFlight = true
	wasDirty := e.dirty
	e.setStatusLocked(StatusSyncingDown)
	e.mu.Unlock()

	meta, err := e.doPull(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false

	if e.authGen != gen {
		slog.Info("discarding stale pull result",
			"component", "sync", "action", "stale_pull_discarded")
		return nil
	}

	if err != nil {
		e.dirty = wasDirty
		e.lastErr = err
		e.setStatusLocked(StatusError)
		return err
	}

	if err := e.persistLastSyncLocked(ctx, meta.ModifiedTime); err != nil {
		e.lastErr = err
		e.setStatusLocked(StatusError)
		return err
	}

	// Local collections now mirror the remote document.
	e.dirty = false
	e.conflict = nil
	e.lastErr = nil
	e.setStatusLocked(StatusUpToDate)
	slog.Info("backup restored",
		"component", "sync",
		"action", "pull_complete",
		"remote_modified", meta.ModifiedTime,
	)
	return nil
}

// doPull runs the network and import half of a pull without touching engine
// state. A parse failure surfaces before any collection is replaced, so the
// local store is left untouched. On success the serializer broadcasts the
// "data replaced" event: caches elsewhere must be invalidated, not patched.
func (e *Engine) doPull(ctx context.Context) (*remote.Metadata, error) {
	meta, err := e.adapter.FindBackup(ctx)
	if err != nil {
		return nil, fmt.Errorf("check remote backup: %w", err)
	}
	if meta == nil {
		return nil, errors.New("remote backup no longer exists")
	}

	var data []byte
	err = retry.Do(ctx, backoffPolicy(), func(ctx context.Context) error {
		var downloadErr error
		data, downloadErr = e.adapter.Download(ctx)
		return retryable(downloadErr)
	})
	if err != nil {
		return nil, fmt.Errorf("download backup: %w", err)
	}

	if err := e.serializer.Import(ctx, data); err != nil {
		return nil, fmt.Errorf("import backup: %w", err)
	}
	return meta, nil
}

// fail records a failure once per attempt, unless the session that started
// the attempt is gone.
func (e *Engine) fail(gen uint64, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.authGen != gen {
		return nil
	}
	e.lastErr = err
	if errors.Is(err, remote.ErrAuthExpired) {
		// The adapter already forced sign-out; drop conflict state but keep
		// local data and the last sync timestamp.
		e.authGen++
		e.conflict = nil
	}
	e.setStatusLocked(StatusError)
	return err
}

// persistLastSyncLocked durably records the server-assigned modified time as
// the new point of local/remote agreement. Callers hold e.mu.
func (e *Engine) persistLastSyncLocked(ctx context.Context, t time.Time) error {
	millis := strconv.FormatInt(t.UnixMilli(), 10)
	if err := e.store.PutSetting(ctx, store.SettingLastSyncTimestamp, millis); err != nil {
		return fmt.Errorf("persist last sync timestamp: %w", err)
	}
	e.lastSync = t.UTC()
	e.hasLastSync = true
	return nil
}

// finish applies a terminal reconciliation status under the stale guard.
func (e *Engine) finish(gen uint64, s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.authGen != gen {
		return
	}
	e.lastErr = nil
	e.setStatusLocked(s)
}

// backoffPolicy bounds network retries during a single push or pull attempt.
func backoffPolicy() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
}

// retryable marks transient adapter errors for retry. Auth and
// configuration failures are permanent within an attempt.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, remote.ErrAuthExpired) ||
		errors.Is(err, remote.ErrNotSignedIn) ||
		errors.Is(err, remote.ErrNotConfigured) {
		return err
	}
	return retry.RetryableError(err)
}
