// Package remote provides the single-file remote backup store. The whole
// local database travels as one JSON object under a fixed, well-known key
// in an application-private bucket. When the remote store is not configured
// (empty bucket), the NoopAdapter is used and the service stays in
// local-only mode.
package remote

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConfigured is returned when remote backup storage is not configured.
	ErrNotConfigured = errors.New("remote backup storage not configured")

	// ErrAuthExpired signals a 401-equivalent provider response. The adapter
	// forces sign-out before surfacing it; local data and sync history are
	// left intact.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrNotSignedIn is returned for remote operations attempted before a
	// successful sign-in.
	ErrNotSignedIn = errors.New("not signed in")
)

// Metadata describes the remote backup file. ModifiedTime is server-assigned
// and is the only clock the engine trusts for remote state.
type Metadata struct {
	ModifiedTime time.Time
	Size         int64
	Exists       bool
}

// Adapter is the capability the sync engine requires of any remote backup
// provider. Adapters never retry: retry policy belongs to the engine.
type Adapter interface {
	// FindBackup looks up the backup by its fixed name. A missing backup is
	// (nil, nil), never an error.
	FindBackup(ctx context.Context) (*Metadata, error)

	// Upload creates the backup when isUpdate is false, replaces it in
	// place when true, and returns the new server-assigned metadata.
	Upload(ctx context.Context, data []byte, isUpdate bool) (*Metadata, error)

	// Download returns the raw backup document bytes.
	Download(ctx context.Context) ([]byte, error)

	// SignIn establishes the session. It may fail on cancellation,
	// permission denial, or network errors.
	SignIn(ctx context.Context) error

	// SignOut drops the session. It never fails.
	SignOut()

	// Authenticated reports whether a session is currently established.
	Authenticated() bool

	// Ready reports whether the adapter is configured and usable at all.
	Ready() bool
}

// NoopAdapter is used when remote storage is not configured. Sync stays
// permanently disabled until the configuration is corrected; there is no
// retry loop.
type NoopAdapter struct{}

func (NoopAdapter) FindBackup(ctx context.Context) (*Metadata, error) {
	return nil, ErrNotConfigured
}

func (NoopAdapter) Upload(ctx context.Context, data []byte, isUpdate bool) (*Metadata, error) {
	return nil, ErrNotConfigured
}

func (NoopAdapter) Download(ctx context.Context) ([]byte, error) {
	return nil, ErrNotConfigured
}

func (NoopAdapter) SignIn(ctx context.Context) error { return ErrNotConfigured }

func (NoopAdapter) SignOut() {}

func (NoopAdapter) Authenticated() bool { return false }

func (NoopAdapter) Ready() bool { return false }
