package store

import (
	"context"

	"github.com/studypal/studypal/internal/types"
)

// SettingLastSyncTimestamp is the settings key holding the epoch-millis
// timestamp of the last provably matching local/remote state. It is engine
// bookkeeping: excluded from exports and preserved across imports.
const SettingLastSyncTimestamp = "lastSyncTimestamp"

// Store defines the interface contract for the local database. Mutating
// operations publish a change event after the write commits.
type Store interface {
	PutSubject(ctx context.Context, s *types.Subject) error
	GetSubject(ctx context.Context, id string) (*types.Subject, error)
	ListSubjects(ctx context.Context) ([]types.Subject, error)
	DeleteSubject(ctx context.Context, id string) error

	PutChapter(ctx context.Context, c *types.Chapter) error
	GetChapter(ctx context.Context, id string) (*types.Chapter, error)
	ListChapters(ctx context.Context) ([]types.Chapter, error)
	DeleteChapter(ctx context.Context, id string) error

	PutMaterial(ctx context.Context, m *types.Material) error
	GetMaterial(ctx context.Context, id string) (*types.Material, error)
	ListMaterials(ctx context.Context) ([]types.Material, error)
	DeleteMaterial(ctx context.Context, id string) error

	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error

	ExportAll(ctx context.Context, includeContent bool) (*types.BackupDocument, error)
	ReplaceSettings(ctx context.Context, settings []types.Setting) error
	ReplaceSubjects(ctx context.Context, subjects []types.Subject) error
	ReplaceChapters(ctx context.Context, chapters []types.Chapter) error
	ReplaceMaterials(ctx context.Context, materials []types.Material) error

	Close() error
}
