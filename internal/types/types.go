// Package types defines the domain entities shared across the service.
package types

import "time"

// Collection names as they appear in the backup document and the database.
const (
	CollectionSettings  = "settings"
	CollectionSubjects  = "subjects"
	CollectionChapters  = "chapters"
	CollectionMaterials = "materials"
)

// RecordSyncStatus is the per-record sync marker. It is informational only:
// bulk sync operates on whole-database snapshots, so the engine never
// consults it.
type RecordSyncStatus string

const (
	RecordSyncPending RecordSyncStatus = "pending"
	RecordSyncSynced  RecordSyncStatus = "synced"
)

// Subject is a top-level grouping of study material.
type Subject struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Color        string           `json:"color,omitempty"`
	Categories   []string         `json:"categories,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastModified time.Time        `json:"lastModified"`
	SyncStatus   RecordSyncStatus `json:"syncStatus,omitempty"`
}

// Chapter is an ordered section within a subject.
type Chapter struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	SubjectID    string           `json:"subjectId"`
	Number       int              `json:"number"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastModified time.Time        `json:"lastModified"`
	SyncStatus   RecordSyncStatus `json:"syncStatus,omitempty"`
}

// Material is a single study item within a chapter. Content holds the raw
// binary payload (if stored locally) and is stripped from backups by default.
type Material struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	ChapterID    string           `json:"chapterId"`
	Type         string           `json:"type,omitempty"`
	Content      []byte           `json:"content,omitempty"`
	ContentURL   string           `json:"contentUrl,omitempty"`
	Size         int64            `json:"size,omitempty"`
	Progress     float64          `json:"progress,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastModified time.Time        `json:"lastModified"`
	SyncStatus   RecordSyncStatus `json:"syncStatus,omitempty"`
}

// Setting is a key/value entry in the settings collection.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BackupDocument is the full exportable state of the local store, keyed by
// collection name. It is the shape of the single remote JSON blob.
type BackupDocument struct {
	Settings  []Setting  `json:"settings"`
	Subjects  []Subject  `json:"subjects"`
	Chapters  []Chapter  `json:"chapters"`
	Materials []Material `json:"materials"`
}
