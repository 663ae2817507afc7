package studypal

import "time"

// Subject is a top-level grouping of study material.
type Subject struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Color        string    `json:"color,omitempty"`
	Categories   []string  `json:"categories,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// SubjectParams carries the writable subject fields.
type SubjectParams struct {
	Name       string   `json:"name"`
	Color      string   `json:"color,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Chapter is an ordered section within a subject.
type Chapter struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SubjectID    string    `json:"subjectId"`
	Number       int       `json:"number"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// ChapterParams carries the writable chapter fields.
type ChapterParams struct {
	Name      string `json:"name"`
	SubjectID string `json:"subjectId"`
	Number    int    `json:"number"`
}

// Material is a single study item within a chapter.
type Material struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ChapterID    string    `json:"chapterId"`
	Type         string    `json:"type,omitempty"`
	Content      []byte    `json:"content,omitempty"`
	ContentURL   string    `json:"contentUrl,omitempty"`
	Size         int64     `json:"size,omitempty"`
	Progress     float64   `json:"progress,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// MaterialParams carries the writable material fields.
type MaterialParams struct {
	Name       string  `json:"name"`
	ChapterID  string  `json:"chapterId"`
	Type       string  `json:"type,omitempty"`
	Content    []byte  `json:"content,omitempty"`
	ContentURL string  `json:"contentUrl,omitempty"`
	Progress   float64 `json:"progress"`
}

// ConflictDescriptor describes a local/remote divergence awaiting a decision.
type ConflictDescriptor struct {
	DriveModified time.Time `json:"driveModified"`
	LocalModified time.Time `json:"localModified"`
	DriveSize     int64     `json:"driveSize,omitempty"`
}

// SyncStatus is the observable state of the service's sync engine.
type SyncStatus struct {
	Status    string              `json:"status"`
	Dirty     bool                `json:"dirty"`
	LastError string              `json:"lastError,omitempty"`
	LastSync  *time.Time          `json:"lastSync,omitempty"`
	Conflict  *ConflictDescriptor `json:"conflict,omitempty"`
}

// Conflict resolution choices accepted by ResolveConflict. The empty string
// dismisses the conflict dialog without resolving it.
const (
	ChoiceLocal = "local"
	ChoiceDrive = "drive"
	ChoiceNone  = ""
)

// Health is the service liveness response.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
