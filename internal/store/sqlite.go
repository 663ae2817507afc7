package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/studypal/studypal/internal/notify"
	"github.com/studypal/studypal/internal/types"
)

// SQLiteStore is the SQLite-backed local database. Every committed mutation
// of a domain collection publishes a change event on the notifier.
type SQLiteStore struct {
	db  *sql.DB
	bus *notify.Bus
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs
// migrations. The bus may be nil for callers that do not need change events.
func NewSQLiteStore(dbPath string, bus *notify.Bus) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, bus: bus}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// publishChanged broadcasts the no-payload "database changed" event.
func (s *SQLiteStore) publishChanged() {
	if s.bus != nil {
		s.bus.Publish(notify.EventDataChanged)
	}
}

// --- Subjects ---

// PutSubject upserts a subject. An empty ID gets a new ULID; CreatedAt is
// assigned on first insert and LastModified on every write.
func (s *SQLiteStore) PutSubject(ctx context.Context, sub *types.Subject) error {
	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = ulid.Make().String()
		sub.CreatedAt = now
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.LastModified = now
	if sub.SyncStatus == "" {
		sub.SyncStatus = types.RecordSyncPending
	}

	categories, err := json.Marshal(sub.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, color, categories, created_at, last_modified, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			categories = excluded.categories,
			last_modified = excluded.last_modified,
			sync_status = excluded.sync_status
	`, sub.ID, sub.Name, sub.Color, string(categories),
		sub.CreatedAt.Format(time.RFC3339), sub.LastModified.Format(time.RFC3339), string(sub.SyncStatus))
	if err != nil {
		return fmt.Errorf("upsert subject: %w", err)
	}

	s.publishChanged()
	return nil
}

// GetSubject retrieves a subject by ID.
func (s *SQLiteStore) GetSubject(ctx context.Context, id string) (*types.Subject, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, color, categories, created_at, last_modified, sync_status
		FROM subjects WHERE id = ?
	`, id)

	sub, err := scanSubject(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan subject: %w", err)
	}
	return sub, nil
}

// ListSubjects returns all subjects ordered by creation time.
func (s *SQLiteStore) ListSubjects(ctx context.Context) ([]types.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, color, categories, created_at, last_modified, sync_status
		FROM subjects ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	return collectSubjects(rows)
}

// DeleteSubject removes a subject by ID.
func (s *SQLiteStore) DeleteSubject(ctx context.Context, id string) error {
	if err := s.deleteByID(ctx, "subjects", id); err != nil {
		return err
	}
	s.publishChanged()
	return nil
}

// --- Chapters ---

// PutChapter upserts a chapter.
func (s *SQLiteStore) PutChapter(ctx context.Context, ch *types.Chapter) error {
	now := time.Now().UTC()
	if ch.ID == "" {
		ch.ID = ulid.Make().String()
		ch.CreatedAt = now
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.LastModified = now
	if ch.SyncStatus == "" {
		ch.SyncStatus = types.RecordSyncPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapters (id, name, subject_id, number, created_at, last_modified, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			subject_id = excluded.subject_id,
			number = excluded.number,
			last_modified = excluded.last_modified,
			sync_status = excluded.sync_status
	`, ch.ID, ch.Name, ch.SubjectID, ch.Number,
		ch.CreatedAt.Format(time.RFC3339), ch.LastModified.Format(time.RFC3339), string(ch.SyncStatus))
	if err != nil {
		return fmt.Errorf("upsert chapter: %w", err)
	}

	s.publishChanged()
	return nil
}

// GetChapter retrieves a chapter by ID.
func (s *SQLiteStore) GetChapter(ctx context.Context, id string) (*types.Chapter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, subject_id, number, created_at, last_modified, sync_status
		FROM chapters WHERE id = ?
	`, id)

	ch, err := scanChapter(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan chapter: %w", err)
	}
	return ch, nil
}

// ListChapters returns all chapters ordered by subject and number.
func (s *SQLiteStore) ListChapters(ctx context.Context) ([]types.Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, subject_id, number, created_at, last_modified, sync_status
		FROM chapters ORDER BY subject_id ASC, number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	return collectChapters(rows)
}

// DeleteChapter removes a chapter by ID.
func (s *SQLiteStore) DeleteChapter(ctx context.Context, id string) error {
	if err := s.deleteByID(ctx, "chapters", id); err != nil {
		return err
	}
	s.publishChanged()
	return nil
}

// --- Materials ---

// PutMaterial upserts a material. Size is derived from Content when content
// is present and no explicit size was given.
func (s *SQLiteStore) PutMaterial(ctx context.Context, m *types.Material) error {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = ulid.Make().String()
		m.CreatedAt = now
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.LastModified = now
	if m.SyncStatus == "" {
		m.SyncStatus = types.RecordSyncPending
	}
	if m.Size == 0 && len(m.Content) > 0 {
		m.Size = int64(len(m.Content))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materials (id, name, chapter_id, type, content, content_url, size, progress, created_at, last_modified, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			chapter_id = excluded.chapter_id,
			type = excluded.type,
			content = excluded.content,
			content_url = excluded.content_url,
			size = excluded.size,
			progress = excluded.progress,
			last_modified = excluded.last_modified,
			sync_status = excluded.sync_status
	`, m.ID, m.Name, m.ChapterID, m.Type, m.Content, m.ContentURL, m.Size, m.Progress,
		m.CreatedAt.Format(time.RFC3339), m.LastModified.Format(time.RFC3339), string(m.SyncStatus))
	if err != nil {
		return fmt.Errorf("upsert material: %w", err)
	}

	s.publishChanged()
	return nil
}

// GetMaterial retrieves a material by ID, including its content payload.
func (s *SQLiteStore) GetMaterial(ctx context.Context, id string) (*types.Material, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, chapter_id, type, content, content_url, size, progress, created_at, last_modified, sync_status
		FROM materials WHERE id = ?
	`, id)

	m, err := scanMaterial(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan material: %w", err)
	}
	return m, nil
}

// ListMaterials returns all materials without their content payloads.
func (s *SQLiteStore) ListMaterials(ctx context.Context) ([]types.Material, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, chapter_id, type, NULL, content_url, size, progress, created_at, last_modified, sync_status
		FROM materials ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	return collectMaterials(rows)
}

// DeleteMaterial removes a material by ID.
func (s *SQLiteStore) DeleteMaterial(ctx context.Context, id string) error {
	if err := s.deleteByID(ctx, "materials", id); err != nil {
		return err
	}
	s.publishChanged()
	return nil
}

// --- Settings ---

// GetSetting returns the value for a settings key, or ErrNotFound.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query setting: %w", err)
	}
	return value, nil
}

// PutSetting upserts a settings key. Writes to engine bookkeeping keys do
// not publish a change event; they would otherwise re-arm the backup that
// just completed.
func (s *SQLiteStore) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}

	if key != SettingLastSyncTimestamp {
		s.publishChanged()
	}
	return nil
}

// deleteByID removes one row from the named table.
func (s *SQLiteStore) deleteByID(ctx context.Context, table, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Row scanning helpers ---

type rowScanner interface{ Scan(...any) error }

func scanSubject(scanner rowScanner) (*types.Subject, error) {
	var sub types.Subject
	var categoriesJSON, createdAt, lastModified, syncStatus string

	err := scanner.Scan(&sub.ID, &sub.Name, &sub.Color, &categoriesJSON, &createdAt, &lastModified, &syncStatus)
	if err != nil {
		return nil, err
	}

	if categoriesJSON != "" {
		if err := json.Unmarshal([]byte(categoriesJSON), &sub.Categories); err != nil {
			return nil, fmt.Errorf("parse categories JSON: %w", err)
		}
	}
	sub.CreatedAt = parseTimestamp(createdAt)
	sub.LastModified = parseTimestamp(lastModified)
	sub.SyncStatus = types.RecordSyncStatus(syncStatus)
	return &sub, nil
}

func scanChapter(scanner rowScanner) (*types.Chapter, error) {
	var ch types.Chapter
	var createdAt, lastModified, syncStatus string

	err := scanner.Scan(&ch.ID, &ch.Name, &ch.SubjectID, &ch.Number, &createdAt, &lastModified, &syncStatus)
	if err != nil {
		return nil, err
	}

	ch.CreatedAt = parseTimestamp(createdAt)
	ch.LastModified = parseTimestamp(lastModified)
	ch.SyncStatus = types.RecordSyncStatus(syncStatus)
	return &ch, nil
}

func scanMaterial(scanner rowScanner) (*types.Material, error) {
	var m types.Material
	var content []byte
	var createdAt, lastModified, syncStatus string

	err := scanner.Scan(&m.ID, &m.Name, &m.ChapterID, &m.Type, &content, &m.ContentURL,
		&m.Size, &m.Progress, &createdAt, &lastModified, &syncStatus)
	if err != nil {
		return nil, err
	}

	m.Content = content
	m.CreatedAt = parseTimestamp(createdAt)
	m.LastModified = parseTimestamp(lastModified)
	m.SyncStatus = types.RecordSyncStatus(syncStatus)
	return &m, nil
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func collectSubjects(rows *sql.Rows) ([]types.Subject, error) {
	var subjects []types.Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return subjects, nil
}

func collectChapters(rows *sql.Rows) ([]types.Chapter, error) {
	var chapters []types.Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return chapters, nil
}

func collectMaterials(rows *sql.Rows) ([]types.Material, error) {
	var materials []types.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		materials = append(materials, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate materials: %w", err)
	}
	return materials, nil
}
