package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studypal/studypal/internal/types"
)

// ExportAll reads every exportable record inside one read transaction so the
// document is a consistent snapshot: no collection is captured mid-mutation.
// Engine bookkeeping keys in the settings collection are excluded. When
// includeContent is false, material content payloads are omitted at the SQL
// level rather than loaded and discarded.
func (s *SQLiteStore) ExportAll(ctx context.Context, includeContent bool) (*types.BackupDocument, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc := &types.BackupDocument{
		Settings:  []types.Setting{},
		Subjects:  []types.Subject{},
		Chapters:  []types.Chapter{},
		Materials: []types.Material{},
	}

	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM settings WHERE key != ? ORDER BY key ASC`, SettingLastSyncTimestamp)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	for rows.Next() {
		var st types.Setting
		if err := rows.Scan(&st.Key, &st.Value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		doc.Settings = append(doc.Settings, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `
		SELECT id, name, color, categories, created_at, last_modified, sync_status
		FROM subjects ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	doc.Subjects, err = collectSubjects(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if doc.Subjects == nil {
		doc.Subjects = []types.Subject{}
	}

	rows, err = tx.QueryContext(ctx, `
		SELECT id, name, subject_id, number, created_at, last_modified, sync_status
		FROM chapters ORDER BY subject_id ASC, number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	doc.Chapters, err = collectChapters(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if doc.Chapters == nil {
		doc.Chapters = []types.Chapter{}
	}

	contentColumn := "NULL"
	if includeContent {
		contentColumn = "content"
	}
	rows, err = tx.QueryContext(ctx, `
		SELECT id, name, chapter_id, type, `+contentColumn+`, content_url, size, progress, created_at, last_modified, sync_status
		FROM materials ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	doc.Materials, err = collectMaterials(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if doc.Materials == nil {
		doc.Materials = []types.Material{}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return doc, nil
}

// ReplaceSettings clears the settings collection and inserts the given
// records in one transaction. Engine bookkeeping keys survive the clear and
// are never overwritten by imported records.
//
// None of the Replace methods publish a change event: replacement is the
// import path, and announcing it as an ordinary local mutation would re-arm
// the backup that the data just came from. The importer broadcasts a single
// "data replaced" event after all collections are in place.
func (s *SQLiteStore) ReplaceSettings(ctx context.Context, settings []types.Setting) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key != ?`, SettingLastSyncTimestamp); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}

	for _, st := range settings {
		if st.Key == SettingLastSyncTimestamp {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, st.Key, st.Value); err != nil {
			return fmt.Errorf("insert setting: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReplaceSubjects clears and repopulates the subjects collection in one
// transaction, so a mid-import failure cannot leave a mix of old and new rows.
func (s *SQLiteStore) ReplaceSubjects(ctx context.Context, subjects []types.Subject) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subjects`); err != nil {
		return fmt.Errorf("clear subjects: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO subjects (id, name, color, categories, created_at, last_modified, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, sub := range subjects {
		categories, err := json.Marshal(sub.Categories)
		if err != nil {
			return fmt.Errorf("marshal categories: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, sub.ID, sub.Name, sub.Color, string(categories),
			formatTimestamp(sub.CreatedAt), formatTimestamp(sub.LastModified), string(sub.SyncStatus)); err != nil {
			return fmt.Errorf("insert subject: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReplaceChapters clears and repopulates the chapters collection in one transaction.
func (s *SQLiteStore) ReplaceChapters(ctx context.Context, chapters []types.Chapter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters`); err != nil {
		return fmt.Errorf("clear chapters: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chapters (id, name, subject_id, number, created_at, last_modified, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chapters {
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.Name, ch.SubjectID, ch.Number,
			formatTimestamp(ch.CreatedAt), formatTimestamp(ch.LastModified), string(ch.SyncStatus)); err != nil {
			return fmt.Errorf("insert chapter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReplaceMaterials clears and repopulates the materials collection in one transaction.
func (s *SQLiteStore) ReplaceMaterials(ctx context.Context, materials []types.Material) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM materials`); err != nil {
		return fmt.Errorf("clear materials: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO materials (id, name, chapter_id, type, content, content_url, size, progress, created_at, last_modified, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range materials {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Name, m.ChapterID, m.Type, m.Content,
			m.ContentURL, m.Size, m.Progress,
			formatTimestamp(m.CreatedAt), formatTimestamp(m.LastModified), string(m.SyncStatus)); err != nil {
			return fmt.Errorf("insert material: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}
