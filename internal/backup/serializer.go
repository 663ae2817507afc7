// Package backup converts the local store to and from the single JSON
// backup document. The same serializer backs the remote backup path and the
// user-initiated local file export/import escape hatch.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/studypal/studypal/internal/notify"
	"github.com/studypal/studypal/internal/store"
	"github.com/studypal/studypal/internal/types"
)

// ErrCorruptDocument is returned when the backup document cannot be parsed.
// The local store is left untouched in that case.
var ErrCorruptDocument = errors.New("backup document is not valid JSON")

// ExportOptions controls what the exported document contains.
type ExportOptions struct {
	// IncludeContent retains material binary payloads. Off by default: the
	// remote blob stays small and content is recoverable from contentUrl.
	IncludeContent bool
}

// Serializer exports and imports the backup document.
type Serializer struct {
	store store.Store
	bus   *notify.Bus
}

// NewSerializer creates a Serializer over the given store. The bus may be
// nil for one-shot CLI use; when present, a successful import broadcasts a
// "data replaced" event so cached views get invalidated rather than patched.
func NewSerializer(st store.Store, bus *notify.Bus) *Serializer {
	return &Serializer{store: st, bus: bus}
}

// Export produces the backup document as JSON. The underlying read is a
// single consistent snapshot across all exported collections.
func (s *Serializer) Export(ctx context.Context, opts ExportOptions) ([]byte, error) {
	doc, err := s.store.ExportAll(ctx, opts.IncludeContent)
	if err != nil {
		return nil, fmt.Errorf("export store: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal backup document: %w", err)
	}
	return data, nil
}

// Import parses the document and replaces each collection present in it.
// Parsing happens up front, so a corrupt document never partially applies.
// Replacement is all-or-nothing per collection; records missing a required
// identifier are skipped, not fatal. Collections absent from the document
// are left as they are.
func (s *Serializer) Import(ctx context.Context, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	if payload, ok := raw[types.CollectionSettings]; ok {
		var settings []types.Setting
		if err := json.Unmarshal(payload, &settings); err != nil {
			return fmt.Errorf("%w: settings: %v", ErrCorruptDocument, err)
		}
		settings = filterSettings(settings)
		if err := s.store.ReplaceSettings(ctx, settings); err != nil {
			return fmt.Errorf("replace settings: %w", err)
		}
	}

	if payload, ok := raw[types.CollectionSubjects]; ok {
		var subjects []types.Subject
		if err := json.Unmarshal(payload, &subjects); err != nil {
			return fmt.Errorf("%w: subjects: %v", ErrCorruptDocument, err)
		}
		subjects = filterSubjects(subjects)
		if err := s.store.ReplaceSubjects(ctx, subjects); err != nil {
			return fmt.Errorf("replace subjects: %w", err)
		}
	}

	if payload, ok := raw[types.CollectionChapters]; ok {
		var chapters []types.Chapter
		if err := json.Unmarshal(payload, &chapters); err != nil {
			return fmt.Errorf("%w: chapters: %v", ErrCorruptDocument, err)
		}
		chapters = filterChapters(chapters)
		if err := s.store.ReplaceChapters(ctx, chapters); err != nil {
			return fmt.Errorf("replace chapters: %w", err)
		}
	}

	if payload, ok := raw[types.CollectionMaterials]; ok {
		var materials []types.Material
		if err := json.Unmarshal(payload, &materials); err != nil {
			return fmt.Errorf("%w: materials: %v", ErrCorruptDocument, err)
		}
		materials = filterMaterials(materials)
		if err := s.store.ReplaceMaterials(ctx, materials); err != nil {
			return fmt.Errorf("replace materials: %w", err)
		}
	}

	if s.bus != nil {
		s.bus.Publish(notify.EventDataReplaced)
	}
	return nil
}

func filterSettings(in []types.Setting) []types.Setting {
	out := in[:0]
	for _, st := range in {
		if st.Key == "" {
			slog.Warn("skipping setting without key", "component", "backup")
			continue
		}
		out = append(out, st)
	}
	return out
}

func filterSubjects(in []types.Subject) []types.Subject {
	out := in[:0]
	for _, sub := range in {
		if sub.ID == "" {
			slog.Warn("skipping subject without id", "component", "backup", "name", sub.Name)
			continue
		}
		out = append(out, sub)
	}
	return out
}

func filterChapters(in []types.Chapter) []types.Chapter {
	out := in[:0]
	for _, ch := range in {
		if ch.ID == "" {
			slog.Warn("skipping chapter without id", "component", "backup", "name", ch.Name)
			continue
		}
		out = append(out, ch)
	}
	return out
}

func filterMaterials(in []types.Material) []types.Material {
	out := in[:0]
	for _, m := range in {
		if m.ID == "" {
			slog.Warn("skipping material without id", "component", "backup", "name", m.Name)
			continue
		}
		out = append(out, m)
	}
	return out
}
