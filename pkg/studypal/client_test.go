package studypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/studypal/studypal/internal/api"
	"github.com/studypal/studypal/internal/backup"
	"github.com/studypal/studypal/internal/notify"
	"github.com/studypal/studypal/internal/remote"
	"github.com/studypal/studypal/internal/store"
	syncengine "github.com/studypal/studypal/internal/sync"
)

// newTestClient stands up the full service stack behind httptest and returns
// a client pointed at it. Remote storage is unconfigured, so sync stays
// local-only.
func newTestClient(t *testing.T, apiKey string) *Client {
	t.Helper()

	bus := notify.NewBus()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "studypal.db"), bus)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ser := backup.NewSerializer(st, bus)
	engine := syncengine.NewEngine(st, ser, remote.NoopAdapter{}, bus, syncengine.Options{})
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(engine.Stop)

	handler := api.NewHandler(st, ser, engine, apiKey, "test")
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)

	var opts []Option
	if apiKey != "" {
		opts = append(opts, WithAPIKey(apiKey))
	}
	return New(srv.URL, opts...)
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, "")

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("status = %q", h.Status)
	}
	if h.Version != "test" {
		t.Errorf("version = %q", h.Version)
	}
}

func TestClient_SubjectLifecycle(t *testing.T) {
	c := newTestClient(t, "")
	ctx := context.Background()

	created, err := c.CreateSubject(ctx, SubjectParams{
		Name:       "Linear Algebra",
		Color:      "#336699",
		Categories: []string{"math"},
	})
	if err != nil {
		t.Fatalf("create subject: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created subject has no id")
	}
	if created.CreatedAt.IsZero() || created.LastModified.IsZero() {
		t.Error("timestamps not set")
	}

	got, err := c.GetSubject(ctx, created.ID)
	if err != nil {
		t.Fatalf("get subject: %v", err)
	}
	if got.Name != "Linear Algebra" || len(got.Categories) != 1 {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	updated, err := c.UpdateSubject(ctx, created.ID, SubjectParams{Name: "Algebra II"})
	if err != nil {
		t.Fatalf("update subject: %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("update changed id: %q -> %q", created.ID, updated.ID)
	}
	if updated.Name != "Algebra II" {
		t.Errorf("name = %q", updated.Name)
	}

	list, err := c.ListSubjects(ctx)
	if err != nil {
		t.Fatalf("list subjects: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list returned %d subjects", len(list))
	}

	if err := c.DeleteSubject(ctx, created.ID); err != nil {
		t.Fatalf("delete subject: %v", err)
	}

	_, err = c.GetSubject(ctx, created.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError after delete, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.Status)
	}
}

func TestClient_ChaptersAndMaterials(t *testing.T) {
	c := newTestClient(t, "")
	ctx := context.Background()

	sub, err := c.CreateSubject(ctx, SubjectParams{Name: "Chemistry"})
	if err != nil {
		t.Fatalf("create subject: %v", err)
	}

	ch, err := c.CreateChapter(ctx, ChapterParams{Name: "Stoichiometry", SubjectID: sub.ID, Number: 3})
	if err != nil {
		t.Fatalf("create chapter: %v", err)
	}
	if ch.SubjectID != sub.ID || ch.Number != 3 {
		t.Errorf("chapter = %+v", ch)
	}

	mat, err := c.CreateMaterial(ctx, MaterialParams{
		Name:      "Lecture notes",
		ChapterID: ch.ID,
		Type:      "pdf",
		Content:   []byte("mole ratios"),
		Progress:  0.25,
	})
	if err != nil {
		t.Fatalf("create material: %v", err)
	}
	if len(mat.Content) != 0 {
		t.Error("create response should not echo content")
	}
	if mat.Size != int64(len("mole ratios")) {
		t.Errorf("size = %d", mat.Size)
	}

	full, err := c.GetMaterial(ctx, mat.ID)
	if err != nil {
		t.Fatalf("get material: %v", err)
	}
	if string(full.Content) != "mole ratios" {
		t.Errorf("content = %q", full.Content)
	}

	list, err := c.ListMaterials(ctx)
	if err != nil {
		t.Fatalf("list materials: %v", err)
	}
	if len(list) != 1 || len(list[0].Content) != 0 {
		t.Errorf("list should omit content: %+v", list)
	}
}

func TestClient_ValidationErrorCarriesDetail(t *testing.T) {
	c := newTestClient(t, "")

	_, err := c.CreateSubject(context.Background(), SubjectParams{Name: ""})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", apiErr.Status)
	}
	if apiErr.Title == "" {
		t.Error("title missing from decoded problem")
	}
}

func TestClient_BearerAuth(t *testing.T) {
	c := newTestClient(t, "sekrit")
	ctx := context.Background()

	if _, err := c.ListSubjects(ctx); err != nil {
		t.Fatalf("authenticated list: %v", err)
	}

	unauthed := New(c.baseURL)
	_, err := unauthed.ListSubjects(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.Status)
	}

	// Health stays public even with auth enabled.
	if _, err := unauthed.Health(ctx); err != nil {
		t.Errorf("health should not require auth: %v", err)
	}
}

func TestClient_SyncStatusAndUnconfiguredRemote(t *testing.T) {
	c := newTestClient(t, "")
	ctx := context.Background()

	status, err := c.SyncStatus(ctx)
	if err != nil {
		t.Fatalf("sync status: %v", err)
	}
	if status.Status != "idle" || status.Dirty || status.LastSync != nil {
		t.Errorf("fresh status = %+v", status)
	}

	_, err = c.SignIn(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError from signin, got %v", err)
	}
	if apiErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", apiErr.Status)
	}

	_, err = c.BackupNow(ctx)
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Errorf("backup without remote: %v", err)
	}
}

func TestClient_ExportImportRoundTrip(t *testing.T) {
	src := newTestClient(t, "")
	dst := newTestClient(t, "")
	ctx := context.Background()

	if _, err := src.CreateSubject(ctx, SubjectParams{Name: "History"}); err != nil {
		t.Fatalf("create subject: %v", err)
	}

	data, err := src.Export(ctx, false)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if _, ok := doc["subjects"]; !ok {
		t.Fatal("export missing subjects collection")
	}

	if err := dst.Import(ctx, data); err != nil {
		t.Fatalf("import: %v", err)
	}
	list, err := dst.ListSubjects(ctx)
	if err != nil {
		t.Fatalf("list after import: %v", err)
	}
	if len(list) != 1 || list[0].Name != "History" {
		t.Errorf("imported subjects = %+v", list)
	}
}

func TestClient_ImportRejectsCorruptDocument(t *testing.T) {
	c := newTestClient(t, "")

	err := c.Import(context.Background(), []byte("not json at all"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.Status)
	}
}

func TestClient_NonProblemErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "plain text failure", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("status = %d", apiErr.Status)
	}
	if apiErr.Title != http.StatusText(http.StatusBadGateway) {
		t.Errorf("title = %q, want status-text fallback", apiErr.Title)
	}
}
