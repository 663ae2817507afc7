// Package studypal is the Go client for the StudyPal HTTP API. It mirrors
// the service's resource operations and sync controls; errors carry the
// server's RFC 7807 problem details.
package studypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const apiPrefix = "/api/v1"

// APIError is a non-2xx response decoded from the server's problem document.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("studypal: %s (%d): %s", e.Title, e.Status, e.Detail)
	}
	return fmt.Sprintf("studypal: %s (%d)", e.Title, e.Status)
}

// Client talks to a StudyPal service.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one request and decodes the response into out (unless out is nil).
// Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil {
		// Best effort; a non-problem body keeps the status-text title.
		_ = json.Unmarshal(data, apiErr)
	}
	return apiErr
}

// Health checks service liveness.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// --- Subjects ---

func (c *Client) CreateSubject(ctx context.Context, params SubjectParams) (*Subject, error) {
	var sub Subject
	if err := c.do(ctx, http.MethodPost, "/subjects", params, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) GetSubject(ctx context.Context, id string) (*Subject, error) {
	var sub Subject
	if err := c.do(ctx, http.MethodGet, "/subjects/"+id, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) ListSubjects(ctx context.Context) ([]Subject, error) {
	var subjects []Subject
	if err := c.do(ctx, http.MethodGet, "/subjects", nil, &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

func (c *Client) UpdateSubject(ctx context.Context, id string, params SubjectParams) (*Subject, error) {
	var sub Subject
	if err := c.do(ctx, http.MethodPut, "/subjects/"+id, params, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) DeleteSubject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/subjects/"+id, nil, nil)
}

// --- Chapters ---

func (c *Client) CreateChapter(ctx context.Context, params ChapterParams) (*Chapter, error) {
	var ch Chapter
	if err := c.do(ctx, http.MethodPost, "/chapters", params, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) GetChapter(ctx context.Context, id string) (*Chapter, error) {
	var ch Chapter
	if err := c.do(ctx, http.MethodGet, "/chapters/"+id, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) ListChapters(ctx context.Context) ([]Chapter, error) {
	var chapters []Chapter
	if err := c.do(ctx, http.MethodGet, "/chapters", nil, &chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}

func (c *Client) UpdateChapter(ctx context.Context, id string, params ChapterParams) (*Chapter, error) {
	var ch Chapter
	if err := c.do(ctx, http.MethodPut, "/chapters/"+id, params, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) DeleteChapter(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/chapters/"+id, nil, nil)
}

// --- Materials ---

func (c *Client) CreateMaterial(ctx context.Context, params MaterialParams) (*Material, error) {
	var m Material
	if err := c.do(ctx, http.MethodPost, "/materials", params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMaterial retrieves a material including its content payload.
func (c *Client) GetMaterial(ctx context.Context, id string) (*Material, error) {
	var m Material
	if err := c.do(ctx, http.MethodGet, "/materials/"+id, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMaterials returns all materials without content payloads.
func (c *Client) ListMaterials(ctx context.Context) ([]Material, error) {
	var materials []Material
	if err := c.do(ctx, http.MethodGet, "/materials", nil, &materials); err != nil {
		return nil, err
	}
	return materials, nil
}

func (c *Client) UpdateMaterial(ctx context.Context, id string, params MaterialParams) (*Material, error) {
	var m Material
	if err := c.do(ctx, http.MethodPut, "/materials/"+id, params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) DeleteMaterial(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/materials/"+id, nil, nil)
}

// --- Sync ---

// SyncStatus reads the engine state.
func (c *Client) SyncStatus(ctx context.Context) (*SyncStatus, error) {
	var s SyncStatus
	if err := c.do(ctx, http.MethodGet, "/sync/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignIn establishes the remote session and returns the post-reconciliation
// status.
func (c *Client) SignIn(ctx context.Context) (*SyncStatus, error) {
	var s SyncStatus
	if err := c.do(ctx, http.MethodPost, "/auth/signin", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignOut drops the remote session.
func (c *Client) SignOut(ctx context.Context) (*SyncStatus, error) {
	var s SyncStatus
	if err := c.do(ctx, http.MethodPost, "/auth/signout", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// BackupNow pushes the local database to the remote backup immediately.
func (c *Client) BackupNow(ctx context.Context) (*SyncStatus, error) {
	var s SyncStatus
	if err := c.do(ctx, http.MethodPost, "/sync/backup", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RestoreNow replaces local data with the remote backup immediately.
func (c *Client) RestoreNow(ctx context.Context) (*SyncStatus, error) {
	var s SyncStatus
	if err := c.do(ctx, http.MethodPost, "/sync/restore", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ResolveConflict completes a pending conflict with ChoiceLocal, ChoiceDrive,
// or ChoiceNone (dismiss).
func (c *Client) ResolveConflict(ctx context.Context, choice string) (*SyncStatus, error) {
	var s SyncStatus
	body := map[string]string{"choice": choice}
	if err := c.do(ctx, http.MethodPost, "/sync/resolve", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- Export / import ---

// Export downloads the full database as a JSON document. includeContent
// retains material binary payloads.
func (c *Client) Export(ctx context.Context, includeContent bool) ([]byte, error) {
	path := "/export"
	if includeContent {
		path += "?content=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Import uploads a JSON document, replacing the local collections it names.
func (c *Client) Import(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+"/import", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	return nil
}
