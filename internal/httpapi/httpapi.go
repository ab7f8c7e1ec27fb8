// Package httpapi is a thin net/http implementation of remoteapi.API
// against the real Val Town REST API. It exists so the repository builds
// and runs end-to-end, even though the core engine treats RemoteApi as an
// opaque collaborator the core never depends on directly; every engine
// test exercises internal/remoteapi/remoteapitest.Fake instead.
//
// A minimal *http.Client wrapper holds the endpoint/token pair and small
// get/do helpers, covering the full CRUD surface the RemoteApi contract
// needs, with status codes mapped onto internal/vterrors sentinels.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/val-town/vt/internal/remoteapi"
	"github.com/val-town/vt/internal/vterrors"
)

// DefaultBaseURL is the production Val Town API origin.
const DefaultBaseURL = "https://api.val.town/v1"

// Client is a thin remoteapi.API implementation over Val Town's REST API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// New creates a Client. If baseURL is empty, DefaultBaseURL is used. If
// httpClient is nil, a client with a 30s timeout is used.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, httpc: httpClient}
}

var _ remoteapi.API = (*Client)(nil)

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpapi: marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("httpapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vterrors.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", vterrors.ErrRemoteUnavailable, err)
	}

	if err := statusErr(resp.StatusCode); err != nil {
		return err
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("httpapi: decode response: %w", err)
		}
	}
	return nil
}

func statusErr(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return vterrors.ErrNotFound
	case code == http.StatusConflict:
		return vterrors.ErrConflict
	case code == http.StatusUnauthorized:
		return vterrors.ErrUnauthenticated
	case code == http.StatusForbidden:
		return vterrors.ErrPermissionDenied
	case code >= 500:
		return vterrors.ErrRemoteUnavailable
	default:
		return fmt.Errorf("httpapi: unexpected status %d", code)
	}
}

type valDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AuthorID  uuid.UUID `json:"authorId"`
	Privacy   string    `json:"privacy"`
	CanWrite  bool      `json:"canWrite"`
	CreatedAt time.Time `json:"createdAt"`
}

func (v valDTO) toVal() *remoteapi.Val {
	return &remoteapi.Val{
		ID:        v.ID,
		Name:      v.Name,
		AuthorID:  v.AuthorID,
		Privacy:   remoteapi.Privacy(v.Privacy),
		CanWrite:  v.CanWrite,
		CreatedAt: v.CreatedAt,
	}
}

type branchDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b branchDTO) toBranch() remoteapi.Branch {
	return remoteapi.Branch{
		ID:        b.ID,
		Name:      b.Name,
		Version:   b.Version,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

type fileEntryDTO struct {
	Path      string `json:"path"`
	Kind      string `json:"type"`
	UpdatedAt int64  `json:"updatedAtMs"`
}

func (f fileEntryDTO) toEntry() remoteapi.FileEntry {
	return remoteapi.FileEntry{Path: f.Path, Kind: remoteapi.Kind(f.Kind), MTimeMS: f.UpdatedAt}
}

// RetrieveVal implements remoteapi.API.
func (c *Client) RetrieveVal(ctx context.Context, valID uuid.UUID) (*remoteapi.Val, error) {
	var dto valDTO
	if err := c.do(ctx, http.MethodGet, "/vals/"+valID.String(), nil, &dto); err != nil {
		return nil, err
	}
	return dto.toVal(), nil
}

// ListBranches implements remoteapi.API.
func (c *Client) ListBranches(ctx context.Context, valID uuid.UUID) ([]remoteapi.Branch, error) {
	var dtos []branchDTO
	if err := c.do(ctx, http.MethodGet, "/vals/"+valID.String()+"/branches", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]remoteapi.Branch, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toBranch())
	}
	return out, nil
}

// RetrieveBranch implements remoteapi.API.
func (c *Client) RetrieveBranch(ctx context.Context, valID, branchID uuid.UUID) (*remoteapi.Branch, error) {
	var dto branchDTO
	path := "/vals/" + valID.String() + "/branches/" + branchID.String()
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return nil, err
	}
	b := dto.toBranch()
	return &b, nil
}

// CreateBranch implements remoteapi.API.
func (c *Client) CreateBranch(ctx context.Context, valID uuid.UUID, name string, forkedFromID uuid.UUID) (*remoteapi.Branch, error) {
	var dto branchDTO
	body := map[string]any{"name": name}
	if forkedFromID != uuid.Nil {
		body["forkedFromId"] = forkedFromID.String()
	}
	path := "/vals/" + valID.String() + "/branches"
	if err := c.do(ctx, http.MethodPost, path, body, &dto); err != nil {
		return nil, err
	}
	b := dto.toBranch()
	return &b, nil
}

// ListFiles implements remoteapi.API.
func (c *Client) ListFiles(ctx context.Context, valID, branchID uuid.UUID, version uint64, recursive bool) ([]remoteapi.FileEntry, error) {
	q := url.Values{}
	q.Set("branch_id", branchID.String())
	q.Set("version", strconv.FormatUint(version, 10))
	q.Set("recursive", strconv.FormatBool(recursive))

	var dtos []fileEntryDTO
	path := "/vals/" + valID.String() + "/files?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]remoteapi.FileEntry, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toEntry())
	}
	return out, nil
}

// GetContent implements remoteapi.API.
func (c *Client) GetContent(ctx context.Context, valID uuid.UUID, path string, opts remoteapi.GetContentOptions) ([]byte, error) {
	q := url.Values{}
	q.Set("branch_id", opts.BranchID.String())
	q.Set("version", strconv.FormatUint(opts.Version, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/vals/"+valID.String()+"/files/"+url.PathEscape(path)+"/content?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("httpapi: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vterrors.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", vterrors.ErrRemoteUnavailable, err)
	}
	if err := statusErr(resp.StatusCode); err != nil {
		return nil, err
	}
	return data, nil
}

// CreateFile implements remoteapi.API.
func (c *Client) CreateFile(ctx context.Context, valID uuid.UUID, path string, opts remoteapi.CreateFileOptions) error {
	body := map[string]any{
		"branchId": opts.BranchID.String(),
		"type":     string(opts.Kind),
		"content":  string(opts.Content),
	}
	return c.do(ctx, http.MethodPost, "/vals/"+valID.String()+"/files/"+url.PathEscape(path), body, nil)
}

// UpdateFile implements remoteapi.API.
func (c *Client) UpdateFile(ctx context.Context, valID uuid.UUID, path string, opts remoteapi.UpdateFileOptions) error {
	body := map[string]any{
		"branchId": opts.BranchID.String(),
		"name":     opts.Name,
		"type":     string(opts.Kind),
		"content":  string(opts.Content),
	}
	return c.do(ctx, http.MethodPut, "/vals/"+valID.String()+"/files/"+url.PathEscape(path), body, nil)
}

// DeleteFile implements remoteapi.API.
func (c *Client) DeleteFile(ctx context.Context, valID uuid.UUID, path string, opts remoteapi.DeleteFileOptions) error {
	q := url.Values{}
	q.Set("branch_id", opts.BranchID.String())
	q.Set("version", strconv.FormatUint(opts.Version, 10))
	return c.do(ctx, http.MethodDelete, "/vals/"+valID.String()+"/files/"+url.PathEscape(path)+"?"+q.Encode(), nil, nil)
}

// CreateVal implements remoteapi.API.
func (c *Client) CreateVal(ctx context.Context, name string, privacy remoteapi.Privacy, description string, orgID *uuid.UUID) (*remoteapi.Val, error) {
	body := map[string]any{
		"name":        name,
		"privacy":     string(privacy),
		"description": description,
	}
	if orgID != nil {
		body["orgId"] = orgID.String()
	}
	var dto valDTO
	if err := c.do(ctx, http.MethodPost, "/vals", body, &dto); err != nil {
		return nil, err
	}
	return dto.toVal(), nil
}

// DeleteVal implements remoteapi.API.
func (c *Client) DeleteVal(ctx context.Context, valID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/vals/"+valID.String(), nil, nil)
}

// CurrentUser implements remoteapi.API.
func (c *Client) CurrentUser(ctx context.Context) (*remoteapi.User, error) {
	var dto struct {
		ID       uuid.UUID `json:"id"`
		Username string    `json:"username"`
	}
	if err := c.do(ctx, http.MethodGet, "/me", nil, &dto); err != nil {
		return nil, err
	}
	return &remoteapi.User{ID: dto.ID, Username: dto.Username}, nil
}
