// Package storage talks to the object store holding student CVs, avatars and
// company logos. The store speaks the Supabase Storage REST dialect.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Error represents a failed object store request.
type Error struct {
	Op         string
	Bucket     string
	Path       string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	target := e.Bucket
	if e.Path != "" {
		target += "/" + e.Path
	}
	if e.Cause != nil {
		return fmt.Sprintf("storage %s %s: %s: %v", e.Op, target, e.Message, e.Cause)
	}
	return fmt.Sprintf("storage %s %s: %s", e.Op, target, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Object is one entry returned by List.
type Object struct {
	Name      string    `json:"name"`
	ID        string    `json:"id,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Client is an object store client.
type Client struct {
	baseURL   string
	publicURL string
	key       string
	http      *http.Client
}

// NewClient creates a client for the store at baseURL authenticating with key.
// publicURL is the base used for public object links; when empty baseURL is used.
func NewClient(baseURL, key, publicURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if publicURL == "" {
		publicURL = baseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		publicURL: strings.TrimRight(publicURL, "/"),
		key:       key,
		http:      httpClient,
	}
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (c *Client) objectURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, url.PathEscape(bucket), escapePath(path))
}

// PublicURL returns the public link of an object.
func (c *Client) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.publicURL, url.PathEscape(bucket), escapePath(path))
}

func (c *Client) do(req *http.Request, op, bucket, path string) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("apikey", c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Bucket: bucket, Path: path, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Bucket: bucket, Path: path, Message: "failed to read response body", Cause: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &Error{
			Op:         op,
			Bucket:     bucket,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	return body, nil
}

// Upload writes data to bucket/path. With upsert an existing object is replaced.
func (c *Client) Upload(ctx context.Context, bucket, path, contentType string, data []byte, upsert bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(bucket, path), bytes.NewReader(data))
	if err != nil {
		return &Error{Op: "upload", Bucket: bucket, Path: path, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	if upsert {
		req.Header.Set("x-upsert", "true")
	}
	_, err = c.do(req, "upload", bucket, path)
	return err
}

// Remove deletes the given object paths from bucket.
func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("failed to marshal remove request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", c.baseURL, url.PathEscape(bucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &Error{Op: "remove", Bucket: bucket, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req, "remove", bucket, "")
	return err
}

type listRequest struct {
	Prefix string `json:"prefix"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit"`
}

// List returns the objects directly under prefix whose name contains search.
func (c *Client) List(ctx context.Context, bucket, prefix, search string) ([]Object, error) {
	payload, err := json.Marshal(listRequest{Prefix: prefix, Search: search, Limit: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/list/%s", c.baseURL, url.PathEscape(bucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Op: "list", Bucket: bucket, Path: prefix, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "list", bucket, prefix)
	if err != nil {
		return nil, err
	}
	var objects []Object
	if err := json.Unmarshal(body, &objects); err != nil {
		return nil, &Error{Op: "list", Bucket: bucket, Path: prefix, Message: "invalid response", Cause: err}
	}
	return objects, nil
}
