// Package contentapi is the HTTP client of content-service. It implements
// the persistence interfaces used by pkg/collab.
package contentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/collab"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

var ErrNotFound = errors.New("not found")

var (
	_ collab.ItemStore     = (*Client)(nil)
	_ collab.ItemLister    = (*Client)(nil)
	_ collab.DocumentStore = (*Client)(nil)
)

// Client wraps the content-service HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer credential sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("content service returned %d %s: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type saveDocumentRequest struct {
	Content      string    `json:"content"`
	LastModified time.Time `json:"last_modified"`
}

// GetDocument fetches the authoritative snapshot of a document room.
func (c *Client) GetDocument(ctx context.Context, roomID string) (protocol.Document, error) {
	var doc protocol.Document
	err := c.do(ctx, http.MethodGet, "/api/v1/documents/"+url.PathEscape(roomID), nil, &doc)
	return doc, err
}

// SaveDocument writes content presenting known as the cached timestamp.
// A stale timestamp yields an error wrapping collab.ErrConflict.
func (c *Client) SaveDocument(ctx context.Context, roomID, content string, known time.Time) (protocol.Document, error) {
	var doc protocol.Document
	err := c.do(ctx, http.MethodPut, "/api/v1/documents/"+url.PathEscape(roomID),
		saveDocumentRequest{Content: content, LastModified: known}, &doc)
	return doc, err
}

// ListItems fetches every item of a board.
func (c *Client) ListItems(ctx context.Context, boardID string) ([]protocol.Item, error) {
	var items []protocol.Item
	err := c.do(ctx, http.MethodGet, "/api/v1/boards/"+url.PathEscape(boardID)+"/items", nil, &items)
	return items, err
}

// SaveItem overwrites an item.
func (c *Client) SaveItem(ctx context.Context, item protocol.Item) (protocol.Item, error) {
	var saved protocol.Item
	path := fmt.Sprintf("/api/v1/boards/%s/items/%s", url.PathEscape(item.BoardID), url.PathEscape(item.ID))
	err := c.do(ctx, http.MethodPut, path, item, &saved)
	return saved, err
}

// DeleteItem removes an item.
func (c *Client) DeleteItem(ctx context.Context, boardID, itemID string) error {
	path := fmt.Sprintf("/api/v1/boards/%s/items/%s", url.PathEscape(boardID), url.PathEscape(itemID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call content service: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusConflict:
			return fmt.Errorf("%w: %v", collab.ErrConflict, apiErr)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, apiErr)
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
