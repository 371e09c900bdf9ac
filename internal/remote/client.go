// Package remote is the HTTP client for the pacelog server.
//
// Two kinds of endpoints are used. Batch sync endpoints take a JSON object
// keyed by entity ("activities", "activityKinds", ...) and answer with a
// Result per key:
//
//	{"activities": {"syncedIds": ["a1"], "skippedIds": ["a2"], "serverWins": [{...}]}}
//
// Icon endpoints only need a status code, so they return a Response instead
// of an error for non-2xx answers.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnauthorized is returned for 401 responses from batch endpoints.
var ErrUnauthorized = errors.New("remote: unauthorized")

// StatusError is a non-2xx response from a batch endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote: status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("remote: status %d", e.Code)
}

// Result is the server's verdict for one entity key of a batch request.
// ServerWins holds the server's versions of records it would not take as
// sent; they are decoded by the caller, which knows the record type.
type Result struct {
	SyncedIDs  []string          `json:"syncedIds"`
	SkippedIDs []string          `json:"skippedIds"`
	ServerWins []json.RawMessage `json:"serverWins"`
}

// BatchResponse maps entity keys to their results.
type BatchResponse map[string]Result

// Response is the outcome of an icon request.
type Response struct {
	OK     bool
	Status int
	Body   []byte
}

// IconUpload is the body of an icon upload.
type IconUpload struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// IconURLs is the body of a successful icon upload.
type IconURLs struct {
	IconURL          string `json:"iconUrl"`
	IconThumbnailURL string `json:"iconThumbnailUrl"`
}

// DecodeIconURLs parses the body of a successful upload response.
func DecodeIconURLs(resp Response) (IconURLs, error) {
	var out IconURLs
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return IconURLs{}, fmt.Errorf("failed to decode icon upload response: %w", err)
	}
	if out.IconURL == "" {
		return IconURLs{}, fmt.Errorf("icon upload response has no iconUrl")
	}
	return out, nil
}

// Client talks to the pacelog server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.SugaredLogger
}

// NewClient creates a client. A nil httpClient uses a client with a 30s
// timeout; a nil logger discards output.
func NewClient(httpClient *http.Client, baseURL, token string, logger *zap.SugaredLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		logger:     logger,
	}
}

// PostBatch sends one batch chunk to path and decodes the per-entity
// results. Any non-2xx status is an error.
func (c *Client) PostBatch(ctx context.Context, path string, body any) (BatchResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		if resp.Status == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, &StatusError{Code: resp.Status, Body: strings.TrimSpace(string(resp.Body))}
	}

	var out BatchResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode batch response from %s: %w", path, err)
	}
	return out, nil
}

// UploadIcon posts an icon image for an activity.
func (c *Client) UploadIcon(ctx context.Context, activityID string, upload IconUpload) (Response, error) {
	return c.do(ctx, http.MethodPost, iconPath(activityID), upload)
}

// DeleteIcon removes an activity's icon on the server.
func (c *Client) DeleteIcon(ctx context.Context, activityID string) (Response, error) {
	return c.do(ctx, http.MethodDelete, iconPath(activityID), nil)
}

func iconPath(activityID string) string {
	return "/users/activities/" + url.PathEscape(activityID) + "/icon"
}

// do performs a request. Only transport failures are returned as errors;
// the status code is left to the caller.
func (c *Client) do(ctx context.Context, method, path string, body any) (Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("failed to encode request body: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		token := c.token
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		req.Header.Set("Authorization", token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response from %s %s: %w", method, path, err)
	}

	c.logger.Debugw("remote request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return Response{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Body:   data,
	}, nil
}
