// Package client is a typed HTTP client for the inkbase API. It is
// used by integrations and by the integration-style tests, which
// drive the full server through it. The request and response types
// defined here are shared with the server handlers so both sides of
// the wire agree on the payload shapes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/inkbase/inkbase/pkg/models"
)

// Client provides typed access to the inkbase REST API. It manages
// JSON serialization and the bearer token obtained at login. A Client
// is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// New creates a client for the API at baseURL (protocol and host,
// no trailing slash).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetAuthToken sets the bearer token sent on subsequent requests.
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

// APIError is returned for any non-2xx response, carrying the HTTP
// status and the server's error message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d, message=%s", e.Status, e.Message)
}

// MessageResponse is the body of responses that only confirm an
// action, such as delete.
type MessageResponse struct {
	Message string `json:"message"`
}

// CreatePostRequest is the body of POST /api/blogs. The author and
// publish state are never taken from the client: the author comes
// from the authenticated identity and new posts start unpublished.
type CreatePostRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags,omitempty"`
	Category string   `json:"category,omitempty"`
}

// UpdatePostRequest is the body of PUT /api/blogs/{id}. Nil fields
// are left unchanged; keys outside this set are ignored by the
// server.
type UpdatePostRequest struct {
	Title     *string   `json:"title,omitempty"`
	Content   *string   `json:"content,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Category  *string   `json:"category,omitempty"`
	Published *bool     `json:"published,omitempty"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.httpClient.Do(req)
}

// decodeResponse decodes the JSON response into target, converting
// error responses into *APIError.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(body, &errBody); err != nil || errBody.Error == "" {
			errBody.Error = string(body)
		}
		return &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func ifMatchHeader(revision *int64) map[string]string {
	if revision == nil {
		return nil
	}
	return map[string]string{"If-Match": strconv.FormatInt(*revision, 10)}
}

// Health checks the health endpoint.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListPosts returns all published posts, newest first.
func (c *Client) ListPosts(ctx context.Context) ([]*models.BlogPost, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/blogs", nil, nil)
	if err != nil {
		return nil, err
	}

	var result []*models.BlogPost
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetPost retrieves a single post by id.
func (c *Client) GetPost(ctx context.Context, id models.PostID) (*models.BlogPost, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/blogs/%s", id), nil, nil)
	if err != nil {
		return nil, err
	}

	var result models.BlogPost
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreatePost creates a post owned by the authenticated user.
func (c *Client) CreatePost(ctx context.Context, req CreatePostRequest) (*models.BlogPost, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/blogs", req, nil)
	if err != nil {
		return nil, err
	}

	var result models.BlogPost
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdatePost merges the given fields into the post. A non-nil
// expectedRevision is sent as If-Match and turns the write into a
// compare-and-swap.
func (c *Client) UpdatePost(ctx context.Context, id models.PostID, req UpdatePostRequest, expectedRevision *int64) (*models.BlogPost, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/blogs/%s", id), req, ifMatchHeader(expectedRevision))
	if err != nil {
		return nil, err
	}

	var result models.BlogPost
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeletePost removes the post permanently.
func (c *Client) DeletePost(ctx context.Context, id models.PostID, expectedRevision *int64) (*MessageResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/blogs/%s", id), nil, ifMatchHeader(expectedRevision))
	if err != nil {
		return nil, err
	}

	var result MessageResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MyPosts returns every post owned by the authenticated user,
// published or not, newest first.
func (c *Client) MyPosts(ctx context.Context) ([]*models.BlogPost, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/blogs/user/my-blogs", nil, nil)
	if err != nil {
		return nil, err
	}

	var result []*models.BlogPost
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}
