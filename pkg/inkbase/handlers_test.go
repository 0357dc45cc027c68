package inkbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/inkbase/inkbase/pkg/client"
	"github.com/inkbase/inkbase/pkg/models"
	"github.com/inkbase/inkbase/pkg/store/memory"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	tokens := NewTokenIssuer([]byte("test-signing-key"), time.Hour)
	return &App{
		store:        memory.New(),
		config:       &Config{ServerPort: "0", Backend: BackendMemory},
		logger:       zerolog.Nop(),
		tokens:       tokens,
		authenticate: tokens.Authenticate,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *App) {
	t.Helper()
	app := newTestApp(t)
	server := httptest.NewServer(app.Handler())
	t.Cleanup(server.Close)
	return server, app
}

// registerUser creates an account and returns a client already
// carrying its bearer token.
func registerUser(t *testing.T, server *httptest.Server, username string) *client.Client {
	t.Helper()
	c := client.New(server.URL)
	_, err := c.Register(context.Background(), client.RegisterRequest{
		Name:     "Test " + username,
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return c
}

// registerToken registers an account and returns its raw bearer
// token, for tests that build requests by hand.
func registerToken(t *testing.T, server *httptest.Server, username string) (string, models.UserID) {
	t.Helper()
	resp, err := client.New(server.URL).Register(context.Background(), client.RegisterRequest{
		Name:     "Test " + username,
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return resp.Token, resp.User.ID
}

// rawRequest sends a hand-built JSON request, bypassing the typed
// client so arbitrary body keys and headers can be exercised.
func rawRequest(t *testing.T, server *httptest.Server, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func ptr[T any](v T) *T { return &v }

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)
	c := client.New(server.URL)

	result, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", result["status"])
}

func TestCreateAndGetPost(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	c := registerUser(t, server, "alice")

	post, err := c.CreatePost(ctx, client.CreatePostRequest{
		Title:    "  First Post  ",
		Content:  "Hello, world.",
		Tags:     []string{" go ", "", "blogging"},
		Category: "tech",
	})
	require.NoError(t, err)
	require.False(t, post.ID.IsZero())
	require.Equal(t, "First Post", post.Title)
	require.Equal(t, "Hello, world.", post.Content)
	require.Equal(t, models.StringList{"go", "blogging"}, post.Tags)
	require.Equal(t, "tech", post.Category)
	require.False(t, post.Published, "new posts start unpublished")
	require.Equal(t, int64(1), post.Revision)
	require.NotNil(t, post.Author)
	require.Equal(t, "alice", post.Author.Username)

	got, err := c.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, post.ID, got.ID)
	require.Equal(t, "First Post", got.Title)
	require.NotNil(t, got.Author)
	require.Equal(t, "alice", got.Author.Username)
}

func TestCreatePostValidation(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	c := registerUser(t, server, "alice")

	_, err := c.CreatePost(ctx, client.CreatePostRequest{Title: "   ", Content: "body"})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)

	_, err = c.CreatePost(ctx, client.CreatePostRequest{Title: "A Title"})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestCreatePostDefaultsCategory(t *testing.T) {
	server, _ := newTestServer(t)
	c := registerUser(t, server, "alice")

	post, err := c.CreatePost(context.Background(), client.CreatePostRequest{
		Title:   "Untitled Category",
		Content: "body",
	})
	require.NoError(t, err)
	require.Equal(t, models.DefaultCategory, post.Category)
}

func TestListShowsOnlyPublished(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	c := registerUser(t, server, "alice")

	draft, err := c.CreatePost(ctx, client.CreatePostRequest{Title: "Draft", Content: "d"})
	require.NoError(t, err)
	published, err := c.CreatePost(ctx, client.CreatePostRequest{Title: "Published", Content: "p"})
	require.NoError(t, err)

	_, err = c.UpdatePost(ctx, published.ID, client.UpdatePostRequest{Published: ptr(true)}, nil)
	require.NoError(t, err)

	posts, err := client.New(server.URL).ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, published.ID, posts[0].ID)
	require.NotNil(t, posts[0].Author)

	// Draft posts stay reachable by direct id.
	got, err := client.New(server.URL).GetPost(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, draft.ID, got.ID)
}

func TestListOrderNewestFirst(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	c := registerUser(t, server, "alice")

	var ids []models.PostID
	for _, title := range []string{"one", "two", "three"} {
		post, err := c.CreatePost(ctx, client.CreatePostRequest{Title: title, Content: "b"})
		require.NoError(t, err)
		_, err = c.UpdatePost(ctx, post.ID, client.UpdatePostRequest{Published: ptr(true)}, nil)
		require.NoError(t, err)
		ids = append(ids, post.ID)
	}

	posts, err := c.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	require.Equal(t, ids[2], posts[0].ID)
	require.Equal(t, ids[1], posts[1].ID)
	require.Equal(t, ids[0], posts[2].ID)
}

func TestGetPostErrors(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	c := client.New(server.URL)

	var apiErr *client.APIError
	_, err := c.GetPost(ctx, models.NewPostID())
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "Blog not found", apiErr.Message)

	resp, err := http.Get(server.URL + "/api/blogs/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOwnership(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	owner := registerUser(t, server, "alice")
	other := registerUser(t, server, "bob")

	post, err := owner.CreatePost(ctx, client.CreatePostRequest{Title: "Mine", Content: "b"})
	require.NoError(t, err)

	var apiErr *client.APIError
	_, err = other.UpdatePost(ctx, post.ID, client.UpdatePostRequest{Title: ptr("Stolen")}, nil)
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "Not authorized", apiErr.Message)

	_, err = other.DeletePost(ctx, post.ID, nil)
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)

	// The failed attempts must not have touched the post.
	got, err := owner.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, "Mine", got.Title)

	result, err := owner.DeletePost(ctx, post.ID, nil)
	require.NoError(t, err)
	require.Equal(t, "Blog deleted successfully", result.Message)

	_, err = owner.GetPost(ctx, post.ID)
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestMyPosts(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	alice := registerUser(t, server, "alice")
	bob := registerUser(t, server, "bob")

	draft, err := alice.CreatePost(ctx, client.CreatePostRequest{Title: "Draft", Content: "d"})
	require.NoError(t, err)
	published, err := alice.CreatePost(ctx, client.CreatePostRequest{Title: "Published", Content: "p"})
	require.NoError(t, err)
	_, err = alice.UpdatePost(ctx, published.ID, client.UpdatePostRequest{Published: ptr(true)}, nil)
	require.NoError(t, err)
	_, err = bob.CreatePost(ctx, client.CreatePostRequest{Title: "Bob's", Content: "b"})
	require.NoError(t, err)

	posts, err := alice.MyPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, published.ID, posts[0].ID)
	require.Equal(t, draft.ID, posts[1].ID)
}

func TestUpdateMergesFields(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	c := registerUser(t, server, "alice")

	post, err := c.CreatePost(ctx, client.CreatePostRequest{
		Title:    "Original",
		Content:  "body",
		Tags:     []string{"a"},
		Category: "tech",
	})
	require.NoError(t, err)

	updated, err := c.UpdatePost(ctx, post.ID, client.UpdatePostRequest{Title: ptr("Renamed")}, nil)
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
	require.Equal(t, "body", updated.Content)
	require.Equal(t, models.StringList{"a"}, updated.Tags)
	require.Equal(t, "tech", updated.Category)
	require.Equal(t, int64(2), updated.Revision)

	// Emptying a required field is rejected.
	var apiErr *client.APIError
	_, err = c.UpdatePost(ctx, post.ID, client.UpdatePostRequest{Title: ptr("  ")}, nil)
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)

	// Clearing the category falls back to the default.
	updated, err = c.UpdatePost(ctx, post.ID, client.UpdatePostRequest{Category: ptr("")}, nil)
	require.NoError(t, err)
	require.Equal(t, models.DefaultCategory, updated.Category)
}

func TestUpdateConflictOnStaleRevision(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	c := registerUser(t, server, "alice")

	post, err := c.CreatePost(ctx, client.CreatePostRequest{Title: "CAS", Content: "b"})
	require.NoError(t, err)

	updated, err := c.UpdatePost(ctx, post.ID, client.UpdatePostRequest{Title: ptr("v2")}, ptr(post.Revision))
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Revision)

	var apiErr *client.APIError
	_, err = c.UpdatePost(ctx, post.ID, client.UpdatePostRequest{Title: ptr("v3")}, ptr(post.Revision))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)

	_, err = c.DeletePost(ctx, post.ID, ptr(post.Revision))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)

	result, err := c.DeletePost(ctx, post.ID, ptr(updated.Revision))
	require.NoError(t, err)
	require.Equal(t, "Blog deleted successfully", result.Message)
}

func TestCreateIgnoresProtectedBodyFields(t *testing.T) {
	server, _ := newTestServer(t)
	token, userID := registerToken(t, server, "alice")

	// A hostile body trying to claim another author, publish at
	// creation, and rewrite server-owned fields.
	body := fmt.Sprintf(
		`{"title":"T","content":"B","author":"%s","published":true,"created_at":"2001-01-01T00:00:00Z","revision":99,"bogus":true}`,
		models.NewUserID())
	resp := rawRequest(t, server, http.MethodPost, "/api/blogs", token, body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var post models.BlogPost
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&post))
	require.NotNil(t, post.Author)
	require.Equal(t, userID, post.Author.ID)
	require.False(t, post.Published)
	require.Equal(t, int64(1), post.Revision)
	require.Equal(t, time.Now().Year(), post.CreatedAt.Year())
}

func TestUpdateIgnoresProtectedBodyFields(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()
	token, userID := registerToken(t, server, "alice")
	c := client.New(server.URL)
	c.SetAuthToken(token)

	post, err := c.CreatePost(ctx, client.CreatePostRequest{Title: "Original", Content: "body"})
	require.NoError(t, err)

	body := fmt.Sprintf(
		`{"title":"Renamed","author":"%s","created_at":"2001-01-01T00:00:00Z","revision":50,"bogus":"x"}`,
		models.NewUserID())
	resp := rawRequest(t, server, http.MethodPut, "/api/blogs/"+post.ID.String(), token, body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.BlogPost
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	require.Equal(t, "Renamed", updated.Title)
	require.NotNil(t, updated.Author)
	require.Equal(t, userID, updated.Author.ID)
	require.True(t, updated.CreatedAt.Equal(post.CreatedAt))
	require.Equal(t, int64(2), updated.Revision)
}

func TestRejectsNonBearerAuthorization(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/blogs/user/my-blogs", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A non-bearer scheme is malformed, not an invalid token.
	var errBody struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	require.Equal(t, "Authorization required", errBody.Error)
}

func TestCORSHeaders(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/blogs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	preflight, err := http.NewRequest(http.MethodOptions, server.URL+"/api/blogs", nil)
	require.NoError(t, err)
	preflight.Header.Set("Origin", "http://example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "Authorization")
	presp, err := http.DefaultClient.Do(preflight)
	require.NoError(t, err)
	presp.Body.Close()
	require.Equal(t, http.StatusOK, presp.StatusCode)
	require.Equal(t, "*", presp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAuthRequired(t *testing.T) {
	server, _ := newTestServer(t)
	ctx := context.Background()

	var apiErr *client.APIError

	anon := client.New(server.URL)
	_, err := anon.CreatePost(ctx, client.CreatePostRequest{Title: "T", Content: "b"})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = anon.MyPosts(ctx)
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)

	forged := client.New(server.URL)
	forged.SetAuthToken("not-a-token")
	_, err = forged.CreatePost(ctx, client.CreatePostRequest{Title: "T", Content: "b"})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
