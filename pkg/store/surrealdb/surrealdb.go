// Package surrealdb implements store.Store on SurrealDB, the primary
// backend. It talks to the database over WebSocket using the
// surrealcbor codec; post→author references are stored as record
// links and projected onto AuthorProfile on reads.
package surrealdb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/inkbase/inkbase/pkg/models"
	"github.com/inkbase/inkbase/pkg/store"
)

// SurrealStore implements store.Store backed by a SurrealDB instance.
type SurrealStore struct {
	db       *surrealdb.DB
	ns       string
	database string
}

// Config holds the connection settings for SurrealDB.
type Config struct {
	URL       string // WebSocket endpoint, e.g. ws://localhost:8000/rpc
	Namespace string
	Database  string
	Username  string
	Password  string
}

// New connects to SurrealDB and selects the configured namespace and
// database.
func New(ctx context.Context, cfg Config) (*SurrealStore, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec
	conn := gorillaws.New(conf)

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &SurrealStore{
		db:       db,
		ns:       cfg.Namespace,
		database: cfg.Database,
	}, nil
}

// Migrate defines the uniqueness and lookup indexes the application
// relies on. SurrealDB is otherwise schemaless.
func (s *SurrealStore) Migrate(ctx context.Context) error {
	statements := []string{
		"DEFINE INDEX IF NOT EXISTS idx_users_username ON TABLE users COLUMNS username UNIQUE",
		"DEFINE INDEX IF NOT EXISTS idx_users_email ON TABLE users COLUMNS email UNIQUE",
		"DEFINE INDEX IF NOT EXISTS idx_posts_author ON TABLE posts COLUMNS author",
	}
	for _, stmt := range statements {
		if _, err := surrealdb.Query[any](ctx, s.db, stmt, nil); err != nil {
			return fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SurrealStore) Close() error {
	return s.db.Close(context.Background())
}

// handleNotFound maps the driver's "no rows" decoding errors to nil
// so Get operations can return (nil, nil) for missing records.
func handleNotFound(err error) error {
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "Expected a single or multiple results but got 0") ||
			strings.Contains(errStr, "cannot unmarshal array into Go value") {
			return nil
		}
	}
	return err
}

func isIndexViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already contains")
}

func (s *SurrealStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = models.NewUserID()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if _, err := surrealdb.Create[models.User](ctx, s.db, "users", user); err != nil {
		if isIndexViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	user, err := surrealdb.Select[models.User](ctx, s.db, id.RecordID())
	if err != nil {
		if handleNotFound(err) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *SurrealStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := "SELECT * FROM users WHERE email = $email LIMIT 1"
	params := map[string]any{"email": email}

	result, err := surrealdb.Query[[]models.User](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		return nil, nil
	}
	user := (*result)[0].Result[0]
	return &user, nil
}

func (s *SurrealStore) CreatePost(ctx context.Context, post *models.BlogPost) error {
	if post.ID.IsZero() {
		post.ID = models.NewPostID()
	}
	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.Revision == 0 {
		post.Revision = 1
	}
	if post.Tags == nil {
		post.Tags = models.StringList{}
	}

	if _, err := surrealdb.Create[models.BlogPost](ctx, s.db, "posts", post); err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return s.projectAuthors(ctx, post)
}

func (s *SurrealStore) GetPost(ctx context.Context, id models.PostID) (*models.BlogPost, error) {
	post, err := surrealdb.Select[models.BlogPost](ctx, s.db, id.RecordID())
	if err != nil {
		if handleNotFound(err) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	if post == nil {
		return nil, nil
	}
	if err := s.projectAuthors(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *SurrealStore) ListPublishedPosts(ctx context.Context) ([]*models.BlogPost, error) {
	query := "SELECT * FROM posts WHERE published = true ORDER BY created_at DESC"
	return s.listPosts(ctx, query, nil)
}

func (s *SurrealStore) ListPostsByAuthor(ctx context.Context, author models.UserID) ([]*models.BlogPost, error) {
	query := "SELECT * FROM posts WHERE author = $author ORDER BY created_at DESC"
	params := map[string]any{"author": author.RecordID()}
	return s.listPosts(ctx, query, params)
}

func (s *SurrealStore) listPosts(ctx context.Context, query string, params map[string]any) ([]*models.BlogPost, error) {
	result, err := surrealdb.Query[[]models.BlogPost](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	posts := make([]*models.BlogPost, 0)
	if result != nil && len(*result) > 0 {
		for i := range (*result)[0].Result {
			posts = append(posts, &(*result)[0].Result[i])
		}
	}
	if err := s.projectAuthors(ctx, posts...); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *SurrealStore) UpdatePost(ctx context.Context, post *models.BlogPost, expectedRevision *int64) error {
	current, err := s.GetPost(ctx, post.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return store.ErrNotFound
	}
	if expectedRevision != nil && current.Revision != *expectedRevision {
		return store.ErrConflict
	}

	post.AuthorID = current.AuthorID
	post.CreatedAt = current.CreatedAt
	post.Revision = current.Revision + 1
	post.UpdatedAt = time.Now()
	if post.Tags == nil {
		post.Tags = models.StringList{}
	}

	if expectedRevision != nil {
		// Conditional write: the WHERE clause closes the race between
		// the revision check above and the write itself.
		query := "UPDATE $post CONTENT $data WHERE revision = $expected RETURN AFTER"
		params := map[string]any{
			"post":     post.ID.RecordID(),
			"data":     post,
			"expected": *expectedRevision,
		}
		result, err := surrealdb.Query[[]models.BlogPost](ctx, s.db, query, params)
		if err != nil {
			return fmt.Errorf("failed to update post: %w", err)
		}
		if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
			return store.ErrConflict
		}
	} else {
		if _, err := surrealdb.Update[models.BlogPost](ctx, s.db, post.ID.RecordID(), post); err != nil {
			return fmt.Errorf("failed to update post: %w", err)
		}
	}
	return s.projectAuthors(ctx, post)
}

func (s *SurrealStore) DeletePost(ctx context.Context, id models.PostID, expectedRevision *int64) error {
	current, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return store.ErrNotFound
	}
	if expectedRevision != nil {
		if current.Revision != *expectedRevision {
			return store.ErrConflict
		}
		query := "DELETE $post WHERE revision = $expected RETURN BEFORE"
		params := map[string]any{
			"post":     id.RecordID(),
			"expected": *expectedRevision,
		}
		result, err := surrealdb.Query[[]models.BlogPost](ctx, s.db, query, params)
		if err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
			return store.ErrConflict
		}
		return nil
	}

	if _, err := surrealdb.Delete[models.BlogPost](ctx, s.db, id.RecordID()); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// projectAuthors fills the Author field of each post from the users
// table, fetching every distinct author once.
func (s *SurrealStore) projectAuthors(ctx context.Context, posts ...*models.BlogPost) error {
	profiles := make(map[models.UserID]*models.AuthorProfile)
	for _, post := range posts {
		profile, ok := profiles[post.AuthorID]
		if !ok {
			user, err := s.GetUser(ctx, post.AuthorID)
			if err != nil {
				return err
			}
			if user != nil {
				profile = user.Profile()
			}
			profiles[post.AuthorID] = profile
		}
		post.Author = profile
	}
	return nil
}
