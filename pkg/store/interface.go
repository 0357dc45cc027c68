// Package store defines the persistence interface consumed by the
// inkbase application, leaving the choice of backend to wiring. Three
// implementations exist: SurrealDB (the primary document store),
// PostgreSQL via GORM, and an in-process memory store used by tests
// and local development.
package store

import (
	"context"
	"errors"

	"github.com/inkbase/inkbase/pkg/models"
)

// ErrNotFound is returned by update and delete operations when no
// record exists with the given id. Get operations return (nil, nil)
// for missing records instead.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an expected revision does not match
// the stored one, meaning the record changed since the caller read it.
var ErrConflict = errors.New("revision mismatch")

// ErrDuplicate is returned by CreateUser when the username or email
// is already taken.
var ErrDuplicate = errors.New("username or email already taken")

// Store is the persistence boundary of the application.
//
// Contract shared by all implementations:
//   - Create methods assign ids and timestamps when unset.
//   - Get methods return (nil, nil) for missing records.
//   - List methods return empty slices, never nil, ordered newest
//     first by creation time with ties broken by insertion order.
//   - Posts returned from reads carry the Author projection joined
//     from the users table.
//   - UpdatePost replaces the stored record with the given one,
//     bumps Revision and UpdatedAt, and enforces expectedRevision
//     when non-nil. UpdatePost and DeletePost are atomic per record.
type Store interface {
	// CreateUser persists a new account. The username and email must
	// be unique; violations yield ErrDuplicate.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser fetches an account by id.
	GetUser(ctx context.Context, id models.UserID) (*models.User, error)

	// GetUserByEmail fetches an account by email, used at login.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// CreatePost persists a new post owned by post.AuthorID.
	CreatePost(ctx context.Context, post *models.BlogPost) error

	// GetPost fetches a post by id with the author projected.
	GetPost(ctx context.Context, id models.PostID) (*models.BlogPost, error)

	// ListPublishedPosts returns all posts with published = true.
	ListPublishedPosts(ctx context.Context) ([]*models.BlogPost, error)

	// ListPostsByAuthor returns all posts owned by the given user,
	// regardless of publish state.
	ListPostsByAuthor(ctx context.Context, author models.UserID) ([]*models.BlogPost, error)

	// UpdatePost replaces the stored post. When expectedRevision is
	// non-nil the write only succeeds if the stored revision matches,
	// otherwise ErrConflict is returned and nothing changes.
	UpdatePost(ctx context.Context, post *models.BlogPost, expectedRevision *int64) error

	// DeletePost removes a post permanently. When expectedRevision is
	// non-nil the same conflict rule as UpdatePost applies.
	DeletePost(ctx context.Context, id models.PostID, expectedRevision *int64) error

	// Migrate prepares the backend schema. A no-op for schemaless
	// backends.
	Migrate(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
