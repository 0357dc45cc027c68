// Package memory implements store.Store entirely in process. It backs
// the test suite and the -store memory development mode, and doubles
// as the reference for the semantics the database-backed stores must
// match: per-record atomicity, newest-first ordering with insertion
// order as tie-break, and revision-checked writes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/inkbase/inkbase/pkg/models"
	"github.com/inkbase/inkbase/pkg/store"
)

type postEntry struct {
	post models.BlogPost
	seq  int64
}

// MemoryStore holds all records behind a single mutex, which gives
// every operation the per-record atomic read-modify-write semantics
// the Store contract asks for.
type MemoryStore struct {
	mu    sync.Mutex
	users map[models.UserID]models.User
	posts map[models.PostID]postEntry
	seq   int64
}

// New returns an empty store.
func New() *MemoryStore {
	return &MemoryStore{
		users: make(map[models.UserID]models.User),
		posts: make(map[models.PostID]postEntry),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return store.ErrDuplicate
		}
	}

	if user.ID.IsZero() {
		user.ID = models.NewUserID()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreatePost(ctx context.Context, post *models.BlogPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.seq++
	stored := *post
	stored.Author = nil
	s.posts[post.ID] = postEntry{post: stored, seq: s.seq}

	post.Author = s.projectAuthorLocked(post.AuthorID)
	return nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id models.PostID) (*models.BlogPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	post := entry.post
	post.Author = s.projectAuthorLocked(post.AuthorID)
	return &post, nil
}

func (s *MemoryStore) ListPublishedPosts(ctx context.Context) ([]*models.BlogPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listLocked(func(p *models.BlogPost) bool { return p.Published }), nil
}

func (s *MemoryStore) ListPostsByAuthor(ctx context.Context, author models.UserID) ([]*models.BlogPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listLocked(func(p *models.BlogPost) bool { return p.AuthorID == author }), nil
}

func (s *MemoryStore) UpdatePost(ctx context.Context, post *models.BlogPost, expectedRevision *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.posts[post.ID]
	if !ok {
		return store.ErrNotFound
	}
	if expectedRevision != nil && entry.post.Revision != *expectedRevision {
		return store.ErrConflict
	}

	post.AuthorID = entry.post.AuthorID
	post.CreatedAt = entry.post.CreatedAt
	post.Revision = entry.post.Revision + 1
	post.UpdatedAt = time.Now()

	stored := *post
	stored.Author = nil
	s.posts[post.ID] = postEntry{post: stored, seq: entry.seq}

	post.Author = s.projectAuthorLocked(post.AuthorID)
	return nil
}

func (s *MemoryStore) DeletePost(ctx context.Context, id models.PostID, expectedRevision *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	if expectedRevision != nil && entry.post.Revision != *expectedRevision {
		return store.ErrConflict
	}

	delete(s.posts, id)
	return nil
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// listLocked filters, orders newest-first (seq breaks creation-time
// ties), and projects authors. Callers must hold the mutex.
func (s *MemoryStore) listLocked(keep func(*models.BlogPost) bool) []*models.BlogPost {
	entries := make([]postEntry, 0, len(s.posts))
	for _, entry := range s.posts {
		if keep(&entry.post) {
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].post.CreatedAt.Equal(entries[j].post.CreatedAt) {
			return entries[i].post.CreatedAt.After(entries[j].post.CreatedAt)
		}
		return entries[i].seq > entries[j].seq
	})

	posts := make([]*models.BlogPost, 0, len(entries))
	for _, entry := range entries {
		post := entry.post
		post.Author = s.projectAuthorLocked(post.AuthorID)
		posts = append(posts, &post)
	}
	return posts
}

func (s *MemoryStore) projectAuthorLocked(id models.UserID) *models.AuthorProfile {
	user, ok := s.users[id]
	if !ok {
		return nil
	}
	return user.Profile()
}
