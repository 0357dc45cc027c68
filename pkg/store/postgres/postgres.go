// Package postgres implements store.Store on PostgreSQL through GORM.
// It exists for deployments that already run a relational database;
// the SurrealDB backend is the primary one.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/inkbase/inkbase/pkg/models"
	"github.com/inkbase/inkbase/pkg/store"
)

type PostgresStore struct {
	db *gorm.DB
}

// New opens a connection pool against the given DSN.
func New(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.BlogPost{},
	)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", user.Username, user.Email).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return store.ErrDuplicate
	}
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *PostgresStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStore) CreatePost(ctx context.Context, post *models.BlogPost) error {
	if post.Revision == 0 {
		post.Revision = 1
	}
	if post.Tags == nil {
		post.Tags = models.StringList{}
	}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return err
	}
	return s.projectAuthors(ctx, post)
}

func (s *PostgresStore) GetPost(ctx context.Context, id models.PostID) (*models.BlogPost, error) {
	var post models.BlogPost
	err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.projectAuthors(ctx, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *PostgresStore) ListPublishedPosts(ctx context.Context) ([]*models.BlogPost, error) {
	var posts []*models.BlogPost
	err := s.db.WithContext(ctx).
		Where("published = ?", true).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.BlogPost{}
	}
	if err := s.projectAuthors(ctx, posts...); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostgresStore) ListPostsByAuthor(ctx context.Context, author models.UserID) ([]*models.BlogPost, error) {
	var posts []*models.BlogPost
	err := s.db.WithContext(ctx).
		Where("author_id = ?", author).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.BlogPost{}
	}
	if err := s.projectAuthors(ctx, posts...); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostgresStore) UpdatePost(ctx context.Context, post *models.BlogPost, expectedRevision *int64) error {
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

	values := map[string]any{
		"title":      post.Title,
		"content":    post.Content,
		"tags":       post.Tags,
		"category":   post.Category,
		"published":  post.Published,
		"revision":   gorm.Expr("revision + 1"),
		"updated_at": time.Now(),
	}

	tx := s.db.WithContext(ctx).Model(&models.BlogPost{}).Where("id = ?", post.ID)
	if expectedRevision != nil {
		tx = tx.Where("revision = ?", *expectedRevision)
	}
	res := tx.Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Row existed a moment ago; a concurrent writer beat us.
		if expectedRevision != nil {
			return store.ErrConflict
		}
		return store.ErrNotFound
	}

	updated, err := s.GetPost(ctx, post.ID)
	if err != nil {
		return err
	}
	if updated == nil {
		return store.ErrNotFound
	}
	*post = *updated
	return nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, id models.PostID, expectedRevision *int64) error {
	current, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return store.ErrNotFound
	}
	if expectedRevision != nil && current.Revision != *expectedRevision {
		return store.ErrConflict
	}

	tx := s.db.WithContext(ctx).Where("id = ?", id)
	if expectedRevision != nil {
		tx = tx.Where("revision = ?", *expectedRevision)
	}
	res := tx.Delete(&models.BlogPost{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if expectedRevision != nil {
			return store.ErrConflict
		}
		return store.ErrNotFound
	}
	return nil
}

// projectAuthors fills the Author field of each post, fetching every
// distinct author once.
func (s *PostgresStore) projectAuthors(ctx context.Context, posts ...*models.BlogPost) error {
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
