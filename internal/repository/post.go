// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"fmt"

	"codezen/internal/models"
	"codezen/internal/observability"

	"gorm.io/gorm"
)

// ErrPostNotFound is returned when no post has the requested id.
var ErrPostNotFound = errors.New("post not found")

// PostRepository stores whole post documents, comment forest included.
// Save replaces the stored document unconditionally; concurrent writers of
// the same post resolve last-writer-wins.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, limit, offset int) ([]*models.Post, error)
	Save(ctx context.Context, post *models.Post) error
}

// postRepository implements PostRepository on a relational database.
type postRepository struct {
	db     *gorm.DB
	driver string
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, driver: db.Dialector.Name()}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackStore(r.driver, "create")()

	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("create post %s: %w", post.ID, err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackStore(r.driver, "get")()

	var post models.Post
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	normalize(&post)
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	defer observability.TrackStore(r.driver, "list")()

	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	for _, p := range posts {
		normalize(p)
	}
	return posts, nil
}

func (r *postRepository) Save(ctx context.Context, post *models.Post) error {
	defer observability.TrackStore(r.driver, "save")()

	result := r.db.WithContext(ctx).
		Model(post).
		Select("*").
		Omit("CreatedAt").
		Updates(post)
	if result.Error != nil {
		return fmt.Errorf("save post %s: %w", post.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}

// normalize turns a missing forest into an empty one so clients always see an array.
func normalize(p *models.Post) {
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
}
