package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"codezen/internal/cache"
	"codezen/internal/models"
	"codezen/internal/observability"
	"codezen/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type PostService struct {
	postRepo    repository.PostRepository
	broadcaster Broadcaster
	newID       models.IDGenerator
	cacheTTL    time.Duration
}

type CreatePostInput struct {
	Title    string
	Content  string
	Category string
	Author   string
	ImageURL string
}

type ListPostsInput struct {
	Limit  int
	Offset int
}

// NewPostService creates a PostService. A zero cacheTTL uses cache.PostTTL.
func NewPostService(postRepo repository.PostRepository, broadcaster Broadcaster, cacheTTL time.Duration) *PostService {
	if cacheTTL <= 0 {
		cacheTTL = cache.PostTTL
	}
	return &PostService{
		postRepo:    postRepo,
		broadcaster: broadcaster,
		newID:       models.NewID,
		cacheTTL:    cacheTTL,
	}
}

// WithIDGenerator replaces the post id generator.
func (s *PostService) WithIDGenerator(gen models.IDGenerator) *PostService {
	s.newID = gen
	return s
}

// ValidateCreatePost checks and normalizes a new post without storing it.
func ValidateCreatePost(in CreatePostInput) (CreatePostInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Category = strings.TrimSpace(in.Category)

	if in.Title == "" || in.Content == "" || in.Category == "" {
		return in, models.NewValidationError("Title, content, and category are required")
	}
	if len(in.Title) > maxTitleLen {
		return in, models.NewValidationError("Title too long (max 300 characters)")
	}
	if len(in.Content) > maxContentLen {
		return in, models.NewValidationError("Content too long (max 40000 characters)")
	}
	if len(in.Category) > maxCategoryLen {
		return in, models.NewValidationError("Category too long (max 64 characters)")
	}
	author, err := normalizeAuthor(in.Author)
	if err != nil {
		return in, err
	}
	in.Author = author
	return in, nil
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	span, ctx := observability.StartSpan(ctx, "PostService.CreatePost")
	defer span.End()

	in, err := ValidateCreatePost(in)
	if err != nil {
		return nil, err
	}

	post := models.NewPost(s.newID, in.Title, in.Content, in.Category, in.Author, in.ImageURL)
	if err := s.postRepo.Create(ctx, post); err != nil {
		span.SetError(err)
		return nil, models.NewPersistenceError(err)
	}
	cache.InvalidatePostsList(ctx)
	span.AddAttributes(observability.AttrPostID.String(post.ID))

	emit(ctx, s.broadcaster, models.EventNewPost, post)
	return post, nil
}

// ListPosts returns a page of posts, newest first. Pages are served from the
// cache when Redis is available.
func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	limit, offset := in.Limit, in.Offset
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var posts []*models.Post
	err := cache.Aside(ctx, cache.PostsListKey(ctx, limit, offset), &posts, s.cacheTTL, func() error {
		var fetchErr error
		posts, fetchErr = s.postRepo.List(ctx, limit, offset)
		return fetchErr
	})
	if err != nil {
		return nil, models.NewPersistenceError(err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, nil
}

// GetPost returns one post with its whole comment forest.
func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, cache.PostKey(ctx, id), &post, s.cacheTTL, func() error {
		p, fetchErr := s.postRepo.GetByID(ctx, id)
		if fetchErr != nil {
			return fetchErr
		}
		post = *p
		return nil
	})
	if errors.Is(err, repository.ErrPostNotFound) {
		return nil, models.NewNotFoundError("Post", id)
	}
	if err != nil {
		return nil, models.NewPersistenceError(err)
	}
	return &post, nil
}

// LikePost adds exactly one like. Repeated calls keep counting.
func (s *PostService) LikePost(ctx context.Context, postID string) (*models.Post, error) {
	span, ctx := observability.StartSpan(ctx, "PostService.LikePost", observability.AttrPostID.String(postID))
	defer span.End()

	post, err := loadPost(ctx, s.postRepo, postID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	likes := post.Like()
	if err := savePost(ctx, s.postRepo, post); err != nil {
		span.SetError(err)
		return nil, err
	}
	cache.InvalidatePost(ctx, post.ID)
	observability.PostLikes.Inc()

	emit(ctx, s.broadcaster, models.EventPostLiked, models.PostLikedEvent{PostID: post.ID, Likes: likes})
	return post, nil
}
