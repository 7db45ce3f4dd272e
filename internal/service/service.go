// Package service holds the forum's business operations: creating posts,
// appending comments at any depth, likes and image uploads.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"codezen/internal/middleware"
	"codezen/internal/models"
	"codezen/internal/repository"
)

const (
	maxTitleLen    = 300
	maxContentLen  = 40000
	maxCategoryLen = 64
	maxAuthorLen   = 64
	maxCommentLen  = 10000
)

// Broadcaster fans an event out to every connected observer. Emit must not
// wait for delivery.
type Broadcaster interface {
	Emit(ctx context.Context, event string, payload any) error
}

// loadPost reads a post for a write, translating store errors into AppErrors.
func loadPost(ctx context.Context, repo repository.PostRepository, id string) (*models.Post, error) {
	post, err := repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrPostNotFound) {
		return nil, models.NewNotFoundError("Post", id)
	}
	if err != nil {
		return nil, models.NewPersistenceError(err)
	}
	return post, nil
}

// savePost persists the whole post, translating store errors into AppErrors.
func savePost(ctx context.Context, repo repository.PostRepository, post *models.Post) error {
	err := repo.Save(ctx, post)
	if errors.Is(err, repository.ErrPostNotFound) {
		return models.NewNotFoundError("Post", post.ID)
	}
	if err != nil {
		return models.NewPersistenceError(err)
	}
	return nil
}

// emit runs after the write is durable. A failed broadcast does not undo the
// write, so it is logged and swallowed.
func emit(ctx context.Context, b Broadcaster, event string, payload any) {
	if b == nil {
		return
	}
	if err := b.Emit(ctx, event, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "broadcast failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func normalizeAuthor(author string) (string, error) {
	author = strings.TrimSpace(author)
	if len(author) > maxAuthorLen {
		return "", models.NewValidationError("Author name too long (max 64 characters)")
	}
	return author, nil
}
