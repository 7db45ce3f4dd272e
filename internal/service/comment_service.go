package service

import (
	"context"
	"errors"
	"strings"

	"codezen/internal/cache"
	"codezen/internal/models"
	"codezen/internal/observability"
	"codezen/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

type CommentService struct {
	postRepo    repository.PostRepository
	broadcaster Broadcaster
	newID       models.IDGenerator
}

// AddCommentInput describes a new comment. An empty ParentCommentID makes it a
// top-level comment; otherwise it becomes the last reply of that comment.
type AddCommentInput struct {
	PostID          string
	Text            string
	Author          string
	ParentCommentID string
}

func NewCommentService(postRepo repository.PostRepository, broadcaster Broadcaster) *CommentService {
	return &CommentService{
		postRepo:    postRepo,
		broadcaster: broadcaster,
		newID:       models.NewID,
	}
}

// WithIDGenerator replaces the comment id generator.
func (s *CommentService) WithIDGenerator(gen models.IDGenerator) *CommentService {
	s.newID = gen
	return s
}

// AddComment appends a comment to a post, persists the whole post and then
// broadcasts it. The returned post is exactly what was persisted and broadcast.
func (s *CommentService) AddComment(ctx context.Context, in AddCommentInput) (*models.Post, error) {
	span, ctx := observability.StartSpan(ctx, "CommentService.AddComment",
		observability.AttrPostID.String(in.PostID),
		attribute.Bool("comment.is_reply", in.ParentCommentID != ""),
	)
	defer span.End()

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, models.NewValidationError("Text is required")
	}
	if len(text) > maxCommentLen {
		return nil, models.NewValidationError("Comment too long (max 10000 characters)")
	}
	author, err := normalizeAuthor(in.Author)
	if err != nil {
		return nil, err
	}

	post, err := loadPost(ctx, s.postRepo, in.PostID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	parentID := strings.TrimSpace(in.ParentCommentID)
	comment, err := post.AddComment(s.newID, parentID, author, text)
	if errors.Is(err, models.ErrDuplicateCommentID) {
		span.SetError(err)
		return nil, models.NewInternalError(err)
	}
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	commentID := comment.ID

	if err := savePost(ctx, s.postRepo, post); err != nil {
		span.SetError(err)
		return nil, err
	}
	cache.InvalidatePost(ctx, post.ID)

	s.recordMetrics(post, parentID, commentID)
	span.AddAttributes(observability.AttrCommentID.String(commentID))

	emit(ctx, s.broadcaster, models.EventNewComment, models.CommentAddedEvent{
		PostID:      post.ID,
		UpdatedPost: post,
	})
	return post, nil
}

func (s *CommentService) recordMetrics(post *models.Post, parentID, commentID string) {
	if parentID == "" {
		observability.CommentsAdded.WithLabelValues("top_level").Inc()
		return
	}
	observability.CommentsAdded.WithLabelValues("reply").Inc()
	if path, ok := models.FindComment(post.Comments, commentID); ok {
		// Depth of the parent the reply was attached to.
		observability.ReplyDepth.Observe(float64(path.Depth() - 1))
	}
}
