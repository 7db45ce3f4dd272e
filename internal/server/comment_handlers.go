package server

import (
	"codezen/internal/models"
	"codezen/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateCommentRequest is the body of POST /api/posts/:id/comment. An empty
// ParentCommentID adds a top-level comment.
type CreateCommentRequest struct {
	Text            string `json:"text" form:"text"`
	Author          string `json:"author" form:"author"`
	Username        string `json:"username" form:"username"`
	ParentCommentID string `json:"parentCommentId" form:"parentCommentId"`
}

// CreateComment handles POST /api/posts/:id/comment
// @Summary Add a comment
// @Description Append a top-level comment, or a reply when parentCommentId is set
// @Tags comments
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param request body CreateCommentRequest true "Comment"
// @Success 200 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/comment [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := parsePostID(c)
	if err != nil {
		return nil
	}

	var req CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.commentService.AddComment(c.UserContext(), service.AddCommentInput{
		PostID:          postID,
		Text:            req.Text,
		Author:          resolveAuthor(c, req.Author, req.Username),
		ParentCommentID: req.ParentCommentID,
	})
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.JSON(post)
}
