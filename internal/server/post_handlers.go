package server

import (
	"io"
	"strings"

	"codezen/internal/middleware"
	"codezen/internal/models"
	"codezen/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePostRequest is the JSON or form body of POST /api/posts.
type CreatePostRequest struct {
	Title    string `json:"title" form:"title"`
	Content  string `json:"content" form:"content"`
	Category string `json:"category" form:"category"`
	Author   string `json:"author" form:"author"`
	Username string `json:"username" form:"username"`
}

// GetPosts handles GET /api/posts
// @Summary List posts
// @Description List posts newest first with their whole comment forests
// @Tags posts
// @Produce json
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Number of posts to skip"
// @Success 200 {array} models.Post
// @Failure 500 {object} models.ErrorResponse
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c)

	posts, err := s.postService.ListPosts(c.UserContext(), service.ListPostsInput{
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
// @Summary Get a post
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parsePostID(c)
	if err != nil {
		return nil
	}

	post, err := s.postService.GetPost(c.UserContext(), id)
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Description Create a post from JSON or multipart form data with an optional image
// @Tags posts
// @Accept json,mpfd
// @Produce json
// @Param title formData string true "Title"
// @Param content formData string true "Content"
// @Param category formData string true "Category"
// @Param username formData string false "Author name"
// @Param image formData file false "Image"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	in, err := service.ValidateCreatePost(service.CreatePostInput{
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Author:   resolveAuthor(c, req.Author, req.Username),
	})
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}

	if isMultipart(c) {
		imageURL, err := s.saveUploadedImage(c)
		if err != nil {
			return models.RespondWithError(c, models.StatusFor(err), err)
		}
		in.ImageURL = imageURL
	}

	post, err := s.postService.CreatePost(c.UserContext(), in)
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// LikePost handles POST /api/posts/:id/like
// @Summary Like a post
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	id, err := parsePostID(c)
	if err != nil {
		return nil
	}

	post, err := s.postService.LikePost(c.UserContext(), id)
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.JSON(post)
}

// saveUploadedImage stores the optional "image" form file and returns its URL,
// or "" when the form carries no image.
func (s *Server) saveUploadedImage(c *fiber.Ctx) (string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return "", models.NewValidationError("Invalid multipart form")
	}
	files := form.File["image"]
	if len(files) == 0 {
		return "", nil
	}
	file := files[0]
	if file.Size > s.uploadService.MaxUploadSizeBytes() {
		return "", models.NewValidationError("File too large")
	}

	src, err := file.Open()
	if err != nil {
		return "", models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return "", models.NewValidationError("Unable to read uploaded file")
	}

	uploaded, err := s.uploadService.Save(c.UserContext(), service.UploadImageInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return "", err
	}
	return uploaded.URL, nil
}

// resolveAuthor prefers the name from a valid bearer token over the names in
// the body.
func resolveAuthor(c *fiber.Ctx, candidates ...string) string {
	if author := middleware.AuthorFrom(c); author != "" {
		return author
	}
	for _, name := range candidates {
		if strings.TrimSpace(name) != "" {
			return name
		}
	}
	return ""
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}
