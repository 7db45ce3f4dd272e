package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"codezen/internal/models"
	"codezen/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn  func(context.Context, *models.Post) error
	getByIDFn func(context.Context, string) (*models.Post, error)
	listFn    func(context.Context, int, int) ([]*models.Post, error)
	saveFn    func(context.Context, *models.Post) error
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id string) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	return s.listFn(ctx, limit, offset)
}
func (s *postRepoStub) Save(ctx context.Context, post *models.Post) error {
	return s.saveFn(ctx, post)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:  func(_ context.Context, _ *models.Post) error { return nil },
		getByIDFn: func(_ context.Context, id string) (*models.Post, error) { return nil, repository.ErrPostNotFound },
		listFn:    func(_ context.Context, _, _ int) ([]*models.Post, error) { return nil, nil },
		saveFn:    func(_ context.Context, _ *models.Post) error { return nil },
	}
}

type emitted struct {
	event   string
	payload []byte
}

// recordingBroadcaster captures every event as JSON, the way clients see it.
// When onEmit is set it runs before the event is recorded.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []emitted
	err    error
	onEmit func(event string)
}

func (b *recordingBroadcaster) Emit(_ context.Context, event string, payload any) error {
	if b.onEmit != nil {
		b.onEmit(event)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, emitted{event: event, payload: data})
	return b.err
}

func (b *recordingBroadcaster) Events() []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]emitted(nil), b.events...)
}

func sequentialIDs(prefix string) models.IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func reply(id string, replies ...models.Comment) models.Comment {
	if replies == nil {
		replies = []models.Comment{}
	}
	return models.Comment{ID: id, Author: models.DefaultAuthor, Text: "text " + id, Replies: replies}
}

// seedPost stores a post with the given forest in a fresh memory repository.
func seedPost(t *testing.T, forest ...models.Comment) (*repository.MemoryPostRepository, *models.Post) {
	t.Helper()
	repo := repository.NewMemoryPostRepository()
	if forest == nil {
		forest = []models.Comment{}
	}
	post := &models.Post{
		ID:       "p1",
		Title:    "Rate cuts",
		Content:  "What now?",
		Category: "stocks",
		Author:   models.DefaultAuthor,
		Comments: forest,
	}
	require.NoError(t, repo.Create(context.Background(), post))
	return repo, post
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeValidation)
}

func assertNotFoundError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeNotFound)
}
