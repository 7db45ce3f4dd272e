package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"codezen/internal/models"
	"codezen/internal/observability"
)

const memoryDriver = "memory"

// MemoryPostRepository keeps posts in process memory. Posts are copied on
// the way in and out, so callers never share a forest with the store.
type MemoryPostRepository struct {
	mu    sync.RWMutex
	posts map[string]*models.Post
	seq   map[string]int
	next  int
}

// NewMemoryPostRepository creates an empty in-memory post repository.
func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{
		posts: make(map[string]*models.Post),
		seq:   make(map[string]int),
	}
}

func (r *MemoryPostRepository) Create(_ context.Context, post *models.Post) error {
	defer observability.TrackStore(memoryDriver, "create")()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.posts[post.ID]; exists {
		return fmt.Errorf("create post %s: duplicate id", post.ID)
	}
	r.posts[post.ID] = post.Clone()
	r.seq[post.ID] = r.next
	r.next++
	return nil
}

func (r *MemoryPostRepository) GetByID(_ context.Context, id string) (*models.Post, error) {
	defer observability.TrackStore(memoryDriver, "get")()

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	cp := p.Clone()
	normalize(cp)
	return cp, nil
}

// List returns posts newest first; posts created in the same instant keep reverse insertion order.
func (r *MemoryPostRepository) List(_ context.Context, limit, offset int) ([]*models.Post, error) {
	defer observability.TrackStore(memoryDriver, "list")()

	r.mu.RLock()
	all := make([]*models.Post, 0, len(r.posts))
	for _, p := range r.posts {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return r.seq[all[i].ID] > r.seq[all[j].ID]
	})
	r.mu.RUnlock()

	if offset >= len(all) {
		return []*models.Post{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	out := make([]*models.Post, len(all))
	for i, p := range all {
		out[i] = p.Clone()
		normalize(out[i])
	}
	return out, nil
}

func (r *MemoryPostRepository) Save(_ context.Context, post *models.Post) error {
	defer observability.TrackStore(memoryDriver, "save")()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[post.ID]; !ok {
		return ErrPostNotFound
	}
	r.posts[post.ID] = post.Clone()
	return nil
}

// Len reports how many posts are stored.
func (r *MemoryPostRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.posts)
}
