package seed

import (
	"fmt"
	"math/rand"
	"time"

	"codezen/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// Categories used for generated posts.
var Categories = []string{"stocks", "mutual-funds", "crypto", "markets", "general"}

// Factory builds demo posts and discussion threads. Comments are appended
// through Post.AddComment, so generated forests obey the same rules as real ones.
type Factory struct {
	opts  Options
	newID models.IDGenerator
	rng   *rand.Rand
}

// NewFactory creates a Factory. A nil newID uses models.NewID.
func NewFactory(opts Options, newID models.IDGenerator) *Factory {
	// seed gofakeit for richer content
	gofakeit.Seed(time.Now().UnixNano())
	if newID == nil {
		newID = models.NewID
	}
	return &Factory{
		opts:  opts.withDefaults(),
		newID: newID,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404: demo data
	}
}

// BuildPost constructs a post with fake content and an empty forest. It is
// not persisted.
func (f *Factory) BuildPost(overrides ...func(*models.Post)) *models.Post {
	author := gofakeit.Username()
	if f.rng.Intn(4) == 0 {
		author = ""
	}
	post := models.NewPost(f.newID,
		gofakeit.Sentence(6),
		gofakeit.Paragraph(1, 3, 12, "\n"),
		gofakeit.RandomString(Categories),
		author,
		"",
	)

	// realistic created_at spread
	daysBack := f.rng.Intn(f.opts.MaxDays)
	minsBack := f.rng.Intn(24 * 60)
	post.CreatedAt = models.Now().Add(-time.Duration(daysBack)*24*time.Hour - time.Duration(minsBack)*time.Minute)
	post.Likes = f.rng.Intn(50)

	if f.rng.Intn(3) == 0 {
		post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/600", gofakeit.UUID())
	}

	for _, override := range overrides {
		override(post)
	}
	return post
}

type pendingReply struct {
	parentID string
	depth    int
}

// AddThread appends a random discussion to post: up to MaxReplies top-level
// comments, each growing replies down to MaxDepth levels.
func (f *Factory) AddThread(post *models.Post) error {
	var queue []pendingReply
	for i := 0; i < 1+f.rng.Intn(f.opts.MaxReplies); i++ {
		queue = append(queue, pendingReply{parentID: "", depth: 0})
	}

	for len(queue) > 0 && post.CommentCount() < f.opts.MaxComments {
		next := queue[0]
		queue = queue[1:]

		c, err := post.AddComment(f.newID, next.parentID, gofakeit.Username(), gofakeit.Sentence(f.rng.Intn(20)+3))
		if err != nil {
			return fmt.Errorf("add generated comment: %w", err)
		}
		c.Likes = f.rng.Intn(10)
		c.Dislikes = f.rng.Intn(3)

		if next.depth+1 >= f.opts.MaxDepth {
			continue
		}
		for i := 0; i < f.rng.Intn(f.opts.MaxReplies+1); i++ {
			queue = append(queue, pendingReply{parentID: c.ID, depth: next.depth + 1})
		}
	}
	return nil
}
