// Package seed creates demo forum threads for development and testing,
// either generated with gofakeit or loaded from YAML fixtures.
package seed

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"codezen/internal/models"
	"codezen/internal/repository"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yml
var fixtureFS embed.FS

// DemoFixturePath is the embedded fixture used when no file is given.
const DemoFixturePath = "fixtures/demo.yml"

// Options configures generated threads.
type Options struct {
	NumPosts    int
	MaxDepth    int
	MaxReplies  int
	MaxComments int
	MaxDays     int
}

func (o Options) withDefaults() Options {
	if o.NumPosts <= 0 {
		o.NumPosts = 10
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 4
	}
	if o.MaxReplies <= 0 {
		o.MaxReplies = 3
	}
	if o.MaxComments <= 0 {
		o.MaxComments = 40
	}
	if o.MaxDays <= 0 {
		o.MaxDays = 30
	}
	return o
}

// Fixture is the YAML layout of a seed file.
type Fixture struct {
	Posts []FixturePost `yaml:"posts"`
}

type FixturePost struct {
	Title    string           `yaml:"title"`
	Content  string           `yaml:"content"`
	Category string           `yaml:"category"`
	Author   string           `yaml:"author"`
	Image    string           `yaml:"image"`
	Likes    int              `yaml:"likes"`
	Comments []FixtureComment `yaml:"comments"`
}

type FixtureComment struct {
	Author   string           `yaml:"author"`
	Text     string           `yaml:"text"`
	Likes    int              `yaml:"likes"`
	Dislikes int              `yaml:"dislikes"`
	Replies  []FixtureComment `yaml:"replies"`
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if len(fx.Posts) == 0 {
		return nil, errors.New("fixture contains no posts")
	}
	return &fx, nil
}

// LoadFixture reads a fixture from disk. An empty path loads the embedded demo fixture.
func LoadFixture(path string) (*Fixture, error) {
	var (
		data []byte
		err  error
	)
	if strings.TrimSpace(path) == "" {
		data, err = fixtureFS.ReadFile(DemoFixturePath)
	} else {
		// #nosec G304: operator-supplied path
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// Build turns the fixture into posts with freshly generated ids.
func (fx *Fixture) Build(newID models.IDGenerator) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, len(fx.Posts))
	for i, fp := range fx.Posts {
		if fp.Title == "" || fp.Content == "" || fp.Category == "" {
			return nil, fmt.Errorf("fixture post %d: title, content, and category are required", i)
		}
		post := models.NewPost(newID, fp.Title, fp.Content, fp.Category, fp.Author, fp.Image)
		post.Likes = fp.Likes
		if err := addFixtureComments(post, newID, "", fp.Comments); err != nil {
			return nil, fmt.Errorf("fixture post %d: %w", i, err)
		}
		if err := post.Validate(); err != nil {
			return nil, fmt.Errorf("fixture post %d: %w", i, err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func addFixtureComments(post *models.Post, newID models.IDGenerator, parentID string, comments []FixtureComment) error {
	for _, fc := range comments {
		if strings.TrimSpace(fc.Text) == "" {
			return errors.New("comment text is required")
		}
		c, err := post.AddComment(newID, parentID, fc.Author, fc.Text)
		if err != nil {
			return err
		}
		c.Likes = fc.Likes
		c.Dislikes = fc.Dislikes
		id := c.ID
		if err := addFixtureComments(post, newID, id, fc.Replies); err != nil {
			return err
		}
	}
	return nil
}

// Apply stores posts through repo.
func Apply(ctx context.Context, repo repository.PostRepository, posts []*models.Post) error {
	for _, p := range posts {
		if err := repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create post %q: %w", p.Title, err)
		}
	}
	return nil
}

// DemoIfEmpty runs Demo only when the store holds no posts yet, so a server
// restarted with demo seeding on does not duplicate the threads.
func DemoIfEmpty(ctx context.Context, repo repository.PostRepository, opts Options) (int, error) {
	existing, err := repo.List(ctx, 1, 0)
	if err != nil {
		return 0, fmt.Errorf("check existing posts: %w", err)
	}
	if len(existing) > 0 {
		log.Printf("Store already has posts, skipping demo seed")
		return 0, nil
	}
	return Demo(ctx, repo, opts)
}

// Demo stores the embedded fixture threads plus opts.NumPosts generated ones.
// It returns the number of posts created.
func Demo(ctx context.Context, repo repository.PostRepository, opts Options) (int, error) {
	fx, err := LoadFixture("")
	if err != nil {
		return 0, err
	}
	posts, err := fx.Build(nil)
	if err != nil {
		return 0, err
	}

	f := NewFactory(opts, nil)
	for i := 0; i < f.opts.NumPosts; i++ {
		p := f.BuildPost()
		if err := f.AddThread(p); err != nil {
			return 0, err
		}
		posts = append(posts, p)
	}

	if err := Apply(ctx, repo, posts); err != nil {
		return 0, err
	}
	log.Printf("Seeded %d demo posts", len(posts))
	return len(posts), nil
}
