// Package models contains data structures for the application's domain models.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultAuthor is used when a post or comment is submitted without a name.
const DefaultAuthor = "Anonymous"

// IDGenerator supplies globally unique identifiers.
type IDGenerator func() string

// Now is the creation timestamp for posts and comments. It is cut to
// milliseconds, the precision BSON datetimes keep, so a freshly built post
// serializes the same before and after a store round trip.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewID is the default IDGenerator.
func NewID() string {
	return uuid.NewString()
}

// Post is a forum submission and the owner of its whole comment forest.
// It is persisted as a single document: the nested comments are rewritten together with it.
type Post struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id" bson:"_id"`
	Title     string    `gorm:"not null" json:"title" bson:"title"`
	Content   string    `gorm:"type:text;not null" json:"content" bson:"content"`
	Category  string    `gorm:"not null;index" json:"category" bson:"category"`
	Author    string    `gorm:"not null;default:Anonymous" json:"author" bson:"author"`
	ImageURL  string    `json:"imageRef,omitempty" bson:"imageRef,omitempty"`
	Likes     int       `gorm:"not null;default:0" json:"likes" bson:"likes"`
	Comments  []Comment `gorm:"serializer:json;type:text" json:"comments" bson:"comments"`
	CreatedAt time.Time `gorm:"index" json:"createdAt" bson:"createdAt"`
}

// NewPost builds a post with a fresh id, defaulted author, zero likes and an empty forest.
func NewPost(newID IDGenerator, title, content, category, author, imageURL string) *Post {
	if newID == nil {
		newID = NewID
	}
	return &Post{
		ID:        newID(),
		Title:     title,
		Content:   content,
		Category:  category,
		Author:    authorOrDefault(author),
		ImageURL:  imageURL,
		Comments:  []Comment{},
		CreatedAt: Now(),
	}
}

// Like increments the like counter by exactly one and returns the new value.
func (p *Post) Like() int {
	p.Likes++
	return p.Likes
}

// Clone returns a deep copy of the post, including every nested reply.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Comments = cloneForest(p.Comments)
	return &cp
}

// CommentCount returns the number of comments in the forest at every depth.
func (p *Post) CommentCount() int {
	n := 0
	Walk(p.Comments, func(_ *Comment, _ CommentPath) bool {
		n++
		return true
	})
	return n
}

// Validate checks the aggregate invariants: required fields, non-negative counters and
// comment ids unique across the whole forest.
func (p *Post) Validate() error {
	if p.ID == "" {
		return NewValidationError("Post ID is required")
	}
	if p.Title == "" || p.Content == "" || p.Category == "" {
		return NewValidationError("Title, content, and category are required")
	}
	if p.Likes < 0 {
		return NewValidationError("Likes cannot be negative")
	}

	seen := make(map[string]struct{})
	var err error
	Walk(p.Comments, func(c *Comment, _ CommentPath) bool {
		if c.ID == "" {
			err = NewValidationError("Comment ID is required")
			return false
		}
		if c.ID == p.ID {
			err = NewValidationError(fmt.Sprintf("Comment ID %s collides with its post", c.ID))
			return false
		}
		if _, dup := seen[c.ID]; dup {
			err = NewValidationError(fmt.Sprintf("Duplicate comment ID %s", c.ID))
			return false
		}
		if c.Likes < 0 || c.Dislikes < 0 {
			err = NewValidationError("Comment counters cannot be negative")
			return false
		}
		seen[c.ID] = struct{}{}
		return true
	})
	return err
}

func authorOrDefault(author string) string {
	if author == "" {
		return DefaultAuthor
	}
	return author
}
