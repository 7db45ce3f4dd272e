package models

import (
	"errors"
	"time"
)

// maxIDAttempts bounds how many times a colliding comment id is regenerated.
const maxIDAttempts = 5

// ErrDuplicateCommentID is returned when no unique comment id could be generated.
var ErrDuplicateCommentID = errors.New("could not generate a unique comment id")

// Comment is a node of a post's discussion forest. Replies are owned by value and
// only ever appended to.
type Comment struct {
	ID        string    `json:"id" bson:"_id"`
	Author    string    `json:"author" bson:"author"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	Likes     int       `json:"likes" bson:"likes"`
	Dislikes  int       `json:"dislikes" bson:"dislikes"`
	Replies   []Comment `json:"replies" bson:"replies"`
}

// NewComment builds a leaf comment stamped with the current time.
func NewComment(id, author, text string) Comment {
	return Comment{
		ID:        id,
		Author:    authorOrDefault(author),
		Text:      text,
		CreatedAt: Now(),
		Replies:   []Comment{},
	}
}

// AddComment appends a new comment to the post. With an empty parentID the comment
// becomes the last top-level comment; otherwise it becomes the last reply of the
// comment with that id. The new comment's id is guaranteed not to occur anywhere
// else in the forest. A missing parent yields a NOT_FOUND AppError and leaves the
// post untouched.
func (p *Post) AddComment(newID IDGenerator, parentID, author, text string) (*Comment, error) {
	if newID == nil {
		newID = NewID
	}

	var parent CommentPath
	if parentID != "" {
		path, ok := FindComment(p.Comments, parentID)
		if !ok {
			return nil, NewNotFoundError("Parent comment", parentID)
		}
		parent = path
	}

	id, err := p.uniqueCommentID(newID)
	if err != nil {
		return nil, err
	}
	comment := NewComment(id, author, text)

	if parent == nil {
		p.Comments = append(p.Comments, comment)
		return &p.Comments[len(p.Comments)-1], nil
	}

	node := CommentAt(p.Comments, parent)
	node.Replies = append(node.Replies, comment)
	return &node.Replies[len(node.Replies)-1], nil
}

func (p *Post) uniqueCommentID(newID IDGenerator) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := newID()
		if id == "" || id == p.ID {
			continue
		}
		if _, taken := FindComment(p.Comments, id); !taken {
			return id, nil
		}
	}
	return "", ErrDuplicateCommentID
}

func cloneForest(forest []Comment) []Comment {
	if forest == nil {
		return nil
	}
	out := make([]Comment, len(forest))
	for i := range forest {
		out[i] = forest[i]
		out[i].Replies = cloneForest(forest[i].Replies)
	}
	return out
}
