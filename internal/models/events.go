package models

// Broadcast event names. Clients match on these exact strings.
const (
	EventNewPost    = "newPost"
	EventNewComment = "newComment"
	EventPostLiked  = "postLiked"
)

// CommentAddedEvent is the payload of EventNewComment.
type CommentAddedEvent struct {
	PostID      string `json:"postId"`
	UpdatedPost *Post  `json:"updatedPost"`
}

// PostLikedEvent is the payload of EventPostLiked.
type PostLikedEvent struct {
	PostID string `json:"postId"`
	Likes  int    `json:"likes"`
}
