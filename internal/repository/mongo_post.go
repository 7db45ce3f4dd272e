package repository

import (
	"context"
	"errors"
	"fmt"

	"codezen/internal/database"
	"codezen/internal/models"
	"codezen/internal/observability"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoDriver = "mongo"

// mongoPostRepository implements PostRepository with one document per post.
type mongoPostRepository struct {
	coll *mongo.Collection
}

// NewMongoPostRepository creates a post repository backed by the posts collection of db.
func NewMongoPostRepository(db *mongo.Database) PostRepository {
	return &mongoPostRepository{coll: db.Collection(database.PostsCollection)}
}

func (r *mongoPostRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackStore(mongoDriver, "create")()

	if _, err := r.coll.InsertOne(ctx, post); err != nil {
		return fmt.Errorf("create post %s: %w", post.ID, err)
	}
	return nil
}

func (r *mongoPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackStore(mongoDriver, "get")()

	var post models.Post
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	normalize(&post)
	return &post, nil
}

func (r *mongoPostRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	defer observability.TrackStore(mongoDriver, "list")()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	posts := []*models.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	for _, p := range posts {
		normalize(p)
	}
	return posts, nil
}

func (r *mongoPostRepository) Save(ctx context.Context, post *models.Post) error {
	defer observability.TrackStore(mongoDriver, "save")()

	res, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: post.ID}}, post)
	if err != nil {
		return fmt.Errorf("save post %s: %w", post.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}
