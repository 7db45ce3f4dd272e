// Command main fills the configured post store with demo forum threads.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"codezen/internal/bootstrap"
	"codezen/internal/config"
	"codezen/internal/models"
	"codezen/internal/seed"
)

func main() {
	fixturePath := flag.String("fixture", "", "YAML fixture to load (default: the embedded demo fixture)")
	numPosts := flag.Int("posts", 10, "Number of generated posts to add after the fixture")
	maxDepth := flag.Int("depth", 4, "Maximum reply depth of generated threads")
	maxComments := flag.Int("comments", 40, "Maximum comments per generated thread")
	flag.Parse()

	log.Println("🌱 Forum Seeder")
	log.Println("===============")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			log.Printf("error closing runtime: %v", err)
		}
	}()

	opts := seed.Options{
		NumPosts:    *numPosts,
		MaxDepth:    *maxDepth,
		MaxComments: *maxComments,
	}

	if *fixturePath == "" {
		n, err := seed.Demo(ctx, rt.PostRepo, opts)
		if err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
		log.Printf("✨ Seeded %d posts into the %s store", n, rt.Driver)
		return
	}

	fx, err := seed.LoadFixture(*fixturePath)
	if err != nil {
		log.Fatalf("❌ Loading fixture failed: %v", err)
	}
	posts, err := fx.Build(models.NewID)
	if err != nil {
		log.Fatalf("❌ Invalid fixture: %v", err)
	}

	factory := seed.NewFactory(opts, models.NewID)
	for i := 0; i < *numPosts; i++ {
		post := factory.BuildPost()
		if err := factory.AddThread(post); err != nil {
			log.Fatalf("❌ Generating thread failed: %v", err)
		}
		posts = append(posts, post)
	}

	if err := seed.Apply(ctx, rt.PostRepo, posts); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}
	log.Printf("✨ Seeded %d posts into the %s store", len(posts), rt.Driver)
}
