package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/database"
	"github.com/docvault/docvault/internal/users"
)

// feedkey is a small admin tool: it regenerates a user's revision feed key,
// immediately revoking the old one. Useful when a key leaks or a feed reader
// is decommissioned.
func main() {
	sub := flag.String("sub", "", "subject of the user whose feed key to regenerate")
	flag.Parse()
	if *sub == "" {
		log.Fatal("usage: feedkey -sub <user-subject>")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.MongoDB.URI == "" {
		log.Fatal("MONGODB_URI must be set")
	}

	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		log.Fatalf("connect to MongoDB: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	col := client.Database(cfg.MongoDB.Database).Collection("users")
	svc := users.NewService(users.NewMongoUserRepository(col), cfg.Feed.KeyLength)

	u, err := svc.GetBySub(ctx, *sub)
	if err != nil {
		log.Fatalf("look up user %q: %v", *sub, err)
	}
	if u == nil {
		log.Fatalf("no user with subject %q", *sub)
	}

	key, err := svc.RegenerateFeedKey(ctx, *sub)
	if err != nil {
		log.Fatalf("regenerate feed key: %v", err)
	}
	fmt.Println(key)
}
