package config

import (
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	os.Setenv("REDIS_HOST", "localhost")
	os.Setenv("REDIS_PORT", "6379")
	os.Setenv("JWT_SECRET", "testsecret123456789012345678901234")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.Storage.Slug != "documents" {
		t.Fatalf("expected default slug, got %q", cfg.Storage.Slug)
	}
	if !cfg.Access.DocumentReadUsesRead {
		t.Fatalf("expected lenient access mode by default")
	}
	if cfg.Feed.KeyLength != 32 {
		t.Fatalf("expected 32-char feed keys, got %d", cfg.Feed.KeyLength)
	}
	// upload dir tracks base dir unless set explicitly
	if cfg.Storage.UploadDir != cfg.Storage.BaseDir {
		t.Fatalf("upload dir should default to base dir")
	}
}
