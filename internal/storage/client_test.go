package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error when bucket is empty")
	}
}

func TestPresignedURLsAreSignedOffline(t *testing.T) {
	client, err := NewClient(Config{
		Endpoint: "localhost:9000",
		Access:   "access",
		Secret:   "secret",
		Bucket:   "pixelgrade-test",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	put, err := client.PresignedPutURL(ctx, "uploads/job-1/source", 5*time.Minute)
	if err != nil {
		t.Fatalf("presign put: %v", err)
	}
	get, err := client.PresignedGetURL(ctx, "outputs/job-1/enhanced.jpg", 5*time.Minute)
	if err != nil {
		t.Fatalf("presign get: %v", err)
	}

	for name, raw := range map[string]string{"put": put, "get": get} {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("%s: parse url: %v", name, err)
		}
		if !strings.HasPrefix(u.Path, "/pixelgrade-test/") {
			t.Fatalf("%s: expected path-style bucket prefix, got %s", name, u.Path)
		}
		if u.Query().Get("X-Amz-Signature") == "" {
			t.Fatalf("%s: expected signature query parameter", name)
		}
		if u.Query().Get("X-Amz-Expires") != "300" {
			t.Fatalf("%s: expected 300s expiry, got %q", name, u.Query().Get("X-Amz-Expires"))
		}
	}
}
