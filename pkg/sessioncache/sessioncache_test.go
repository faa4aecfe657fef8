package sessioncache

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/crypto"
)

const testKey = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

func testCache(t *testing.T) *Cache {
	t.Helper()
	enc, err := crypto.NewCredentialEncryptor(testKey)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	return New(nil, enc, zap.NewNop())
}

func TestCache_PutThenGetRoundTrips(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "team-a", "warehouse", "s3cret"); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.Get(ctx, "team-a", "warehouse")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("got %q, want s3cret", got)
	}
}

func TestCache_GetMissingReturnsAuthMissing(t *testing.T) {
	c := testCache(t)

	_, err := c.Get(context.Background(), "team-a", "ghost")
	if !apperrors.Is(err, apperrors.AuthMissing) {
		t.Fatalf("expected AuthMissing, got %v", err)
	}
}

func TestCache_InvalidateRemovesEntry(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "team-a", "warehouse", "s3cret"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Invalidate(ctx, "team-a", "warehouse"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if _, err := c.Get(ctx, "team-a", "warehouse"); !apperrors.Is(err, apperrors.AuthMissing) {
		t.Errorf("expected AuthMissing after invalidate, got %v", err)
	}
}

func TestCache_DistinctOwnersDoNotCollide(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	c.Put(ctx, "team-a", "warehouse", "secret-a")
	c.Put(ctx, "team-b", "warehouse", "secret-b")

	gotA, _ := c.Get(ctx, "team-a", "warehouse")
	gotB, _ := c.Get(ctx, "team-b", "warehouse")
	if gotA != "secret-a" || gotB != "secret-b" {
		t.Errorf("got %q/%q, expected distinct values per owner", gotA, gotB)
	}
}
