package services_test

import (
	"context"
	"testing"

	"jellysync/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItem(ctx, "7NcQk3tYk2cZkFv1kQ8mTq")
	ctx = services.WithStage(ctx, "transferring")
	ctx = services.WithFile(ctx, "subtitle:3")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ItemFromContext(ctx); !ok || id != "7NcQk3tYk2cZkFv1kQ8mTq" {
		t.Fatalf("unexpected item: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transferring" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if key, ok := services.FileFromContext(ctx); !ok || key != "subtitle:3" {
		t.Fatalf("unexpected file key: %v %v", key, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
