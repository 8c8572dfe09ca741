package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"pedigreecore/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found get, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false")
	}

	meta := map[string]string{"run": "r1"}
	info, err := store.Put(ctx, "recompute/2024-01-01/r1.json", bytes.NewReader([]byte(`{"processed":3}`)), core.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["run"] = "mutated"
	if info.Size != 15 || info.ETag == "" || info.Metadata["run"] != "r1" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "recompute/2024-01-01/r1.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}

	got, rc, err := store.Get(ctx, "recompute/2024-01-01/r1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"processed":3}` || got.ContentType != "application/json" {
		t.Fatalf("unexpected blob %q %+v", body, got)
	}

	if _, err := store.Put(ctx, "other/x", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "recompute/")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one prefixed blob, got %v %v", list, err)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 2 || all[0].Key != "other/x" {
		t.Fatalf("expected sorted listing, got %v", all)
	}

	if ok, err := store.Delete(ctx, "other/x"); err != nil || !ok {
		t.Fatalf("expected delete true")
	}
}

func TestPutHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
