package core

import (
	"context"
	"path/filepath"
	"testing"

	"pedigreecore/internal/infra/persistence/memory"
	"pedigreecore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(StorageConfig{Driver: StorageMemory}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	if err := ClosePersistentStore(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pedigree.db")
	store, err := OpenPersistentStore(StorageConfig{SQLitePath: path}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if sq.Path() != path {
		t.Fatalf("unexpected path %s", sq.Path())
	}

	svc := NewService(store)
	if _, _, err := svc.Import(context.Background(), literalDataset()); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := ClosePersistentStore(store); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPersistentStore(StorageConfig{Driver: StorageSQLite, SQLitePath: path}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = ClosePersistentStore(reopened) }()
	res, err := NewService(reopened).Inbreeding(context.Background(), "X", 0)
	if err != nil || res.InbreedingCoefficient != 25 {
		t.Fatalf("expected persisted pedigree, got %+v %v", res, err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, err := OpenPersistentStore(StorageConfig{Driver: "etcd"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
