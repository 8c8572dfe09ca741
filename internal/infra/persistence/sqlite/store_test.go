package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"pedigreecore/pkg/domain"
)

func strPtr(s string) *string { return &s }

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %s", store.Path())
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, e := tx.CreateOrganism(domain.Organism{Base: domain.Base{ID: "pup"}, Name: "Persist", SireID: strPtr("s"), Public: true}); e != nil {
			return e
		}
		_, e := tx.CreatePublicOrganism(domain.PublicOrganism{Base: domain.Base{ID: "pup"}, Name: "Persist"})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	org, ok := reloaded.GetOrganism("pup")
	if !ok {
		t.Fatalf("expected organism after reload")
	}
	if sire, _ := org.Parents(); sire != "s" {
		t.Fatalf("parent link lost: %+v", org)
	}
	if _, ok := reloaded.GetPublicOrganism("pup"); !ok {
		t.Fatalf("expected mirror after reload")
	}
}

func TestSQLiteStoreWritesEveryBucket(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateOrganism(domain.Organism{Name: "Any"})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 buckets, got %d", count)
	}
}

func TestSQLiteStoreLoadsLegacyParentAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	legacy := `{"pup":{"id":"pup","father_id":"s","damId":"d"}}`
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES(?,?)`, "organisms", []byte(legacy)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = store.Close()

	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	org, ok := reloaded.GetOrganism("pup")
	if !ok {
		t.Fatalf("expected legacy organism")
	}
	sire, dam := org.Parents()
	if sire != "s" || dam != "d" {
		t.Fatalf("expected normalized parents, got %q %q", sire, dam)
	}
}
