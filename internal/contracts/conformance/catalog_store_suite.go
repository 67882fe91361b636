package conformance

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
)

type CatalogStoreFactory func(t *testing.T) contracts.CatalogStore

type CatalogStoreConfig struct {
	Backend  string
	NewStore CatalogStoreFactory
	// SkipNotFound is set for stores that always hold a catalog.
	SkipNotFound bool
}

// RunCatalogStoreSuite exercises the behavior every catalog store shares:
// whole-catalog replacement, relation order and duplicates surviving a round
// trip, and invalid catalogs being refused without touching stored data.
func RunCatalogStoreSuite(t *testing.T, cfg CatalogStoreConfig) {
	t.Helper()

	backend := strings.TrimSpace(cfg.Backend)
	if backend == "" {
		t.Fatal("conformance backend is required")
	}
	if cfg.NewStore == nil {
		t.Fatal("conformance store factory is required")
	}

	if !cfg.SkipNotFound {
		t.Run("load before save reports catalog not found", func(t *testing.T) {
			store := cfg.NewStore(t)
			_, err := store.LoadCatalog(context.Background())
			if !errors.Is(err, contracts.ErrCatalogNotFound) {
				t.Fatalf("LoadCatalog() error = %v, want %v", err, contracts.ErrCatalogNotFound)
			}
		})
	}

	t.Run("save then load round trips the sample catalog", func(t *testing.T) {
		store := cfg.NewStore(t)
		want := catalog.SampleCatalog()
		if err := store.SaveCatalog(context.Background(), want); err != nil {
			t.Fatalf("SaveCatalog() error = %v", err)
		}
		got, err := store.LoadCatalog(context.Background())
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v", err)
		}
		AssertCatalogEqual(t, got, want)
	})

	t.Run("save replaces the previous catalog", func(t *testing.T) {
		store := cfg.NewStore(t)
		if err := store.SaveCatalog(context.Background(), catalog.SampleCatalog()); err != nil {
			t.Fatalf("SaveCatalog(sample) error = %v", err)
		}
		want := contracts.Catalog{
			Tasks: []contracts.Task{
				{ID: "b", Name: "Build", Prerequisites: []string{"a"}},
				{ID: "a", Name: "Fetch"},
			},
			Relations: []contracts.TaskRelation{
				{From: "b", To: "a", Type: contracts.RelationDependsOn},
				{From: "b", To: "a", Type: contracts.RelationCondition, Condition: "ok"},
				{From: "b", To: "a", Type: contracts.RelationDependsOn},
			},
		}
		if err := store.SaveCatalog(context.Background(), want); err != nil {
			t.Fatalf("SaveCatalog(small) error = %v", err)
		}
		got, err := store.LoadCatalog(context.Background())
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v", err)
		}
		AssertCatalogEqual(t, got, want)
	})

	t.Run("empty relation set round trips", func(t *testing.T) {
		store := cfg.NewStore(t)
		want := contracts.Catalog{Tasks: []contracts.Task{{ID: "solo", Name: "Alone"}}}
		if err := store.SaveCatalog(context.Background(), want); err != nil {
			t.Fatalf("SaveCatalog() error = %v", err)
		}
		got, err := store.LoadCatalog(context.Background())
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v", err)
		}
		AssertCatalogEqual(t, got, want)
	})

	t.Run("invalid catalog is rejected and previous data kept", func(t *testing.T) {
		store := cfg.NewStore(t)
		want := catalog.SampleCatalog()
		if err := store.SaveCatalog(context.Background(), want); err != nil {
			t.Fatalf("SaveCatalog(sample) error = %v", err)
		}
		invalid := contracts.Catalog{Tasks: []contracts.Task{{ID: "dup"}, {ID: "dup"}}}
		if err := store.SaveCatalog(context.Background(), invalid); !errors.Is(err, catalog.ErrInvalidCatalog) {
			t.Fatalf("SaveCatalog(invalid) error = %v, want %v", err, catalog.ErrInvalidCatalog)
		}
		got, err := store.LoadCatalog(context.Background())
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v", err)
		}
		AssertCatalogEqual(t, got, want)
	})

	t.Run("canceled context fails", func(t *testing.T) {
		store := cfg.NewStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := store.SaveCatalog(ctx, catalog.SampleCatalog()); err == nil {
			t.Fatalf("SaveCatalog() with canceled context returned nil error")
		}
	})
}

// AssertCatalogEqual compares catalogs field by field, treating nil and empty
// slices as equal.
func AssertCatalogEqual(t *testing.T, got contracts.Catalog, want contracts.Catalog) {
	t.Helper()

	if len(got.Tasks) != len(want.Tasks) {
		t.Fatalf("len(Tasks) = %d, want %d", len(got.Tasks), len(want.Tasks))
	}
	for i := range want.Tasks {
		g, w := got.Tasks[i], want.Tasks[i]
		if g.ID != w.ID || g.Name != w.Name || g.Description != w.Description || g.Image != w.Image || g.Script != w.Script {
			t.Fatalf("Tasks[%d] = %#v, want %#v", i, g, w)
		}
		if len(g.Prerequisites) != len(w.Prerequisites) || (len(w.Prerequisites) > 0 && !reflect.DeepEqual(g.Prerequisites, w.Prerequisites)) {
			t.Fatalf("Tasks[%d].Prerequisites = %v, want %v", i, g.Prerequisites, w.Prerequisites)
		}
	}

	if len(got.Relations) != len(want.Relations) {
		t.Fatalf("len(Relations) = %d, want %d", len(got.Relations), len(want.Relations))
	}
	for i := range want.Relations {
		if got.Relations[i] != want.Relations[i] {
			t.Fatalf("Relations[%d] = %v, want %v", i, got.Relations[i], want.Relations[i])
		}
	}
}
