package pgstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
	"github.com/egv/autotask/internal/contracts/conformance"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "autotask",
			"POSTGRES_PASSWORD": "autotask",
			"POSTGRES_DB":       "autotask",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://autotask:autotask@%s:%s/autotask?sslmode=disable", host, port.Port())

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func resetTables(t *testing.T, store *Store) {
	t.Helper()
	_, err := store.db.Exec("TRUNCATE catalog_tasks, catalog_relations, catalog_meta")
	require.NoError(t, err)
}

func TestPostgresStore(t *testing.T) {
	store := setupStore(t)

	t.Run("conformance", func(t *testing.T) {
		conformance.RunCatalogStoreSuite(t, conformance.CatalogStoreConfig{
			Backend: "postgres",
			NewStore: func(t *testing.T) contracts.CatalogStore {
				resetTables(t, store)
				return store
			},
		})
	})

	t.Run("migrate is idempotent", func(t *testing.T) {
		require.NoError(t, store.Migrate())
		version, dirty, err := store.SchemaVersion()
		require.NoError(t, err)
		assert.Equal(t, uint(1), version)
		assert.False(t, dirty)
	})

	t.Run("rows keep catalog positions", func(t *testing.T) {
		resetTables(t, store)
		require.NoError(t, store.SaveCatalog(context.Background(), catalog.SampleCatalog()))

		var types []string
		require.NoError(t, store.db.Select(&types, "SELECT type FROM catalog_relations WHERE from_id = '12' ORDER BY position"))
		assert.Equal(t, []string{"depends_on", "condition"}, types)

		var prerequisites string
		require.NoError(t, store.db.Get(&prerequisites, "SELECT prerequisites FROM catalog_tasks WHERE id = '5'"))
		assert.JSONEq(t, `["2","3"]`, prerequisites)
	})

	t.Run("schema rejects unknown relation types", func(t *testing.T) {
		_, err := store.db.Exec("INSERT INTO catalog_relations (position, from_id, to_id, type) VALUES (999, 'a', 'b', 'blocks')")
		assert.Error(t, err)
	})
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}
