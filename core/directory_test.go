package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T, central *memStore) *TenantDirectory {
	t.Helper()

	conf := &Config{Central: Central{ConnString: "mongodb://central", Database: "central"}}
	conf.setDefaults()

	d := newMemDialer().add("central", central)
	pool := NewConnectionPool(d.dial, 1, time.Millisecond, nil)

	td, err := NewTenantDirectory(conf, pool, nil)
	require.NoError(t, err)
	return td
}

func centralStore() *memStore {
	return newMemStore().
		put("appconfig",
			map[string]any{
				"apiKey":           "key-1",
				"connectionString": "mongodb://tenant",
				"databaseName":     "t1",
				"allowedModules": []any{
					"orders",
					map[string]any{"moduleName": " Leads ", "addPermission": false},
					map[string]any{"name": "tasks", "editPermission": "false"},
				},
			},
			map[string]any{
				"apiKey":           "key-nodb",
				"connectionString": "mongodb://tenant",
			}).
		put("apps", map[string]any{
			"name":             "ShopApp",
			"connectionString": "mongodb://tenant",
			"databaseName":     "t2",
			"allowedModules":   []any{map[string]any{"module": "Products"}},
		})
}

func TestResolveByAPIKey(t *testing.T) {
	central := centralStore()
	td := newTestDirectory(t, central)

	tc, err := td.Resolve(context.Background(), TenantID{APIKey: "key-1"})
	require.NoError(t, err)

	assert.Equal(t, "mongodb://tenant", tc.ConnString)
	assert.Equal(t, "t1", tc.Database)
	require.Len(t, tc.Modules, 3)
	assert.Equal(t, ModuleSimple, tc.Modules[0].Kind)
	assert.Equal(t, "Leads", tc.Modules[1].Name)
	assert.False(t, tc.Modules[1].CanAdd())
	assert.True(t, tc.Modules[1].CanEdit())
	assert.False(t, tc.Modules[2].CanEdit())

	reads := central.reads
	tc2, err := td.Resolve(context.Background(), TenantID{APIKey: "key-1"})
	require.NoError(t, err)
	assert.Same(t, tc, tc2)
	assert.Equal(t, reads, central.reads)
}

func TestResolveByAppName(t *testing.T) {
	td := newTestDirectory(t, centralStore())

	tc, err := td.Resolve(context.Background(), TenantID{AppName: "shopapp"})
	require.NoError(t, err)
	assert.Equal(t, "t2", tc.Database)

	m, err := tc.Module("products")
	require.NoError(t, err)
	assert.Equal(t, "Products", m.Name)
	assert.Equal(t, ModuleDetailed, m.Kind)
}

func TestResolveAPIKeyWins(t *testing.T) {
	td := newTestDirectory(t, centralStore())

	tc, err := td.Resolve(context.Background(), TenantID{APIKey: "key-1", AppName: "ShopApp"})
	require.NoError(t, err)
	assert.Equal(t, "t1", tc.Database)
}

func TestResolveFailures(t *testing.T) {
	central := centralStore()
	td := newTestDirectory(t, central)

	_, err := td.Resolve(context.Background(), TenantID{})
	assert.Equal(t, ErrValidation, KindOf(err))

	tc, err := td.Resolve(context.Background(), TenantID{APIKey: "unknown"})
	assert.Equal(t, ErrNotFound, KindOf(err))
	assert.Nil(t, tc)

	tc, err = td.Resolve(context.Background(), TenantID{APIKey: "key-nodb"})
	assert.Equal(t, ErrNotFound, KindOf(err))
	assert.Nil(t, tc)

	// failures are looked up again
	reads := central.reads
	_, err = td.Resolve(context.Background(), TenantID{APIKey: "unknown"})
	assert.Error(t, err)
	assert.Equal(t, reads+1, central.reads)
	assert.Equal(t, 0, td.cache.Len())
}

func TestResolveConcurrent(t *testing.T) {
	central := centralStore()
	td := newTestDirectory(t, central)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := td.Resolve(context.Background(), TenantID{APIKey: "key-1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, central.reads)
}

func TestResolveCallerCancelled(t *testing.T) {
	central := centralStore()
	conf := &Config{Central: Central{ConnString: "mongodb://central", Database: "central"}}
	conf.setDefaults()

	d := newMemDialer().add("central", central)
	d.gate = make(chan struct{})
	td, err := NewTenantDirectory(conf, NewConnectionPool(d.dial, 1, time.Millisecond, nil), nil)
	require.NoError(t, err)

	c, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := td.Resolve(c, TenantID{APIKey: "key-1"})
		first <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	err = <-first
	assert.Equal(t, ErrConnection, KindOf(err))

	second := make(chan *TenantConfig, 1)
	go func() {
		tc, err := td.Resolve(context.Background(), TenantID{APIKey: "key-1"})
		assert.NoError(t, err)
		second <- tc
	}()

	close(d.gate)
	tc := <-second
	require.NotNil(t, tc)
	assert.Equal(t, "t1", tc.Database)
	assert.Equal(t, 1, central.reads)
}

func TestFindModule(t *testing.T) {
	td := newTestDirectory(t, centralStore())
	id := TenantID{APIKey: "key-1"}

	m, err := td.FindModule(context.Background(), id, "  LEADS")
	require.NoError(t, err)
	assert.Equal(t, "Leads", m.Name)

	_, err = td.FindModule(context.Background(), id, "invoices")
	assert.Equal(t, ErrNotFound, KindOf(err))
}
