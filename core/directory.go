package core

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/patel-ankitb/nestproject-sub000/mongodriver"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TenantID identifies a tenant by API key or app name. The API key wins
// when both are set.
type TenantID struct {
	APIKey  string
	AppName string
}

func (t TenantID) key() string {
	if k := strings.TrimSpace(t.APIKey); k != "" {
		return "key:" + k
	}
	if n := strings.TrimSpace(t.AppName); n != "" {
		return "app:" + strings.ToLower(n)
	}
	return ""
}

// TenantConfig is the resolved configuration of one tenant
type TenantConfig struct {
	Key        string
	ConnString string
	Database   string
	Modules    []ModuleDescriptor
}

// Module returns the allowed module matching name
func (tc *TenantConfig) Module(name string) (ModuleDescriptor, error) {
	for _, m := range tc.Modules {
		if m.Matches(name) {
			return m, nil
		}
	}
	return ModuleDescriptor{}, notFoundError("module '%s' is not enabled for this tenant", name)
}

type tenantRecord struct {
	ConnectionString string `mapstructure:"connectionString"`
	DatabaseName     string `mapstructure:"databaseName"`
	AllowedModules   any    `mapstructure:"allowedModules"`
}

// TenantDirectory resolves tenants against the central configuration
// database and caches every successful resolution.
type TenantDirectory struct {
	conf  *Config
	pool  *ConnectionPool
	cache tenantCache
	group singleflight.Group
	log   *zap.SugaredLogger
}

func NewTenantDirectory(conf *Config, pool *ConnectionPool, log *zap.SugaredLogger) (*TenantDirectory, error) {
	c, err := newTenantCache(conf.TenantCacheSize)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TenantDirectory{conf: conf, pool: pool, cache: c, log: log}, nil
}

// Resolve returns the tenant configuration for id
func (td *TenantDirectory) Resolve(c context.Context, id TenantID) (*TenantConfig, error) {
	key := id.key()
	if key == "" {
		return nil, validationError("an api key or app name is required")
	}

	if tc, ok := td.cache.Get(key); ok {
		return tc, nil
	}

	// the shared lookup outlives callers that give up waiting
	ch := td.group.DoChan(key, func() (any, error) {
		if tc, ok := td.cache.Get(key); ok {
			return tc, nil
		}
		td.log.Debugf("tenant cache miss: %s", id.label())

		c1, cancel := context.WithTimeout(context.WithoutCancel(c), td.timeout())
		defer cancel()

		tc, err := td.lookup(c1, id, key)
		if err != nil {
			return nil, err
		}
		td.cache.Set(key, tc)
		return tc, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*TenantConfig), nil
	case <-c.Done():
		return nil, connectionError(c.Err(), "waiting for %s", id.label())
	}
}

// timeout bounds one shared lookup: establishing the central connection
// and reading the tenant document
func (td *TenantDirectory) timeout() time.Duration {
	d := establishTimeout(td.conf)
	if td.conf.OperationTimeout > 0 {
		return d + td.conf.OperationTimeout
	}
	return d + td.conf.ServerSelectionTimeout
}

// FindModule resolves id and returns its allowed module matching name
func (td *TenantDirectory) FindModule(c context.Context, id TenantID, name string) (ModuleDescriptor, error) {
	tc, err := td.Resolve(c, id)
	if err != nil {
		return ModuleDescriptor{}, err
	}
	return tc.Module(name)
}

func (td *TenantDirectory) lookup(c context.Context, id TenantID, key string) (*TenantConfig, error) {
	central, err := td.pool.Acquire(c, td.conf.Central.ConnString, td.conf.Central.Database)
	if err != nil {
		return nil, err
	}

	var coll string
	var filter map[string]any

	if k := strings.TrimSpace(id.APIKey); k != "" {
		coll = td.conf.Central.ConfigCollection
		filter = map[string]any{td.conf.Central.KeyField: k}
	} else {
		coll = td.conf.Central.AppsCollection
		filter = map[string]any{"name": map[string]any{
			"$regex":   "^" + regexp.QuoteMeta(strings.TrimSpace(id.AppName)) + "$",
			"$options": "i",
		}}
	}

	doc, err := central.FindOne(c, coll, filter)
	if errors.Is(err, mongodriver.ErrNotFound) {
		return nil, notFoundError("no configuration found for %s", id.label())
	}
	if err != nil {
		return nil, executionError(err, "tenant lookup failed")
	}

	var r tenantRecord
	if err := decode(doc, &r); err != nil {
		return nil, executionError(err, "invalid configuration for %s", id.label())
	}
	if r.ConnectionString == "" || r.DatabaseName == "" {
		return nil, notFoundError("configuration for %s has no connection string or database name", id.label())
	}

	mods, err := parseModuleList(r.AllowedModules)
	if err != nil {
		return nil, executionError(err, "invalid allowed modules for %s", id.label())
	}

	return &TenantConfig{
		Key:        key,
		ConnString: r.ConnectionString,
		Database:   r.DatabaseName,
		Modules:    mods,
	}, nil
}

// label names the tenant in messages without leaking the API key
func (t TenantID) label() string {
	if k := strings.TrimSpace(t.APIKey); k != "" {
		if len(k) > 4 {
			k = k[:4]
		}
		return "api key " + k + "..."
	}
	return "app '" + strings.TrimSpace(t.AppName) + "'"
}
