package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	RowFilterMerge = "merge"
	RowFilterAnd   = "and"
)

// Configuration for the data-access engine
type Config struct {
	// Central configuration database holding tenant records
	Central Central `mapstructure:"central" json:"central" yaml:"central"`

	// Timeout used when establishing a tenant connection
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout" yaml:"connect_timeout"`

	// Timeout used for server selection on a tenant connection
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout" json:"server_selection_timeout" yaml:"server_selection_timeout"`

	// Per-operation timeout enforced by the driver. Zero keeps the driver default.
	OperationTimeout time.Duration `mapstructure:"operation_timeout" json:"operation_timeout" yaml:"operation_timeout"`

	// Max connections held by each tenant connection pool
	MaxPoolSize uint64 `mapstructure:"max_pool_size" json:"max_pool_size" yaml:"max_pool_size"`

	// Number of attempts made to establish a tenant connection
	RetryAttempts uint `mapstructure:"retry_attempts" json:"retry_attempts" yaml:"retry_attempts"`

	// Base delay between attempts, multiplied by the attempt number
	RetryDelay time.Duration `mapstructure:"retry_delay" json:"retry_delay" yaml:"retry_delay"`

	// Number of resolved tenants kept in memory
	TenantCacheSize int `mapstructure:"tenant_cache_size" json:"tenant_cache_size" yaml:"tenant_cache_size"`

	// How long role documents are cached. Zero disables the cache.
	RoleCacheTTL time.Duration `mapstructure:"role_cache_ttl" json:"role_cache_ttl" yaml:"role_cache_ttl"`

	// Page size used when a fetch does not set a limit
	DefaultLimit int64 `mapstructure:"default_limit" json:"default_limit" yaml:"default_limit"`

	// How the role row filter is combined with the caller filter: merge or and
	RowFilterMode string `mapstructure:"row_filter_mode" json:"row_filter_mode" yaml:"row_filter_mode"`

	CompanyCollection string `mapstructure:"company_collection" json:"company_collection" yaml:"company_collection"`
	CompanyField      string `mapstructure:"company_field" json:"company_field" yaml:"company_field"`
	UserCollection    string `mapstructure:"user_collection" json:"user_collection" yaml:"user_collection"`
	RoleCollection    string `mapstructure:"role_collection" json:"role_collection" yaml:"role_collection"`
}

// Central database settings
type Central struct {
	ConnString string `mapstructure:"connection_string" json:"connection_string" yaml:"connection_string"`
	Database   string `mapstructure:"database" json:"database" yaml:"database"`

	// Collection of tenant records looked up by API key
	ConfigCollection string `mapstructure:"config_collection" json:"config_collection" yaml:"config_collection"`

	// Collection of tenant records looked up by app name
	AppsCollection string `mapstructure:"apps_collection" json:"apps_collection" yaml:"apps_collection"`

	// Field in the config collection holding the API key
	KeyField string `mapstructure:"key_field" json:"key_field" yaml:"key_field"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Central.ConnString == "" {
		return fmt.Errorf("central.connection_string is required")
	}
	if c.Central.Database == "" {
		return fmt.Errorf("central.database is required")
	}
	switch strings.ToLower(c.RowFilterMode) {
	case "", RowFilterMerge, RowFilterAnd:
	default:
		return fmt.Errorf("unsupported row_filter_mode %q: supported modes are %s, %s",
			c.RowFilterMode, RowFilterMerge, RowFilterAnd)
	}
	if c.DefaultLimit < 0 {
		return fmt.Errorf("default_limit cannot be negative")
	}
	return nil
}

// setDefaults fills in every unset field
func (c *Config) setDefaults() {
	if c.Central.ConfigCollection == "" {
		c.Central.ConfigCollection = "appconfig"
	}
	if c.Central.AppsCollection == "" {
		c.Central.AppsCollection = "apps"
	}
	if c.Central.KeyField == "" {
		c.Central.KeyField = "apiKey"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ServerSelectionTimeout == 0 {
		c.ServerSelectionTimeout = 10 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.TenantCacheSize == 0 {
		c.TenantCacheSize = 1000
	}
	if c.DefaultLimit == 0 {
		c.DefaultLimit = 10
	}
	if c.RowFilterMode == "" {
		c.RowFilterMode = RowFilterMerge
	}
	c.RowFilterMode = strings.ToLower(c.RowFilterMode)
	if c.CompanyCollection == "" {
		c.CompanyCollection = "company"
	}
	if c.CompanyField == "" {
		c.CompanyField = "companyId"
	}
	if c.UserCollection == "" {
		c.UserCollection = "appuser"
	}
	if c.RoleCollection == "" {
		c.RoleCollection = "approle"
	}
}
