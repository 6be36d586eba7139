package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Engine resolves tenants, applies role based access and translates
// generic requests into document store operations. It is safe for
// concurrent use.
type Engine struct {
	conf  *Config
	log   *zap.SugaredLogger
	trace Tracer
	dial  Dialer
	pool  *ConnectionPool
	dir   *TenantDirectory
	roles roleCache
}

type Option func(*Engine) error

// NewEngine creates an engine. No connection is opened until the first
// request.
func NewEngine(conf *Config, options ...Option) (*Engine, error) {
	if conf == nil {
		return nil, errors.New("engine config is required")
	}
	c := *conf
	c.setDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		conf:  &c,
		log:   zap.NewNop().Sugar(),
		trace: &tracer{},
	}

	for _, op := range options {
		if err := op(e); err != nil {
			return nil, err
		}
	}

	if e.dial == nil {
		e.dial = mongoDialer(e.conf)
	}

	var err error
	e.pool = NewConnectionPool(e.dial, e.conf.RetryAttempts, e.conf.RetryDelay, e.log)
	e.pool.timeout = establishTimeout(e.conf)

	if e.dir, err = NewTenantDirectory(e.conf, e.pool, e.log); err != nil {
		return nil, err
	}
	if e.roles, err = newRoleCache(e.conf.RoleCacheTTL); err != nil {
		return nil, err
	}
	return e, nil
}

// establishTimeout covers every dial attempt and the delays between them
func establishTimeout(c *Config) time.Duration {
	n := time.Duration(c.RetryAttempts)
	if n == 0 {
		n = 1
	}
	per := c.ConnectTimeout + c.ServerSelectionTimeout
	return n*per + n*(n+1)/2*c.RetryDelay
}

// OptionSetLogger sets the logger used by the engine
func OptionSetLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) error {
		e.log = log
		return nil
	}
}

// OptionSetTrace sets the tracer used by the engine
func OptionSetTrace(trace Tracer) Option {
	return func(e *Engine) error {
		e.trace = trace
		return nil
	}
}

// OptionSetDialer replaces the dialer used to open tenant databases
func OptionSetDialer(dial Dialer) Option {
	return func(e *Engine) error {
		if dial == nil {
			return errors.New("dialer cannot be nil")
		}
		e.dial = dial
		return nil
	}
}

// Config returns the effective configuration with defaults applied
func (e *Engine) Config() Config {
	return *e.conf
}

func (e *Engine) Pool() *ConnectionPool {
	return e.pool
}

func (e *Engine) Directory() *TenantDirectory {
	return e.dir
}

// Ping checks the central configuration database is reachable
func (e *Engine) Ping(c context.Context) error {
	st, err := e.pool.Acquire(c, e.conf.Central.ConnString, e.conf.Central.Database)
	if err != nil {
		return err
	}
	if err := st.Ping(c); err != nil {
		return connectionError(err, "central database is unreachable")
	}
	return nil
}

// Close releases every pooled connection
func (e *Engine) Close(c context.Context) error {
	t := time.Now()
	err := e.pool.Close(c)
	e.log.Infof("engine closed in %s", time.Since(t))
	return err
}
