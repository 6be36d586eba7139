package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

// ConnectionPool owns one Store per connection string and database name.
// Stores are created on first use and shared until Close.
type ConnectionPool struct {
	dial     Dialer
	attempts uint
	delay    time.Duration
	log      *zap.SugaredLogger
	conns    sync.Map
	closed   atomic.Bool

	// timeout bounds one establishment including its retries. Zero
	// leaves it to the dialer.
	timeout time.Duration
}

// pstate is the establishment state of one key. done is closed once st
// or err is set.
type pstate struct {
	done chan struct{}
	st   Store
	err  error
}

// NewConnectionPool creates a pool using dial to open stores. Failed
// dials are retried attempts times with a delay of attempt * delay.
func NewConnectionPool(dial Dialer, attempts uint, delay time.Duration, log *zap.SugaredLogger) *ConnectionPool {
	if attempts == 0 {
		attempts = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ConnectionPool{
		dial:     dial,
		attempts: attempts,
		delay:    delay,
		log:      log,
	}
}

func poolKey(connString, dbName string) string {
	return connString + "\x00" + dbName
}

// Acquire returns the shared store for the pair, establishing it on first
// use. Concurrent first callers wait for a single establishment. A failed
// establishment is not cached.
func (p *ConnectionPool) Acquire(c context.Context, connString, dbName string) (Store, error) {
	if p.closed.Load() {
		return nil, connectionError(nil, "connection pool is closed")
	}
	if connString == "" || dbName == "" {
		return nil, notFoundError("tenant has no connection string or database name")
	}

	key := poolKey(connString, dbName)
	val, loaded := p.conns.LoadOrStore(key, &pstate{done: make(chan struct{})})
	ps := val.(*pstate)

	// the shared establishment must not fail because its first caller
	// went away
	if !loaded {
		go p.start(context.WithoutCancel(c), key, ps, connString, dbName)
	}

	select {
	case <-ps.done:
		return ps.st, ps.err
	case <-c.Done():
		return nil, connectionError(c.Err(), "waiting for connection to '%s'", dbName)
	}
}

func (p *ConnectionPool) start(c context.Context, key string, ps *pstate, connString, dbName string) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, p.timeout)
		defer cancel()
	}

	ps.st, ps.err = p.establish(c, connString, dbName)

	if ps.err == nil && p.closed.Load() {
		ps.st.Close(context.Background()) //nolint:errcheck
		ps.st, ps.err = nil, connectionError(nil, "connection pool is closed")
	}
	if ps.err != nil {
		p.conns.CompareAndDelete(key, ps)
	}
	close(ps.done)
}

func (p *ConnectionPool) establish(c context.Context, connString, dbName string) (Store, error) {
	var st Store

	err := retry.Do(
		func() (err error) {
			st, err = p.dial(c, connString, dbName)
			return
		},
		retry.Attempts(p.attempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * p.delay
		}),
		retry.OnRetry(func(n uint, err error) {
			p.log.Warnf("connection attempt %d to '%s' failed: %s", n+1, dbName, err)
		}),
		retry.Context(c),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, connectionError(err, "unable to connect to database '%s'", dbName)
	}

	p.log.Infof("connected to database: %s", dbName)
	return st, nil
}

// Len returns the number of established stores
func (p *ConnectionPool) Len() int {
	n := 0
	p.conns.Range(func(_, v any) bool {
		ps := v.(*pstate)
		select {
		case <-ps.done:
			if ps.err == nil {
				n++
			}
		default:
		}
		return true
	})
	return n
}

// Close closes every established store. Acquire fails afterwards.
func (p *ConnectionPool) Close(c context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	p.conns.Range(func(k, v any) bool {
		ps := v.(*pstate)
		select {
		case <-ps.done:
		case <-c.Done():
			errs = append(errs, c.Err())
			return false
		}
		if ps.err == nil {
			if err := ps.st.Close(c); err != nil {
				errs = append(errs, err)
			}
		}
		p.conns.Delete(k)
		return true
	})
	return errors.Join(errs...)
}
