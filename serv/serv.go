package serv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/patel-ankitb/nestproject-sub000/core"
	"github.com/patel-ankitb/nestproject-sub000/serv/internal/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version string

const (
	serverName = "TenantDB"
	defaultHP  = "0.0.0.0:8080"
)

const (
	servStarting int32 = iota
	servListening
	servClosed
)

// Engine is the part of the data-access engine the HTTP layer uses
type Engine interface {
	Do(c context.Context, req *core.Request) (*core.Response, error)
	Ping(c context.Context) error
	Close(c context.Context) error
}

// HttpService holds the running service. The service is swapped
// atomically when the config is reloaded.
type HttpService struct {
	atomic.Value
	opt   []Option
	state atomic.Int32
	srv   *http.Server
}

type dataService struct {
	conf     *Config
	log      *zap.SugaredLogger
	zlog     *zap.Logger
	engine   Engine
	trace    core.Tracer
	dial     core.Dialer
	validate *validator.Validate
	limiter  *ipLimiter
	wrap     []func(http.Handler) http.Handler
	onClose  []func(context.Context) error

	chainOnce sync.Once
	chain     http.Handler
}

type Option func(*dataService) error

// OptionSetEngine replaces the engine built from the config
func OptionSetEngine(e Engine) Option {
	return func(s *dataService) error {
		s.engine = e
		return nil
	}
}

// OptionSetTrace sets the tracer handed to the engine
func OptionSetTrace(t core.Tracer) Option {
	return func(s *dataService) error {
		s.trace = t
		return nil
	}
}

// OptionSetDialer sets the dialer handed to the engine
func OptionSetDialer(d core.Dialer) Option {
	return func(s *dataService) error {
		s.dial = d
		return nil
	}
}

// OptionSetMiddleware adds a middleware around the data route. The
// first one added is the outermost.
func OptionSetMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(s *dataService) error {
		s.wrap = append(s.wrap, mw)
		return nil
	}
}

// OptionOnClose registers fn to run when the service is closed. Hooks
// run in the order they were added, after the engine is closed.
func OptionOnClose(fn func(context.Context) error) Option {
	return func(s *dataService) error {
		s.onClose = append(s.onClose, fn)
		return nil
	}
}

// OptionSetLogger replaces the logger built from the config
func OptionSetLogger(zlog *zap.Logger) Option {
	return func(s *dataService) error {
		s.zlog = zlog
		s.log = zlog.Sugar()
		return nil
	}
}

// NewHttpService creates the service. Connections are opened lazily on
// the first request.
func NewHttpService(conf *Config, options ...Option) (*HttpService, error) {
	s1 := &HttpService{opt: options}

	s, err := newDataService(conf, options...)
	if err != nil {
		return nil, err
	}
	s1.Store(s)

	if conf.WatchAndReload && !conf.Serv.Production && conf.viper != nil {
		initConfigWatcher(s1)
	}
	return s1, nil
}

func newDataService(conf *Config, options ...Option) (*dataService, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}

	s := &dataService{
		conf:     conf,
		validate: validator.New(),
	}

	s.zlog = util.NewLogger(conf.ShouldUseJSONLogs(), conf.LogLevel)
	s.log = s.zlog.Sugar()

	for _, op := range options {
		if err := op(s); err != nil {
			return nil, err
		}
	}

	if err := s.initConfig(); err != nil {
		return nil, err
	}

	if s.engine == nil {
		opts := []core.Option{core.OptionSetLogger(s.log)}
		if s.trace != nil {
			opts = append(opts, core.OptionSetTrace(s.trace))
		}
		if s.dial != nil {
			opts = append(opts, core.OptionSetDialer(s.dial))
		}

		e, err := core.NewEngine(&conf.Core, opts...)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		s.engine = e
	}

	if conf.rateLimiterEnable() {
		var err error
		if s.limiter, err = newIPLimiter(conf.RateLimiter); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// initConfig fills in the listen address and service defaults
func (s *dataService) initConfig() error {
	c := s.conf

	hp := strings.SplitN(c.HostPort, ":", 2)

	if len(hp) == 2 {
		if c.Host != "" {
			hp[0] = c.Host
		}

		if c.Port != "" {
			hp[1] = c.Port
		}

		c.hostPort = fmt.Sprintf("%s:%s", hp[0], hp[1])
	}

	if c.hostPort == "" {
		c.hostPort = defaultHP
	}

	if c.APIKeyHeader == "" {
		c.APIKeyHeader = "X-API-Key"
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 5 * time.Second
	}
	return nil
}

func (s1 *HttpService) load() *dataService {
	return s1.Load().(*dataService)
}

// Start the HTTP server and block until it is shut down
func (s1 *HttpService) Start() error {
	startHTTP(s1)
	return nil
}

// Attach the routes to an existing router
func (s1 *HttpService) Attach(mux chi.Router) error {
	_, err := routesHandler(s1, mux)
	return err
}

// Handler returns the routes on a new router
func (s1 *HttpService) Handler() (http.Handler, error) {
	return routesHandler(s1, chi.NewRouter())
}

// Close releases the engine of the current service and runs its close
// hooks. Every hook runs even when an earlier one fails.
func (s1 *HttpService) Close(c context.Context) error {
	s1.state.Store(servClosed)
	s := s1.load()

	errs := []error{s.engine.Close(c)}
	for _, fn := range s.onClose {
		errs = append(errs, fn(c))
	}
	return errors.Join(errs...)
}

// initConfigWatcher reloads the service when the config file changes
func initConfigWatcher(s1 *HttpService) {
	s := s1.load()
	vi := s.conf.viper

	vi.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := s1.reload(); err != nil {
			s1.load().log.Errorf("config reload failed: %s", err)
			return
		}
		s1.load().log.Infof("reloaded config: %s", e.Name)
	})
	vi.WatchConfig()
}

// reload rebuilds the service from the config file and swaps it in
func (s1 *HttpService) reload() error {
	old := s1.load()
	cf := old.conf.viper.ConfigFileUsed()

	conf, err := ReadInConfig(cf)
	if err != nil {
		return err
	}

	// keep injected collaborators
	opts := append([]Option{}, s1.opt...)

	s, err := newDataService(conf, opts...)
	if err != nil {
		return err
	}
	s1.Store(s)

	if s.engine != old.engine {
		c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := old.engine.Close(c); err != nil {
			s.log.Warnf("closing previous engine: %s", err)
		}
	}
	return nil
}

// Start the HTTP server
func startHTTP(s1 *HttpService) {
	s := s1.load()

	routes, err := s1.Handler()
	if err != nil {
		s.log.Fatalf("error setting up routes: %s", err)
	}

	s1.srv = &http.Server{
		Addr:              s.conf.hostPort,
		Handler:           routes,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		if err := s1.srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("shutdown signal received")
		}
		close(idleConnsClosed)
	}()

	s1.srv.RegisterOnShutdown(func() {
		c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cur := s1.load()
		if err := s1.Close(c); err != nil {
			cur.log.Warnf("closing engine: %s", err)
		}
		cur.log.Info("shutdown complete")
	})

	ver := version
	if ver == "" {
		ver = "not-set"
	}

	fields := []zapcore.Field{
		zap.String("version", ver),
		zap.String("host-port", s.conf.hostPort),
		zap.String("app-name", s.conf.AppName),
		zap.String("env", os.Getenv("GO_ENV")),
		zap.Bool("production", s.conf.Serv.Production),
		zap.String("central-db", s.conf.Central.Database),
	}

	s.zlog.Info("TenantDB started", fields...)

	l, err := net.Listen("tcp", s.conf.hostPort)
	if err != nil {
		s.log.Fatalf("failed to init port: %s", err)
	}

	// signal we are open for business.
	s1.state.Store(servListening)

	if err := s1.srv.Serve(l); err != http.ErrServerClosed {
		s.log.Fatalf("failed to start: %s", err)
	}
	<-idleConnsClosed
}
