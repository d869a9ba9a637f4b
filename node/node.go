// Package node wires the components of a netmesh node together.
package node

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/grafana/pyroscope-go"
	lp2plog "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/config"
	"github.com/infogrid/netmesh/log"
	"github.com/infogrid/netmesh/metrics"
	"github.com/infogrid/netmesh/netmesh"
	"github.com/infogrid/netmesh/proxy"
	"github.com/infogrid/netmesh/scheduler"
	"github.com/infogrid/netmesh/sql"
	"github.com/infogrid/netmesh/store"
	"github.com/infogrid/netmesh/sweeper"
	"github.com/infogrid/netmesh/transport/httpt"
	"github.com/infogrid/netmesh/transport/p2p"
)

const (
	dbFile       = "netmesh.sql"
	stopTimeout  = 10 * time.Second
	readTimeout  = 5 * time.Second
	appLoggerKey = "app"
)

// Option to modify an App instance.
type Option func(app *App)

// WithLog overwrites the root logger. Module levels still apply.
func WithLog(logger *zap.Logger) Option {
	return func(app *App) {
		app.logger = logger
	}
}

// WithConfig overwrites the default App config.
func WithConfig(conf *config.Config) Option {
	return func(app *App) {
		app.Config = conf
	}
}

// New creates a netmesh node. Nothing is started before Start.
func New(opts ...Option) *App {
	defaultConfig := config.DefaultConfig()
	app := &App{
		Config:  &defaultConfig,
		loggers: map[string]zap.AtomicLevel{},
		started: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// App is a running netmesh node.
type App struct {
	Config *config.Config

	logger      *zap.Logger
	loggers     map[string]zap.AtomicLevel
	initialized bool
	fileLock    *flock.Flock

	id      types.NetMeshBaseIdentifier
	db      *sql.Database
	mb      *netmesh.MeshBase
	sched   *scheduler.Scheduler
	manager *proxy.Manager
	sweeper  *sweeper.Sweeper
	metrics  *metrics.Server
	profiler *pyroscope.Profiler

	host       host.Host
	p2p        *p2p.Transport
	httpServer *http.Server
	listener   net.Listener

	cancel  context.CancelFunc
	eg      errgroup.Group
	started chan struct{}
}

// Started is closed once the node accepts messages.
func (app *App) Started() <-chan struct{} { return app.started }

func (app *App) Identifier() types.NetMeshBaseIdentifier { return app.id }

func (app *App) MeshBase() *netmesh.MeshBase { return app.mb }

func (app *App) Manager() *proxy.Manager { return app.manager }

// Addrs are the addresses other nodes can use to reach this one: multiaddrs
// including the peer id for p2p, the identifier for http.
func (app *App) Addrs() []string {
	if app.host == nil {
		return []string{app.id.String()}
	}
	info := peer.AddrInfo{ID: app.host.ID(), Addrs: app.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	rst := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		rst = append(rst, addr.String())
	}
	return rst
}

// Initialize validates the configuration and sets up logging.
func (app *App) Initialize() error {
	if err := app.Config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if app.logger == nil {
		logger, err := app.Config.Logging.Root()
		if err != nil {
			return err
		}
		app.logger = logger
	}
	for name, text := range app.Config.Logging.Modules() {
		lvl, err := log.ParseLevel(text)
		if err != nil {
			return fmt.Errorf("logging %s: %w", name, err)
		}
		app.loggers[name] = lvl
	}
	if err := os.MkdirAll(app.Config.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir %s: %w", app.Config.DataDir, err)
	}
	app.initialized = true
	return nil
}

func (app *App) addLogger(name string) *zap.Logger {
	lvl, exists := app.loggers[name]
	if !exists {
		return app.logger.Named(name)
	}
	return log.Module(app.logger, name, lvl)
}

// SetLogLevel changes the level of a module at runtime.
func (app *App) SetLogLevel(name, level string) error {
	lvl, exists := app.loggers[name]
	if !exists {
		return fmt.Errorf("unknown logger %s", name)
	}
	return lvl.UnmarshalText([]byte(level))
}

// Lock locks the data dir for exclusive use.
func (app *App) Lock() error {
	path := app.Config.FileLock()
	if _, err := os.Stat(filepath.Dir(path)); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("creating dir for lock %s: %w", path, err)
		}
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("flock %s: %w", path, err)
	} else if !locked {
		return fmt.Errorf("only one netmesh instance should be running (locking file %s)", fl.Path())
	}
	app.fileLock = fl
	return nil
}

// Unlock unlocks the data dir. It is a no-op if the app is not locked.
func (app *App) Unlock() {
	if app.fileLock == nil {
		return
	}
	if err := app.fileLock.Unlock(); err != nil {
		app.logger.Error("failed to unlock file",
			zap.String("path", app.fileLock.Path()),
			zap.Error(err),
		)
	}
	app.fileLock = nil
}

// Start brings up all components. On error the components started so far
// are left for Stop.
func (app *App) Start(ctx context.Context) error {
	if !app.initialized {
		if err := app.Initialize(); err != nil {
			return err
		}
	}
	ctx, app.cancel = context.WithCancel(ctx)
	logger := app.addLogger(appLoggerKey)

	db, err := sql.Open("file:"+filepath.Join(app.Config.DataDir, dbFile),
		sql.WithLogger(app.addLogger("store")),
		sql.WithLatencyMetering(app.Config.CollectMetrics),
	)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	app.db = db

	transport, err := app.setupTransport()
	if err != nil {
		return err
	}
	logger.Info("starting netmesh node",
		zap.Stringer("identifier", app.id),
		zap.String("transport", app.Config.Transport),
		zap.String("data dir", app.Config.DataDir),
	)

	app.mb, err = netmesh.New(ctx, app.id, store.NewSQL(db),
		netmesh.WithLogger(app.addLogger("meshbase")),
		netmesh.WithConfig(app.Config.MeshBase),
	)
	if err != nil {
		return fmt.Errorf("open meshbase: %w", err)
	}
	if _, err := app.mb.Restore(ctx); err != nil {
		return fmt.Errorf("restore meshbase: %w", err)
	}

	app.sched = scheduler.New(scheduler.WithLogger(app.addLogger("scheduler")))
	app.manager = proxy.New(app.mb, transport, app.sched,
		proxy.WithLogger(app.addLogger("proxy")),
		proxy.WithConfig(app.Config.Proxy),
	)
	app.serve(ctx)

	if app.Config.Sweeper.Enabled {
		policy, err := sweeper.ParsePolicy(app.Config.Sweeper.Policy, app.Config.Sweeper.MaxUnread)
		if err != nil {
			return err
		}
		app.sweeper = sweeper.New(app.mb, policy,
			sweeper.WithLogger(app.addLogger("sweeper")),
			sweeper.WithBatchSize(app.Config.Sweeper.BatchSize),
		)
		if err := app.sweeper.Start(app.sched, app.Config.Sweeper.Interval); err != nil {
			return err
		}
	}

	if app.Config.CollectMetrics {
		app.metrics, err = metrics.NewServer(logger.Named("metrics"), app.Config.MetricsAddr)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		app.metrics.Start()
	}
	if app.Config.ProfilerURL != "" {
		app.profiler, err = pyroscope.Start(pyroscope.Config{
			ApplicationName: app.Config.ProfilerName,
			ServerAddress:   app.Config.ProfilerURL,
		})
		if err != nil {
			return fmt.Errorf("cannot start profiling client: %w", err)
		}
	}
	close(app.started)
	logger.Info("node started", zap.Strings("addrs", app.Addrs()))
	return nil
}

func (app *App) setupTransport() (proxy.Transport, error) {
	logger := app.addLogger("transport")
	switch app.Config.Transport {
	case config.TransportP2P:
		key, err := EnsureIdentity(app.Config.DataDir)
		if err != nil {
			return nil, err
		}
		lp2plog.SetPrimaryCore(logger.Core())
		if lvl, err := lp2plog.LevelFromString(app.Config.Logging.TransportLoggerLevel); err == nil {
			lp2plog.SetAllLoggers(lvl)
		}
		listen, err := ma.NewMultiaddr(app.Config.Listen)
		if err != nil {
			return nil, fmt.Errorf("parse listen address %s: %w", app.Config.Listen, err)
		}
		h, err := libp2p.New(
			libp2p.Identity(key),
			libp2p.ListenAddrs(listen),
			libp2p.UserAgent("netmesh"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize libp2p host: %w", err)
		}
		app.host = h
		for _, bootnode := range app.Config.Bootnodes {
			addr, err := ma.NewMultiaddr(bootnode)
			if err != nil {
				return nil, fmt.Errorf("parse bootnode %s: %w", bootnode, err)
			}
			info, err := peer.AddrInfoFromP2pAddr(addr)
			if err != nil {
				return nil, fmt.Errorf("parse into peer.AddrInfo %s: %w", bootnode, err)
			}
			h.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
		}
		app.p2p = p2p.New(h, p2p.WithLogger(logger), p2p.WithConfig(app.Config.P2P))
		app.id = app.p2p.Identifier()
		return app.p2p, nil
	case config.TransportHTTP:
		lis, err := net.Listen("tcp", app.Config.Listen)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", app.Config.Listen, err)
		}
		app.listener = lis
		raw := app.Config.Identifier
		if raw == "" {
			raw = "http://" + lis.Addr().String() + "/"
		}
		app.id, err = types.DefaultMeshBaseIDFactory().FromExternalForm(raw)
		if err != nil {
			return nil, fmt.Errorf("parse identifier %s: %w", raw, err)
		}
		tr := httpt.New(httpt.WithLogger(logger), httpt.WithConfig(app.Config.HTTP))
		handler, err := tr.Handler(app.id)
		if err != nil {
			return nil, err
		}
		app.httpServer = &http.Server{Handler: handler, ReadHeaderTimeout: readTimeout}
		return tr, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", app.Config.Transport)
	}
}

func (app *App) serve(ctx context.Context) {
	switch {
	case app.p2p != nil:
		app.eg.Go(func() error {
			return app.p2p.Run(ctx)
		})
	case app.httpServer != nil:
		app.eg.Go(func() error {
			if err := app.httpServer.Serve(app.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		})
	}
}

// Stop shuts down all components in the reverse order of Start. It is safe
// to call after a failed Start.
func (app *App) Stop() error {
	var errs []error
	if app.profiler != nil {
		errs = append(errs, app.profiler.Stop())
	}
	if app.sweeper != nil {
		app.sweeper.Stop()
	}
	if app.manager != nil {
		app.manager.Close()
	}
	if app.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		errs = append(errs, app.httpServer.Shutdown(ctx))
		cancel()
	}
	if app.listener != nil {
		if err := app.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if app.cancel != nil {
		app.cancel()
	}
	errs = append(errs, app.eg.Wait())
	if app.host != nil {
		errs = append(errs, app.host.Close())
	}
	if app.sched != nil {
		app.sched.Close()
	}
	if app.mb != nil {
		app.mb.Close()
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if app.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		errs = append(errs, app.metrics.Stop(ctx))
		cancel()
	}
	return errors.Join(errs...)
}

// Run starts the node and blocks until ctx is canceled.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(); err != nil {
		return err
	}
	if err := app.Lock(); err != nil {
		return err
	}
	defer app.Unlock()
	if err := app.Start(ctx); err != nil {
		return errors.Join(err, app.Stop())
	}
	<-ctx.Done()
	app.logger.Info("stopping netmesh node")
	return app.Stop()
}
