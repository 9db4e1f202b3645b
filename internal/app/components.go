package app

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"bookshelf/internal/bookcache"
	"bookshelf/internal/catalog"
	"bookshelf/internal/changefeed"
	"bookshelf/internal/changefeed/natsfeed"
	"bookshelf/internal/changefeed/pollfeed"
	"bookshelf/internal/config"
	"bookshelf/internal/library"
	"bookshelf/internal/localstore"
	"bookshelf/internal/parser"
	"bookshelf/internal/storage"
	"bookshelf/internal/storage/ch"
	"bookshelf/internal/storage/stubs"
	"bookshelf/internal/syncer"
)

// Components is the sync core shared by the daemon and the admin CLI
type Components struct {
	Config  *config.Config
	Local   *localstore.Store
	Cache   *bookcache.Cache
	Remote  storage.Storage
	Engine  *syncer.Engine
	Watcher *syncer.Watcher
	Library *library.Service
	// Collections holds favorites and quotes, which live only remotely
	Collections *library.Collections
	// Catalog is nil when no proxy is configured
	Catalog *catalog.Client

	closers []func() error
	logger  *zap.Logger
}

// Open builds the components described by cfg. Metrics are registered on
// reg when it is non-nil.
func Open(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg, logger: logger}
	if err := c.open(reg); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) open(reg prometheus.Registerer) error {
	cfg := c.Config
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if err := c.initLocal(); err != nil {
		return err
	}

	cacheBackend := bookcache.NewSQLiteBackend(cfg.CachePath())
	c.closers = append(c.closers, cacheBackend.Close)
	c.Cache = bookcache.New(cacheBackend, c.logger.Named("cache"))

	remote, err := c.initRemote()
	if err != nil {
		return err
	}

	feed, remote, err := c.initFeed(remote)
	if err != nil {
		return err
	}
	c.Remote = remote

	var metrics *syncer.Metrics
	if reg != nil {
		metrics = syncer.NewMetrics(reg)
	}
	c.Engine = syncer.NewEngine(c.Local, c.Cache, c.Remote, c.logger.Named("sync"), metrics)
	c.Watcher = syncer.NewWatcher(c.Engine, feed, cfg.Debounce, c.logger.Named("watch"))

	var fetcher catalog.Fetcher
	if cfg.CatalogProxyURL != "" {
		client, err := catalog.NewClient(cfg.CatalogProxyURL)
		if err != nil {
			return fmt.Errorf("failed to create catalog client: %w", err)
		}
		fetcher = client
		c.Catalog = client
	}
	// only PDF is built in; FB2 books open from the cache until a parser is registered
	c.Library = library.NewService(c.Local, c.Cache, fetcher, parser.NewRegistry(), c.logger.Named("library"))
	c.Collections = library.NewCollections(c.Remote, c.Local, cfg.UserID, c.logger.Named("collections"))
	return nil
}

func (c *Components) initLocal() error {
	cfg := c.Config
	var backend localstore.Backend
	switch cfg.StateBackend {
	case config.StateBackendFile:
		fb, err := localstore.NewFileBackend(cfg.StatePath())
		if err != nil {
			return fmt.Errorf("failed to open state file: %w", err)
		}
		backend = fb
	default:
		bb, err := localstore.OpenBoltBackend(cfg.StatePath())
		if err != nil {
			return fmt.Errorf("failed to open state database: %w", err)
		}
		c.closers = append(c.closers, bb.Close)
		backend = bb
	}
	c.logger.Info("Local state opened",
		zap.String("backend", cfg.StateBackend),
		zap.String("path", cfg.StatePath()),
	)
	c.Local = localstore.New(backend, c.logger.Named("state"))
	return nil
}

// initRemote connects to the remote library store
func (c *Components) initRemote() (storage.Storage, error) {
	cfg := c.Config
	var db storage.Storage
	if cfg.UseMockDB {
		c.logger.Info("Using mock database")
		db = stubs.NewMockDB()
	} else {
		c.logger.Info("Connecting to ClickHouse",
			zap.String("host", cfg.ClickHouseHost),
			zap.Int("port", cfg.ClickHousePort),
			zap.String("database", cfg.ClickHouseDatabase),
			zap.String("user", cfg.ClickHouseUser),
			zap.Bool("tls", cfg.ClickHouseUseTLS),
		)
		clickhouseDB, err := ch.NewClickHouseDB(
			cfg.ClickHouseHost,
			cfg.ClickHousePort,
			cfg.ClickHouseDatabase,
			cfg.ClickHouseUser,
			cfg.ClickHousePassword,
			cfg.ClickHouseUseTLS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		db = clickhouseDB
	}
	c.closers = append(c.closers, db.Close)

	if err := db.Initialize(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized successfully")
	return db, nil
}

// initFeed picks the change transport: NATS when configured, polling when
// the store can fingerprint a user's rows, in-process otherwise. Push
// transports need every write announced, so the store is wrapped.
func (c *Components) initFeed(remote storage.Storage) (changefeed.Feed, storage.Storage, error) {
	cfg := c.Config
	logger := c.logger.Named("feed")

	if cfg.NATSURL != "" {
		nf, err := natsfeed.Connect(cfg.NATSURL, logger)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, nf.Close)
		logger.Info("Using NATS change feed", zap.String("url", cfg.NATSURL))
		return nf, changefeed.Publishing(remote, nf, logger), nil
	}

	if v, ok := remote.(storage.Versioner); ok {
		logger.Info("Using polling change feed", zap.String("schedule", cfg.PollSchedule))
		return pollfeed.New(v, cfg.PollSchedule, logger), remote, nil
	}

	local := changefeed.NewLocal()
	logger.Info("Using in-process change feed")
	return local, changefeed.Publishing(remote, local, logger), nil
}

// Close releases stores and connections in reverse order of opening
func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("Error during close", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	c.closers = nil
	return first
}
