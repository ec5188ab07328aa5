// Package engine wires the GigSync components into one lifecycle: the
// budgeted content cache over a persistent byte store, the durable
// mutation queue, the sync conductor, the preload scheduler, the
// connectivity monitor and the setlist catalog.
//
// The engine is UI-agnostic. Hosts embed it (the daemon does exactly
// this), drive it through its operations, and observe it through the
// event hub and the Status snapshot.
//
// Connectivity drives the interesting transitions: on Offline -> Online
// the engine first drains the mutation queue, then warms the cache for
// upcoming setlists — queued edits flush before new fetches compete for
// bandwidth. On Online -> Offline all in-flight preloads are cancelled;
// cached bytes stay usable.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/gigsync/gigsync/internal/clock"
	"github.com/gigsync/gigsync/internal/logger"
	"github.com/gigsync/gigsync/pkg/cache"
	"github.com/gigsync/gigsync/pkg/catalog"
	"github.com/gigsync/gigsync/pkg/config"
	promm "github.com/gigsync/gigsync/pkg/metrics/prometheus"
	"github.com/gigsync/gigsync/pkg/netmon"
	"github.com/gigsync/gigsync/pkg/preload"
	"github.com/gigsync/gigsync/pkg/queue"
	"github.com/gigsync/gigsync/pkg/remote"
	"github.com/gigsync/gigsync/pkg/retry"
	"github.com/gigsync/gigsync/pkg/store"
	"github.com/gigsync/gigsync/pkg/store/badger"
	"github.com/gigsync/gigsync/pkg/store/s3"
	"github.com/gigsync/gigsync/pkg/syncer"
)

// Byte store namespaces. The cache and the queue share the local store
// without ever seeing each other's keys.
const (
	nsCache = "cache"
	nsQueue = "queue"
)

// ErrNoRemote is returned by operations that need the remote content
// service when none is configured (cache-only mode).
var ErrNoRemote = fmt.Errorf("no remote content service configured")

// Option customizes engine construction. Used by tests to inject fakes.
type Option func(*options)

type options struct {
	service remote.Service
	clk     clock.Clock
}

// WithService overrides the remote content service client.
func WithService(s remote.Service) Option {
	return func(o *options) { o.service = s }
}

// WithClock overrides the time source for every component.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clk = c }
}

// Engine owns the full component graph.
type Engine struct {
	cfg *config.Config
	clk clock.Clock

	local      *badger.Store // queue (always) + cache bytes (badger backend)
	cacheStore store.Store
	cache      *cache.Store
	q          *queue.Queue
	cat        *catalog.Catalog

	// Remote-facing components, all nil in cache-only mode.
	service   remote.Service
	conductor *syncer.Conductor
	preloader *preload.Scheduler
	monitor   *netmon.Monitor

	syncMetrics *promm.SyncMetrics

	events *hub

	mu        sync.Mutex
	lastDrain *syncer.Report
	started   bool
	closed    bool
}

// New builds the engine from configuration. Crash recovery happens here:
// the cache index is rebuilt from persisted metadata and InFlight
// mutations are reset to Pending while loading.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.clk == nil {
		o.clk = clock.NewSystem()
	}

	e := &Engine{
		cfg:    cfg,
		clk:    o.clk,
		events: newHub(),
	}

	if err := e.openStores(ctx); err != nil {
		return nil, err
	}

	cat, err := catalog.New(&cfg.Catalog)
	if err != nil {
		e.closeStores()
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	e.cat = cat

	e.cache, err = cache.New(ctx, e.cacheStore, cache.Config{
		MaxBytes:   uint64(cfg.Cache.MaxBytes),
		CleanupAge: cfg.Cache.CleanupAge,
		Clock:      e.clk,
		Metrics:    promm.NewCacheMetrics(),
		OnInfoChanged: func(info cache.Info) {
			e.events.publish(Event{Type: EventCacheInfoChanged, CacheInfo: &info})
		},
	})
	if err != nil {
		e.closeAll()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	e.q, err = queue.New(ctx, store.NewNamespaced(e.local, nsQueue), queue.Config{Clock: e.clk})
	if err != nil {
		e.closeAll()
		return nil, fmt.Errorf("failed to open mutation queue: %w", err)
	}

	e.service = o.service
	if e.service == nil && cfg.Remote.BaseURL != "" {
		e.service = remote.NewClient(remote.ClientConfig{
			BaseURL: cfg.Remote.BaseURL,
			Token:   cfg.Remote.Token,
			Timeout: cfg.Remote.Timeout,
		})
	}

	if e.service != nil {
		e.wireRemote()
	} else {
		logger.Warn("No remote content service configured, running cache-only")
	}

	return e, nil
}

// openStores opens the local Badger store and, for the S3 backend, the
// remote byte store for cache data. The queue always stays local.
func (e *Engine) openStores(ctx context.Context) error {
	local, err := badger.Open(badger.Config{
		Dir:        e.cfg.Store.Badger.Path,
		SyncWrites: e.cfg.Store.Badger.SyncWrites,
	})
	if err != nil {
		return fmt.Errorf("failed to open byte store: %w", err)
	}
	e.local = local

	switch e.cfg.Store.Type {
	case config.StoreTypeS3:
		s3cfg := e.cfg.Store.S3
		client, err := s3.NewClientFromConfig(ctx,
			s3cfg.Endpoint, s3cfg.Region,
			s3cfg.AccessKeyID, s3cfg.SecretAccessKey,
			s3cfg.ForcePathStyle)
		if err != nil {
			e.closeStores()
			return fmt.Errorf("failed to build S3 client: %w", err)
		}
		remoteStore, err := s3.New(ctx, s3.Config{
			Client:    client,
			Bucket:    s3cfg.Bucket,
			KeyPrefix: s3cfg.KeyPrefix,
		})
		if err != nil {
			e.closeStores()
			return fmt.Errorf("failed to open S3 byte store: %w", err)
		}
		e.cacheStore = remoteStore

	default:
		e.cacheStore = store.NewNamespaced(local, nsCache)
	}

	return nil
}

// wireRemote builds the components that talk to the content service and
// subscribes them to connectivity transitions.
func (e *Engine) wireRemote() {
	cfg := e.cfg
	policy := retry.NewPolicy(cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, cfg.Retry.MaxAttempts, cfg.Retry.Jitter)
	e.syncMetrics = promm.NewSyncMetrics()
	preloadMetrics := promm.NewPreloadMetrics()

	e.conductor = syncer.New(e.q, e.service, syncer.Config{
		LaneConcurrency: cfg.Sync.LaneConcurrency,
		SendTimeout:     cfg.Sync.SendTimeout,
		RetryPolicy:     policy,
		Clock:           e.clk,
		OnProgress: func(p syncer.Progress) {
			e.events.publish(Event{Type: EventSyncProgress, Progress: &p})
		},
		OnConflict: func(m *queue.Mutation) {
			e.events.publish(Event{Type: EventConflict, Mutation: m})
		},
	})

	e.preloader = preload.New(e.service, e.cache, preload.Config{
		Workers:        cfg.Preload.Workers,
		QueueSize:      cfg.Preload.QueueSize,
		NearTermWindow: cfg.Preload.NearTermWindow,
		FetchTimeout:   cfg.Preload.FetchTimeout,
		RetryPolicy:    policy,
		Clock:          e.clk,
		OnResult:       preloadMetrics.RecordFetch,
	})

	e.monitor = netmon.New(netmon.Config{
		Probe:        e.service.Ping,
		Interval:     cfg.Network.ProbeInterval,
		ProbeTimeout: cfg.Network.ProbeTimeout,
		Clock:        e.clk,
	})

	// Registration order is the notification order: the drain listener
	// goes first so queued mutations flush before warm-up fetches start
	e.monitor.Subscribe(netmon.Listener{
		OnOnline: func(ctx context.Context) {
			e.publishNetwork(true)
			if _, err := e.DrainNow(context.WithoutCancel(ctx)); err != nil {
				logger.WarnCtx(ctx, "Reconnect drain failed", "error", err)
			}
		},
		OnOffline: func(ctx context.Context) {
			e.publishNetwork(false)
			e.preloader.CancelAll()
		},
	})
	e.monitor.Subscribe(netmon.Listener{
		OnOnline: func(ctx context.Context) {
			if err := e.WarmUp(context.WithoutCancel(ctx)); err != nil {
				logger.WarnCtx(ctx, "Preload warm-up failed", "error", err)
			}
		},
	})
}

func (e *Engine) publishNetwork(online bool) {
	e.events.publish(Event{Type: EventNetworkChanged, Online: &online})
}

// Start launches the background machinery: preload workers and the
// connectivity probe loop. Safe to call once.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("engine is closed")
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	if e.preloader != nil {
		e.preloader.Start()
	}
	if e.monitor != nil {
		e.monitor.Start(ctx)
	}

	e.syncMetrics.SetQueueDepth(e.q.Len())
	logger.Info("Engine started", "remote", e.service != nil)
	return nil
}

// Stop shuts everything down, waiting up to the configured shutdown
// timeout for in-flight work.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	e.mu.Unlock()

	if started && e.monitor != nil {
		e.monitor.Stop()
	}
	if started && e.preloader != nil {
		e.preloader.Stop(e.cfg.ShutdownTimeout)
	}

	e.events.close()
	e.closeAll()

	logger.Info("Engine stopped")
	return nil
}

func (e *Engine) closeAll() {
	if e.q != nil {
		if err := e.q.Close(); err != nil {
			logger.Warn("Failed to close mutation queue", "error", err)
		}
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			logger.Warn("Failed to close cache", "error", err)
		}
	}
	if e.cat != nil {
		if err := e.cat.Close(); err != nil {
			logger.Warn("Failed to close catalog", "error", err)
		}
	}
	e.closeStores()
}

func (e *Engine) closeStores() {
	if e.cacheStore != nil {
		if err := e.cacheStore.Close(); err != nil {
			logger.Warn("Failed to close cache store", "error", err)
		}
	}
	if e.local != nil {
		if err := e.local.Close(); err != nil {
			logger.Warn("Failed to close byte store", "error", err)
		}
	}
}

// Subscribe returns a channel of engine events and a cancel function.
// Events are dropped, not queued, when the subscriber falls behind.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.events.subscribe(buffer)
}

// Online reports current connectivity. Always false in cache-only mode.
func (e *Engine) Online() bool {
	return e.monitor != nil && e.monitor.Online()
}

// SetOnline feeds an out-of-band connectivity report (e.g. from a platform
// callback) into the monitor.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	if e.monitor != nil {
		e.monitor.SetOnline(ctx, online)
	}
}

// Cache exposes the content cache.
func (e *Engine) Cache() *cache.Store { return e.cache }

// Queue exposes the mutation queue.
func (e *Engine) Queue() *queue.Queue { return e.q }

// Catalog exposes the setlist catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }
