package changefeed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/changefeed/classify"
	"github.com/arloliu/changefeed/internal/hooks"
	"github.com/arloliu/changefeed/internal/logger"
	"github.com/arloliu/changefeed/internal/metrics"
	"github.com/arloliu/changefeed/internal/renewer"
	"github.com/arloliu/changefeed/lease"
	"github.com/arloliu/changefeed/processor"
	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/strategy"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"
)

// acquireConcurrency bounds parallel lease acquisitions in one balancing round.
const acquireConcurrency = 8

// Host runs change-feed processors for the partitions whose leases it owns.
//
// Host is the main entry point of the library. It handles:
//   - Lease bootstrap: every live partition gets a lease, split children
//     inherit their parent's continuation
//   - Balancing: leases are spread evenly over live hosts via a Strategy
//   - Renewal: owned leases are renewed so peers do not consider them expired
//   - Processor supervision: each owned lease runs one processor loop, and the
//     loop's terminal reason decides what happens to the lease
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - State transitions are atomic
//
// Lifecycle:
//   - Create with NewHost()
//   - Call Start() to bootstrap leases and begin processing
//   - Call Stop() for graceful shutdown; owned leases are released
type Host struct {
	cfg     Config
	client  store.Client
	source  PartitionSource
	handler processor.ChangeHandler
	owner   string

	// Optional dependencies
	strategy   strategy.Strategy
	classifier classify.Classifier
	hooks      Hooks
	metrics    MetricsCollector
	logger     Logger

	// Internal components
	leases  *lease.Manager
	renewer *renewer.Renewer
	running *xsync.Map[string, *worker]

	// State management
	state atomic.Int32 // State

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	loops   *errgroup.Group
	workers sync.WaitGroup
	mu      sync.Mutex
}

// NewHost creates a new Host instance with the provided configuration.
//
// Parameters:
//   - cfg: Host configuration; missing values are filled with defaults
//   - client: Store client holding both the monitored and the lease collection
//   - source: Partition source of the monitored collection
//   - handler: Change handler receiving batches of every owned partition
//   - opts: Optional hooks, metrics, logger, strategy and classifier
//
// Returns:
//   - *Host: Initialized host, not yet started
//   - error: Validation error if configuration is invalid or a dependency is nil
//
// Example:
//
//	cfg := changefeed.DefaultConfig()
//	cfg.FeedCollection = store.Collection{Database: "app", Collection: "orders"}
//	cfg.LeaseCollection = store.Collection{Database: "app", Collection: "leases"}
//	host, err := changefeed.NewHost(cfg, client, client.Source(cfg.FeedCollection), handler)
func NewHost(cfg Config, client store.Client, source PartitionSource, handler ChangeHandler, opts ...Option) (*Host, error) {
	if client == nil {
		return nil, ErrStoreClientRequired
	}
	if source == nil {
		return nil, ErrPartitionSourceRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &hostOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logger.NewNop()
	}

	cfg.ValidateWithWarnings(loggerInstance)

	balancer := options.strategy
	if balancer == nil {
		balancer = strategy.NewEqualPartitions()
	}

	classifier := classify.Default
	if options.classifier != nil {
		classifier = *options.classifier
	}

	owner := cfg.HostName
	if owner == "" {
		owner = defaultOwner()
	}

	leases, err := lease.NewManager(lease.ManagerConfig{
		StoreConfig: lease.StoreConfig{
			Client:          client,
			LeaseCollection: cfg.LeaseCollection,
			FeedCollection:  cfg.FeedCollection,
			Prefix:          cfg.LeasePrefix,
		},
		UpdateRetries: cfg.LeaseUpdateRetries,
		UpdateBackoff: cfg.LeaseUpdateBackoff,
	}, lease.WithLogger(loggerInstance), lease.WithMetrics(metricsCollector))
	if err != nil {
		return nil, fmt.Errorf("failed to create lease manager: %w", err)
	}

	h := &Host{
		cfg:        cfg,
		client:     client,
		source:     source,
		handler:    handler,
		owner:      owner,
		strategy:   balancer,
		classifier: classifier,
		hooks:      hooks.Fill(options.hooks),
		metrics:    metricsCollector,
		logger:     loggerInstance,
		leases:     leases,
		running:    xsync.NewMap[string, *worker](),
	}
	h.renewer = renewer.New(cfg.LeaseRenewInterval, cfg.OperationTimeout, h.renewOwned,
		renewer.WithLogger(loggerInstance), renewer.WithMetrics(metricsCollector))
	h.state.Store(int32(StateInit))

	return h, nil
}

// Start bootstraps leases and begins processing.
//
// Start runs one synchronization and balancing round before returning, so
// partitions that are free at startup are already being processed when it
// returns. Lease acquisition and renewal then continue in the background.
//
// Parameters:
//   - ctx: Context bounding the initial round
//
// Returns:
//   - error: ErrAlreadyStarted, or the store error of the initial round
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.transitionState(StateInit, StateStarting) {
		return ErrAlreadyStarted
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	startupCtx, cancel := context.WithTimeout(ctx, h.cfg.OperationTimeout)
	defer cancel()

	if err := h.balance(startupCtx); err != nil {
		h.cancel()
		_ = h.waitWorkers(ctx)
		h.transitionState(StateStarting, StateInit)

		return fmt.Errorf("failed to bootstrap leases: %w", err)
	}

	if err := h.renewer.Start(h.ctx); err != nil {
		h.cancel()
		_ = h.waitWorkers(ctx)
		h.transitionState(StateStarting, StateInit)

		return fmt.Errorf("failed to start renewer: %w", err)
	}

	h.loops = &errgroup.Group{}
	h.loops.Go(func() error {
		return h.acquireLoop(h.ctx)
	})

	h.transitionState(StateStarting, StateRunning)
	h.logger.Info("host started", "owner", h.owner, "owned", h.running.Size())

	return nil
}

// Stop gracefully shuts down the host.
//
// Every processor is canceled and releases its lease on the way out, so
// peers can pick the partitions up on their next acquire round instead of
// waiting for expiration.
//
// Parameters:
//   - ctx: Context for shutdown timeout (further bounded by ShutdownTimeout)
//
// Returns:
//   - error: ErrNotStarted if the host is not running, or a timeout error
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.transitionState(StateRunning, StateStopping) {
		h.mu.Unlock()
		return ErrNotStarted
	}
	h.cancel()
	h.mu.Unlock()

	var shutdownErr error
	if err := h.renewer.Stop(); err != nil && !errors.Is(err, renewer.ErrNotStarted) {
		shutdownErr = fmt.Errorf("renewer stop failed: %w", err)
	}
	if err := h.loops.Wait(); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, h.cfg.ShutdownTimeout)
	defer cancel()

	if err := h.waitWorkers(shutdownCtx); err != nil {
		h.logger.Error("shutdown timeout exceeded, some processors may still be running",
			"owner", h.owner, "running", h.running.Size())
		shutdownErr = errors.Join(shutdownErr, err)
	}

	h.transitionState(StateStopping, StateStopped)
	h.logger.Info("host stopped", "owner", h.owner)

	return shutdownErr
}

// Owner returns the lease owner name of this host.
func (h *Host) Owner() string {
	return h.owner
}

// State returns the current host state.
func (h *Host) State() State {
	return State(h.state.Load())
}

// OwnedPartitions returns the IDs of partitions with a running processor, sorted.
func (h *Host) OwnedPartitions() []string {
	ids := make([]string, 0, h.running.Size())
	h.running.Range(func(id string, _ *worker) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)

	return ids
}

// transitionState moves from one state to another and reports whether the
// host was in the expected state.
func (h *Host) transitionState(from, to State) bool {
	if !h.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}

	h.logger.Debug("state transition", "from", from.String(), "to", to.String(), "owner", h.owner)

	return true
}

// acquireLoop runs a balancing round every LeaseAcquireInterval.
func (h *Host) acquireLoop(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.LeaseAcquireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			roundCtx, cancel := context.WithTimeout(ctx, h.cfg.OperationTimeout)
			if err := h.balance(roundCtx); err != nil && ctx.Err() == nil {
				h.logger.Warn("lease balancing round failed", "owner", h.owner, "error", err)
			}
			cancel()
		}
	}
}

// waitWorkers waits for all processor goroutines or ctx.
func (h *Host) waitWorkers(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fireHook runs a hook in the background so that it never delays lease work.
// Hooks outlive host cancellation; each gets OperationTimeout to finish.
func (h *Host) fireHook(name, partitionID string, fn func(ctx context.Context) error) {
	parent := context.WithoutCancel(h.ctx)
	go func() {
		ctx, cancel := context.WithTimeout(parent, h.cfg.OperationTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			h.logger.Warn("hook failed", "hook", name, "partition_id", partitionID, "error", err)
		}
	}()
}

func defaultOwner() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "host"
	}

	return name + "-" + uuid.NewString()
}
