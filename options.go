package changefeed

import (
	"github.com/arloliu/changefeed/classify"
	"github.com/arloliu/changefeed/strategy"
)

// Option configures a Host with optional dependencies.
type Option func(*hostOptions)

// hostOptions holds optional Host configuration.
type hostOptions struct {
	hooks      *Hooks
	metrics    MetricsCollector
	logger     Logger
	strategy   strategy.Strategy
	classifier *classify.Classifier
}

// WithHooks sets lease and processor lifecycle hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewHost
//
// Example:
//
//	hooks := &changefeed.Hooks{
//	    OnLeaseAcquired: func(ctx context.Context, partitionID string) error {
//	        return warmCache(ctx, partitionID)
//	    },
//	}
//	host, err := changefeed.NewHost(cfg, client, src, handler, changefeed.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *hostOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewHost
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "changefeed")
//	host, err := changefeed.NewHost(cfg, client, src, handler, changefeed.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *hostOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (see internal/logging for a slog adapter)
//
// Returns:
//   - Option: Functional option for NewHost
func WithLogger(logger Logger) Option {
	return func(o *hostOptions) {
		o.logger = logger
	}
}

// WithStrategy sets the lease balancing strategy.
//
// Default: strategy.NewEqualPartitions()
//
// Parameters:
//   - s: Strategy implementation
//
// Returns:
//   - Option: Functional option for NewHost
//
// Example:
//
//	host, err := changefeed.NewHost(cfg, client, src, handler,
//	    changefeed.WithStrategy(strategy.NewConsistentHash(strategy.WithVirtualNodes(200))))
func WithStrategy(s strategy.Strategy) Option {
	return func(o *hostOptions) {
		o.strategy = s
	}
}

// WithClassifier sets the store fault classifier used by partition processors.
//
// Default: classify.Default
//
// Parameters:
//   - c: Classifier, typically with a custom RequestTooLarge predicate
//
// Returns:
//   - Option: Functional option for NewHost
func WithClassifier(c classify.Classifier) Option {
	return func(o *hostOptions) {
		o.classifier = &c
	}
}
