package changefeed

import (
	"fmt"
	"os"
	"time"

	"github.com/arloliu/changefeed/store"
	"gopkg.in/yaml.v3"
)

// Config configures a Host.
//
// Durations are plain time.Duration values; yaml.v3 parses strings such as
// "5s" or "1m30s" into them directly.
type Config struct {
	// HostName is the lease owner name of this host. Empty generates
	// "<os hostname>-<uuid>" so that restarts never resume another
	// incarnation's ownership by accident.
	HostName string `yaml:"hostName"`

	// FeedCollection is the monitored collection. Required.
	FeedCollection store.Collection `yaml:"feedCollection"`

	// LeaseCollection holds lease documents. Required. It may be shared by
	// several feeds; lease IDs are scoped by LeasePrefix.
	LeaseCollection store.Collection `yaml:"leaseCollection"`

	// LeasePrefix is prepended to partition IDs to form lease document IDs.
	// Empty derives "<database>.<collection>." from FeedCollection.
	LeasePrefix string `yaml:"leasePrefix"`

	// StartFromBeginning reads new partitions from the oldest retained change.
	// Only applies to leases without a continuation.
	StartFromBeginning bool `yaml:"startFromBeginning"`

	// StartTime reads new partitions from the first change at or after this
	// time. Ignored when StartFromBeginning is set. Zero means "now".
	StartTime time.Time `yaml:"startTime"`

	// MaxItemCount is the configured page size (0 = store default).
	MaxItemCount int `yaml:"maxItemCount"`

	// FeedPollDelay is the pause after a drained poll cycle and after
	// retryable faults.
	//
	// Default: 5 seconds
	FeedPollDelay time.Duration `yaml:"feedPollDelay"`

	// LeaseRenewInterval is how often owned leases are renewed.
	//
	// Default: 17 seconds
	// Constraint: Must be < LeaseExpirationInterval
	LeaseRenewInterval time.Duration `yaml:"leaseRenewInterval"`

	// LeaseAcquireInterval is how often the host rebalances leases.
	//
	// Default: 13 seconds
	LeaseAcquireInterval time.Duration `yaml:"leaseAcquireInterval"`

	// LeaseExpirationInterval is how long a lease stays owned without renewal.
	//
	// Default: 60 seconds
	LeaseExpirationInterval time.Duration `yaml:"leaseExpirationInterval"`

	// MaxPartitionsPerHost caps the leases one host takes (0 = unlimited).
	MaxPartitionsPerHost int `yaml:"maxPartitionsPerHost"`

	// OperationTimeout bounds a single store call made by the host.
	//
	// Default: 10 seconds
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShutdownTimeout bounds how long Stop waits for processors to exit.
	//
	// Default: 30 seconds
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// LeaseUpdateRetries is the number of conditional writes tried per lease
	// mutation before a conflict is reported.
	//
	// Default: 5
	LeaseUpdateRetries int `yaml:"leaseUpdateRetries"`

	// LeaseUpdateBackoff is the base pause between conflicting lease writes.
	//
	// Default: 25 milliseconds
	LeaseUpdateBackoff time.Duration `yaml:"leaseUpdateBackoff"`
}

// ============================================================================
// Lease Timing Model
// ============================================================================
//
//	renew < expiration     a live host never looks expired to its peers
//	acquire ~ renew        balancing reacts within one renew round
//	expiration ~ 3x renew  one missed renewal is survivable
//
// A crashed host's leases become free LeaseExpirationInterval after its last
// renewal and are picked up by the next acquire round of any live host.

// DefaultConfig returns the production configuration.
//
// FeedCollection and LeaseCollection have no default and must be set.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		FeedPollDelay:           5 * time.Second,
		LeaseRenewInterval:      17 * time.Second,
		LeaseAcquireInterval:    13 * time.Second,
		LeaseExpirationInterval: 60 * time.Second,
		OperationTimeout:        10 * time.Second,
		ShutdownTimeout:         30 * time.Second,
		LeaseUpdateRetries:      5,
		LeaseUpdateBackoff:      25 * time.Millisecond,
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.FeedPollDelay == 0 {
		cfg.FeedPollDelay = defaults.FeedPollDelay
	}
	if cfg.LeaseRenewInterval == 0 {
		cfg.LeaseRenewInterval = defaults.LeaseRenewInterval
	}
	if cfg.LeaseAcquireInterval == 0 {
		cfg.LeaseAcquireInterval = defaults.LeaseAcquireInterval
	}
	if cfg.LeaseExpirationInterval == 0 {
		cfg.LeaseExpirationInterval = defaults.LeaseExpirationInterval
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.LeaseUpdateRetries == 0 {
		cfg.LeaseUpdateRetries = defaults.LeaseUpdateRetries
	}
	if cfg.LeaseUpdateBackoff == 0 {
		cfg.LeaseUpdateBackoff = defaults.LeaseUpdateBackoff
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - FeedCollection and LeaseCollection are set
//   - LeaseRenewInterval > 0 and < LeaseExpirationInterval
//   - LeaseAcquireInterval > 0
//   - LeaseUpdateRetries >= 1
//   - MaxItemCount and MaxPartitionsPerHost are not negative
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	// Rule 1: collections
	if cfg.FeedCollection.Collection == "" {
		return fmt.Errorf("%w: FeedCollection is required", ErrInvalidConfig)
	}
	if cfg.LeaseCollection.Collection == "" {
		return fmt.Errorf("%w: LeaseCollection is required", ErrInvalidConfig)
	}

	// Rule 2: renewal must beat expiration
	if cfg.LeaseRenewInterval <= 0 {
		return fmt.Errorf("%w: LeaseRenewInterval must be > 0, got %v", ErrInvalidConfig, cfg.LeaseRenewInterval)
	}
	if cfg.LeaseRenewInterval >= cfg.LeaseExpirationInterval {
		return fmt.Errorf(
			"%w: LeaseRenewInterval (%v) must be < LeaseExpirationInterval (%v) so live leases never look expired",
			ErrInvalidConfig, cfg.LeaseRenewInterval, cfg.LeaseExpirationInterval,
		)
	}

	// Rule 3: acquire loop must tick
	if cfg.LeaseAcquireInterval <= 0 {
		return fmt.Errorf("%w: LeaseAcquireInterval must be > 0, got %v", ErrInvalidConfig, cfg.LeaseAcquireInterval)
	}

	// Rule 4: at least one conditional write per mutation
	if cfg.LeaseUpdateRetries < 1 {
		return fmt.Errorf("%w: LeaseUpdateRetries must be >= 1, got %d", ErrInvalidConfig, cfg.LeaseUpdateRetries)
	}

	// Rule 5: counts
	if cfg.MaxItemCount < 0 {
		return fmt.Errorf("%w: MaxItemCount must be >= 0, got %d", ErrInvalidConfig, cfg.MaxItemCount)
	}
	if cfg.MaxPartitionsPerHost < 0 {
		return fmt.Errorf("%w: MaxPartitionsPerHost must be >= 0, got %d", ErrInvalidConfig, cfg.MaxPartitionsPerHost)
	}

	return nil
}

// ValidateWithWarnings logs warnings for legal but non-recommended values.
//
// This is called after Validate() in NewHost() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.LeaseRenewInterval*2 > cfg.LeaseExpirationInterval {
		logger.Warn(
			"lease renew interval leaves no room for a missed renewal",
			"renew_interval", cfg.LeaseRenewInterval,
			"expiration_interval", cfg.LeaseExpirationInterval,
			"recommended", cfg.LeaseExpirationInterval/3,
		)
	}

	if cfg.OperationTimeout > cfg.LeaseRenewInterval {
		logger.Warn(
			"operation timeout exceeds lease renew interval, slow renewals may overlap",
			"operation_timeout", cfg.OperationTimeout,
			"renew_interval", cfg.LeaseRenewInterval,
		)
	}

	if cfg.StartFromBeginning && !cfg.StartTime.IsZero() {
		logger.Warn("start time is ignored when starting from beginning", "start_time", cfg.StartTime)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Collections are preset to "test/feed" and "test/leases".
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := changefeed.TestConfig()
//	cfg.HostName = "host-a"
//	host, err := changefeed.NewHost(cfg, client, src, handler)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.FeedCollection = store.Collection{Database: "test", Collection: "feed"}
	cfg.LeaseCollection = store.Collection{Database: "test", Collection: "leases"}
	cfg.FeedPollDelay = 20 * time.Millisecond
	cfg.LeaseRenewInterval = 100 * time.Millisecond
	cfg.LeaseAcquireInterval = 50 * time.Millisecond
	cfg.LeaseExpirationInterval = 500 * time.Millisecond
	cfg.OperationTimeout = time.Second
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.LeaseUpdateBackoff = time.Millisecond

	return cfg
}

// LoadConfig reads a YAML configuration file and applies defaults.
//
// The result is not validated; NewHost validates it.
//
// Parameters:
//   - path: YAML file path
//
// Returns:
//   - Config: Parsed configuration with defaults applied
//   - error: Read or parse error
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration and applies defaults.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	SetDefaults(&cfg)

	return cfg, nil
}
