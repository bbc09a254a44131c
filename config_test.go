package changefeed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arloliu/changefeed/store"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 5*time.Second, cfg.FeedPollDelay)
	require.Equal(t, 17*time.Second, cfg.LeaseRenewInterval)
	require.Equal(t, 13*time.Second, cfg.LeaseAcquireInterval)
	require.Equal(t, 60*time.Second, cfg.LeaseExpirationInterval)
	require.Equal(t, 10*time.Second, cfg.OperationTimeout)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 5, cfg.LeaseUpdateRetries)
	require.Equal(t, 25*time.Millisecond, cfg.LeaseUpdateBackoff)
	require.Zero(t, cfg.MaxItemCount)
	require.Zero(t, cfg.MaxPartitionsPerHost)
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, 5*time.Second, cfg.FeedPollDelay)
		require.Equal(t, 17*time.Second, cfg.LeaseRenewInterval)
		require.Equal(t, 60*time.Second, cfg.LeaseExpirationInterval)
		require.Equal(t, 5, cfg.LeaseUpdateRetries)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			FeedPollDelay:           time.Second,
			LeaseRenewInterval:      3 * time.Second,
			LeaseAcquireInterval:    4 * time.Second,
			LeaseExpirationInterval: 10 * time.Second,
			OperationTimeout:        2 * time.Second,
			ShutdownTimeout:         5 * time.Second,
			LeaseUpdateRetries:      2,
			LeaseUpdateBackoff:      time.Millisecond,
		}
		SetDefaults(&cfg)

		require.Equal(t, time.Second, cfg.FeedPollDelay)
		require.Equal(t, 3*time.Second, cfg.LeaseRenewInterval)
		require.Equal(t, 4*time.Second, cfg.LeaseAcquireInterval)
		require.Equal(t, 10*time.Second, cfg.LeaseExpirationInterval)
		require.Equal(t, 2*time.Second, cfg.OperationTimeout)
		require.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
		require.Equal(t, 2, cfg.LeaseUpdateRetries)
		require.Equal(t, time.Millisecond, cfg.LeaseUpdateBackoff)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing feed collection",
			mutate:  func(cfg *Config) { cfg.FeedCollection = store.Collection{} },
			wantErr: "FeedCollection",
		},
		{
			name:    "missing lease collection",
			mutate:  func(cfg *Config) { cfg.LeaseCollection = store.Collection{} },
			wantErr: "LeaseCollection",
		},
		{
			name:    "renew not below expiration",
			mutate:  func(cfg *Config) { cfg.LeaseRenewInterval = cfg.LeaseExpirationInterval },
			wantErr: "LeaseRenewInterval",
		},
		{
			name:    "zero acquire interval",
			mutate:  func(cfg *Config) { cfg.LeaseAcquireInterval = 0 },
			wantErr: "LeaseAcquireInterval",
		},
		{
			name:    "zero retries",
			mutate:  func(cfg *Config) { cfg.LeaseUpdateRetries = 0 },
			wantErr: "LeaseUpdateRetries",
		},
		{
			name:    "negative max item count",
			mutate:  func(cfg *Config) { cfg.MaxItemCount = -1 },
			wantErr: "MaxItemCount",
		},
		{
			name:    "negative partitions per host",
			mutate:  func(cfg *Config) { cfg.MaxPartitionsPerHost = -1 },
			wantErr: "MaxPartitionsPerHost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TestConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	cfg := TestConfig()
	cfg.LeaseRenewInterval = 400 * time.Millisecond
	cfg.StartFromBeginning = true
	cfg.StartTime = time.Now()

	logger := &warnCounter{}
	cfg.ValidateWithWarnings(logger)
	require.Equal(t, 3, logger.warns)
}

// TestConfig_YAML demonstrates that time.Duration works directly with YAML unmarshaling
func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
hostName: "host-a"
feedCollection:
  database: app
  collection: orders
leaseCollection:
  database: app
  collection: leases
leasePrefix: "orders."
startFromBeginning: true
maxItemCount: 250
feedPollDelay: 2s
leaseRenewInterval: 10s
leaseAcquireInterval: 7s
leaseExpirationInterval: 45s
maxPartitionsPerHost: 8
operationTimeout: 3s
shutdownTimeout: 1m
leaseUpdateRetries: 3
leaseUpdateBackoff: 50ms
`

	var cfg Config
	err := yaml.Unmarshal([]byte(yamlConfig), &cfg)
	require.NoError(t, err)

	require.Equal(t, "host-a", cfg.HostName)
	require.Equal(t, store.Collection{Database: "app", Collection: "orders"}, cfg.FeedCollection)
	require.Equal(t, store.Collection{Database: "app", Collection: "leases"}, cfg.LeaseCollection)
	require.Equal(t, "orders.", cfg.LeasePrefix)
	require.True(t, cfg.StartFromBeginning)
	require.Equal(t, 250, cfg.MaxItemCount)
	require.Equal(t, 2*time.Second, cfg.FeedPollDelay)
	require.Equal(t, 10*time.Second, cfg.LeaseRenewInterval)
	require.Equal(t, 7*time.Second, cfg.LeaseAcquireInterval)
	require.Equal(t, 45*time.Second, cfg.LeaseExpirationInterval)
	require.Equal(t, 8, cfg.MaxPartitionsPerHost)
	require.Equal(t, 3*time.Second, cfg.OperationTimeout)
	require.Equal(t, time.Minute, cfg.ShutdownTimeout)
	require.Equal(t, 3, cfg.LeaseUpdateRetries)
	require.Equal(t, 50*time.Millisecond, cfg.LeaseUpdateBackoff)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.yaml")
	content := `
feedCollection: {database: app, collection: orders}
leaseCollection: {database: app, collection: leases}
leaseRenewInterval: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// custom value preserved, the rest defaulted
	require.Equal(t, 5*time.Second, cfg.LeaseRenewInterval)
	require.Equal(t, 60*time.Second, cfg.LeaseExpirationInterval)
	require.Equal(t, 5, cfg.LeaseUpdateRetries)
	require.NoError(t, cfg.Validate())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ParseConfig([]byte("leaseRenewInterval: [1"))
	require.ErrorContains(t, err, "failed to parse config")
}

type warnCounter struct {
	warns int
}

func (w *warnCounter) Debug(string, ...any) {}
func (w *warnCounter) Info(string, ...any)  {}
func (w *warnCounter) Warn(string, ...any)  { w.warns++ }
func (w *warnCounter) Error(string, ...any) {}
func (w *warnCounter) Fatal(string, ...any) {}
