// Command feedworker runs a change-feed host against NATS JetStream or Redis
// and offers a few partition administration commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arloliu/changefeed"
	"github.com/arloliu/changefeed/internal/logging"
	"github.com/arloliu/changefeed/internal/metrics"
	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/strategy"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type globalOptions struct {
	configPath string
	backend    string
	natsURL    string
	redisAddr  string
	keyPrefix  string
	database   string
	collection string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	o := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "feedworker",
		Short:         "Change-feed worker",
		Long:          "feedworker processes a partitioned change feed with lease-based ownership across hosts.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", os.Getenv("FEEDWORKER_CONFIG"), "YAML configuration file")
	flags.StringVar(&o.backend, "backend", envDefault("FEEDWORKER_BACKEND", "nats"), "Store backend: nats|redis")
	flags.StringVar(&o.natsURL, "nats-url", envDefault("NATS_URL", nats.DefaultURL), "NATS server URL")
	flags.StringVar(&o.redisAddr, "redis-addr", envDefault("REDIS_ADDR", "127.0.0.1:6379"), "Redis address")
	flags.StringVar(&o.keyPrefix, "prefix", "", "Bucket/key prefix of the store (default changefeed)")
	flags.StringVar(&o.database, "database", "", "Feed database (overrides config)")
	flags.StringVar(&o.collection, "collection", "", "Feed collection (overrides config)")
	flags.StringVar(&o.logLevel, "log-level", envDefault("FEEDWORKER_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	flags.StringVar(&o.logFormat, "log-format", envDefault("FEEDWORKER_LOG_FORMAT", "text"), "Log format: text|json")

	rootCmd.AddCommand(newRunCommand(o))
	rootCmd.AddCommand(newAppendCommand(o))
	rootCmd.AddCommand(newPartitionsCommand(o))

	return rootCmd
}

func newRunCommand(o *globalOptions) *cobra.Command {
	var (
		metricsAddr string
		hashRing    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a host until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.NewSlogWriter(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
			if err != nil {
				return err
			}

			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			be, closeBackend, err := openBackend(ctx, o, logger)
			if err != nil {
				return err
			}
			defer closeBackend()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			opts := []changefeed.Option{
				changefeed.WithLogger(logger),
				changefeed.WithMetrics(metrics.NewPrometheus(reg, "changefeed")),
			}
			if hashRing {
				opts = append(opts, changefeed.WithStrategy(strategy.NewConsistentHash()))
			}

			host, err := changefeed.NewHost(cfg, be, be.Source(cfg.FeedCollection), newPrintHandler(cmd.OutOrStdout()), opts...)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics server: %w", err)
					}

					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()

					return srv.Shutdown(shutdownCtx)
				})
			}

			g.Go(func() error {
				if err := host.Start(gctx); err != nil {
					return err
				}
				logger.Info("feedworker running", "owner", host.Owner(), "feed", cfg.FeedCollection.String())

				<-gctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()

				return host.Stop(stopCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus listen address (empty disables)")
	cmd.Flags().BoolVar(&hashRing, "consistent-hash", false, "Balance leases with a consistent hash ring instead of rendezvous ranking")

	return cmd
}

func newAppendCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "append <partition> <id> <body>",
		Short: "Append one document to a partition's change feed",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withBackend(cmd, func(ctx context.Context, be backend, coll store.Collection) error {
				cont, err := be.Append(ctx, coll, args[0], store.Document{ID: args[1], Body: []byte(args[2])})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "continuation:", cont)

				return nil
			})
		},
	}
}

func newPartitionsCommand(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "partitions", Short: "Partition registry operations"}

	var parents []string
	createCmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Register an active partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withBackend(cmd, func(ctx context.Context, be backend, coll store.Collection) error {
				return be.CreatePartition(ctx, coll, args[0], parents...)
			})
		},
	}
	createCmd.Flags().StringSliceVar(&parents, "parent", nil, "Parent partition (repeatable)")

	splitCmd := &cobra.Command{
		Use:   "split <parent> <child>...",
		Short: "Retire a partition and register its children",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withBackend(cmd, func(ctx context.Context, be backend, coll store.Collection) error {
				return be.SplitPartition(ctx, coll, args[0], args[1:]...)
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Retire a partition without successors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withBackend(cmd, func(ctx context.Context, be backend, coll store.Collection) error {
				return be.RemovePartition(ctx, coll, args[0])
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active partitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withBackend(cmd, func(ctx context.Context, be backend, coll store.Collection) error {
				partitions, err := be.Source(coll).ListPartitions(ctx)
				if err != nil {
					return err
				}
				for _, p := range partitions {
					if len(p.Parents) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), p.ID)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s parents=%s\n", p.ID, strings.Join(p.Parents, ","))
				}

				return nil
			})
		},
	}

	cmd.AddCommand(createCmd, splitCmd, removeCmd, listCmd)

	return cmd
}

// loadConfig reads the configuration file (if any) and applies flag overrides.
func (o *globalOptions) loadConfig() (changefeed.Config, error) {
	cfg := changefeed.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = changefeed.LoadConfig(o.configPath); err != nil {
			return changefeed.Config{}, err
		}
	}
	if o.database != "" {
		cfg.FeedCollection.Database = o.database
	}
	if o.collection != "" {
		cfg.FeedCollection.Collection = o.collection
	}
	if cfg.LeaseCollection.IsZero() {
		cfg.LeaseCollection = store.Collection{Database: cfg.FeedCollection.Database, Collection: "leases"}
	}

	return cfg, nil
}

// withBackend runs an administration command against the feed collection.
func (o *globalOptions) withBackend(cmd *cobra.Command, fn func(ctx context.Context, be backend, coll store.Collection) error) error {
	logger, err := logging.NewSlogWriter(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
	if err != nil {
		return err
	}

	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	if cfg.FeedCollection.Collection == "" {
		return errors.New("feed collection is required; use --config or --collection")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.OperationTimeout)
	defer cancel()

	be, closeBackend, err := openBackend(ctx, o, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	return fn(ctx, be, cfg.FeedCollection)
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
