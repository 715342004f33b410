package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"calgrid/internal/config"
	"calgrid/internal/ics"
	appLog "calgrid/internal/log"
	"calgrid/internal/store"
	"calgrid/internal/web"
)

const version = "0.1.0"

// rootFlags holds the flags shared by every command.
type rootFlags struct {
	configPath string
	logLevel   string
	from       string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Root context with cancellation on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	err := newRootCmd().ExecuteContext(ctx)
	appLog.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "calgrid",
		Short:         "Time-grid calendar engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "/etc/calgrid/config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides config if set)")
	root.PersistentFlags().StringVar(&flags.from, "from", "", "Seed the in-memory store from this ICS file")

	root.AddCommand(
		newServeCmd(flags),
		newExpandCmd(flags),
		newExportCmd(flags),
		newReplayCmd(flags),
		newImportCmd(flags),
	)
	return root
}

// loadConfig loads the config file, applies CALGRID_* overrides and the
// log level.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnv(conf)
	if flags.logLevel != "" {
		conf.Log.Level = string(appLog.ParseLevel(flags.logLevel))
	}
	appLog.SetLevel(appLog.ParseLevel(conf.Log.Level))
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return conf, nil
}

// openBackend returns the configured event store. An in-memory store is
// seeded from --from when given.
func openBackend(ctx context.Context, conf *config.Config, flags *rootFlags) (store.Backend, error) {
	if !conf.Store.Memory {
		appLog.Info("using remote event store", "base_url", conf.Store.BaseURL)
		return store.NewClient(conf.Store.BaseURL, conf.Store.Token, conf.StoreTimeout()), nil
	}
	mem := store.NewMemory()
	if flags.from != "" {
		n, err := importFile(ctx, mem, flags.from)
		if err != nil {
			return nil, err
		}
		appLog.Info("seeded in-memory store", "file", flags.from, "events", n)
	}
	return mem, nil
}

// importFile creates every event of an ICS file in b.
func importFile(ctx context.Context, b store.Backend, path string) (int, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields, err := ics.ParseICS(body)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, f := range fields {
		if _, err := b.Create(ctx, f); err != nil {
			return i, fmt.Errorf("create %q: %w", f.Title, err)
		}
	}
	return len(fields), nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the API and calendar sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// --listen overrides config file listen if provided.
			if listen != "" {
				conf.Listen = listen
			}
			appLog.Info("calgrid starting", "version", version)
			appLog.Info("effective config",
				"listen", conf.Listen,
				"timezone", conf.Timezone,
				"week_start", conf.WeekStart,
				"refresh", conf.RefreshCron,
				"memory_store", conf.Store.Memory,
				"monthly", conf.Grid.Monthly,
				"basic_auth", conf.BasicAuth != nil,
			)

			ctx := cmd.Context()
			b, err := openBackend(ctx, conf, flags)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m, err := store.NewMetrics(reg)
			if err != nil {
				return err
			}

			err = web.StartServer(ctx, conf, store.Instrument(b, m), reg)
			appLog.Info("calgrid exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.ics",
		Short: "Create the events of an ICS file in the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if conf.Store.Memory {
				return fmt.Errorf("import needs a remote store; set store.base_url")
			}
			b := store.NewClient(conf.Store.BaseURL, conf.Store.Token, conf.StoreTimeout())
			n, err := importFile(cmd.Context(), b, args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d events\n", n)
			return err
		},
	}
}
