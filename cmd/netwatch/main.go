package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/InfraSecConsult/netwatch-go/internal/aggregate"
	"github.com/InfraSecConsult/netwatch-go/internal/capture"
	"github.com/InfraSecConsult/netwatch-go/internal/config"
	"github.com/InfraSecConsult/netwatch-go/internal/dissect"
	"github.com/InfraSecConsult/netwatch-go/internal/dnscache"
	"github.com/InfraSecConsult/netwatch-go/internal/identity"
	"github.com/InfraSecConsult/netwatch-go/internal/scanner"
	"github.com/InfraSecConsult/netwatch-go/internal/storage"
	"github.com/InfraSecConsult/netwatch-go/internal/version"
	"github.com/InfraSecConsult/netwatch-go/internal/web"
	liblayers "github.com/InfraSecConsult/netwatch-go/lib/layers"
)

func newRootCmd() *cobra.Command {
	var (
		interfaces     []string
		webPort        int
		listInterfaces bool
	)

	rootCmd := &cobra.Command{
		Use:     "netwatch",
		Short:   "Passive network discovery and monitoring daemon",
		Version: version.GetFullVersion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if listInterfaces {
				return printInterfaces()
			}

			cfg := config.FromEnv()
			if cmd.Flags().Changed("interface") {
				cfg.Interfaces = interfaces
			}
			if cmd.Flags().Changed("port") {
				cfg.WebPort = webPort
			}
			return runDaemon(cfg)
		},
	}

	rootCmd.Flags().StringSliceVarP(&interfaces, "interface", "i", nil,
		"interface(s) to monitor, by name or index from --list-interfaces (comma-separated)")
	rootCmd.Flags().IntVarP(&webPort, "port", "p", config.DefaultWebPort, "web interface port")
	rootCmd.Flags().BoolVarP(&listInterfaces, "list-interfaces", "l", false,
		"list available network interfaces and exit")
	return rootCmd
}

func printInterfaces() error {
	infos, err := capture.ListInterfaces()
	if err != nil {
		return err
	}
	fmt.Println("Available network interfaces:")
	for i, info := range infos {
		status := "DOWN"
		if info.Up {
			status = "UP"
		}
		ips := "none"
		if len(info.IPs) > 0 {
			ips = strings.Join(info.IPs, ", ")
		}
		fmt.Printf("[%d] %s\n    Status: %s\n    Addresses: %s\n", i+1, info.Name, status, ips)
		if info.MAC != "" {
			fmt.Printf("    MAC: %s\n", info.MAC)
		}
	}
	fmt.Println("\nSelect with: netwatch --interface <name-or-index>")
	return nil
}

func runDaemon(cfg config.Config) error {
	selected, err := capture.SelectInterfaces(cfg.Interfaces)
	if err != nil {
		return fmt.Errorf("no capture-capable interface: %w", err)
	}
	log.Info().Strs("interfaces", selected).Msg("monitoring interfaces")

	dbPath := cfg.ResolveDatabaseURL(selected)
	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("database", dbPath).Msg("store opened")

	settings, err := storage.LoadSettings(store.ReadDB())
	if err != nil {
		return err
	}
	resolver := identity.NewResolver()
	cache := dnscache.New()
	prober := dnscache.NewProber(cache)
	writer := storage.NewWriter(store, resolver, cache, settings)
	writer.Run()

	if cfg.RetentionDays != config.DefaultRetentionDays {
		// DATA_RETENTION_DAYS overrides the stored value on startup.
		if err := writer.ApplySetting(storage.SettingRetentionDays, fmt.Sprint(cfg.RetentionDays)); err != nil {
			return err
		}
	}

	aggregator := aggregate.New(writer)
	aggregator.Run()

	liblayers.InitLayers()
	source := capture.NewSource(cfg.ChannelBufferSize)
	pool := dissect.NewPool(source, aggregator)
	pool.Run()

	if err := source.Start(selected); err != nil {
		aggregator.Stop()
		writer.Stop()
		return err
	}

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	cleanup := storage.NewCleanup(writer, settings)
	go cleanup.Run(cleanupCtx)

	scans := scanner.NewManager(writer)
	go autoScanLoop(cleanupCtx, scans, settings)

	server := web.NewServer(cfg.WebPort, storage.NewQueries(store, settings),
		writer, settings, scans, source, prober)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe() }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("web server failed")
		}
	}

	// Shutdown order: stop capture first, drain the dissector pool, flush
	// the aggregator and writer, then let everything else go.
	scans.Stop()
	scans.Wait()
	stopCleanup()
	source.Close()
	pool.Wait()
	aggregator.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	writer.Stop()
	return nil
}

// autoScanLoop starts a scan of the default phases on the configured
// interval; zero disables
// it. The interval is re-read each cycle.
func autoScanLoop(ctx context.Context, scans *scanner.Manager, settings *storage.Settings) {
	for {
		minutes := settings.GetInt(storage.SettingAutoScanInterval)
		wait := time.Duration(minutes) * time.Minute
		if minutes <= 0 {
			wait = time.Minute
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			if minutes <= 0 {
				continue
			}
			if err := scans.Start(nil); err != nil {
				log.Debug().Err(err).Msg("auto scan skipped")
			}
		}
	}
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}
