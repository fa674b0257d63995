// domo-bridge - Shelly actuator/BLE-beacon bridge
//
// domo-bridge reconciles Shelly gen-1/gen-2(-plus) actuators and BLE sensor
// beacons against a replicated topic cache, driving radiator valves through
// whichever gen-2-plus actuator currently reports the strongest beacon
// signal for them.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grayhome/domo-bridge/internal/actuator/gen1"
	"github.com/grayhome/domo-bridge/internal/actuator/gen2"
	"github.com/grayhome/domo-bridge/internal/cache"
	"github.com/grayhome/domo-bridge/internal/discovery"
	"github.com/grayhome/domo-bridge/internal/infrastructure/config"
	"github.com/grayhome/domo-bridge/internal/infrastructure/logging"
	"github.com/grayhome/domo-bridge/internal/infrastructure/metrics"
	"github.com/grayhome/domo-bridge/internal/infrastructure/telemetry"
	"github.com/grayhome/domo-bridge/internal/reconciler"
)

// Version information - set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "/etc/domo-bridge/config.yaml"

func main() {
	fmt.Printf("domo-bridge %s (%s) built %s\n", version, commit, date)
	fmt.Println("---")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath resolves the config file path: DOMOBRIDGE_CONFIG overrides
// defaultConfigPath.
func getConfigPath() string {
	if v := os.Getenv("DOMOBRIDGE_CONFIG"); v != "" {
		return v
	}
	return defaultConfigPath
}

// run wires every component and blocks until ctx is cancelled or a
// component fails fatally. Construction order: config, logger, cache, then
// the reconciler built without transports, then the gen-1/gen-2 transports
// (which consume the reconciler's channel accessors), bound in with
// SetTransports before anything starts running.
func run(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting domo-bridge", "version", version, "commit", commit, "node_id", cfg.Bridge.NodeID)

	tlsConfig, err := gen2.LoadTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return fmt.Errorf("loading TLS config: %w", err)
	}

	cacheClient := cache.New(cfg.Cache, log)
	if err := cacheClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to cache: %w", err)
	}
	defer cacheClient.Close()

	cacheEvents, err := cacheClient.Subscribe(ctx, cfg.Bridge.ID)
	if err != nil {
		return fmt.Errorf("subscribing to cache events: %w", err)
	}

	var energy reconciler.EnergyWriter
	if cfg.InfluxDB.Enabled {
		writer, err := telemetry.New(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to influxdb: %w", err)
		}
		defer writer.Close()
		energy = writer
	}

	var metricsRecorder reconciler.MetricsRecorder
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metricsRecorder = m
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	recon := reconciler.New(reconciler.Config{
		Cache:             cacheClient,
		Energy:            energy,
		Metrics:           metricsRecorder,
		CacheEvents:       cacheEvents,
		ValveInterval:     cfg.Timers.Valve,
		KeepaliveInterval: cfg.Timers.Keepalive,
		ModeInterval:      cfg.Timers.ModeCheck,
		Log:               log,
	})

	dialer := &gen1.Dialer{
		TLSConfig: tlsConfig,
		StatusCh:  recon.StatusChannel(),
		ClosedCh:  recon.ClosedChannel(),
		Log:       log,
	}
	g2Server := gen2.NewServer(
		cfg.G2Server,
		tlsConfig,
		recon.CredentialResolver(),
		recon.StatusChannel(),
		recon.ClosedChannel(),
		log,
	)
	recon.SetTransports(reconciler.NewGen1Dialer(dialer), g2Server)

	mdnsListener, err := discovery.New(cfg.MDNS, cfg.Bridge.NodeID, log)
	if err != nil {
		return fmt.Errorf("starting mdns discovery: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return recon.Run(gctx)
	})
	group.Go(func() error {
		return g2Server.ListenAndServe(gctx)
	})
	group.Go(func() error {
		mdnsListener.Listen(gctx, recon.DiscoveryChannel())
		return nil
	})
	if metricsSrv != nil {
		group.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	err = group.Wait()
	if err != nil && ctx.Err() != nil {
		// The group was cancelled by the parent context (SIGINT/SIGTERM), so
		// recon.Run's ctx.Err() is the expected shutdown signal, not a
		// failure.
		log.Info("domo-bridge stopped", "reason", "context cancelled")
		return nil
	}
	log.Info("domo-bridge stopped", "error", err)
	return err
}
