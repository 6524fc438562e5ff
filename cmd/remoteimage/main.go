// Command remoteimage serves processed previews of remote images and keeps
// them in a shared cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-remoteimage/pkg/config"
	"github.com/illmade-knight/go-remoteimage/pkg/dispatch"
	"github.com/illmade-knight/go-remoteimage/pkg/downloader"
	"github.com/illmade-knight/go-remoteimage/pkg/invalidation"
	"github.com/illmade-knight/go-remoteimage/pkg/logging"
	"github.com/illmade-knight/go-remoteimage/pkg/metrics"
	"github.com/illmade-knight/go-remoteimage/pkg/microservice"
	"github.com/illmade-knight/go-remoteimage/pkg/preview"
	"github.com/illmade-knight/go-remoteimage/pkg/remoteimage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults apply when empty)")
	httpPort := flag.String("http-port", "", "override http_port, e.g. :8080")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath == "" {
		cfg, err = config.Parse([]byte("{}"))
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "remoteimage: %v\n", err)
		os.Exit(1)
	}
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}

	logger := logging.New(cfg.Log)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("remoteimage exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	imageCache, cleanupClients, err := newImageCache(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to create image cache: %w", err)
	}
	defer cleanupClients()
	defer func() {
		if err := imageCache.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing image cache.")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	countedCache, err := metrics.NewCache(imageCache, reg)
	if err != nil {
		return fmt.Errorf("failed to register cache metrics: %w", err)
	}
	countedDownloader, err := metrics.NewDownloader(downloader.NewHTTPDownloader(cfg.Downloader, logger), reg)
	if err != nil {
		return fmt.Errorf("failed to register downloader metrics: %w", err)
	}
	tools := remoteimage.NewTools(countedDownloader, countedCache)

	ui := dispatch.NewSerialQueue(logger)
	ui.Start(ctx)
	storePool := dispatch.NewWorkerPool(dispatch.WorkerPoolConfig{
		NumWorkers: cfg.Loader.StoreWorkers,
		QueueSize:  cfg.Loader.StoreQueueSize,
	}, logger)
	storePool.Start(ctx)

	loader, err := remoteimage.NewLoader(cfg.Loader, tools, ui, storePool, logger)
	if err != nil {
		return err
	}

	ready := &readiness{}
	server := microservice.NewBaseServer(logger, cfg.HTTPPort)
	server.SetReadiness(ready.check)
	server.Mux().Handle("/metrics", metrics.Handler(reg))
	server.Mux().Handle("/preview", preview.NewHandler(loader, cfg.Preview, logger))

	var listener *invalidation.Listener
	if cfg.Invalidation.Enabled {
		var opts []option.ClientOption
		if cfg.Invalidation.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Invalidation.CredentialsFile))
		}
		psClient, err := pubsub.NewClient(ctx, cfg.Invalidation.ProjectID, opts...)
		if err != nil {
			return fmt.Errorf("failed to create pubsub client: %w", err)
		}
		defer func() { _ = psClient.Close() }()

		listener, err = invalidation.NewListener(cfg.Invalidation, psClient, imageCache, logger)
		if err != nil {
			return err
		}
		if err := listener.Start(ctx); err != nil {
			return err
		}
		ready.listenerDone = listener.Done()

		if cfg.Invalidation.TopicID != "" {
			publisher, err := invalidation.NewPublisher(ctx, invalidation.PublisherConfig{TopicID: cfg.Invalidation.TopicID}, psClient, logger)
			if err != nil {
				return err
			}
			defer publisher.Stop()
			server.Mux().Handle("/invalidate", invalidation.NewHandler(publisher, logger))
		}
	}

	if err := server.Start(); err != nil {
		return err
	}
	ready.serving.Store(true)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received.")

	ready.stopping.Store(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down HTTP server.")
	}
	if listener != nil {
		if err := listener.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping invalidation listener.")
		}
	}
	if err := ui.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error draining UI queue.")
	}
	if err := storePool.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error draining cache store queue.")
	}

	logger.Info().Msg("remoteimage stopped.")
	return nil
}
