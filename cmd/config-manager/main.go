package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vaibhav2408/config-manager/internal/api"
	"github.com/vaibhav2408/config-manager/internal/config"
	"github.com/vaibhav2408/config-manager/internal/detector"
	"github.com/vaibhav2408/config-manager/internal/notify"
	"github.com/vaibhav2408/config-manager/internal/service"
	"github.com/vaibhav2408/config-manager/internal/store"
	"github.com/vaibhav2408/config-manager/internal/version"
)

func main() {
	configPath := flag.String("config", "/etc/config-manager/server.yaml", "path to server config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("config-manager", version.String())
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg)
	logger.Info("config-manager starting", "version", version.Version, "store", cfg.StoreType)

	// Handle graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	s, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	svc := service.New(s, logger)
	opts := api.Options{BasePath: cfg.BasePath}

	var det *detector.Detector
	if cfg.Detector.Enabled {
		notifiers, err := buildNotifiers(ctx, cfg, logger)
		if err != nil {
			return err
		}
		det = detector.New(svc, detector.Options{
			ServiceIDs:     cfg.Detector.ServiceIDs,
			Interval:       cfg.Detector.Interval,
			DetectRemovals: cfg.Detector.DetectRemovals,
			Notifiers:      notifiers,
		}, logger)
		opts.Status = det
		opts.Metrics = det
	}

	srv := api.NewServer(cfg.ListenAddr, logger, svc, opts)
	if err := srv.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if det != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logDetectorExit(logger, det.Run(ctx))
		}()
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		logger.Warn("API server shutdown failed", "error", err)
	}
	wg.Wait()

	logger.Info("config-manager stopped")
	return nil
}

// logDetectorExit reports a detector that stopped for any reason other
// than shutdown.
func logDetectorExit(logger *slog.Logger, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		logger.Debug("change detector stopped")
		return
	}
	logger.Error("change detector stopped", "error", err)
}

func newLogger(w io.Writer, cfg config.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildNotifiers creates a notifier for every sink configured under
// detector. CloudWatch and Lambda use the DynamoDB region.
func buildNotifiers(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) ([]detector.Notifier, error) {
	dc := cfg.Detector
	var notifiers []detector.Notifier

	if dc.ExportDir != "" {
		fe, err := notify.NewFileExporter(dc.ExportDir, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, fe)
	}

	if dc.S3Bucket != "" {
		se, err := notify.NewS3Exporter(ctx, notify.S3ExporterConfig{
			Bucket:      dc.S3Bucket,
			Prefix:      dc.S3Prefix,
			Region:      dc.S3Region,
			EndpointURL: dc.S3EndpointURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating s3 exporter: %w", err)
		}
		notifiers = append(notifiers, se)
	}

	if dc.CloudWatchNamespace != "" {
		cw, err := notify.NewCloudWatch(ctx, dc.CloudWatchNamespace, cfg.DynamoDB.Region, logger)
		if err != nil {
			return nil, fmt.Errorf("creating cloudwatch notifier: %w", err)
		}
		notifiers = append(notifiers, cw)
	}

	if dc.LambdaFunction != "" {
		ln, err := notify.NewLambda(ctx, dc.LambdaFunction, cfg.DynamoDB.Region, logger)
		if err != nil {
			return nil, fmt.Errorf("creating lambda notifier: %w", err)
		}
		notifiers = append(notifiers, ln)
	}

	logger.Info("change notifiers configured", "count", len(notifiers))
	return notifiers, nil
}
