package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"buckethop/api"
	"buckethop/pkg/config"
	"buckethop/pkg/models"
	"buckethop/pkg/s3url"
	"buckethop/pkg/storage"
	"buckethop/pkg/transfer"
)

func main() {
	app := &cli.App{
		Name:    "buckethop",
		Usage:   "copy objects between buckets across accounts",
		Version: "1.0.0",
		Commands: []*cli.Command{
			copyCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func copyCommand() *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "copy SOURCE_URL DEST_URL (s3://bucket/prefix or gs://bucket/prefix)",
		ArgsUsage: "SOURCE_URL DEST_URL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source-profile", Usage: "credentials profile for the source"},
			&cli.StringFlag{Name: "dest-profile", Usage: "credentials profile for the destination"},
			&cli.StringFlag{Name: "source-region", Usage: "region override for the source"},
			&cli.StringFlag{Name: "dest-region", Usage: "region override for the destination"},
			&cli.StringFlag{Name: "source-endpoint-url", Usage: "custom endpoint for the source (MinIO etc.)"},
			&cli.StringFlag{Name: "dest-endpoint-url", Usage: "custom endpoint for the destination"},
			&cli.IntFlag{Name: "workers", Value: 4, Usage: "concurrent object copies"},
			&cli.StringFlag{Name: "chunk-size", Value: "8MiB", Usage: "streaming chunk size"},
			&cli.BoolFlag{Name: "dry-run", Usage: "compare only, copy nothing"},
			&cli.BoolFlag{Name: "verbose", Usage: "debug logging"},
		},
		Action: runCopy,
	}
}

func runCopy(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: buckethop copy [flags] SOURCE_URL DEST_URL", 1)
	}

	srcURL, err := s3url.Parse(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	dstURL, err := s3url.Parse(c.Args().Get(1))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	chunkSize, err := humanize.ParseBytes(c.String("chunk-size"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid chunk-size: %v", err), 1)
	}

	log, err := newLogger(c.Bool("verbose"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srcCreds := &config.Credentials{
		Profile:     c.String("source-profile"),
		Region:      c.String("source-region"),
		EndpointURL: c.String("source-endpoint-url"),
	}
	dstCreds := &config.Credentials{
		Profile:     c.String("dest-profile"),
		Region:      c.String("dest-region"),
		EndpointURL: c.String("dest-endpoint-url"),
	}

	srcStore, err := storage.Open(ctx, srcURL, srcCreds, int64(chunkSize))
	if err != nil {
		return cli.Exit(fmt.Sprintf("open source: %v", err), 1)
	}
	dstStore, err := storage.Open(ctx, dstURL, dstCreds, int64(chunkSize))
	if err != nil {
		return cli.Exit(fmt.Sprintf("open destination: %v", err), 1)
	}

	coordinator := transfer.New(
		transfer.Endpoint{Store: srcStore, Bucket: srcURL.Bucket, Prefix: srcURL.Prefix},
		transfer.Endpoint{Store: dstStore, Bucket: dstURL.Bucket, Prefix: dstURL.Prefix},
		transfer.Options{
			Workers:   c.Int("workers"),
			ChunkSize: int64(chunkSize),
			DryRun:    c.Bool("dry-run"),
			Logger:    log,
		},
	)

	fmt.Fprintf(os.Stderr, "Copying %s -> %s\n", srcURL.String(), dstURL.String())

	stopRender := make(chan struct{})
	go renderProgress(coordinator, stopRender)

	summary, runErr := coordinator.Run(ctx)
	close(stopRender)
	fmt.Fprintln(os.Stderr)

	renderSummary(os.Stdout, summary)

	switch {
	case runErr != nil:
		return cli.Exit(runErr.Error(), 1)
	case summary.State == models.RunInterrupted:
		return cli.Exit("transfer interrupted", 1)
	case summary.FilesFailed > 0:
		return cli.Exit(fmt.Sprintf("%d object(s) failed to copy", summary.FilesFailed), 2)
	}
	return nil
}

// renderProgress repaints one progress line per second until the run
// finishes. The tracker appears once enumeration completes.
func renderProgress(coordinator *transfer.Coordinator, stop <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if tracker := coordinator.Tracker(); tracker != nil {
				fmt.Fprintf(os.Stderr, "\r\033[K%s", tracker.FormatProgress())
			}
		}
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the REST control plane",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file"},
			&cli.StringFlag{Name: "listen", Usage: "listen address, overrides the config file"},
			&cli.BoolFlag{Name: "verbose", Usage: "debug logging"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg := config.DefaultServerConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadServerConfig(path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		cfg = loaded
	}
	if listen := c.String("listen"); listen != "" {
		cfg.Listen = listen
	}

	log, err := newLogger(c.Bool("verbose"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer log.Sync()

	api.InitTaskManager(log, cfg.Workers, cfg.ChunkSize)
	if err := api.InitScheduler(log, cfg.Schedules); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	router := api.SetupRouter()
	log.Info("server listening",
		zap.String("addr", cfg.Listen),
		zap.Int("workers", cfg.Workers),
		zap.Int("schedules", len(cfg.Schedules)))

	if err := router.Run(cfg.Listen); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
