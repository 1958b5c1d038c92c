package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statusflow/statusflow/internal/pipeline"
	"github.com/statusflow/statusflow/pkg/config"
	"github.com/statusflow/statusflow/pkg/connector/registry"
	"github.com/statusflow/statusflow/pkg/logger"
	"github.com/statusflow/statusflow/pkg/models"
	"github.com/statusflow/statusflow/pkg/transform"

	// Import connectors so their factories register themselves.
	_ "github.com/statusflow/statusflow/pkg/connector/sinks/kinesis"
	_ "github.com/statusflow/statusflow/pkg/connector/sources/kinesis"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "statusflow",
		Short: "statusflow - Kinesis status code relay",
		Long: `statusflow consumes web log records from a Kinesis data stream, extracts
the HTTP status code of each record, and publishes a per-record status
count to a second Kinesis stream.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("statusflow v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered connectors",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Source connectors:")
			for _, name := range registry.ListSources() {
				fmt.Printf("  - %s\n", name)
			}
			fmt.Println("\nSink connectors:")
			for _, name := range registry.ListSinks() {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	var workers int
	var logLevel string

	runCmd := &cobra.Command{
		Use:   "run [key=value ...]",
		Short: "Run the relay pipeline",
		Long: `Run the relay pipeline. Under a managed host, parameters come from the
runtime property group document; locally, pass them as trailing
key=value arguments.

Example:
  statusflow run kinesis.region=eu-west-1 kinesis.source.stream=input kinesis.sink.stream=output`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(args, workers, logLevel)
		},
	}
	runCmd.Flags().IntVar(&workers, "workers", 4, "Number of parallel transform workers; records are partitioned across workers by shard")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runPipeline(args []string, workers int, logLevel string) error {
	if err := logger.Init(logger.Config{Level: logLevel, Encoding: "json"}); err != nil {
		return err
	}
	log := logger.Get()
	defer func() { _ = logger.Sync() }()

	provider := config.DetectProvider(args)
	params, err := provider.Resolve()
	if err != nil {
		return err
	}
	log.Info("resolved application parameters",
		zap.String("provider", provider.Name()),
		zap.Any("parameters", params.Map()))

	source, err := registry.CreateSource("kinesis", params)
	if err != nil {
		return err
	}
	sink, err := registry.CreateSink("kinesis", params)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := source.Initialize(ctx); err != nil {
		return err
	}
	defer func() { _ = source.Close(context.Background()) }()

	if err := sink.Initialize(ctx); err != nil {
		return err
	}
	defer func() { _ = sink.Close(context.Background()) }()

	p := pipeline.NewStreamPipeline(source, sink, &pipeline.Config{
		WorkerCount: workers,
		BufferSize:  1000,
	}, log)
	p.AddTransform(statusCountTransform)

	log.Info("starting statusflow kinesis relay")
	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// statusCountTransform adapts the status count transform to the
// pipeline's record interface, preserving source metadata.
func statusCountTransform(ctx context.Context, record *models.Record) (*models.Record, error) {
	data, err := transform.StatusCount(record.Data)
	if err != nil {
		return nil, err
	}
	out := models.NewRecord(data)
	out.Metadata = record.Metadata
	return out, nil
}
