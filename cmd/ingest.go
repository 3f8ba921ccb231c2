package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drilonhametaj25/client-sniper/internal/business"
	"github.com/drilonhametaj25/client-sniper/internal/ingest"
	"github.com/drilonhametaj25/client-sniper/internal/resilience"
)

var (
	ingestFile        string
	ingestConcurrency int
	ingestDLQ         string
	ingestFormat      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Resolve every observation in a file",
	Long: `Loads observations from a .jsonl, .ndjson, .json, .csv or .xlsx file and
resolves them concurrently. Observations that still fail after retries are
appended to the dead-letter file.

Examples:
  client-sniper ingest --file listings.csv
  client-sniper ingest --file scraped.jsonl --concurrency 8 --dlq failed.jsonl`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		observations, err := ingest.Load(ingestFile)
		if err != nil {
			return eris.Wrap(err, "ingest: load file")
		}
		zap.L().Info("loaded observations", zap.String("file", ingestFile), zap.Int("count", len(observations)))

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		concurrency := ingestConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Ingest.Concurrency
		}
		dlqPath := ingestDLQ
		if dlqPath == "" {
			dlqPath = cfg.Ingest.DLQPath
		}
		dlq := ingest.NewDLQ(dlqPath)
		defer dlq.Close() //nolint:errcheck

		runner := ingest.NewRunner(business.NewResolver(st, resolverOptions()), ingest.Options{
			Concurrency: concurrency,
			Retry: resilience.FromRetryConfig(
				cfg.Ingest.Retry.MaxAttempts,
				cfg.Ingest.Retry.InitialBackoffMs,
				cfg.Ingest.Retry.MaxBackoffMs,
			),
			Circuit: resilience.FromCircuitConfig(
				cfg.Ingest.Circuit.FailureThreshold,
				cfg.Ingest.Circuit.ResetTimeoutSecs,
			),
			DLQ: dlq,
		})

		sum, runErr := runner.Run(ctx, observations)
		if err := writeOutput(cmd.OutOrStdout(), ingestFormat, sum); err != nil {
			return err
		}
		if runErr != nil {
			return runErr
		}
		if sum.Failed > 0 {
			zap.L().Warn("some observations failed", zap.Int("failed", sum.Failed), zap.String("dlq", dlqPath))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "observation file (required)")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "concurrent resolutions (default from config)")
	ingestCmd.Flags().StringVar(&ingestDLQ, "dlq", "", "dead-letter file (default from config)")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "json", "summary format: json or yaml")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
