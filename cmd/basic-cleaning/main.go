// basic-cleaning drops price outliers from the raw listings sample, imputes
// missing values and publishes the result as a new artifact version.
//
// Usage:
//
//	basic-cleaning --input_artifact=sample.csv:latest \
//	  --output_name=clean_sample.csv --output_type=clean_sample \
//	  --output_description="Data with outliers and null values removed" \
//	  --min_price=10 --max_price=350
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(func(ctx context.Context, flags jobFlags) error {
		return runJob(ctx, logger, flags.config())
	})
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
