package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"pzgrab/internal/downloader"
	"pzgrab/pkg/logger"
	"pzgrab/pkg/session"
	"pzgrab/pkg/ui"
)

// retryCmd re-fetches the URLs whose most recent logged status is failed
var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-fetch the URLs that last failed according to the CSV log",
	Long: `Re-fetch only the URLs whose most recent row in the CSV log is not a
success. No browser session is needed: gallery URLs carry self-contained
signed access parameters, and any headers stashed during the original fetch
are reused when the system keychain has them.`,
	Example: `  # Retry everything that last failed
  pzgrab retry

  # Retry against a specific log and output directory
  pzgrab retry --log-file pz_log.csv --out-dir Photos`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runRetry(cmd)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
	registerDownloadFlags(retryCmd)
}

func runRetry(cmd *cobra.Command) {
	cfg := loadConfig(cmd)

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()

	// Headers are best effort here; retried URLs are expected to be
	// self-authorizing
	headers := map[string]string{}
	referer := ""
	if store, err := session.NewHeaderStore(); err == nil {
		if h, r, err := store.Retrieve(); err == nil {
			headers, referer = h, r
		} else {
			log.WithError(err).Warn("could not read stored session headers")
		}
	}

	p, outcomeLog := buildPipeline(cfg, headers, log)

	urls, err := outcomeLog.FailingURLs()
	if err != nil {
		ui.PrintError("Failed to read log", err.Error())
		os.Exit(1)
	}
	if len(urls) == 0 {
		ui.PrintInfo("Log", outcomeLog.Path())
		ui.PrintInfo("Status", "no failed URLs found, nothing to retry")
		return
	}
	ui.PrintInfo("Retrying", strconv.Itoa(len(urls))+" previously failed URLs")

	targets := make([]downloader.Target, 0, len(urls))
	for _, u := range urls {
		targets = append(targets, downloader.Target{URL: u, Referer: referer})
	}

	summary, err := p.Run(targets, "Retrying")
	if err != nil {
		ui.PrintError("Pipeline failed", err.Error())
		os.Exit(1)
	}
	ui.PrintSummary(summary.Total, summary.Successes, summary.Failures, outcomeLog.Path())
}
