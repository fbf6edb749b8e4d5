package main

import (
	"math/rand"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"pzgrab/internal/downloader"
	"pzgrab/internal/pipeline"
	"pzgrab/pkg/config"
	"pzgrab/pkg/gallery"
	"pzgrab/pkg/logger"
	"pzgrab/pkg/ratelimit"
	"pzgrab/pkg/report"
	"pzgrab/pkg/session"
	"pzgrab/pkg/storage"
	"pzgrab/pkg/ui"
)

var (
	outDir    string
	logFile   string
	latitude  float64
	longitude float64
	skipExif  bool
	noPrompt  bool
	workers   int
	maxTries  int
	rateLimit int
)

// fetchCmd downloads every URL in a session manifest
var fetchCmd = &cobra.Command{
	Use:   "fetch <session.json>",
	Short: "Download all images from a captured session manifest",
	Long: `Download every image URL in a session manifest in parallel.

The manifest is a JSON file captured from the browser session:

  {"urls": [...], "headers": {...}, "referer": "..."}

Each outcome is appended to the CSV log as it completes; failed URLs can
be re-fetched later with 'pzgrab retry'.`,
	Example: `  # Download with default settings
  pzgrab fetch session.json

  # Custom output directory, 4 workers, no EXIF stamping
  pzgrab fetch session.json --out-dir Photos --workers 4 --skip-exif

  # Override the embedded GPS coordinates
  pzgrab fetch session.json --lat 51.5 --lon -3.2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runFetch(cmd, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	registerDownloadFlags(fetchCmd)
}

// registerDownloadFlags adds the flags shared by fetch and retry
func registerDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "output directory for images")
	cmd.Flags().StringVar(&logFile, "log-file", "", "CSV log file path")
	cmd.Flags().Float64Var(&latitude, "lat", 0, "GPS latitude to embed")
	cmd.Flags().Float64Var(&longitude, "lon", 0, "GPS longitude to embed")
	cmd.Flags().BoolVar(&skipExif, "skip-exif", false, "do not write EXIF date/GPS")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "skip the interactive retry prompt")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of parallel download workers")
	cmd.Flags().IntVar(&maxTries, "max-tries", 0, "per-file attempts around a whole download")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", -1, "requests per minute (0 = unlimited)")
}

// loadConfig merges flags into the layered configuration
func loadConfig(cmd *cobra.Command) *config.Config {
	flags := make(map[string]interface{})
	if outDir != "" {
		flags["out-dir"] = outDir
	}
	if logFile != "" {
		flags["log-file"] = logFile
	}
	if cmd.Flags().Changed("lat") {
		flags["lat"] = latitude
	}
	if cmd.Flags().Changed("lon") {
		flags["lon"] = longitude
	}
	if skipExif {
		flags["skip-exif"] = true
	}
	if noPrompt {
		flags["no-prompt"] = true
	}
	if workers > 0 {
		flags["workers"] = workers
	}
	if maxTries > 0 {
		flags["max-tries"] = maxTries
	}
	if rateLimit >= 0 {
		flags["rate-limit"] = rateLimit
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	return cfg
}

// buildPipeline wires the client, storage, log and pipeline from config
func buildPipeline(cfg *config.Config, headers map[string]string, log logger.Logger) (*pipeline.Pipeline, *report.Log) {
	store, err := storage.NewManager(cfg.Output.Directory)
	if err != nil {
		ui.PrintError("Failed to prepare output directory", err.Error())
		os.Exit(1)
	}

	client := gallery.NewClient(cfg.Download.RequestTimeout, headers, log)
	client.SetTransportRetries(cfg.Download.TransportRetries)

	outcomeLog := report.NewLog(cfg.Output.LogFile)

	lat, lon := cfg.Exif.Latitude, cfg.Exif.Longitude
	opts := pipeline.Options{
		Workers: cfg.Download.Workers,
		Fetch: downloader.FetchOptions{
			ExifEnabled: cfg.Exif.Enabled,
			Latitude:    &lat,
			Longitude:   &lon,
			MaxTries:    cfg.Download.MaxTries,
		},
		RateLimiter: ratelimit.PerMinute(cfg.Download.RequestsPerMinute),
		OnProgress:  ui.NewProgress().Update,
	}

	return pipeline.New(client, store, outcomeLog, opts, log), outcomeLog
}

func runFetch(cmd *cobra.Command, sessionPath string) {
	cfg := loadConfig(cmd)

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()

	sess, err := session.Load(sessionPath)
	if err != nil {
		ui.PrintError("Failed to load session", err.Error())
		os.Exit(1)
	}
	ui.PrintInfo("Session", sessionPath)
	ui.PrintInfo("Images", strconv.Itoa(len(sess.URLs)))

	// Stash the headers so 'pzgrab retry' works without the manifest.
	// Best effort: headless machines have no keyring.
	if store, err := session.NewHeaderStore(); err == nil {
		if err := store.Store(sess.Headers, sess.Referer); err != nil {
			log.WithError(err).Warn("could not store session headers")
		}
	}

	p, outcomeLog := buildPipeline(cfg, sess.Headers, log)

	targets := make([]downloader.Target, 0, len(sess.URLs))
	for _, u := range sess.URLs {
		targets = append(targets, downloader.Target{URL: u, Referer: sess.Referer})
	}

	summary, err := p.Run(targets, "Downloading")
	if err != nil {
		ui.PrintError("Pipeline failed", err.Error())
		os.Exit(1)
	}
	ui.PrintSummary(summary.Total, summary.Successes, summary.Failures, outcomeLog.Path())

	if summary.Failures > 0 && !cfg.Download.SkipConfirmation {
		if ui.Confirm("Retry the failed downloads now?") {
			failed := summary.FailedTargets
			rand.Shuffle(len(failed), func(i, j int) {
				failed[i], failed[j] = failed[j], failed[i]
			})

			retrySummary, err := p.Run(failed, "Retrying")
			if err != nil {
				ui.PrintError("Retry pass failed", err.Error())
				os.Exit(1)
			}
			ui.PrintSummary(retrySummary.Total, retrySummary.Successes, retrySummary.Failures, outcomeLog.Path())
		} else {
			ui.PrintInfo("Hint", "run 'pzgrab retry' later to re-fetch the failures")
		}
	}
}
