package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd is the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "pzgrab",
	Short: "Parallel gallery downloader with EXIF stamping and a resumable CSV log",
	Long: `pzgrab downloads a captured set of gallery image URLs in parallel,
embeds capture time and site GPS coordinates into each image's EXIF data,
and keeps an append-only CSV log of every attempt.

A failed run can be resumed with 'pzgrab retry', which re-fetches only the
URLs whose most recent logged status is not success. Image URLs are expected
to carry their own signed access parameters; the headers captured with the
session are reused when available.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .pzgrab.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`pzgrab {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
