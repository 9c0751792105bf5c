package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information, overridden at build time
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gumdl",
	Short: "Download your purchased Gumroad library",
	Long: `gumdl downloads the products you purchased on Gumroad to local folders.

It scrapes your authenticated library with your browser's session cookies,
resolves each purchase into its downloadable files, and fetches them with
resumable, crash-safe downloads. Files already downloaded are skipped on
repeat runs.

Credentials can be configured through:
  - Stored credentials (use 'gumdl auth login' to store)
  - Environment variables (GUMDL_APP_SESSION and GUMDL_GUID)
  - Configuration file (~/.gumdl.yaml)`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.gumdl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors and the summary")

	rootCmd.SetVersionTemplate(`gumdl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
