package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gumdl/pkg/gumroad"
	"gumdl/pkg/logger"
	"gumdl/pkg/scraper"
)

var (
	wipeCreator string
	wipeYes     bool
)

// wipeCmd represents the wipe command
var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Remove purchases from your Gumroad library",
	Long: `Remove purchases from your Gumroad library.

This issues a deletion request for every purchase in scope. Gumroad may
keep records server-side, so treat this as best-effort hiding rather
than guaranteed erasure. Downloaded files on disk are not touched.

Use --creator to limit the wipe to one creator's purchases. Without it
the ENTIRE library is wiped.`,
	Example: `  # Wipe everything bought from one creator
  gumdl wipe --creator somecreator

  # Wipe the whole library without the confirmation prompt
  gumdl wipe --yes`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runWipe()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(wipeCmd)

	wipeCmd.Flags().StringVar(&wipeCreator, "creator", "", "only wipe purchases from this creator")
	wipeCmd.Flags().BoolVarP(&wipeYes, "yes", "y", false, "skip the confirmation prompt")
	wipeCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	wipeCmd.Flags().StringVar(&appSession, "app-session", "", "Gumroad _gumroad_app_session cookie value")
	wipeCmd.Flags().StringVar(&guid, "guid", "", "Gumroad _gumroad_guid cookie value")
}

func runWipe() {
	cfg := loadRunConfig()

	if !wipeYes && !confirmWipe() {
		fmt.Println("Cancelled")
		return
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}
	log := logger.GetLogger()

	client, err := gumroad.NewClient(&cfg.Gumroad, cfg.Download.DownloadTimeout, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to create client:", err)
		os.Exit(1)
	}

	scope := scraper.AllLibrary()
	if wipeCreator != "" {
		scope = scraper.ForCreator(wipeCreator)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, wipeErr := scraper.NewWiper(client, log).Wipe(ctx, scope)

	fmt.Printf("\nWipe finished: %d attempted, %d succeeded, %d failed\n",
		report.Attempted, report.Succeeded, report.Failed)
	for _, failure := range report.Failures {
		fmt.Printf("  %s\n", failure.String())
	}
	if report.Succeeded > 0 {
		fmt.Println("\nNote: deletion is best-effort; Gumroad may retain records server-side.")
	}

	if wipeErr != nil {
		fmt.Fprintln(os.Stderr, "\nWipe aborted:", wipeErr)
		os.Exit(1)
	}
	if report.Failed > 0 {
		os.Exit(1)
	}
}

func confirmWipe() bool {
	target := "your ENTIRE library"
	if wipeCreator != "" {
		target = fmt.Sprintf("all purchases from %q", wipeCreator)
	}
	fmt.Printf("This will remove %s from your Gumroad library.\n", target)
	fmt.Print("This cannot be undone from this tool. Continue? (y/N): ")

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
