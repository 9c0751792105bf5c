package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gumdl/pkg/auth"
	"gumdl/pkg/cache"
	"gumdl/pkg/config"
	"gumdl/pkg/gumroad"
	"gumdl/pkg/logger"
	"gumdl/pkg/scraper"
)

var (
	// Download command flags
	creatorHandle  string
	outputDir      string
	folderTemplate string
	cachePath      string
	concurrent     int
	maxRetries     int
	accountName    string
	appSession     string
	guid           string
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download [product link or id...]",
	Short: "Download purchased products to local folders",
	Long: `Download your purchased Gumroad products.

With no arguments the whole library is downloaded. Pass product links or
ids to download specific products, or --creator to restrict the run to
one creator's purchases.

Files already downloaded in a previous run are skipped, so interrupted
runs can simply be repeated.`,
	Example: `  # Download the whole library
  gumdl download

  # Download everything bought from one creator
  gumdl download --creator somecreator

  # Download specific products
  gumdl download https://app.gumroad.com/d/f0000000000000000000000000000000

  # Custom output layout
  gumdl download --output ~/gumroad --folder-template "{creator} - {product_name}"`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runDownload(args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVar(&creatorHandle, "creator", "", "only download purchases from this creator")
	downloadCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	downloadCmd.Flags().StringVar(&folderTemplate, "folder-template", "", "product folder name template")
	downloadCmd.Flags().StringVar(&cachePath, "cache-path", "", "path to the download cache file")
	downloadCmd.Flags().IntVar(&concurrent, "concurrent", 0, "number of concurrent downloads (max 4)")
	downloadCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "maximum number of retry attempts per file")
	downloadCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	downloadCmd.Flags().StringVar(&appSession, "app-session", "", "Gumroad _gumroad_app_session cookie value")
	downloadCmd.Flags().StringVar(&guid, "guid", "", "Gumroad _gumroad_guid cookie value")

	// Running gumdl without a subcommand downloads, matching the most
	// common use
	rootCmd.RunE = downloadCmd.RunE
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.Flags().AddFlagSet(downloadCmd.Flags())
}

// loadRunConfig assembles the validated configuration shared by the
// download and wipe commands
func loadRunConfig() *config.Config {
	flags := make(map[string]interface{})
	if appSession != "" {
		flags["app-session"] = appSession
	}
	if guid != "" {
		flags["guid"] = guid
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if folderTemplate != "" {
		flags["folder-template"] = folderTemplate
	}
	if cachePath != "" {
		flags["cache-path"] = cachePath
	}
	if concurrent > 0 {
		flags["concurrent"] = concurrent
	}
	if maxRetries > 0 {
		flags["max-retries"] = maxRetries
	}
	if quiet {
		logLevel = "error"
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.LoadUnvalidated(configFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	// Fill in credentials from the credential manager when neither
	// flags, environment nor config file provided them
	if cfg.Gumroad.AppSession == "" || cfg.Gumroad.Guid == "" {
		fillStoredCredentials(cfg)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Invalid configuration:", err)
		fmt.Fprintln(os.Stderr, "\nTo store credentials securely, run:")
		fmt.Fprintln(os.Stderr, "  gumdl auth login")
		fmt.Fprintln(os.Stderr, "\nOr set environment variables:")
		fmt.Fprintln(os.Stderr, "  export GUMDL_APP_SESSION=your_app_session_cookie")
		fmt.Fprintln(os.Stderr, "  export GUMDL_GUID=your_guid_cookie")
		os.Exit(1)
	}

	return cfg
}

func fillStoredCredentials(cfg *config.Config) {
	manager, err := auth.NewManager()
	if err != nil {
		return
	}

	var account *auth.Account
	if accountName != "" {
		account, err = manager.Retrieve(accountName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Account not found: %s\n", accountName)
			fmt.Fprintln(os.Stderr, "Use 'gumdl auth list' to see stored accounts")
			os.Exit(1)
		}
	} else {
		account, err = manager.RetrieveDefault()
		if err != nil {
			return
		}
	}

	cfg.Gumroad.AppSession = account.AppSession
	cfg.Gumroad.Guid = account.Guid
	if account.UserAgent != "" {
		cfg.Gumroad.UserAgent = account.UserAgent
	}
	fmt.Fprintf(os.Stderr, "Using stored credentials for account: %s\n", account.Name)
}

func runDownload(args []string) {
	cfg := loadRunConfig()

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("gumdl starting")

	client, err := gumroad.NewClient(&cfg.Gumroad, cfg.Download.DownloadTimeout, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to create client:", err)
		os.Exit(1)
	}

	store, err := cache.Open(cfg.Cache.Path, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to open download cache:", err)
		os.Exit(1)
	}
	defer store.Close()

	scope := scraper.AllLibrary()
	switch {
	case len(args) > 0:
		scope = scraper.ForProducts(args...)
	case creatorHandle != "":
		scope = scraper.ForCreator(creatorHandle)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := scraper.New(cfg, client, store, log)
	summary, runErr := runner.Run(ctx, scope)

	fmt.Println()
	fmt.Print(summary.Render())

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "\nRun aborted:", runErr)
		os.Exit(1)
	}
	if summary.FilesFailed > 0 || summary.ResolutionFailures > 0 {
		os.Exit(1)
	}
}
