package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gumdl/pkg/cache"
	"gumdl/pkg/config"
	"gumdl/pkg/logger"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the download cache",
	Long: `Inspect the persistent download cache.

The cache records every completed download so repeat runs can skip
files that are already on disk. Deleting the cache file forces a full
re-download on the next run.`,
}

// cacheInfoCmd represents the cache info command
var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache location and contents",
	Run:   runCacheInfo,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)

	cacheCmd.PersistentFlags().StringVar(&cachePath, "cache-path", "", "path to the download cache file")
}

func runCacheInfo(cmd *cobra.Command, args []string) {
	flags := make(map[string]interface{})
	if cachePath != "" {
		flags["cache-path"] = cachePath
	}
	cfg, err := config.LoadUnvalidated(configFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	path := cfg.Cache.Path
	fmt.Println("Cache file:", path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("Status: not created yet (no completed downloads)")
		return
	}

	store, err := cache.Open(path, logger.GetLogger())
	if err != nil {
		// Most likely another gumdl run holds the lock
		fmt.Fprintln(os.Stderr, "Failed to open cache:", err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Printf("Completed downloads: %d\n", store.Len())
}
