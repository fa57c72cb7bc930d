package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/benoit-getinside/archive-news/stats"
)

var topN int

var archiveStatsCmd = &cobra.Command{
	Use:   "archive-stats [output directory]",
	Short: "Analyse an existing archive directory and show statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read archive directory: %w", err)
		}

		var (
			pageCount  int
			assetCount int
			totalBytes int64
			newest     time.Time
			newestName string
			oldest     time.Time
			oldestName string
		)
		extensions := make(map[string]int)

		for _, de := range entries {
			if de.IsDir() {
				continue
			}
			name := de.Name()
			info, err := de.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", name, err)
			}
			totalBytes += info.Size()

			if strings.HasSuffix(name, ".html") && name != "index.html" {
				pageCount++
				if newest.IsZero() || info.ModTime().After(newest) {
					newest = info.ModTime()
					newestName = name
				}
				if oldest.IsZero() || info.ModTime().Before(oldest) {
					oldest = info.ModTime()
					oldestName = name
				}
				continue
			}
			if name != "index.html" {
				assetCount++
				ext := filepath.Ext(name)
				if ext == "" {
					ext = "(none)"
				}
				extensions[ext]++
			}
		}

		fmt.Printf("Archive: %s\n\n", dir)
		fmt.Printf("Entries: %d\n", pageCount)
		fmt.Printf("Assets:  %d\n", assetCount)
		fmt.Printf("Size:    %.1f MiB\n", float64(totalBytes)/(1024*1024))
		if newestName != "" {
			fmt.Printf("Newest:  %s (%s)\n", newestName, newest.Format(time.RFC3339))
			fmt.Printf("Oldest:  %s (%s)\n", oldestName, oldest.Format(time.RFC3339))
		}

		if len(extensions) > 0 {
			fmt.Printf("\nTop %d asset extensions:\n", topN)
			stats.PrettyPrintTop(extensions, topN)
		}

		return nil
	},
}

func init() {
	archiveStatsCmd.Flags().IntVar(&topN, "top", 5, "How many asset extensions to list")
}

// Register attaches the auxiliary commands to the root command.
func Register(root *cobra.Command) {
	root.AddCommand(archiveStatsCmd)
}
