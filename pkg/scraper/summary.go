package scraper

import (
	"fmt"
	"strings"
	"time"
)

// ItemError is one per-item failure surfaced in the run summary
type ItemError struct {
	ItemID string
	Stage  string // enumeration, resolution, template, download, wipe
	Err    error
}

func (e ItemError) String() string {
	return fmt.Sprintf("[%s] %s: %v", e.Stage, e.ItemID, e.Err)
}

// Summary is the outcome of one run. It is always produced, also when
// the run aborted early; the caller decides how much of it to show.
type Summary struct {
	PurchasesSeen      int
	ProductsResolved   int
	ProductsPartial    int
	ResolutionFailures int
	FilesDownloaded    int
	FilesSkipped       int
	FilesFailed        int
	BytesDownloaded    int64
	Duration           time.Duration
	Errors             []ItemError
}

// Render formats the summary for terminal output
func (s *Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Purchases:   %d seen, %d resolved", s.PurchasesSeen, s.ProductsResolved)
	if s.ResolutionFailures > 0 {
		fmt.Fprintf(&b, ", %d failed to resolve", s.ResolutionFailures)
	}
	if s.ProductsPartial > 0 {
		fmt.Fprintf(&b, " (%d partial)", s.ProductsPartial)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Files:       %d downloaded, %d skipped", s.FilesDownloaded, s.FilesSkipped)
	if s.FilesFailed > 0 {
		fmt.Fprintf(&b, ", %d failed", s.FilesFailed)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Transferred: %s in %s\n", formatBytes(s.BytesDownloaded), s.Duration.Round(time.Second))

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "\n%d item(s) need attention:\n", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
