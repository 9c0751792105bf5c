package gumroad

import (
	"fmt"
	"regexp"
	"strings"
)

// BaseURL is the authenticated application host
const BaseURL = "https://app.gumroad.com"

var productTokenRe = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)

// LibraryPageURL returns the URL of one library listing page
func LibraryPageURL(base string, page int) string {
	if page <= 1 {
		return base + "/library"
	}
	return fmt.Sprintf("%s/library?page=%d", base, page)
}

// ProductURL normalizes a product identifier or link to a detail page URL.
// Bare tokens become /d/<token>; full URLs pass through unchanged.
func ProductURL(base, idOrURL string) string {
	idOrURL = strings.TrimSpace(idOrURL)
	if productTokenRe.MatchString(idOrURL) {
		return base + "/d/" + idOrURL
	}
	return idOrURL
}

// ZipURL converts a product detail URL into its bundled-archive URL
func ZipURL(detailURL string) string {
	return strings.Replace(detailURL, "/d/", "/zip/", 1)
}

// PurchaseDeleteURL returns the deletion endpoint for one purchase
func PurchaseDeleteURL(base, purchaseID string) string {
	return base + "/purchases/" + purchaseID
}

// ProductIDFromURL extracts the product token from a /d/ or /zip/ URL,
// or returns the input unchanged when no token is recognizable.
func ProductIDFromURL(url string) string {
	for _, marker := range []string{"/d/", "/zip/"} {
		if idx := strings.Index(url, marker); idx >= 0 {
			rest := url[idx+len(marker):]
			if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
				rest = rest[:cut]
			}
			return rest
		}
	}
	return url
}

// FileIDFromDownloadURL derives the stable cache key from a file download
// link of the form .../r/<productID>/<fileID>. ZIP bundles downloaded via
// /zip/<productID> key as <productID>/zip so a bundle and its contents
// never collide.
func FileIDFromDownloadURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if idx := strings.Index(trimmed, "/zip/"); idx >= 0 {
		return ProductIDFromURL(trimmed) + "/zip"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return trimmed
}
