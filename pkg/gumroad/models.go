package gumroad

import "time"

// Purchase is one row of the user's library: a link between the user and
// one acquired product. PurchasedAt/UploadedAt are zero when the purchase
// shell was built from a bare product identifier instead of a listing.
type Purchase struct {
	PurchaseID    string
	ProductID     string
	ProductName   string
	Price         string
	PurchasedAt   time.Time
	UploadedAt    time.Time
	CreatorHandle string
	DetailURL     string
}

// Product is the resolved detail view of a Purchase.
type Product struct {
	ProductID string
	Files     []FileEntry

	// ExpectedFiles is the number of file rows the detail page declared.
	// When extraction could not recover all of them the result is partial
	// and must be reported, not silently truncated.
	ExpectedFiles int
	Partial       bool
}

// FileEntry is one concrete downloadable file belonging to a product.
// FileID is stable across runs for the same underlying content and keys
// the download cache. DisplayName may contain folder segments when the
// product page groups files into a tree.
type FileEntry struct {
	FileID      string
	DisplayName string
	DownloadURL string
	SizeHint    int64 // bytes, 0 when the page does not declare a size
}
