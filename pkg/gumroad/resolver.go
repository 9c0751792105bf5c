package gumroad

import (
	"context"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/logger"
)

// Selectors for the product detail page. The page is an uncontrolled HTML
// surface; each extraction strategy below is an independently replaceable
// match against one known layout, so one failing pattern degrades to
// "this product unresolved" instead of aborting the run.
const (
	fileRowSelector   = ".js-file-list-element"
	treeItemSelector  = `div[role="treeitem"]`
	actionButtonSel   = ".actions button"
	productHeadingSel = "header h1"
	creatorLinkSel    = ".paragraphs:nth-child(1) > .stack:nth-child(3) a"
	receiptLinkSel    = ".paragraphs:nth-child(1) > .stack:nth-child(2) a[href]"
)

// archiveExtensions are content types a creator may publish as the whole
// product; such a product is downloaded as the file itself, not re-bundled.
var archiveExtensions = map[string]bool{"zip": true, "rar": true}

// pageContext carries what an extractor may need beyond the document
type pageContext struct {
	base        string
	detailURL   string
	productID   string
	productName string
}

// extractor is one matching strategy over the product detail page.
// extract returns the files it recognized and the number of file entries
// the page declares for this layout; (nil, 0) means the layout does not
// apply and the next strategy is tried.
type extractor interface {
	name() string
	extract(doc *goquery.Document, pc pageContext) ([]FileEntry, int)
}

// Resolver turns a Purchase into its concrete downloadable files
type Resolver struct {
	client     *Client
	logger     logger.Logger
	extractors []extractor
}

// NewResolver creates a resolver with the known extraction strategies in
// priority order: the bundled-ZIP shortcut, the file tree, and a bare
// download-link sweep as the last resort.
func NewResolver(client *Client, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{
		client: client,
		logger: log,
		extractors: []extractor{
			zipBundleExtractor{},
			fileTreeExtractor{},
			downloadLinkExtractor{},
		},
	}
}

// Resolve fetches the purchase's detail page and extracts its file set.
// Purchase metadata missing on the single-product path (name, creator,
// purchase date, price) is filled in from the detail and receipt pages
// when they expose it. Failure to parse the page into at least one file
// is a resolution error scoped to this purchase.
func (r *Resolver) Resolve(ctx context.Context, purchase *Purchase) (*Product, error) {
	itemID := purchase.ProductID
	if itemID == "" {
		itemID = purchase.DetailURL
	}

	doc, err := r.client.GetDocument(ctx, purchase.DetailURL)
	if err != nil {
		if apperrors.TypeOf(err) == apperrors.ErrorTypeAuth {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrorTypeResolution, itemID, err, "failed to fetch product page")
	}

	r.enrichFromDetailPage(doc, purchase)
	r.enrichFromReceipt(ctx, doc, purchase)

	pc := pageContext{
		base:        r.client.BaseURL(),
		detailURL:   purchase.DetailURL,
		productID:   purchase.ProductID,
		productName: purchase.ProductName,
	}

	for _, ex := range r.extractors {
		files, expected := ex.extract(doc, pc)
		if len(files) == 0 {
			continue
		}
		if expected < len(files) {
			expected = len(files)
		}

		product := &Product{
			ProductID:     purchase.ProductID,
			Files:         files,
			ExpectedFiles: expected,
			Partial:       len(files) < expected,
		}

		fields := map[string]interface{}{
			"product_id": purchase.ProductID,
			"strategy":   ex.name(),
			"files":      len(files),
			"expected":   expected,
		}
		if product.Partial {
			r.logger.WarnWithFields("product resolved partially", fields)
		} else {
			r.logger.DebugWithFields("product resolved", fields)
		}
		return product, nil
	}

	return nil, apperrors.Wrap(apperrors.ErrorTypeResolution, itemID, nil,
		"no extraction strategy matched the product page")
}

// enrichFromDetailPage fills purchase fields the listing did not provide
func (r *Resolver) enrichFromDetailPage(doc *goquery.Document, purchase *Purchase) {
	if purchase.ProductName == "" {
		purchase.ProductName = strings.TrimSpace(doc.Find(productHeadingSel).First().Text())
	}
	if purchase.CreatorHandle == "" {
		creator := doc.Find(creatorLinkSel).First()
		purchase.CreatorHandle = strings.TrimSpace(creator.Text())
	}
}

// enrichFromReceipt scrapes purchase date and price off the receipt page
// linked from the product view. Receipt failures never fail resolution;
// the fields simply stay unset.
func (r *Resolver) enrichFromReceipt(ctx context.Context, doc *goquery.Document, purchase *Purchase) {
	if !purchase.PurchasedAt.IsZero() && purchase.Price != "" {
		return
	}

	link := doc.Find(receiptLinkSel).First()
	href, ok := link.Attr("href")
	if !ok {
		link = doc.Find(`a[href*="receipt"]`).First()
		href, ok = link.Attr("href")
	}
	if !ok || href == "" {
		return
	}
	if strings.HasPrefix(href, "/") {
		href = r.client.BaseURL() + href
	}

	receipt, err := r.client.GetDocument(ctx, href)
	if err != nil {
		r.logger.WarnWithFields("failed to fetch receipt page", map[string]interface{}{
			"product_id": purchase.ProductID,
			"error":      err.Error(),
		})
		return
	}

	if purchase.PurchasedAt.IsZero() {
		raw := strings.TrimSpace(receipt.Find(".main > div:first-child > p").First().Text())
		if t, err := time.Parse("January 2, 2006", raw); err == nil {
			purchase.PurchasedAt = t
		}
	}
	if purchase.Price == "" {
		// Payment block reads "$9.99\n— VISA *0000"; the price is the first line
		raw := receipt.Find(".main > div:first-child > div").First().Text()
		for _, line := range strings.Split(raw, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				purchase.Price = line
				break
			}
		}
	}
}

// zipBundleExtractor matches products offering a "Download all as ZIP"
// action: the whole product is fetched as one bundled archive. It steps
// aside when the product's content already is a single archive, which is
// downloaded the normal way.
type zipBundleExtractor struct{}

func (zipBundleExtractor) name() string { return "zip_bundle" }

func (zipBundleExtractor) extract(doc *goquery.Document, pc pageContext) ([]FileEntry, int) {
	hasZipAction := false
	doc.Find(actionButtonSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "ZIP") {
			hasZipAction = true
			return false
		}
		return true
	})
	if !hasZipAction || contentIsArchive(doc) {
		return nil, 0
	}

	displayName := pc.productName
	if displayName == "" {
		displayName = pc.productID
	}

	return []FileEntry{{
		FileID:      pc.productID + "/zip",
		DisplayName: displayName + ".zip",
		DownloadURL: ZipURL(pc.detailURL),
	}}, 1
}

// contentIsArchive reports whether the product content is a single
// rar/zip file published as-is
func contentIsArchive(doc *goquery.Document) bool {
	rows := doc.Find(fileRowSelector)
	if rows.Length() != 1 {
		return false
	}
	fileType := strings.ToLower(strings.TrimSpace(rows.First().Find("li").First().Text()))
	return archiveExtensions[fileType]
}

// fileTreeExtractor walks the file tree layout: file rows grouped into
// nested folder tree items, with the file name in an h4, the type in the
// first li and the download link on the row's anchor. Folder names join
// into the entry's display path.
type fileTreeExtractor struct{}

func (fileTreeExtractor) name() string { return "file_tree" }

func (fileTreeExtractor) extract(doc *goquery.Document, pc pageContext) ([]FileEntry, int) {
	rows := doc.Find(fileRowSelector)
	expected := rows.Length()
	if expected == 0 {
		return nil, 0
	}

	var files []FileEntry
	rows.Each(func(_ int, row *goquery.Selection) {
		name := strings.TrimSpace(row.Find("h4").First().Text())
		href, ok := row.Find("a[href]").First().Attr("href")
		if name == "" || !ok || href == "" {
			// Unrecognizable row: counted via expected, not extracted
			return
		}

		if ext := strings.ToLower(strings.TrimSpace(row.Find("li").First().Text())); ext != "" {
			name = name + "." + ext
		}

		url := href
		if strings.HasPrefix(url, "/") {
			url = pc.base + url
		}

		segments := append(folderPath(row), name)
		files = append(files, FileEntry{
			FileID:      FileIDFromDownloadURL(url),
			DisplayName: path.Join(segments...),
			DownloadURL: url,
			SizeHint:    sizeHint(row),
		})
	})

	return files, expected
}

// folderPath collects the names of the folder tree items enclosing a file
// row, outermost first
func folderPath(row *goquery.Selection) []string {
	var names []string
	row.Parents().Filter(treeItemSelector).Each(func(_ int, folder *goquery.Selection) {
		if name := strings.TrimSpace(folder.ChildrenFiltered("h4").First().Text()); name != "" {
			names = append(names, name)
		}
	})
	// Parents() walks closest-first; the destination path reads root-first
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

var sizeRe = regexp.MustCompile(`(?i)^([\d.]+)\s*(KB|MB|GB)$`)

// sizeHint parses a human-readable size off the row's list items, when
// the page declares one
func sizeHint(row *goquery.Selection) int64 {
	var size int64
	row.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		m := sizeRe.FindStringSubmatch(strings.TrimSpace(li.Text()))
		if m == nil {
			return true
		}
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return true
		}
		switch strings.ToUpper(m[2]) {
		case "KB":
			size = int64(value * 1024)
		case "MB":
			size = int64(value * 1024 * 1024)
		case "GB":
			size = int64(value * 1024 * 1024 * 1024)
		}
		return false
	})
	return size
}

// downloadLinkExtractor is the last-resort sweep: any anchor pointing at
// a /r/ download path is taken as a file, named by its link text or URL
// tail. It catches layout variants the richer strategies miss.
type downloadLinkExtractor struct{}

func (downloadLinkExtractor) name() string { return "download_links" }

func (downloadLinkExtractor) extract(doc *goquery.Document, pc pageContext) ([]FileEntry, int) {
	var files []FileEntry
	seen := make(map[string]bool)

	doc.Find(`a[href*="/r/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" {
			return
		}
		url := href
		if strings.HasPrefix(url, "/") {
			url = pc.base + url
		}

		fileID := FileIDFromDownloadURL(url)
		if seen[fileID] {
			return
		}
		seen[fileID] = true

		name := strings.TrimSpace(a.Text())
		if name == "" {
			name = path.Base(url)
		}

		files = append(files, FileEntry{
			FileID:      fileID,
			DisplayName: name,
			DownloadURL: url,
		})
	})

	return files, len(files)
}
