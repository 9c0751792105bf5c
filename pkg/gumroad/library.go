package gumroad

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/logger"
)

// libraryComponentSelector locates the react-on-rails payload the library
// page embeds; the purchase rows live in its JSON, not in the markup.
const libraryComponentSelector = `script.js-react-on-rails-component[data-component-name="LibraryPage"]`

type libraryPayload struct {
	Results []struct {
		Purchase libraryPurchase `json:"purchase"`
	} `json:"results"`
	HasMore *bool `json:"has_more"`
}

type libraryPurchase struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       string `json:"price"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"product_updated_at"`
	DownloadURL string `json:"download_url"`
	Creator     struct {
		Username string `json:"username"`
	} `json:"creator"`
}

// Enumerator lazily paginates the authenticated library, optionally
// filtered to one creator. Each Enumerator re-paginates from page 1 and
// yields purchases in server row order; it never re-orders or drops rows
// within a page. Row identity is tracked across pages only to terminate:
// a server that ignores the page parameter serves the same rows for
// every page, and that must end the sequence, not loop it.
//
// Usage follows the scanner pattern:
//
//	for e.Next(ctx) {
//	    p := e.Purchase()
//	    ...
//	}
//	if err := e.Err(); err != nil { ... }
type Enumerator struct {
	client  *Client
	creator string
	logger  logger.Logger

	page    int
	seen    map[string]bool
	pending []Purchase
	current Purchase
	done    bool
	err     error
}

// NewEnumerator creates an enumerator over the whole library, or over one
// creator's purchases when creator is non-empty.
func NewEnumerator(client *Client, creator string, log logger.Logger) *Enumerator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Enumerator{
		client:  client,
		creator: creator,
		logger:  log,
		seen:    make(map[string]bool),
	}
}

// Next advances to the next purchase, fetching further listing pages on
// demand. It returns false at the end of the library or on error.
func (e *Enumerator) Next(ctx context.Context) bool {
	for {
		if e.err != nil {
			return false
		}
		if len(e.pending) > 0 {
			e.current = e.pending[0]
			e.pending = e.pending[1:]
			return true
		}
		if e.done {
			return false
		}
		if ctx.Err() != nil {
			e.err = apperrors.Wrap(apperrors.ErrorTypeEnumeration, "", ctx.Err(), "enumeration cancelled")
			return false
		}
		e.fetchNextPage(ctx)
	}
}

// Purchase returns the purchase produced by the last successful Next call
func (e *Enumerator) Purchase() Purchase {
	return e.current
}

// Err returns the error that terminated enumeration, if any
func (e *Enumerator) Err() error {
	return e.err
}

func (e *Enumerator) fetchNextPage(ctx context.Context) {
	e.page++

	url := LibraryPageURL(e.client.BaseURL(), e.page)
	e.logger.DebugWithFields("fetching library page", map[string]interface{}{
		"page": e.page,
		"url":  url,
	})

	doc, err := e.client.GetDocument(ctx, url)
	if err != nil {
		// Auth failures stay auth failures; everything else means
		// pagination cannot safely continue.
		if apperrors.TypeOf(err) == apperrors.ErrorTypeAuth {
			e.err = err
		} else {
			e.err = apperrors.Wrap(apperrors.ErrorTypeEnumeration, "", err, "failed to fetch library page")
		}
		return
	}

	payload, err := parseLibraryPage(doc)
	if err != nil {
		e.err = err
		return
	}

	// A page yielding zero new rows is the safe terminal signal; an
	// explicit has_more marker, when present, only ends pagination
	// earlier.
	if len(payload.Results) == 0 {
		e.logger.DebugWithFields("library page empty, enumeration complete", map[string]interface{}{
			"page": e.page,
		})
		e.done = true
		return
	}
	if payload.HasMore != nil && !*payload.HasMore {
		e.done = true
	}

	newRows := 0
	var batch []Purchase
	for _, result := range payload.Results {
		p := e.toPurchase(result.Purchase)
		if key := rowKey(p); !e.seen[key] {
			e.seen[key] = true
			newRows++
		}
		if e.creator != "" && !strings.EqualFold(p.CreatorHandle, e.creator) {
			continue
		}
		batch = append(batch, p)
	}

	// A page that only repeats rows already served means the server
	// ignored the page parameter; emitting it would loop forever.
	if newRows == 0 {
		e.logger.DebugWithFields("library page repeats earlier rows, enumeration complete", map[string]interface{}{
			"page": e.page,
			"rows": len(payload.Results),
		})
		e.done = true
		return
	}
	e.pending = append(e.pending, batch...)

	e.logger.DebugWithFields("library page parsed", map[string]interface{}{
		"page":    e.page,
		"rows":    len(payload.Results),
		"new":     newRows,
		"matched": len(batch),
	})
}

// rowKey identifies a listing row across pages. The purchase id is the
// natural key; rows without one fall back to the product.
func rowKey(p Purchase) string {
	if p.PurchaseID != "" {
		return p.PurchaseID
	}
	if p.ProductID != "" {
		return p.ProductID
	}
	return p.DetailURL
}

func parseLibraryPage(doc *goquery.Document) (*libraryPayload, error) {
	script := doc.Find(libraryComponentSelector).First()
	if script.Length() == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeEnumeration, "library page has no recognizable listing payload")
	}

	var payload libraryPayload
	if err := json.Unmarshal([]byte(script.Text()), &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeEnumeration, "", err, "failed to decode library listing payload")
	}
	return &payload, nil
}

func (e *Enumerator) toPurchase(row libraryPurchase) Purchase {
	detailURL := row.DownloadURL
	switch {
	case detailURL == "":
		detailURL = ProductURL(e.client.BaseURL(), row.ProductID)
	case strings.HasPrefix(detailURL, "/"):
		detailURL = e.client.BaseURL() + detailURL
	default:
		detailURL = ProductURL(e.client.BaseURL(), detailURL)
	}

	return Purchase{
		PurchaseID:    row.ID,
		ProductID:     row.ProductID,
		ProductName:   row.ProductName,
		Price:         row.Price,
		PurchasedAt:   parseListingTime(row.CreatedAt),
		UploadedAt:    parseListingTime(row.UpdatedAt),
		CreatorHandle: row.Creator.Username,
		DetailURL:     detailURL,
	}
}

// parseListingTime accepts the timestamp shapes the listing payload has
// been seen to use; a zero time means the field was absent or unreadable.
func parseListingTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "January 2, 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// PurchaseFromIdentifier builds a purchase shell for single-product mode
// from a bare product token or a full detail URL. Listing metadata is not
// available on this path; the resolver fills in what the detail and
// receipt pages expose.
func PurchaseFromIdentifier(base, idOrURL string) Purchase {
	detailURL := ProductURL(base, idOrURL)
	productID := ProductIDFromURL(detailURL)
	return Purchase{
		ProductID: productID,
		DetailURL: detailURL,
	}
}
