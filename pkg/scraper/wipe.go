package scraper

import (
	"context"
	"net/http"

	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/gumroad"
	"gumdl/pkg/logger"
)

// WipeReport is the outcome of a wipe run
type WipeReport struct {
	Attempted int
	Succeeded int
	Failed    int
	Failures  []ItemError
}

// Wiper removes purchases from the library via the deletion endpoint.
// Deletion is best-effort and advisory: a 2xx means the server accepted
// the request, not that the purchase is verified gone. Per-item failures
// are collected; only auth failures abort the run.
type Wiper struct {
	client *gumroad.Client
	logger logger.Logger
}

// NewWiper creates a wiper over an authenticated client
func NewWiper(client *gumroad.Client, log logger.Logger) *Wiper {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Wiper{client: client, logger: log}
}

// Wipe enumerates the scope's purchases and requests deletion of each.
// Purchases without a listing row (single-product scopes) cannot be
// wiped, since deletion is keyed by purchase id, not product id.
func (w *Wiper) Wipe(ctx context.Context, scope Scope) (*WipeReport, error) {
	report := &WipeReport{}

	if len(scope.Products) > 0 {
		return report, apperrors.New(apperrors.ErrorTypeConfig,
			"wipe operates on the library listing, not on individual product links")
	}

	e := gumroad.NewEnumerator(w.client, scope.Creator, w.logger)
	for e.Next(ctx) {
		purchase := e.Purchase()
		report.Attempted++

		if err := w.deletePurchase(ctx, purchase); err != nil {
			if apperrors.IsFatal(err) {
				return report, err
			}
			report.Failed++
			report.Failures = append(report.Failures, ItemError{
				ItemID: purchase.PurchaseID,
				Stage:  "wipe",
				Err:    err,
			})
			continue
		}

		report.Succeeded++
		w.logger.InfoWithFields("purchase removed from library", map[string]interface{}{
			"purchase_id": purchase.PurchaseID,
			"product":     purchase.ProductName,
		})
	}
	if err := e.Err(); err != nil {
		return report, err
	}

	return report, nil
}

func (w *Wiper) deletePurchase(ctx context.Context, purchase gumroad.Purchase) error {
	if purchase.PurchaseID == "" {
		return apperrors.New(apperrors.ErrorTypeWipe, "listing row has no purchase id")
	}

	url := gumroad.PurchaseDeleteURL(w.client.BaseURL(), purchase.PurchaseID)
	req, err := w.client.BuildRequest(ctx, http.MethodDelete, url)
	if err != nil {
		return err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeWipe, purchase.PurchaseID, err, "deletion request failed")
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if err := w.client.CheckResponse(resp); err != nil {
		if apperrors.IsFatal(err) {
			return err
		}
		return apperrors.Wrap(apperrors.ErrorTypeWipe, purchase.PurchaseID, err, "server refused deletion")
	}
	return nil
}
