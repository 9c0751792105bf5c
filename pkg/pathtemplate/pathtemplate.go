// Package pathtemplate renders the configurable product folder name from
// purchase metadata. Templates use {placeholder} fields, e.g.
// "{purchase_date} {product_name}".
package pathtemplate

import (
	"regexp"
	"strings"

	apperrors "gumdl/pkg/errors"
	"gumdl/pkg/gumroad"
)

// Placeholder names accepted in a folder template
const (
	FieldProductName  = "product_name"
	FieldPrice        = "price"
	FieldPurchaseDate = "purchase_date"
	FieldUploadDate   = "upload_date"
	FieldCreator      = "creator"
)

// DateLayout is how date placeholders render into folder names
const DateLayout = "2006-01-02"

var knownFields = map[string]bool{
	FieldProductName:  true,
	FieldPrice:        true,
	FieldPurchaseDate: true,
	FieldUploadDate:   true,
	FieldCreator:      true,
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Validate rejects templates referencing placeholders that do not exist.
// It runs once at startup so a typo in the config fails the run before
// any network traffic, not on the first product.
func Validate(template string) error {
	if strings.TrimSpace(template) == "" {
		return apperrors.New(apperrors.ErrorTypeConfig, "folder template must not be empty")
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if !knownFields[m[1]] {
			return apperrors.Newf(apperrors.ErrorTypeConfig, "folder template references unknown placeholder {%s}", m[1])
		}
	}
	return nil
}

// Fields extracts the template fields a purchase can provide. Fields the
// purchase has no value for are absent from the map, which Render reports
// per placeholder actually used.
func Fields(p *gumroad.Purchase) map[string]string {
	fields := make(map[string]string)
	if p.ProductName != "" {
		fields[FieldProductName] = p.ProductName
	}
	if p.Price != "" {
		fields[FieldPrice] = p.Price
	}
	if !p.PurchasedAt.IsZero() {
		fields[FieldPurchaseDate] = p.PurchasedAt.Format(DateLayout)
	}
	if !p.UploadedAt.IsZero() {
		fields[FieldUploadDate] = p.UploadedAt.Format(DateLayout)
	}
	if p.CreatorHandle != "" {
		fields[FieldCreator] = p.CreatorHandle
	}
	return fields
}

// Render expands a validated template with the given field values and
// sanitizes the result into a single safe path segment. A placeholder
// whose value is unavailable for this purchase is a template error scoped
// to the item, not a run failure.
func Render(template string, fields map[string]string) (string, error) {
	var missing string
	rendered := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		value, ok := fields[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return value
	})
	if missing != "" {
		return "", apperrors.Newf(apperrors.ErrorTypeTemplate, "no value available for template placeholder {%s}", missing)
	}

	rendered = SanitizeSegment(rendered)
	if rendered == "" {
		return "", apperrors.New(apperrors.ErrorTypeTemplate, "folder template rendered to an empty name")
	}
	return rendered, nil
}

var unsafePathChars = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeSegment makes a name safe as a single path component across
// platforms: separator and reserved characters are stripped or replaced
// and surrounding dots and spaces removed.
func SanitizeSegment(name string) string {
	name = unsafePathChars.Replace(name)
	name = strings.Trim(name, ". ")
	return strings.TrimSpace(name)
}

// SanitizeRelPath sanitizes each segment of a slash-separated display
// path, preserving the folder structure itself
func SanitizeRelPath(rel string) string {
	segments := strings.Split(rel, "/")
	cleaned := segments[:0]
	for _, s := range segments {
		if s = SanitizeSegment(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return strings.Join(cleaned, "/")
}
