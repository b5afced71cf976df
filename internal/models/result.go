package models

import "fmt"

// Category is one of the classification buckets returned by the verification service.
type Category string

const (
	CategoryValid    Category = "valid"
	CategoryInvalid  Category = "invalid"
	CategoryCatchAll Category = "catch-all"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryValid, CategoryInvalid, CategoryCatchAll}

// ParseCategory converts user input into a Category.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "valid":
		return CategoryValid, nil
	case "invalid":
		return CategoryInvalid, nil
	case "catch-all", "catchall", "catchAll", "catch_all":
		return CategoryCatchAll, nil
	default:
		return "", fmt.Errorf("unknown category: %q", s)
	}
}

// Label returns the display label used for charts and listings.
func (c Category) Label() string {
	switch c {
	case CategoryValid:
		return "Valid Emails"
	case CategoryInvalid:
		return "Invalid Emails"
	case CategoryCatchAll:
		return "Catch-All Emails"
	default:
		return string(c)
	}
}

// UploadRequest is the immutable snapshot sent to the verification service.
type UploadRequest struct {
	File        *SelectedFile
	EmailColumn string
}

// VerificationResult holds the classification counts and the locators of the
// per-category result files. A nil locator means no file is available.
type VerificationResult struct {
	ValidCount       int64   `json:"validCount"`
	InvalidCount     int64   `json:"invalidCount"`
	CatchAllCount    int64   `json:"catchAllCount"`
	ValidDownload    *string `json:"validDownloadUrl"`
	InvalidDownload  *string `json:"invalidDownloadUrl"`
	CatchAllDownload *string `json:"catchAllDownloadUrl"`
}

// Count returns the count for a category.
func (r *VerificationResult) Count(c Category) int64 {
	if r == nil {
		return 0
	}
	switch c {
	case CategoryValid:
		return r.ValidCount
	case CategoryInvalid:
		return r.InvalidCount
	case CategoryCatchAll:
		return r.CatchAllCount
	}
	return 0
}

// Locator returns the download locator for a category, or nil.
func (r *VerificationResult) Locator(c Category) *string {
	if r == nil {
		return nil
	}
	switch c {
	case CategoryValid:
		return r.ValidDownload
	case CategoryInvalid:
		return r.InvalidDownload
	case CategoryCatchAll:
		return r.CatchAllDownload
	}
	return nil
}

// Clone returns a deep copy.
func (r *VerificationResult) Clone() *VerificationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.ValidDownload = cloneString(r.ValidDownload)
	out.InvalidDownload = cloneString(r.InvalidDownload)
	out.CatchAllDownload = cloneString(r.CatchAllDownload)
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
