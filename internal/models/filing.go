package models

import (
	"strings"
	"time"
)

// Filing significance categories. Form types map deterministically onto
// these so downstream ranking never depends on free text.
const (
	FilingCategoryHigh   = "HIGH"
	FilingCategoryMedium = "MEDIUM"
	FilingCategoryLow    = "LOW"
	FilingCategoryNoise  = "NOISE"
)

// Filing represents one SEC EDGAR filing, denormalized from the
// submissions feed's parallel arrays.
type Filing struct {
	ID              string    `json:"id"`
	CIK             string    `json:"cik"`
	Company         string    `json:"company,omitempty"`
	AccessionNumber string    `json:"accession_number"`
	FormType        string    `json:"form_type"`
	FilingDate      time.Time `json:"filing_date"`
	ReportDate      time.Time `json:"report_date,omitempty"`
	PrimaryDocument string    `json:"primary_document,omitempty"`
	PrimaryDocURL   string    `json:"primary_doc_url,omitempty"`
	Description     string    `json:"description,omitempty"`
	Symbols         []string  `json:"symbols,omitempty"`
	Category        string    `json:"category"`
}

// CategorizeForm maps an EDGAR form type to a significance category.
// Material events and periodic reports rank HIGH, ownership changes
// MEDIUM, registration statements LOW, everything else NOISE.
func CategorizeForm(formType string) string {
	form := strings.ToUpper(strings.TrimSpace(formType))

	switch form {
	case "8-K", "10-Q", "10-K", "6-K", "20-F", "10-K/A", "10-Q/A", "8-K/A":
		return FilingCategoryHigh
	case "4", "3", "5", "SC 13D", "SC 13G", "SC 13D/A", "SC 13G/A", "13F-HR":
		return FilingCategoryMedium
	}

	switch {
	case strings.HasPrefix(form, "S-8"), strings.HasPrefix(form, "424B"),
		strings.HasPrefix(form, "S-3"), strings.HasPrefix(form, "S-1"):
		return FilingCategoryLow
	}

	return FilingCategoryNoise
}
