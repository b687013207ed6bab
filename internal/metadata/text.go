// Package metadata turns uploaded documents into bibliographic records: it
// extracts text, finds a DOI in it and resolves the DOI to citation data.
package metadata

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/fuomag9/paperdrive/internal/errs"
)

var doiPattern = regexp.MustCompile(`(?i)\b10\.\d{4,9}/[-._;()/:A-Z0-9]+\b`)

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

// ExtractText returns the plain text of a PDF document.
func ExtractText(data []byte) (text string, err error) {
	if !isPDF(data) {
		return "", fmt.Errorf("%w: not a pdf document", errs.ErrValidation)
	}

	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: unreadable pdf: %v", errs.ErrValidation, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf reader: %v", errs.ErrValidation, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: pdf plaintext: %v", errs.ErrValidation, err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("%w: pdf read: %v", errs.ErrValidation, err)
	}
	return collapseWhitespace(string(b)), nil
}

// FindIdentifier returns the first DOI in text, or "Unknown".
func FindIdentifier(text string) string {
	if m := doiPattern.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return Unknown
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
