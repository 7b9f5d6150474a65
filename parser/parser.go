// Package parser turns fetched payloads into product records.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-baldor/models"
)

var (
	pricePattern    = regexp.MustCompile(`\$\d+\.\d{2}`)
	tabIDPattern    = regexp.MustCompile(`#tab-(\d+)`)
	digitsPattern   = regexp.MustCompile(`(\d+)`)
	whitespaceRunes = regexp.MustCompile(`\s+`)
)

// ExtractPrice returns the first "$12.34"-shaped substring of s.
func ExtractPrice(s string) (string, bool) {
	m := pricePattern.FindString(s)
	return m, m != ""
}

// ExtractCategoryID pulls the numeric category id out of a navigation
// attribute. "#tab-42" style anchors win; otherwise the first run of digits
// is used.
func ExtractCategoryID(s string) (string, bool) {
	if m := tabIDPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if m := digitsPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// CleanText trims s and collapses inner whitespace runs to one space.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRunes.ReplaceAllString(s, " "))
}

// ValidateRecord ensures the extractor produced something addressable.
func ValidateRecord(r models.Record) error {
	switch rec := r.(type) {
	case nil:
		return fmt.Errorf("record is nil")
	case *models.APIProduct:
		if rec == nil {
			return fmt.Errorf("record is nil")
		}
	case *models.PageProduct:
		if rec == nil {
			return fmt.Errorf("record is nil")
		}
	}
	if strings.TrimSpace(r.Key()) == "" {
		return fmt.Errorf("%s record missing identifier", r.Kind())
	}
	return nil
}
