package discovery

import (
	"context"
	"regexp"
)

// DefaultNavSelector matches the rendered category navigation entries.
const DefaultNavSelector = "ul.catalog-categories.foods-menu > li"

var digitsPattern = regexp.MustCompile(`(\d+)`)

// NavReader returns the class attribute of each element matching selector on
// a rendered page. session.Browser implements it.
type NavReader interface {
	NavClasses(ctx context.Context, pageURL, selector string) ([]string, error)
}

// Interactive reads category ids from the browser-rendered navigation.
type Interactive struct {
	Reader   NavReader
	PageURL  string
	Selector string
}

// CategoryIDs returns the first digit group of each entry's class attribute.
// Entries without digits are skipped.
func (i *Interactive) CategoryIDs(ctx context.Context) ([]string, error) {
	selector := i.Selector
	if selector == "" {
		selector = DefaultNavSelector
	}

	classes, err := i.Reader.NavClasses(ctx, i.PageURL, selector)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(classes))
	for _, class := range classes {
		if m := digitsPattern.FindStringSubmatch(class); m != nil {
			ids = append(ids, m[1])
		}
	}
	if len(ids) == 0 {
		return nil, &DiscoveryParseError{URL: i.PageURL, Selector: selector}
	}
	return ids, nil
}
