// Package discovery turns the site's navigation and listing pages into work
// items for the fetcher.
package discovery

import "fmt"

// DiscoveryParseError means an expected structural element was absent.
type DiscoveryParseError struct {
	URL      string
	Selector string
}

func (e *DiscoveryParseError) Error() string {
	return fmt.Sprintf("discovery: %q not found in %s", e.Selector, e.URL)
}
