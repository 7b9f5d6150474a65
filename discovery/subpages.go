package discovery

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-baldor/models"
)

const (
	subcategoryContainer = "div.subcats-list-mode"
	subcategoryLink      = "a.subcat-l-photo"

	productContainer = "div.items"
	productCard      = "div.js_product_card"
	productLink      = `a[unbxdattr="product"]`

	viewAllQuery = "viewall=1"
)

// PageLinks is what one fetched listing page pointed to. Found is false when
// the page had no listing container at all, as opposed to an empty one.
type PageLinks struct {
	Source string
	Found  bool
	URLs   []string
}

// LinkOptions controls sub-page discovery.
type LinkOptions struct {
	// Strict turns a missing listing container into a DiscoveryParseError.
	Strict bool
}

// SubcategoryLinks collects the "view all" URL of every subcategory tile on
// each successfully fetched category page.
func SubcategoryLinks(base string, results []models.FetchResult, opts LinkOptions) ([]PageLinks, error) {
	return collectLinks(base, results, opts, subcategoryContainer, func(container *goquery.Selection) []string {
		return container.Find(subcategoryLink).Map(func(_ int, s *goquery.Selection) string {
			return s.AttrOr("href", "")
		})
	}, withViewAll)
}

// ProductLinks collects the product detail URL of every product card on each
// successfully fetched listing page.
func ProductLinks(base string, results []models.FetchResult, opts LinkOptions) ([]PageLinks, error) {
	return collectLinks(base, results, opts, productContainer, func(container *goquery.Selection) []string {
		var hrefs []string
		container.Find(productCard).Each(func(_ int, card *goquery.Selection) {
			if href, ok := card.Find(productLink).First().Attr("href"); ok {
				hrefs = append(hrefs, href)
			}
		})
		return hrefs
	}, nil)
}

func collectLinks(
	base string,
	results []models.FetchResult,
	opts LinkOptions,
	container string,
	hrefs func(*goquery.Selection) []string,
	rewrite func(*url.URL) *url.URL,
) ([]PageLinks, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	pages := make([]PageLinks, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		source := r.URL
		if source == "" {
			source = r.Item.ID()
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			return pages, fmt.Errorf("parse %s: %w", source, err)
		}

		page := PageLinks{Source: source}
		sel := doc.Find(container).First()
		if sel.Length() == 0 {
			if opts.Strict {
				return pages, &DiscoveryParseError{URL: source, Selector: container}
			}
			pages = append(pages, page)
			continue
		}

		page.Found = true
		for _, href := range hrefs(sel) {
			href = strings.TrimSpace(href)
			if href == "" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				return pages, fmt.Errorf("resolve %q on %s: %w", href, source, err)
			}
			abs := baseURL.ResolveReference(ref)
			if rewrite != nil {
				abs = rewrite(abs)
			}
			page.URLs = append(page.URLs, abs.String())
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func withViewAll(u *url.URL) *url.URL {
	out := *u
	if out.RawQuery == "" {
		out.RawQuery = viewAllQuery
	} else {
		out.RawQuery += "&" + viewAllQuery
	}
	return &out
}

// Flatten concatenates the URLs of pages in order, keeping the first
// occurrence of each. maxSeen bounds the memory of the seen-set; a value <= 0
// means no bound beyond the total URL count.
func Flatten(pages []PageLinks, maxSeen int) []string {
	total := 0
	for _, p := range pages {
		total += len(p.URLs)
	}
	if total == 0 {
		return nil
	}
	if maxSeen <= 0 || maxSeen > total {
		maxSeen = total
	}

	seen, err := lru.New[string, struct{}](maxSeen)
	if err != nil {
		// lru only rejects non-positive sizes.
		panic(err)
	}

	out := make([]string, 0, total)
	for _, p := range pages {
		for _, u := range p.URLs {
			if seen.Contains(u) {
				continue
			}
			seen.Add(u, struct{}{})
			out = append(out, u)
		}
	}
	return out
}
