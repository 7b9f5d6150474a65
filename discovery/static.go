package discovery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-baldor/models"
	"github.com/aluiziolira/go-scrape-baldor/parser"
)

const (
	menuSelector      = "ul.catalog-categories.foods-menu"
	menuEntrySelector = "a.menu-fi-item"
)

// CategorySource lists the category ids to query the product API with.
type CategorySource interface {
	CategoryIDs(ctx context.Context) ([]string, error)
}

// Static reads the category menu from the unauthenticated landing page.
type Static struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	transport http.RoundTripper
}

// NewStatic returns a Static source for baseURL.
func NewStatic(baseURL, userAgent string, timeout time.Duration) *Static {
	return &Static{baseURL: baseURL, userAgent: userAgent, timeout: timeout}
}

// WithTransport replaces the HTTP transport used by the collector.
func (s *Static) WithTransport(rt http.RoundTripper) *Static {
	s.transport = rt
	return s
}

// CategoryURLs returns the absolute URL of every menu entry in document order.
func (s *Static) CategoryURLs(ctx context.Context) ([]string, error) {
	entries, pageURL, err := s.menuEntries(ctx)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, entries.Length())
	var parseErr error
	entries.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		// An entry without href resolves to the page itself.
		href := sel.AttrOr("href", "")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			parseErr = fmt.Errorf("resolve category href %q: %w", href, err)
			return false
		}
		urls = append(urls, pageURL.ResolveReference(ref).String())
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return urls, nil
}

// CategoryIDs returns the numeric id of every menu entry in document order.
func (s *Static) CategoryIDs(ctx context.Context) ([]string, error) {
	entries, pageURL, err := s.menuEntries(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, entries.Length())
	var parseErr error
	entries.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		id, ok := parser.ExtractCategoryID(sel.AttrOr("data-href", ""))
		if !ok {
			parseErr = &DiscoveryParseError{URL: pageURL.String(), Selector: menuEntrySelector + "[data-href]"}
			return false
		}
		ids = append(ids, id)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return ids, nil
}

func (s *Static) menuEntries(ctx context.Context) (*goquery.Selection, *url.URL, error) {
	doc, pageURL, err := s.fetch(ctx)
	if err != nil {
		return nil, nil, err
	}
	menu := doc.Find(menuSelector).First()
	if menu.Length() == 0 {
		return nil, nil, &DiscoveryParseError{URL: pageURL.String(), Selector: menuSelector}
	}
	entries := menu.Find(menuEntrySelector)
	slog.Debug("category menu parsed", slog.String("url", pageURL.String()), slog.Int("entries", entries.Length()))
	return entries, pageURL, nil
}

func (s *Static) fetch(ctx context.Context) (*goquery.Document, *url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(s.userAgent),
		colly.AllowURLRevisit(),
	)
	if s.timeout > 0 {
		c.SetRequestTimeout(s.timeout)
	}
	if s.transport != nil {
		c.WithTransport(s.transport)
	}

	var (
		doc      *goquery.Document
		pageURL  *url.URL
		status   int
		parseErr error
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		pageURL = r.Request.URL
		doc, parseErr = goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	visitErr := c.Visit(s.baseURL)
	if status != 0 && !models.StatusOK(status) {
		return nil, nil, &models.UpstreamHTTPError{URL: s.baseURL, Status: status}
	}
	if visitErr != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", s.baseURL, visitErr)
	}
	if parseErr != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", s.baseURL, parseErr)
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("fetch %s: no response", s.baseURL)
	}
	return doc, pageURL, nil
}
