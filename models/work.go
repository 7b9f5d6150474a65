package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ItemKind says how a work item is turned into a request.
type ItemKind int

const (
	// KindURL items are fetched as-is and carry HTML.
	KindURL ItemKind = iota
	// KindCategory items are category ids resolved against the product API.
	KindCategory
)

func (k ItemKind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindCategory:
		return "category"
	default:
		return "unknown"
	}
}

// WorkItem is one unit of discovered work.
type WorkItem struct {
	Kind  ItemKind
	Value string
}

// ID returns the identifier the item was discovered under.
func (w WorkItem) ID() string { return w.Value }

// URLItem wraps a page URL.
func URLItem(u string) WorkItem { return WorkItem{Kind: KindURL, Value: u} }

// CategoryItem wraps a category id.
func CategoryItem(id string) WorkItem { return WorkItem{Kind: KindCategory, Value: id} }

// URLItems wraps each URL in a WorkItem.
func URLItems(urls []string) []WorkItem {
	items := make([]WorkItem, 0, len(urls))
	for _, u := range urls {
		items = append(items, URLItem(u))
	}
	return items
}

// CategoryItems wraps each category id in a WorkItem.
func CategoryItems(ids []string) []WorkItem {
	items := make([]WorkItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, CategoryItem(id))
	}
	return items
}

// FetchResult is the outcome of retrieving one WorkItem: a payload or an error.
type FetchResult struct {
	Item     WorkItem
	URL      string
	Proxy    string
	Status   int
	Body     []byte
	Duration time.Duration
	Err      error
}

// OK reports whether the fetch produced a payload.
func (r FetchResult) OK() bool { return r.Err == nil }

// BatchReport holds one FetchResult per dispatched item, in dispatch order.
type BatchReport struct {
	Results []FetchResult
}

// Succeeded returns the results that carry a payload.
func (b *BatchReport) Succeeded() []FetchResult {
	if b == nil {
		return nil
	}
	out := make([]FetchResult, 0, len(b.Results))
	for _, r := range b.Results {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the results that carry an error.
func (b *BatchReport) Failed() []FetchResult {
	if b == nil {
		return nil
	}
	var out []FetchResult
	for _, r := range b.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Err joins every per-item error, nil when the whole batch succeeded.
func (b *BatchReport) Err() error {
	var errs []error
	for _, r := range b.Failed() {
		errs = append(errs, r.Err)
	}
	return errors.Join(errs...)
}

// Run carries the state of one scrape: who we are logged in as and when it
// started. It is created once and passed down, never mutated.
type Run struct {
	ID          string
	Credentials CredentialBundle
	StartedAt   time.Time
}

// NewRun starts a run with a fresh id.
func NewRun(creds CredentialBundle) *Run {
	return &Run{
		ID:          uuid.NewString(),
		Credentials: creds,
		StartedAt:   time.Now(),
	}
}
