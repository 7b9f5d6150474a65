package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-baldor/config"
	"github.com/aluiziolira/go-scrape-baldor/models"
	"github.com/aluiziolira/go-scrape-baldor/pipeline"
	"github.com/aluiziolira/go-scrape-baldor/session"
	"github.com/aluiziolira/go-scrape-baldor/store"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "upstream 429", err: &UpstreamHTTPError{URL: "u", Status: http.StatusTooManyRequests}, statusCode: 0, expected: "rate_limited"},
		{name: "upstream 500", err: &UpstreamHTTPError{URL: "u", Status: http.StatusInternalServerError}, statusCode: http.StatusInternalServerError, expected: "upstream"},
		{name: "canceled", err: fmt.Errorf("fetch: %w", context.Canceled), statusCode: 0, expected: "canceled"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

type collectingWriter struct {
	mu      sync.Mutex
	records []models.Record
}

func (cw *collectingWriter) Write(records []models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.records = append(cw.records, records...)
	return nil
}

func (cw *collectingWriter) Close() error {
	return nil
}

func (cw *collectingWriter) Validate() error {
	return nil
}

func (cw *collectingWriter) All() []models.Record {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make([]models.Record, len(cw.records))
	copy(out, cw.records)
	return out
}

const landingPage = `<html><body><ul class="catalog-categories foods-menu">
<li class="menu-fi-3"><a class="menu-fi-item" href="/products/fruits" data-href="#tab-3">Fruits</a></li>
<li class="menu-fi-17"><a class="menu-fi-item" href="/products/dairy" data-href="#tab-17">Dairy</a></li>
</ul></body></html>`

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func apiListing(titles ...string) string {
	var items []string
	for _, title := range titles {
		slug := strings.ToLower(title)
		items = append(items, fmt.Sprintf(`{"attributes":{"provider":"Acme","farmUrl":"/farm","size":"cs","title":%q,"description":"",
			"isLocal":true,"isOrganic":false,"isPeakSeason":true,
			"unitPricesArray":[{"unit":"cs","price":12.5,"brunit":"cs","maxQty":3}],
			"images":[{"big":"%s.jpg"}],"isBuyable":true,"isAvailable":true,"productUrl":"/product/%s"}}`, title, slug, slug))
	}
	return `{"data":[` + strings.Join(items, ",") + `]}`
}

func productDetail(title string) string {
	return fmt.Sprintf(`<html><body>
<span class="card-detail-farm">Sweet Acres</span>
<h1 class="card-details-title">%s</h1>
<div class="card-detail-sku">SKU-%s</div>
<span class="price">$9.75 / cs</span><span class="price-unit">cs</span>
<div class="product-note"><div class="mce-content">Fresh.</div></div>
</body></html>`, title, strings.ToUpper(title))
}

func registerLanding(transport *httpmock.MockTransport, cfg *config.Config) {
	transport.RegisterResponder("GET", cfg.BaseURL, htmlResponder(landingPage))
	transport.RegisterResponder("GET", strings.TrimSuffix(cfg.BaseURL, "/"), htmlResponder(landingPage))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/"
	cfg.APIBaseURL = "http://example.test/api/products"
	cfg.Concurrency = 2
	cfg.CoolDown = time.Millisecond
	cfg.Timeout = 5 * time.Second
	cfg.RawStorePath = filepath.Join(t.TempDir(), "baldorfood.db")
	cfg.BatchSize = 4
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config, transport http.RoundTripper, provider session.Provider) *Scraper {
	t.Helper()
	s, err := NewScraper(cfg, WithTransport(transport), WithProvider(provider))
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	return s
}

func sessionProvider() session.Provider {
	return session.StaticProvider{Bundle: models.NewCredentialBundle(models.Cookie{Name: "PHPSESSID", Value: "abc", Domain: "example.test"})}
}

func requireSession(next httpmock.Responder) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		if c, err := req.Cookie("PHPSESSID"); err != nil || c.Value != "abc" {
			return httpmock.NewStringResponse(http.StatusForbidden, "login required"), nil
		}
		return next(req)
	}
}

func TestScraperRunAPI(t *testing.T) {
	cfg := testConfig(t)

	transport := httpmock.NewMockTransport()
	registerLanding(transport, cfg)
	transport.RegisterResponder("GET", cfg.APIBaseURL, requireSession(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Query().Get("filter") {
		case "category eq 3":
			return httpmock.NewStringResponse(http.StatusOK, apiListing("Apple", "Pear")), nil
		case "category eq 17":
			return httpmock.NewStringResponse(http.StatusOK, apiListing("Milk")), nil
		}
		return httpmock.NewStringResponse(http.StatusNotFound, "unknown category"), nil
	}))

	s := newTestScraper(t, cfg, transport, sessionProvider())
	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	result, err := s.RunAPI(context.Background(), p)
	if err != nil {
		t.Fatalf("run api: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	records := writer.All()
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (result %+v)", len(records), result)
	}
	first, ok := records[0].(*models.APIProduct)
	if !ok {
		t.Fatalf("record type %T, want *models.APIProduct", records[0])
	}
	if first.Source != "3" || first.Title != "Apple" || first.Price != "12.5" {
		t.Fatalf("first record = %+v", first)
	}
	if got := records[2].(*models.APIProduct).Source; got != "17" {
		t.Fatalf("last record source = %q, want 17", got)
	}

	if result.RunID == "" || result.Mode != ModeAPI {
		t.Fatalf("result = %+v", result)
	}
	if result.RequestCount != 2 || result.ErrorCount != 0 || result.RecordCount != 3 {
		t.Fatalf("result counts = %+v", result)
	}
	if len(result.Stages) != 1 || result.Stages[0].Succeeded != 2 {
		t.Fatalf("stages = %+v", result.Stages)
	}

	st, err := store.OpenExisting(context.Background(), cfg.RawStorePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	docs, err := st.Documents(context.Background())
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 2 || docs[0].RunID != result.RunID {
		t.Fatalf("stored documents = %d, run id %q", len(docs), docs[0].RunID)
	}
}

func TestScraperRunAPIBestEffort(t *testing.T) {
	cfg := testConfig(t)
	cfg.FailFast = false

	transport := httpmock.NewMockTransport()
	registerLanding(transport, cfg)
	transport.RegisterResponder("GET", cfg.APIBaseURL, func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("filter") == "category eq 3" {
			return httpmock.NewStringResponse(http.StatusOK, apiListing("Apple")), nil
		}
		return httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"), nil
	})

	s := newTestScraper(t, cfg, transport, sessionProvider())
	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	result, err := s.RunAPI(context.Background(), p)
	if err != nil {
		t.Fatalf("run api: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if got := len(writer.All()); got != 1 {
		t.Fatalf("records = %d, want 1", got)
	}
	if result.ErrorCount != 1 || result.ErrorsByType["rate_limited"] != 1 {
		t.Fatalf("errors = %d %v", result.ErrorCount, result.ErrorsByType)
	}
	if len(result.FailedItems) != 1 || result.FailedItems[0] != "17" {
		t.Fatalf("failed items = %v", result.FailedItems)
	}
}

func TestScraperRunAPIFailFast(t *testing.T) {
	cfg := testConfig(t)

	transport := httpmock.NewMockTransport()
	registerLanding(transport, cfg)
	transport.RegisterResponder("GET", cfg.APIBaseURL, httpmock.NewStringResponder(http.StatusForbidden, "expired"))

	s := newTestScraper(t, cfg, transport, sessionProvider())
	p := pipeline.NewPipeline(context.Background(), &collectingWriter{}, cfg)
	p.Start(1)
	defer p.Close()

	result, err := s.RunAPI(context.Background(), p)
	var upstream *UpstreamHTTPError
	if !errors.As(err, &upstream) || upstream.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want upstream 403", err)
	}
	if result.ErrorsByType["forbidden"] == 0 {
		t.Fatalf("expected forbidden classification, got %v", result.ErrorsByType)
	}
}

func TestScraperAuthTimeout(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()

	provider := session.StaticProvider{Err: &session.AuthTimeoutError{Marker: "div.loginbox", Timeout: 15 * time.Second, Err: context.DeadlineExceeded}}
	s := newTestScraper(t, cfg, transport, provider)
	p := pipeline.NewPipeline(context.Background(), &collectingWriter{}, cfg)
	p.Start(1)
	defer p.Close()

	_, err := s.RunAPI(context.Background(), p)
	if !IsAuthTimeout(err) {
		t.Fatalf("err = %v, want authentication timeout", err)
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Fatalf("requests after failed login = %d, want 0", n)
	}
}

type fixedCategories []string

func (f fixedCategories) CategoryIDs(context.Context) ([]string, error) { return f, nil }

func TestScraperCustomCategorySource(t *testing.T) {
	cfg := testConfig(t)
	cfg.RawStorePath = ""

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.APIBaseURL, httpmock.NewStringResponder(http.StatusOK, apiListing("Kale")))

	s, err := NewScraper(cfg, WithTransport(transport), WithProvider(sessionProvider()), WithCategorySource(fixedCategories{"99"}))
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	if _, err := s.RunAPI(context.Background(), p); err != nil {
		t.Fatalf("run api: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}
	records := writer.All()
	if len(records) != 1 || records[0].(*models.APIProduct).Source != "99" {
		t.Fatalf("records = %+v", records)
	}
}

func registerCatalogPages(transport *httpmock.MockTransport, cfg *config.Config) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	registerLanding(transport, cfg)
	transport.RegisterResponder("GET", base+"/products/fruits", htmlResponder(`<div class="subcats-list-mode">
		<a class="subcat-l-photo" href="/products/fruits/apples">Apples</a>
		<a class="subcat-l-photo" href="/products/fruits/pears">Pears</a>
	</div>`))
	// Dairy has no subcategory tiles.
	transport.RegisterResponder("GET", base+"/products/dairy", htmlResponder(`<div class="items"></div>`))
	transport.RegisterResponder("GET", base+"/products/fruits/apples?viewall=1", htmlResponder(`<div class="items">
		<div class="js_product_card"><a unbxdattr="product" href="/product/honeycrisp">Honeycrisp</a></div>
		<div class="js_product_card"><a unbxdattr="product" href="/product/gala">Gala</a></div>
	</div>`))
	transport.RegisterResponder("GET", base+"/products/fruits/pears?viewall=1", htmlResponder(`<div class="items">
		<div class="js_product_card"><a unbxdattr="product" href="/product/bosc">Bosc</a></div>
		<div class="js_product_card"><a unbxdattr="product" href="/product/gala">Gala</a></div>
	</div>`))
	for _, name := range []string{"honeycrisp", "gala", "bosc"} {
		transport.RegisterResponder("GET", base+"/product/"+name, requireSession(htmlResponder(productDetail(name))))
	}
}

func TestScraperRunPages(t *testing.T) {
	cfg := testConfig(t)

	transport := httpmock.NewMockTransport()
	registerCatalogPages(transport, cfg)

	s := newTestScraper(t, cfg, transport, sessionProvider())
	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	result, err := s.RunPages(context.Background(), p)
	if err != nil {
		t.Fatalf("run pages: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	records := writer.All()
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	want := []string{
		"http://example.test/product/honeycrisp",
		"http://example.test/product/gala",
		"http://example.test/product/bosc",
	}
	for i, rec := range records {
		page, ok := rec.(*models.PageProduct)
		if !ok {
			t.Fatalf("record %d type %T", i, rec)
		}
		if page.Source != want[i] {
			t.Fatalf("record %d source = %q, want %q", i, page.Source, want[i])
		}
		if page.Price != "$9.75" || page.Farm != "Sweet Acres" || page.Ingredient != "" {
			t.Fatalf("record %d = %+v", i, page)
		}
	}

	if len(result.Stages) != 3 {
		t.Fatalf("stages = %+v", result.Stages)
	}
	if result.Stages[0].Items != 2 || result.Stages[1].Items != 2 || result.Stages[2].Items != 3 {
		t.Fatalf("stage sizes = %+v", result.Stages)
	}
	if result.RequestCount != 7 || result.ErrorCount != 0 {
		t.Fatalf("result counts = %+v", result)
	}

	// Re-extracting the stored documents yields the same rows.
	replayWriter := &collectingWriter{}
	replay := pipeline.NewPipeline(context.Background(), replayWriter, cfg)
	replay.Start(1)
	replayResult, err := s.ExtractStored(context.Background(), replay)
	if err != nil {
		t.Fatalf("extract stored: %v", err)
	}
	if err := replay.Close(); err != nil {
		t.Fatalf("close replay pipeline: %v", err)
	}
	if replayResult.WorkItems != 3 {
		t.Fatalf("replayed documents = %d, want 3", replayResult.WorkItems)
	}
	again := replayWriter.All()
	if len(again) != len(records) {
		t.Fatalf("replayed records = %d, want %d", len(again), len(records))
	}
	for i := range records {
		if fmt.Sprint(records[i].Row()) != fmt.Sprint(again[i].Row()) {
			t.Fatalf("record %d differs on replay:\n%v\n%v", i, records[i].Row(), again[i].Row())
		}
	}
}

func TestScraperRunPagesStrictDiscovery(t *testing.T) {
	cfg := testConfig(t)
	cfg.StrictDiscovery = true

	transport := httpmock.NewMockTransport()
	registerCatalogPages(transport, cfg)

	s := newTestScraper(t, cfg, transport, sessionProvider())
	p := pipeline.NewPipeline(context.Background(), &collectingWriter{}, cfg)
	p.Start(1)
	defer p.Close()

	_, err := s.RunPages(context.Background(), p)
	if err == nil || !strings.Contains(err.Error(), "subcats-list-mode") {
		t.Fatalf("err = %v, want missing subcategory container", err)
	}
}

func TestNewScraperRejectsOversizedBoundary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Proxies = []string{"10.0.0.1:8080"}
	cfg.ProxyBoundary = 20
	if _, err := NewScraper(cfg); err == nil {
		t.Fatalf("expected boundary error")
	}
}
