package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-baldor/config"
	"github.com/aluiziolira/go-scrape-baldor/discovery"
	"github.com/aluiziolira/go-scrape-baldor/models"
	"github.com/aluiziolira/go-scrape-baldor/parser"
	"github.com/aluiziolira/go-scrape-baldor/pipeline"
	"github.com/aluiziolira/go-scrape-baldor/proxy"
	"github.com/aluiziolira/go-scrape-baldor/session"
	"github.com/aluiziolira/go-scrape-baldor/store"
)

// Run modes reported in ScraperResult.Mode.
const (
	ModeAPI     = "api"
	ModePages   = "pages"
	ModeExtract = "extract"
)

// Option customises a Scraper.
type Option func(*Scraper)

// WithProvider replaces the browser login.
func WithProvider(p session.Provider) Option {
	return func(s *Scraper) { s.provider = p }
}

// WithCategorySource replaces the static menu as the source of category ids.
func WithCategorySource(src discovery.CategorySource) Option {
	return func(s *Scraper) { s.categories = src }
}

// WithTransport sends all discovery and fetch traffic through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Scraper) {
		s.menu.WithTransport(rt)
		s.fetcher.WithTransport(rt)
	}
}

// Scraper runs the discover, fetch, store and extract stages of a scrape.
type Scraper struct {
	cfg        *config.Config
	provider   session.Provider
	menu       *discovery.Static
	categories discovery.CategorySource
	fetcher    *Fetcher
	Metrics    *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, opts ...Option) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loginURL, err := cfg.LoginURL()
	if err != nil {
		return nil, err
	}
	rotator, err := proxy.NewRotator(cfg.Proxies, cfg.ProxyBoundary)
	if err != nil {
		return nil, fmt.Errorf("configure proxies: %w", err)
	}

	metrics := NewMetrics()
	menu := discovery.NewStatic(cfg.BaseURL, cfg.UserAgent, cfg.Timeout)
	s := &Scraper{
		cfg: cfg,
		provider: &session.BrowserProvider{
			LoginURL: loginURL,
			Options: session.BrowserOptions{
				UserAgent:    cfg.UserAgent,
				Headless:     cfg.Headless,
				LoginTimeout: cfg.LoginTimeout,
			},
		},
		menu:       menu,
		categories: menu,
		fetcher:    NewFetcher(cfg, rotator, metrics),
		Metrics:    metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fetcher exposes the batch fetcher used by the run stages.
func (s *Scraper) Fetcher() *Fetcher { return s.fetcher }

// Authenticate logs in and starts a run.
func (s *Scraper) Authenticate(ctx context.Context) (*models.Run, error) {
	creds := session.Credentials{Email: s.cfg.Email, Password: s.cfg.Password}
	bundle, err := s.provider.Authenticate(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	run := models.NewRun(bundle)
	slog.Info("session established", slog.String("run_id", run.ID), slog.Int("cookies", bundle.Len()))
	return run, nil
}

// RunAPI queries the product API once per category id from the menu and
// sends the projected rows to p.
func (s *Scraper) RunAPI(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	result := newResult(ModeAPI)
	defer finish(result)

	run, err := s.Authenticate(ctx)
	if err != nil {
		return result, err
	}
	result.RunID = run.ID

	ids, err := s.categories.CategoryIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("discover categories: %w", err)
	}
	slog.Info("categories discovered", slog.Int("count", len(ids)))

	report, err := s.fetchStage(ctx, run, "categories", models.CategoryItems(ids), result)
	if err != nil {
		return result, err
	}

	if s.cfg.RawStorePath != "" {
		st, err := store.Open(ctx, s.cfg.RawStorePath)
		if err != nil {
			return result, err
		}
		defer st.Close()
		if _, err := st.AppendResults(ctx, run.ID, report.Results); err != nil {
			return result, err
		}
	}

	return result, s.extract(report.Results, p, result)
}

// RunPages crawls category, subcategory and product pages, stores the
// product documents and extracts them from the store.
func (s *Scraper) RunPages(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	result := newResult(ModePages)
	defer finish(result)

	run, err := s.Authenticate(ctx)
	if err != nil {
		return result, err
	}
	result.RunID = run.ID

	categoryURLs, err := s.menu.CategoryURLs(ctx)
	if err != nil {
		return result, fmt.Errorf("discover categories: %w", err)
	}
	slog.Info("categories discovered", slog.Int("count", len(categoryURLs)))

	linkOpts := discovery.LinkOptions{Strict: s.cfg.StrictDiscovery}

	categories, err := s.fetchStage(ctx, run, "categories", models.URLItems(categoryURLs), result)
	if err != nil {
		return result, err
	}
	subPages, err := discovery.SubcategoryLinks(s.cfg.BaseURL, categories.Succeeded(), linkOpts)
	if err != nil {
		return result, fmt.Errorf("discover subcategories: %w", err)
	}
	logMissing("subcategory", subPages)

	subcategories, err := s.fetchStage(ctx, run, "subcategories", models.URLItems(discovery.Flatten(subPages, s.cfg.DedupeMaxSize)), result)
	if err != nil {
		return result, err
	}
	productPages, err := discovery.ProductLinks(s.cfg.BaseURL, subcategories.Succeeded(), linkOpts)
	if err != nil {
		return result, fmt.Errorf("discover products: %w", err)
	}
	logMissing("product", productPages)

	products, err := s.fetchStage(ctx, run, "products", models.URLItems(discovery.Flatten(productPages, s.cfg.DedupeMaxSize)), result)
	if err != nil {
		return result, err
	}

	if s.cfg.RawStorePath == "" {
		return result, s.extract(products.Results, p, result)
	}

	st, err := store.Open(ctx, s.cfg.RawStorePath)
	if err != nil {
		return result, err
	}
	defer st.Close()
	stored, err := st.AppendResults(ctx, run.ID, products.Results)
	if err != nil {
		return result, err
	}
	slog.Info("documents stored", slog.String("path", st.Path()), slog.Int("count", stored))

	return result, s.extractStore(ctx, st, p, result)
}

// ExtractStored re-extracts the documents of an earlier run without any
// network traffic.
func (s *Scraper) ExtractStored(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	result := newResult(ModeExtract)
	defer finish(result)

	st, err := store.OpenExisting(ctx, s.cfg.RawStorePath)
	if err != nil {
		return result, err
	}
	defer st.Close()

	results, err := st.Results(ctx)
	if err != nil {
		return result, err
	}
	result.WorkItems = len(results)
	return result, s.extract(results, p, result)
}

func (s *Scraper) extractStore(ctx context.Context, st *store.Store, p *pipeline.Pipeline, result *models.ScraperResult) error {
	results, err := st.Results(ctx)
	if err != nil {
		return err
	}
	return s.extract(results, p, result)
}

func (s *Scraper) extract(results []models.FetchResult, p *pipeline.Pipeline, result *models.ScraperResult) error {
	ex := &parser.Extractor{SkipInvalid: !s.cfg.FailFast}
	records, err := ex.Extract(results)
	if err != nil {
		return err
	}

	if err := p.Process(records...); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	s.Metrics.AddItems(len(records))
	result.RecordCount += len(records)
	slog.Info("records extracted", slog.Int("count", len(records)))
	return nil
}

// fetchStage fetches one batch and folds its outcome into result.
func (s *Scraper) fetchStage(ctx context.Context, run *models.Run, name string, items []models.WorkItem, result *models.ScraperResult) (*models.BatchReport, error) {
	start := time.Now()
	slog.Info("fetch stage started", slog.String("stage", name), slog.Int("items", len(items)))

	report, err := s.fetcher.FetchAll(ctx, run, items)

	failed := report.Failed()
	stage := models.StageResult{
		Name:      name,
		Items:     len(items),
		Succeeded: len(items) - len(failed),
		Failed:    len(failed),
		Duration:  time.Since(start),
	}

	result.WorkItems += len(items)
	result.RequestCount += len(items)
	result.ErrorCount += len(failed)
	for _, r := range failed {
		result.FailedItems = append(result.FailedItems, r.Item.ID())
		result.ErrorsByType[errorTypeLabel(classifyError(r.Err, r.Status))]++
	}
	result.Stages = append(result.Stages, stage)

	slog.Info("fetch stage finished",
		slog.String("stage", name),
		slog.Int("succeeded", stage.Succeeded),
		slog.Int("failed", stage.Failed),
		slog.Duration("duration", stage.Duration),
	)

	if err != nil {
		return report, fmt.Errorf("fetch %s: %w", name, err)
	}
	return report, nil
}

func logMissing(kind string, pages []discovery.PageLinks) {
	for _, pl := range pages {
		if !pl.Found {
			slog.Warn("listing container missing", slog.String("kind", kind), slog.String("url", pl.Source))
		}
	}
}

func newResult(mode string) *models.ScraperResult {
	return &models.ScraperResult{
		Mode:         mode,
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
}

func finish(result *models.ScraperResult) {
	result.EndTime = time.Now()
}

// IsAuthTimeout reports whether err came from a login that never completed.
func IsAuthTimeout(err error) bool {
	return errors.Is(err, session.ErrAuthenticationTimeout)
}
