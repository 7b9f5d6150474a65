package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/aluiziolira/go-scrape-baldor/config"
	"github.com/aluiziolira/go-scrape-baldor/models"
	"github.com/aluiziolira/go-scrape-baldor/proxy"
)

type proxyKey struct{}

// Fetcher retrieves batches of work items with a bounded number of requests
// in flight, each through the next proxy of the pool.
type Fetcher struct {
	apiBaseURL  string
	pageSize    int
	userAgent   string
	timeout     time.Duration
	concurrency int
	coolDown    time.Duration
	failFast    bool

	rotator   *proxy.Rotator
	metrics   *Metrics
	transport http.RoundTripper

	maxHeld atomic.Int64
}

// NewFetcher builds a fetcher from cfg. rotator and metrics may be nil.
func NewFetcher(cfg *config.Config, rotator *proxy.Rotator, metrics *Metrics) *Fetcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > config.MaxPageSize {
		pageSize = config.MaxPageSize
	}

	return &Fetcher{
		apiBaseURL:  cfg.APIBaseURL,
		pageSize:    pageSize,
		userAgent:   cfg.UserAgent,
		timeout:     cfg.Timeout,
		concurrency: concurrency,
		coolDown:    cfg.CoolDown,
		failFast:    cfg.FailFast,
		rotator:     rotator,
		metrics:     metrics,
		transport:   proxyTransport(cfg.Timeout),
	}
}

// WithTransport replaces the HTTP transport. Proxy selection is a feature of
// the default transport; a replacement only sees the assignment through
// ProxyFromContext.
func (f *Fetcher) WithTransport(rt http.RoundTripper) *Fetcher {
	f.transport = rt
	return f
}

// MaxInFlight returns the highest number of permits one batch held at once.
func (f *Fetcher) MaxInFlight() int {
	return int(f.maxHeld.Load())
}

// TargetURL returns the URL requested for item.
func (f *Fetcher) TargetURL(item models.WorkItem) (string, error) {
	switch item.Kind {
	case models.KindURL:
		return item.Value, nil
	case models.KindCategory:
		u, err := url.Parse(f.apiBaseURL)
		if err != nil {
			return "", fmt.Errorf("parse api base url: %w", err)
		}
		q := u.Query()
		q.Set("filter", "category eq "+item.Value)
		q.Set("page[number]", "0")
		q.Set("page[size]", strconv.Itoa(f.pageSize))
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported work item kind %s", item.Kind)
	}
}

// FetchAll dispatches every item and returns one result per item in dispatch
// order. In fail-fast mode the first failure cancels outstanding work and is
// returned next to the report; otherwise failures stay in the report and the
// error is nil unless ctx itself ended.
func (f *Fetcher) FetchAll(ctx context.Context, run *models.Run, items []models.WorkItem) (*models.BatchReport, error) {
	client := f.newClient()
	var cookies []*http.Cookie
	if run != nil {
		cookies = run.Credentials.HTTPCookies()
	}

	sem := semaphore.NewWeighted(int64(f.concurrency))
	// Permits held by this batch only; concurrent batches do not share it.
	var held atomic.Int64
	results := make([]models.FetchResult, len(items))

	var g *errgroup.Group
	gctx := ctx
	if f.failFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}

	for i, item := range items {
		results[i].Item = item
		// Assigned in dispatch order, before the request is scheduled.
		results[i].Proxy = f.rotator.Next()

		target, err := f.TargetURL(item)
		results[i].URL = target
		if err != nil {
			results[i].Err = err
			if f.failFast {
				g.Go(func() error { return err })
			}
			continue
		}

		r := &results[i]
		g.Go(func() error {
			f.fetchOne(gctx, client, sem, &held, cookies, r)
			if f.failFast {
				return r.Err
			}
			return nil
		})
	}

	err := g.Wait()
	report := &models.BatchReport{Results: results}
	if err == nil {
		err = ctx.Err()
	}
	return report, err
}

func (f *Fetcher) fetchOne(ctx context.Context, client *resty.Client, sem *semaphore.Weighted, held *atomic.Int64, cookies []*http.Cookie, r *models.FetchResult) {
	if err := sem.Acquire(ctx, 1); err != nil {
		r.Err = err
		return
	}
	n := held.Add(1)
	f.metrics.SetInFlight(n)
	for {
		prev := f.maxHeld.Load()
		if n <= prev || f.maxHeld.CompareAndSwap(prev, n) {
			break
		}
	}
	defer func() {
		f.metrics.SetInFlight(held.Add(-1))
		sem.Release(1)
	}()

	if err := ctx.Err(); err != nil {
		r.Err = err
		return
	}

	f.metrics.IncRequest("started")
	start := time.Now()
	resp, err := client.R().
		SetContext(context.WithValue(ctx, proxyKey{}, r.Proxy)).
		SetCookies(cookies).
		Get(r.URL)
	r.Duration = time.Since(start)
	f.metrics.ObserveDuration(r.Duration)

	switch {
	case err != nil:
		r.Err = fmt.Errorf("fetch %s: %w", r.URL, err)
	case !models.StatusOK(resp.StatusCode()):
		r.Status = resp.StatusCode()
		r.Err = &UpstreamHTTPError{URL: r.URL, Status: r.Status}
	default:
		r.Status = resp.StatusCode()
		r.Body = resp.Body()
	}

	if r.Err != nil {
		category := errorTypeLabel(classifyError(r.Err, r.Status))
		f.metrics.IncRequest("failed")
		f.metrics.IncError(category)
		slog.Error("fetch failed",
			slog.String("item", r.Item.ID()),
			slog.String("url", r.URL),
			slog.String("proxy", r.Proxy),
			slog.String("category", category),
			slog.Any("error", r.Err),
		)
	} else {
		f.metrics.IncRequest("succeeded")
		slog.Debug("fetched",
			slog.String("url", r.URL),
			slog.Int("status", r.Status),
			slog.Int("bytes", len(r.Body)),
			slog.Duration("duration", r.Duration),
		)
	}

	// Every permit taken: hold ours a little longer.
	if f.coolDown > 0 && held.Load() >= int64(f.concurrency) {
		f.metrics.IncCoolDowns()
		timer := time.NewTimer(f.coolDown)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
}

func (f *Fetcher) newClient() *resty.Client {
	client := resty.New()
	// cookiejar.New never returns an error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	client.SetCookieJar(jar)
	client.SetTransport(f.transport)
	if f.userAgent != "" {
		client.SetHeader("User-Agent", f.userAgent)
	}
	if f.timeout > 0 {
		client.SetTimeout(f.timeout)
	}
	return client
}

// ProxyFromContext returns the proxy assigned to the request, "" for none.
func ProxyFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(proxyKey{}).(string)
	return addr
}

func proxyTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			addr := ProxyFromContext(req.Context())
			if addr == "" {
				return nil, nil
			}
			return proxy.URL(addr)
		},
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}
