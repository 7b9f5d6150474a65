package main

import (
	"context"
	"errors"

	"github.com/MakeNowJust/heredoc"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-baldor/discovery"
	"github.com/aluiziolira/go-scrape-baldor/models"
	"github.com/aluiziolira/go-scrape-baldor/scraper"
	"github.com/aluiziolira/go-scrape-baldor/session"
)

func newAPICmd() *cobra.Command {
	var browserDiscovery bool

	cmd := &cobra.Command{
		Use:   "api",
		Short: "Fetch every category from the product API",
		Example: heredoc.Doc(`
			$ scraper api
			$ scraper api --browser-discovery --headless=false
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateCredentials(); err != nil {
				return eris.Wrap(err, "credentials")
			}

			var opts []scraper.Option
			if browserDiscovery {
				loginURL, err := cfg.LoginURL()
				if err != nil {
					return err
				}
				shared := &sharedBrowser{
					loginURL: loginURL,
					opts: session.BrowserOptions{
						UserAgent:    cfg.UserAgent,
						Headless:     cfg.Headless,
						LoginTimeout: cfg.LoginTimeout,
					},
				}
				defer shared.Close()
				opts = append(opts,
					scraper.WithProvider(shared),
					scraper.WithCategorySource(&discovery.Interactive{Reader: shared, PageURL: cfg.BaseURL}),
				)
			}

			s, err := scraper.NewScraper(cfg, opts...)
			if err != nil {
				return eris.Wrap(err, "initialising scraper")
			}
			return execute(cmd, cfg, s, s.RunAPI)
		},
	}
	cmd.Flags().BoolVar(&browserDiscovery, "browser-discovery", false, "Read category ids from the rendered menu in the login browser")
	return cmd
}

func newPagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "Crawl category, subcategory and product pages",
		Example: heredoc.Doc(`
			$ scraper pages --raw-store baldorfood.db
			$ scraper pages --fail-fast=false --strict-discovery
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateCredentials(); err != nil {
				return eris.Wrap(err, "credentials")
			}
			s, err := scraper.NewScraper(cfg)
			if err != nil {
				return eris.Wrap(err, "initialising scraper")
			}
			return execute(cmd, cfg, s, s.RunPages)
		},
	}
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Re-extract records from a stored run without network access",
		Example: heredoc.Doc(`
			$ scraper extract --raw-store baldorfood.db --format dual
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.RawStorePath == "" {
				return errors.New("extract needs --raw-store")
			}
			s, err := scraper.NewScraper(cfg)
			if err != nil {
				return eris.Wrap(err, "initialising scraper")
			}
			return execute(cmd, cfg, s, s.ExtractStored)
		},
	}
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the categories in the site menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			menu := discovery.NewStatic(cfg.BaseURL, cfg.UserAgent, cfg.Timeout)
			ids, err := menu.CategoryIDs(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "read category ids")
			}
			urls, err := menu.CategoryURLs(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "read category urls")
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"#", "ID", "URL"})
			for i, id := range ids {
				u := ""
				if i < len(urls) {
					u = urls[i]
				}
				t.AppendRow(table.Row{i + 1, id, u})
			}
			t.Render()
			return nil
		},
	}
}

// sharedBrowser logs in once and keeps the browser open so the rendered
// menu can be read from the same session.
type sharedBrowser struct {
	loginURL string
	opts     session.BrowserOptions
	browser  *session.Browser
}

func (s *sharedBrowser) Authenticate(ctx context.Context, creds session.Credentials) (models.CredentialBundle, error) {
	if err := creds.Validate(); err != nil {
		return models.CredentialBundle{}, err
	}
	b, err := session.NewBrowser(ctx, s.opts)
	if err != nil {
		return models.CredentialBundle{}, err
	}
	s.browser = b
	return b.Login(ctx, s.loginURL, creds)
}

func (s *sharedBrowser) NavClasses(ctx context.Context, pageURL, selector string) ([]string, error) {
	if s.browser == nil {
		return nil, errors.New("browser not started")
	}
	return s.browser.NavClasses(ctx, pageURL, selector)
}

func (s *sharedBrowser) Close() {
	if s.browser != nil {
		s.browser.Close()
	}
}
