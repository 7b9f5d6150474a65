package parser

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-baldor/models"
)

// Extractor turns fetch results into records, picking the algorithm from the
// kind of work item that produced each payload.
type Extractor struct {
	// SkipInvalid logs and skips payloads that fail extraction instead of
	// aborting the whole batch.
	SkipInvalid bool
	Logger      *slog.Logger
}

// Extract walks results in order. Failed fetches carry no payload and are
// skipped; their errors live in the batch report.
func (e *Extractor) Extract(results []models.FetchResult) ([]models.Record, error) {
	records := make([]models.Record, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		extracted, err := extractOne(r)
		if err != nil {
			if e.SkipInvalid {
				e.logger().Warn("skipping payload",
					slog.String("item", r.Item.ID()),
					slog.String("kind", r.Item.Kind.String()),
					slog.Any("error", err),
				)
				continue
			}
			return records, fmt.Errorf("extract %s %s: %w", r.Item.Kind, r.Item.ID(), err)
		}
		records = append(records, extracted...)
	}
	return records, nil
}

func extractOne(r models.FetchResult) ([]models.Record, error) {
	switch r.Item.Kind {
	case models.KindURL:
		p, err := ExtractPageProduct(r.Item.ID(), r.Body)
		if err != nil {
			return nil, err
		}
		return []models.Record{p}, nil
	case models.KindCategory:
		products, err := ExtractAPIProducts(r.Item.ID(), r.Body)
		if err != nil {
			return nil, err
		}
		out := make([]models.Record, 0, len(products))
		for _, p := range products {
			out = append(out, p)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported work item kind %d", r.Item.Kind)
	}
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
