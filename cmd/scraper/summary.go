package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-scrape-baldor/models"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func printSummary(w io.Writer, result *models.ScraperResult, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.RecordCount) / duration.Seconds()
	}
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}

	t := newTable(w)
	t.SetTitle("Scrape complete")
	t.AppendRows([]table.Row{
		{"Run", result.RunID},
		{"Mode", result.Mode},
		{"Work items", result.WorkItems},
		{"Requests", result.RequestCount},
		{"Records", result.RecordCount},
		{"Success rate", fmt.Sprintf("%.2f%%", successRate)},
		{"Errors", result.ErrorCount},
		{"Failed items", len(result.FailedItems)},
	})
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", formatCounts(result.ErrorsByType)})
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		t.AppendRow(table.Row{"Validation", formatCounts(valErrors)})
	}
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Duration", duration.Round(time.Millisecond)},
		{"Items/sec", fmt.Sprintf("%.2f", itemsPerSec)},
		{"Output file", outputFile},
	})
	t.Render()

	if len(result.Stages) == 0 {
		return
	}
	stages := newTable(w)
	stages.AppendHeader(table.Row{"Stage", "Items", "Succeeded", "Failed", "Duration"})
	for _, s := range result.Stages {
		stages.AppendRow(table.Row{s.Name, s.Items, s.Succeeded, s.Failed, s.Duration.Round(time.Millisecond)})
	}
	stages.Render()
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
