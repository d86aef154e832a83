package services

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"pricing-history/models"
	"pricing-history/utils"
)

// InsightService renders the end-of-run report.
type InsightService struct {
	logger *utils.Logger
	out    io.Writer
}

// NewInsightService prints to out, or to stdout when out is nil.
func NewInsightService(logger *utils.Logger, out io.Writer) *InsightService {
	if out == nil {
		out = os.Stdout
	}
	return &InsightService{logger: logger, out: out}
}

func (s *InsightService) Print(r *models.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.SetTitle("Pricing history run")
	t.AppendHeader(table.Row{"Section", "Metric", "Value"})

	t.AppendRows([]table.Row{
		{"Domains", "processed", r.TotalDomains},
		{"Domains", "index unavailable", r.DomainsUnavailable},
		{"Domains", "no captures in range", r.DomainsNoSnapshots},
		{"Domains", "canceled", r.DomainsCanceled},
	})
	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"Weeks", "total", r.TotalWeeks},
		{"Weeks", "with prices", fmt.Sprintf("%d (%.2f%%)", r.WeeksWithPrices, percent(r.WeeksWithPrices, r.TotalWeeks))},
		{"Weeks", "fetched, no price", r.WeeksNoPrices},
		{"Weeks", "script rendered", r.ScriptRenderedWeeks},
		{"Weeks", "no captures", r.WeeksNoSnapshots},
		{"Weeks", "all captures failed", r.WeeksAllFailed},
	})
	t.AppendSeparator()

	t.AppendRow(table.Row{"Fetches", "attempts", r.FetchAttempts})
	for _, kind := range sortedKeys(r.FetchFailures) {
		t.AppendRow(table.Row{"Fetches", "failed: " + kind, r.FetchFailures[models.FailureKind(kind)]})
	}
	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"Prices", "observations", r.Observations},
		{"Prices", "explicit unit", r.ExplicitPrices},
		{"Prices", "inferred from context", r.InferredPrices},
	})
	for _, period := range sortedKeys(r.PricesByPeriod) {
		t.AppendRow(table.Row{"Prices", "period: " + period, r.PricesByPeriod[models.Period(period)]})
	}
	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"Output", "rows written", r.RowsWritten},
		{"Output", "write errors", r.WriteErrors},
	})

	t.SetStyle(table.StyleRounded)
	t.Render()

	if r.WriteErrors > 0 {
		s.logger.Warn("[insights] %d batches could not be written", r.WriteErrors)
	}
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
