package services

import (
	"bytes"
	"strings"
	"testing"

	"pricing-history/models"
	"pricing-history/utils"
)

func sampleReport() *models.RunReport {
	r := models.NewRunReport()
	r.TotalDomains = 3
	r.DomainsUnavailable = 1
	r.TotalWeeks = 8
	r.WeeksWithPrices = 6
	r.WeeksAllFailed = 2
	r.FetchAttempts = 11
	r.FetchFailures[models.FailureTimeout] = 4
	r.FetchFailures[models.FailureHTTPError] = 1
	r.Observations = 9
	r.PricesByPeriod[models.PeriodMonthly] = 7
	r.PricesByPeriod[models.PeriodUnknown] = 2
	r.RowsWritten = 11
	return r
}

func TestInsightPrintsEverySection(t *testing.T) {
	var buf bytes.Buffer
	NewInsightService(utils.NewNopLogger(), &buf).Print(sampleReport())
	out := buf.String()

	for _, want := range []string{
		"Domains", "Weeks", "Fetches", "Prices", "Output",
		"failed: timeout", "failed: http_error",
		"period: monthly", "period: unknown",
		"6 (75.00%)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestInsightFailureKindsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	NewInsightService(utils.NewNopLogger(), &buf).Print(sampleReport())
	out := buf.String()

	if strings.Index(out, "failed: http_error") > strings.Index(out, "failed: timeout") {
		t.Errorf("failure kinds not sorted:\n%s", out)
	}
}

func TestInsightEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	NewInsightService(utils.NewNopLogger(), &buf).Print(models.NewRunReport())

	if !strings.Contains(buf.String(), "0 (0.00%)") {
		t.Errorf("empty report should show a zero share:\n%s", buf.String())
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		part, total int
		want        float64
	}{
		{0, 0, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{5, 5, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.part, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %v, want %v", tt.part, tt.total, got, tt.want)
		}
	}
}
