package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO date format used for week_start and snapshot_date.
const DateLayout = "2006-01-02"

// PricingPage is one vetted subscription pricing page. It is loaded once per
// run from the upstream CSV and never mutated.
type PricingPage struct {
	Domain string
	URL    string
}

// CaptureRecord is one archived version of a pricing page URL, identified by
// (URL, RawTimestamp). Digest is used for dedup only, never for ordering.
type CaptureRecord struct {
	URL          string
	Timestamp    time.Time
	RawTimestamp string
	Digest       string
	StatusCode   int
	ArchiveURL   string
}

// WeekBucket groups the captures whose UTC date falls in
// [WeekStart, WeekStart+7d). Captures are ascending by timestamp.
type WeekBucket struct {
	WeekStart time.Time
	Captures  []CaptureRecord
}

// Empty reports whether the bucket holds no capture.
func (b WeekBucket) Empty() bool { return len(b.Captures) == 0 }

// FailureKind classifies why a single capture could not be used.
type FailureKind string

const (
	FailureTimeout         FailureKind = "timeout"
	FailureHTTPError       FailureKind = "http_error"
	FailureConnectionError FailureKind = "connection_error"
	FailureParseError      FailureKind = "parse_error"
)

// FetchFailure is the typed failure of one snapshot fetch.
type FetchFailure struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (f *FetchFailure) Error() string {
	if f.Kind == FailureHTTPError {
		return fmt.Sprintf("%s:%d", f.Kind, f.StatusCode)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return string(f.Kind)
}

func (f *FetchFailure) Unwrap() error { return f.Err }

// Transient reports whether trying again later could succeed. A false value
// means the archive says this capture is genuinely unavailable.
func (f *FetchFailure) Transient() bool {
	switch f.Kind {
	case FailureTimeout, FailureConnectionError:
		return true
	case FailureHTTPError:
		return f.StatusCode == 429 || f.StatusCode >= 500
	}
	return false
}

// FetchResult is either Content (Failure == nil) or a Failure.
type FetchResult struct {
	Content     []byte
	ResolvedURL string
	StatusCode  int
	Failure     *FetchFailure
}

// OK reports whether the fetch produced content.
func (r FetchResult) OK() bool { return r.Failure == nil }

// Period is the billing period attached to a price.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodAnnual  Period = "annual"
	PeriodWeekly  Period = "weekly"
	PeriodDaily   Period = "daily"
	PeriodUnknown Period = "unknown"
)

// Confidence tells whether the period came from an attached unit or from
// nearby context.
type Confidence string

const (
	ConfidenceExplicit Confidence = "explicit"
	ConfidenceInferred Confidence = "inferred"
)

// PriceObservation is one price found in a snapshot's visible text.
// Start and End are rune offsets of the matched price in that text.
type PriceObservation struct {
	Amount     decimal.Decimal
	Currency   string
	Symbol     string
	Period     Period
	Confidence Confidence
	Shown      string
	Start      int
	End        int
}

// Reason codes recorded in place of a price.
const (
	ReasonNoSnapshotsInRange = "no_snapshots_in_range"
	ReasonServiceUnavailable = "service_unavailable"
	ReasonNoPricesVisible    = "no_prices_visible_static"
	ReasonScriptRendered     = "script_rendered_no_prices"
	reasonWeekAllFailed      = "week_all_failed"
)

// WeekAllFailedReason builds the reason code for an exhausted bucket.
func WeekAllFailedReason(kind FailureKind) string {
	if kind == "" {
		kind = "unknown"
	}
	return reasonWeekAllFailed + ":" + string(kind)
}

// OutputRow is one line of the output dataset. Rows are appended and never
// mutated.
type OutputRow struct {
	Domain            string
	PricingURL        string
	WeekStart         string
	SnapshotDate      string
	SnapshotTimestamp string
	Period            string
	PriceShown        string
	ReasonCode        string
	ArchiveURL        string
}

// OutputHeader is the column order of the output dataset.
var OutputHeader = []string{
	"domain",
	"pricing_page_url",
	"week_start",
	"snapshot_date",
	"snapshot_timestamp",
	"pricing_type",
	"price_shown",
	"reason_code",
	"archive_url",
}

// Record returns the row in OutputHeader order.
func (r OutputRow) Record() []string {
	return []string{
		r.Domain,
		r.PricingURL,
		r.WeekStart,
		r.SnapshotDate,
		r.SnapshotTimestamp,
		r.Period,
		r.PriceShown,
		r.ReasonCode,
		r.ArchiveURL,
	}
}
