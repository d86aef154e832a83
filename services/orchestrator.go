package services

import (
	"context"
	"sync"
	"time"

	"pricing-history/models"
	"pricing-history/storage"
	"pricing-history/utils"
)

// Session is one worker's handle on the archive: index lookups plus single
// snapshot fetches over a connection pool owned by that worker.
type Session interface {
	Locate(ctx context.Context, pageURL string, from, to time.Time) ([]models.CaptureRecord, error)
	Fetch(ctx context.Context, archiveURL string) models.FetchResult
	Close() error
}

// SessionFactory creates a fresh Session for one domain task.
type SessionFactory func() Session

// Options controls one collection run.
type Options struct {
	From        time.Time
	To          time.Time
	Workers     int
	RateLimitMs int
	// EmitNoPriceRows writes a reason row for weeks whose chosen snapshot
	// shows no price, instead of writing nothing.
	EmitNoPriceRows bool
}

// Orchestrator drives the per-domain pipeline over a bounded worker pool and
// streams each finished week to the sink.
type Orchestrator struct {
	opts       Options
	newSession SessionFactory
	sink       storage.RowWriter
	miner      *Miner
	logger     *utils.Logger

	mu     sync.Mutex
	report *models.RunReport
}

// NewOrchestrator wires a run. The miner may be shared with other runs.
func NewOrchestrator(opts Options, newSession SessionFactory, sink storage.RowWriter, miner *Miner, logger *utils.Logger) *Orchestrator {
	if miner == nil {
		miner = NewMiner()
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Orchestrator{
		opts:       opts,
		newSession: newSession,
		sink:       sink,
		miner:      miner,
		logger:     logger,
		report:     models.NewRunReport(),
	}
}

// snapshot is a successfully fetched and parsed capture.
type snapshot struct {
	page        PageText
	resolvedURL string
}

// Run processes every distinct page and blocks until all scheduled domains
// are done. Once ctx is done no new domain is scheduled and no new request is
// issued; the report counts what was completed.
func (o *Orchestrator) Run(ctx context.Context, pages []models.PricingPage) *models.RunReport {
	seen := utils.NewKeySet()
	unique := make([]models.PricingPage, 0, len(pages))
	for _, p := range pages {
		if !seen.Add(p.Domain + "|" + p.URL) {
			o.logger.Debug("[orchestrator] duplicate input %s %s skipped", p.Domain, p.URL)
			continue
		}
		unique = append(unique, p)
	}

	o.mu.Lock()
	o.report.TotalDomains = len(unique)
	o.mu.Unlock()

	o.logger.Info("[orchestrator] %d domains, weeks %s..%s, %d workers",
		len(unique), WeekStart(o.opts.From).Format(models.DateLayout),
		WeekStart(o.opts.To).Format(models.DateLayout), o.opts.Workers)

	pool := utils.NewWorkerPool(o.opts.Workers, o.opts.RateLimitMs)
	for i, p := range unique {
		page := p
		if !pool.Submit(ctx, func() { o.processDomain(ctx, page) }) {
			skipped := len(unique) - i
			o.logger.Warn("[orchestrator] canceled: %d domains not scheduled", skipped)
			o.mu.Lock()
			o.report.DomainsCanceled += skipped
			o.mu.Unlock()
			break
		}
	}
	pool.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report
}

func (o *Orchestrator) processDomain(ctx context.Context, page models.PricingPage) {
	session := o.newSession()
	defer func() {
		if err := session.Close(); err != nil {
			o.logger.Warn("[orchestrator] %s: close session: %v", page.Domain, err)
		}
	}()

	captures, err := session.Locate(ctx, page.URL, o.opts.From, o.opts.To)
	if err != nil {
		if ctx.Err() != nil {
			o.markCanceled(page)
			return
		}
		o.logger.Error("[orchestrator] %s: %v", page.Domain, err)
		o.mu.Lock()
		o.report.DomainsUnavailable++
		o.mu.Unlock()
		o.write(page, []models.OutputRow{domainRow(page, models.ReasonServiceUnavailable)})
		return
	}

	if len(captures) == 0 {
		o.logger.Info("[orchestrator] %s: no captures in range", page.Domain)
		o.mu.Lock()
		o.report.DomainsNoSnapshots++
		o.mu.Unlock()
		o.write(page, []models.OutputRow{domainRow(page, models.ReasonNoSnapshotsInRange)})
		return
	}

	buckets := BuildBuckets(captures, o.opts.From, o.opts.To)
	o.logger.Info("[orchestrator] %s: %d captures across %d weeks", page.Domain, len(captures), len(buckets))

	for _, bucket := range buckets {
		sel := SelectWeek(ctx, bucket, o.attempt(session, page))
		if sel.Canceled {
			o.markCanceled(page)
			return
		}
		o.write(page, o.weekRows(page, sel))
	}
}

// attempt fetches one capture and turns it into visible text. Fetch and parse
// failures both let the selector fall back to the next capture.
func (o *Orchestrator) attempt(session Session, page models.PricingPage) AttemptFunc[snapshot] {
	return func(ctx context.Context, c models.CaptureRecord) (snapshot, *models.FetchFailure) {
		res := session.Fetch(ctx, c.ArchiveURL)
		o.countFetch(res.Failure)
		if !res.OK() {
			o.logger.Warn("[orchestrator] %s: capture %s failed: %v", page.Domain, c.RawTimestamp, res.Failure)
			return snapshot{}, res.Failure
		}

		text, err := ExtractPageText(res.Content)
		if err != nil {
			failure := &models.FetchFailure{Kind: models.FailureParseError, Err: err}
			o.countParseFailure()
			o.logger.Warn("[orchestrator] %s: capture %s unreadable: %v", page.Domain, c.RawTimestamp, err)
			return snapshot{}, failure
		}
		return snapshot{page: text, resolvedURL: res.ResolvedURL}, nil
	}
}

func (o *Orchestrator) weekRows(page models.PricingPage, sel Selection[snapshot]) []models.OutputRow {
	week := sel.Bucket.WeekStart.Format(models.DateLayout)

	if sel.Chosen == nil {
		reason := sel.ReasonCode()
		o.mu.Lock()
		o.report.TotalWeeks++
		if sel.Bucket.Empty() {
			o.report.WeeksNoSnapshots++
		} else {
			o.report.WeeksAllFailed++
		}
		o.mu.Unlock()
		return []models.OutputRow{{
			Domain:     page.Domain,
			PricingURL: page.URL,
			WeekStart:  week,
			ReasonCode: reason,
		}}
	}

	chosen := *sel.Chosen
	base := models.OutputRow{
		Domain:            page.Domain,
		PricingURL:        page.URL,
		WeekStart:         week,
		SnapshotDate:      chosen.Timestamp.UTC().Format(models.DateLayout),
		SnapshotTimestamp: chosen.RawTimestamp,
		ArchiveURL:        chosen.ArchiveURL,
	}

	observations := o.miner.Mine(sel.Value.page.Text)
	o.recordWeek(observations, sel.Value.page.ScriptRendered)

	if len(observations) == 0 {
		o.logger.Debug("[orchestrator] %s: week %s: no visible price in %s", page.Domain, week, sel.Value.resolvedURL)
		if !o.opts.EmitNoPriceRows {
			return nil
		}
		row := base
		row.ReasonCode = models.ReasonNoPricesVisible
		if sel.Value.page.ScriptRendered {
			row.ReasonCode = models.ReasonScriptRendered
		}
		return []models.OutputRow{row}
	}

	rows := make([]models.OutputRow, 0, len(observations))
	for _, obs := range observations {
		row := base
		row.Period = string(obs.Period)
		row.PriceShown = obs.Shown
		rows = append(rows, row)
	}
	return rows
}

func (o *Orchestrator) write(page models.PricingPage, rows []models.OutputRow) {
	if len(rows) == 0 {
		return
	}
	err := o.sink.WriteRows(rows)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.report.WriteErrors++
		o.logger.Error("[orchestrator] %s: write %d rows: %v", page.Domain, len(rows), err)
		return
	}
	o.report.RowsWritten += len(rows)
}

func (o *Orchestrator) countFetch(failure *models.FetchFailure) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report.FetchAttempts++
	if failure != nil {
		o.report.FetchFailures[failure.Kind]++
	}
}

func (o *Orchestrator) countParseFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report.FetchFailures[models.FailureParseError]++
}

func (o *Orchestrator) recordWeek(observations []models.PriceObservation, scriptRendered bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.report.TotalWeeks++
	if len(observations) == 0 {
		o.report.WeeksNoPrices++
		if scriptRendered {
			o.report.ScriptRenderedWeeks++
		}
		return
	}

	o.report.WeeksWithPrices++
	for _, obs := range observations {
		o.report.Observations++
		o.report.PricesByPeriod[obs.Period]++
		if obs.Confidence == models.ConfidenceExplicit {
			o.report.ExplicitPrices++
		} else {
			o.report.InferredPrices++
		}
	}
}

func (o *Orchestrator) markCanceled(page models.PricingPage) {
	o.logger.Warn("[orchestrator] %s: canceled", page.Domain)
	o.mu.Lock()
	o.report.DomainsCanceled++
	o.mu.Unlock()
}

// domainRow is the single row written for a domain whose captures could not
// be listed at all, so it carries no week.
func domainRow(page models.PricingPage, reason string) models.OutputRow {
	return models.OutputRow{
		Domain:     page.Domain,
		PricingURL: page.URL,
		ReasonCode: reason,
	}
}
