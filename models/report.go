package models

// RunReport holds the counts computed over one collection run.
type RunReport struct {
	TotalDomains       int
	DomainsUnavailable int
	DomainsNoSnapshots int
	DomainsCanceled    int

	TotalWeeks          int
	WeeksWithPrices     int
	WeeksNoPrices       int
	WeeksNoSnapshots    int
	WeeksAllFailed      int
	ScriptRenderedWeeks int

	FetchAttempts  int
	FetchFailures  map[FailureKind]int
	Observations   int
	ExplicitPrices int
	InferredPrices int
	PricesByPeriod map[Period]int
	RowsWritten    int
	WriteErrors    int
}

// NewRunReport returns an empty report with its maps allocated.
func NewRunReport() *RunReport {
	return &RunReport{
		FetchFailures:  make(map[FailureKind]int),
		PricesByPeriod: make(map[Period]int),
	}
}
