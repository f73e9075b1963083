package domain

// Run status constants
const (
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// AnalysisRun is the diagnostic record of one uncached analysis.
// Corresponds to analysis_runs table in ClickHouse.
type AnalysisRun struct {
	RunID            string // uuid
	Address          string
	ProviderTier     string
	StartedAt        int64 // Unix timestamp in milliseconds
	DurationMs       int64
	SignaturesListed int
	RecordsFetched   int
	RecordsSkipped   int // records without usable balance metadata
	BatchesFailed    int
	RateLimitHits    int
	RelatedAccounts  int
	Status           string // success | partial | failed
	Error            string
}
