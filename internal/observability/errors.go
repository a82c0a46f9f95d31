package observability

import (
	"github.com/baxromumarov/portal-scraper/internal/failure"
)

const (
	ErrorNetwork   = "network"
	ErrorParsing   = "parsing"
	ErrorBlocked   = "blocked"
	ErrorRateLimit = "rate_limit"
	ErrorNotFound  = "not_found"
	ErrorStore     = "store"
	ErrorUnknown   = "unknown"
)

// ClassifyScrapeError folds the failure taxonomy into the coarse buckets
// reported on /stats. Exhausted retries are bucketed by their last cause.
func ClassifyScrapeError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	switch failure.CauseOf(err) {
	case failure.KindBotDetected:
		return ErrorBlocked
	case failure.KindNotFound:
		return ErrorNotFound
	case failure.KindExtractionFailed:
		return ErrorParsing
	case failure.KindTimeout, failure.KindNavigation:
		if failure.Throttling(err) {
			return ErrorRateLimit
		}
		return ErrorNetwork
	}
	return ErrorUnknown
}
