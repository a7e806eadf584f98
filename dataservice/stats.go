package dataservice

import (
	"math"

	"github.com/puzpuzpuz/xsync/v3"
)

// Statistics is a snapshot of the service counters.
type Statistics struct {
	QueriesExecuted int64 `json:"queries_executed"`
	CacheHits       int64 `json:"cache_hits"`
	CacheMisses     int64 `json:"cache_misses"`
	Errors          int64 `json:"errors"`
	RecordsInserted int64 `json:"records_inserted"`
	BatchesFailed   int64 `json:"batches_failed"`

	// TotalRequests is CacheHits + CacheMisses.
	TotalRequests int64 `json:"total_requests"`
	// HitRatePercent is CacheHits/TotalRequests*100 rounded to two decimals, 0 with no requests.
	HitRatePercent float64 `json:"hit_rate_percent"`
}

type stats struct {
	queries       *xsync.Counter
	hits          *xsync.Counter
	misses        *xsync.Counter
	errors        *xsync.Counter
	inserted      *xsync.Counter
	batchesFailed *xsync.Counter
}

func newStats() *stats {
	return &stats{
		queries:       xsync.NewCounter(),
		hits:          xsync.NewCounter(),
		misses:        xsync.NewCounter(),
		errors:        xsync.NewCounter(),
		inserted:      xsync.NewCounter(),
		batchesFailed: xsync.NewCounter(),
	}
}

func (s *stats) snapshot() Statistics {
	st := Statistics{
		QueriesExecuted: s.queries.Value(),
		CacheHits:       s.hits.Value(),
		CacheMisses:     s.misses.Value(),
		Errors:          s.errors.Value(),
		RecordsInserted: s.inserted.Value(),
		BatchesFailed:   s.batchesFailed.Value(),
	}
	st.TotalRequests = st.CacheHits + st.CacheMisses
	st.HitRatePercent = hitRate(st.CacheHits, st.TotalRequests)
	return st
}

func hitRate(hits, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(hits)/float64(total)*100*100) / 100
}
