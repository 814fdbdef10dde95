// Package metrics tracks pipeline counters and optionally publishes them
// to CloudWatch. Counters are process-global; every increment is cheap
// enough to sit on the hot ingestion path.
package metrics

import "sync/atomic"

var (
	sentencesParsed  int64
	sentencesSkipped int64
	fixesAccepted    int64
	fixesRejected    int64
	fixesStored      int64
	storeErrors      int64
	historyQueries   int64
)

// Counters is a point-in-time snapshot of the pipeline counters.
type Counters struct {
	SentencesParsed  int64
	SentencesSkipped int64
	FixesAccepted    int64
	FixesRejected    int64
	FixesStored      int64
	StoreErrors      int64
	HistoryQueries   int64
}

func AddSentencesParsed(n int)  { atomic.AddInt64(&sentencesParsed, int64(n)) }
func AddSentencesSkipped(n int) { atomic.AddInt64(&sentencesSkipped, int64(n)) }
func AddFixesAccepted(n int)    { atomic.AddInt64(&fixesAccepted, int64(n)) }
func AddFixesRejected(n int)    { atomic.AddInt64(&fixesRejected, int64(n)) }
func AddFixesStored(n int)      { atomic.AddInt64(&fixesStored, int64(n)) }
func AddStoreErrors(n int)      { atomic.AddInt64(&storeErrors, int64(n)) }
func AddHistoryQueries(n int)   { atomic.AddInt64(&historyQueries, int64(n)) }

// Snapshot returns the current counter values.
func Snapshot() Counters {
	return Counters{
		SentencesParsed:  atomic.LoadInt64(&sentencesParsed),
		SentencesSkipped: atomic.LoadInt64(&sentencesSkipped),
		FixesAccepted:    atomic.LoadInt64(&fixesAccepted),
		FixesRejected:    atomic.LoadInt64(&fixesRejected),
		FixesStored:      atomic.LoadInt64(&fixesStored),
		StoreErrors:      atomic.LoadInt64(&storeErrors),
		HistoryQueries:   atomic.LoadInt64(&historyQueries),
	}
}

// Reset zeroes all counters. Test helper.
func Reset() {
	atomic.StoreInt64(&sentencesParsed, 0)
	atomic.StoreInt64(&sentencesSkipped, 0)
	atomic.StoreInt64(&fixesAccepted, 0)
	atomic.StoreInt64(&fixesRejected, 0)
	atomic.StoreInt64(&fixesStored, 0)
	atomic.StoreInt64(&storeErrors, 0)
	atomic.StoreInt64(&historyQueries, 0)
}
