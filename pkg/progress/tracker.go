package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const rateWindow = 10

// Tracker tracks rows moved by a batched archive pass
type Tracker struct {
	batches    atomic.Int64
	rows       atomic.Int64
	startTime  time.Time
	lastUpdate time.Time
	rates      []float64 // rows per second of recent batches
	mu         sync.RWMutex
	now        func() time.Time
}

// NewTracker creates a tracker starting now
func NewTracker() *Tracker {
	return newTrackerAt(time.Now)
}

func newTrackerAt(now func() time.Time) *Tracker {
	start := now()
	return &Tracker{
		startTime:  start,
		lastUpdate: start,
		rates:      make([]float64, 0, rateWindow),
		now:        now,
	}
}

// Update records one committed batch
func (t *Tracker) Update(rows int64) {
	now := t.now()

	t.batches.Add(1)
	t.rows.Add(rows)

	t.mu.Lock()
	elapsed := now.Sub(t.lastUpdate).Seconds()
	if elapsed > 0 && rows > 0 {
		t.rates = append(t.rates, float64(rows)/elapsed)
		if len(t.rates) > rateWindow {
			t.rates = t.rates[1:]
		}
	}
	t.lastUpdate = now
	t.mu.Unlock()
}

// Stats is a point-in-time view of a tracker
type Stats struct {
	Batches       int64         `json:"batches"`
	Rows          int64         `json:"rows"`
	Elapsed       time.Duration `json:"elapsed"`
	RowsPerSecond float64       `json:"rows_per_second"` // mean over recent batches
}

// GetStats returns current progress statistics
func (t *Tracker) GetStats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var avg float64
	if len(t.rates) > 0 {
		var sum float64
		for _, r := range t.rates {
			sum += r
		}
		avg = sum / float64(len(t.rates))
	}

	return Stats{
		Batches:       t.batches.Load(),
		Rows:          t.rows.Load(),
		Elapsed:       t.now().Sub(t.startTime),
		RowsPerSecond: avg,
	}
}

// FormatProgress formats current progress as a log-friendly string
func (t *Tracker) FormatProgress() string {
	stats := t.GetStats()
	return fmt.Sprintf("%d rows in %d batches | %.1f rows/s | elapsed %s",
		stats.Rows,
		stats.Batches,
		stats.RowsPerSecond,
		stats.Elapsed.Round(time.Millisecond),
	)
}
