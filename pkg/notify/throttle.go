package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Throttled limits how often an alert with the same title is forwarded.
// Reports always pass through.
type Throttled struct {
	next   Sink
	mu     sync.Mutex
	limits map[string]*rate.Limiter
	every  rate.Limit
	burst  int
	logger *zap.Logger
}

// NewThrottled forwards at most burst alerts per title, refilling one per interval
func NewThrottled(next Sink, interval time.Duration, burst int, logger *zap.Logger) *Throttled {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{
		next:   next,
		limits: make(map[string]*rate.Limiter),
		every:  rate.Every(interval),
		burst:  burst,
		logger: logger.Named("notify"),
	}
}

// SendReport forwards unconditionally
func (t *Throttled) SendReport(ctx context.Context, payload Payload) error {
	return t.next.SendReport(ctx, payload)
}

// SendAlert forwards unless the title is over its budget
func (t *Throttled) SendAlert(ctx context.Context, title, detail string) error {
	if !t.allow(title) {
		t.logger.Debug("alert suppressed", zap.String("title", title))
		return nil
	}
	return t.next.SendAlert(ctx, title, detail)
}

func (t *Throttled) allow(title string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limits[title]
	if !ok {
		limiter = rate.NewLimiter(t.every, t.burst)
		t.limits[title] = limiter
	}
	return limiter.Allow()
}
