package modeladapter

import (
	"context"
	"sync"
	"time"

	"github.com/folio-dev/folio/pkg/modeladapter/usage"
)

var (
	_ Sender        = (*Throttle)(nil)
	_ Describer     = (*Throttle)(nil)
	_ UsageReporter = (*Throttle)(nil)
)

type windowEntry struct {
	timestamp   time.Time
	inputTokens int
}

// Throttle wraps a Sender with proactive RPM and input-TPM budgeting over a
// one-minute sliding window. When the budget is spent, or the provider last
// reported zero remaining requests, Send fails immediately with RATE_LIMIT
// instead of waiting, so the caller can move on to another provider.
type Throttle struct {
	inner    Sender
	mu       sync.Mutex
	window   []windowEntry
	rpm      int // requests-per-minute limit (0 = no limit)
	inputTPM int // input tokens-per-minute limit (0 = no limit)

	fallbackTracker usage.Tracker

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
}

// ThrottleOpts configures the Throttle.
type ThrottleOpts struct {
	RPM      int // Requests per minute (0 = no limit).
	InputTPM int // Estimated input tokens per minute (0 = no limit).
}

// NewThrottle wraps a Sender with client-side rate budgeting.
func NewThrottle(inner Sender, opts ThrottleOpts) *Throttle {
	return &Throttle{
		inner:    inner,
		rpm:      opts.RPM,
		inputTPM: opts.InputTPM,
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (t *Throttle) SetNowFunc(fn func() time.Time) { t.nowFunc = fn }

// Send implements Sender. It never sleeps and never retries.
func (t *Throttle) Send(ctx context.Context, prompt string, opts Options) (Response, error) {
	if err := t.reserve(EstimatePromptTokens(prompt, opts.System)); err != nil {
		return Response{}, err
	}

	return t.inner.Send(ctx, prompt, opts)
}

// reserve records the call in the window, or returns a RATE_LIMIT error when
// there is no capacity left.
func (t *Throttle) reserve(inputTokens int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()

	if reporter, ok := t.inner.(RateLimitInfoReporter); ok {
		if info := reporter.LastRateLimitInfo(); info.Exhausted(now) {
			return &ProviderError{
				Kind:       KindRateLimit,
				Provider:   t.ProviderName(),
				RetryAfter: info.RequestsReset.Sub(now),
				Message:    "provider reported no remaining requests",
			}
		}
	}

	t.pruneWindow(now)

	rpmOK := t.rpm <= 0 || len(t.window) < t.rpm
	// An empty window always admits one call, even when its estimate alone
	// exceeds the per-minute budget.
	tpmOK := t.inputTPM <= 0 || len(t.window) == 0 || t.windowInput()+inputTokens <= t.inputTPM

	if !rpmOK || !tpmOK {
		return &ProviderError{
			Kind:       KindRateLimit,
			Provider:   t.ProviderName(),
			RetryAfter: t.window[0].timestamp.Add(time.Minute).Sub(now),
			Message:    "client-side rate budget exhausted",
		}
	}

	t.window = append(t.window, windowEntry{timestamp: now, inputTokens: inputTokens})

	return nil
}

// pruneWindow removes entries older than 1 minute. Must be called with mu held.
func (t *Throttle) pruneWindow(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(t.window) && !t.window[i].timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		t.window = append(t.window[:0:0], t.window[i:]...)
	}
}

// windowInput returns the estimated input tokens in the current window.
// Must be called with mu held.
func (t *Throttle) windowInput() int {
	total := 0
	for _, e := range t.window {
		total += e.inputTokens
	}
	return total
}

// ProviderName forwards to the inner sender if it implements Describer.
func (t *Throttle) ProviderName() string {
	if d, ok := t.inner.(Describer); ok {
		return d.ProviderName()
	}
	return ""
}

// DefaultModel forwards to the inner sender if it implements Describer.
func (t *Throttle) DefaultModel() string {
	if d, ok := t.inner.(Describer); ok {
		return d.DefaultModel()
	}
	return ""
}

// Available forwards to the inner sender if it implements Describer.
func (t *Throttle) Available() bool {
	if d, ok := t.inner.(Describer); ok {
		return d.Available()
	}
	return true
}

// UsageTracker forwards to the inner sender if it implements UsageReporter.
func (t *Throttle) UsageTracker() *usage.Tracker {
	if ur, ok := t.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &t.fallbackTracker
}

// LastRateLimitInfo forwards to the inner sender if it implements RateLimitInfoReporter.
func (t *Throttle) LastRateLimitInfo() *RateLimitInfo {
	if r, ok := t.inner.(RateLimitInfoReporter); ok {
		return r.LastRateLimitInfo()
	}
	return nil
}
