// Package usage keeps running token totals for a provider adapter.
package usage

import "sync"

// TokenCount holds input and output token counts for a single LLM call.
type TokenCount struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the sum of input and output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Tracker accumulates token usage across LLM calls. Only running totals and
// the last entry are kept, so a long-lived server does not grow memory per call.
// It is safe for concurrent use; the zero value is ready to use.
type Tracker struct {
	mu    sync.Mutex
	total TokenCount
	last  TokenCount
	calls int
}

// Add records a token count entry.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.InputTokens += tc.InputTokens
	t.total.OutputTokens += tc.OutputTokens
	t.last = tc
	t.calls++
}

// Last returns the most recent token count entry.
// The bool is false when the tracker has no entries.
func (t *Tracker) Last() (TokenCount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.last, t.calls > 0
}

// Total returns the aggregate token count across all entries.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.total
}

// Count returns the number of recorded entries.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}

// Reset clears all recorded usage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total = TokenCount{}
	t.last = TokenCount{}
	t.calls = 0
}
