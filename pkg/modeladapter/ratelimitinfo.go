package modeladapter

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo holds rate limit state parsed from provider response headers.
type RateLimitInfo struct {
	RemainingRequests int       `json:"remaining_requests"`
	RemainingTokens   int       `json:"remaining_tokens"`
	RequestsReset     time.Time `json:"requests_reset"`
	TokensReset       time.Time `json:"tokens_reset"`
}

// Exhausted reports whether the provider said it has no request budget left
// and the reset time has not passed yet.
func (i *RateLimitInfo) Exhausted(now time.Time) bool {
	if i == nil {
		return false
	}
	return i.RemainingRequests <= 0 && !i.RequestsReset.IsZero() && i.RequestsReset.After(now)
}

// RateLimitInfoReporter provides the most recently observed rate limit info
// from a provider's response headers.
type RateLimitInfoReporter interface {
	LastRateLimitInfo() *RateLimitInfo
}

// RateLimitHeaderParser extracts rate limit info from HTTP response headers.
// It receives the current time so callers can control the clock in tests.
type RateLimitHeaderParser func(h http.Header, now time.Time) *RateLimitInfo

// ParseAnthropicRateLimitHeaders parses Anthropic-specific rate limit headers.
// Headers: anthropic-ratelimit-{requests,tokens}-{remaining,reset}.
func ParseAnthropicRateLimitHeaders(h http.Header, now time.Time) *RateLimitInfo {
	return parseRateLimitHeaders(h, now,
		"anthropic-ratelimit-requests-remaining",
		"anthropic-ratelimit-tokens-remaining",
		"anthropic-ratelimit-requests-reset",
		"anthropic-ratelimit-tokens-reset",
	)
}

// ParseOpenAIRateLimitHeaders parses OpenAI-compatible rate limit headers.
// Groq follows the same convention.
// Headers: x-ratelimit-remaining-{requests,tokens}, x-ratelimit-reset-{requests,tokens}.
func ParseOpenAIRateLimitHeaders(h http.Header, now time.Time) *RateLimitInfo {
	return parseRateLimitHeaders(h, now,
		"x-ratelimit-remaining-requests",
		"x-ratelimit-remaining-tokens",
		"x-ratelimit-reset-requests",
		"x-ratelimit-reset-tokens",
	)
}

func parseRateLimitHeaders(h http.Header, now time.Time, reqRemainingKey, tokRemainingKey, reqResetKey, tokResetKey string) *RateLimitInfo {
	reqRemaining := h.Get(reqRemainingKey)
	tokRemaining := h.Get(tokRemainingKey)

	if reqRemaining == "" && tokRemaining == "" {
		return nil
	}

	// Unreported counters stay at -1 so Exhausted never fires on a missing header.
	info := &RateLimitInfo{RemainingRequests: -1, RemainingTokens: -1}
	if v, err := strconv.Atoi(reqRemaining); err == nil {
		info.RemainingRequests = v
	}
	if v, err := strconv.Atoi(tokRemaining); err == nil {
		info.RemainingTokens = v
	}
	info.RequestsReset = parseResetTime(h.Get(reqResetKey), now)
	info.TokensReset = parseResetTime(h.Get(tokResetKey), now)

	return info
}

// parseResetTime tries RFC3339 first, then a Go duration string (e.g. "6s", "1m30s")
// relative to now.
func parseResetTime(val string, now time.Time) time.Time {
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if d, err := time.ParseDuration(val); err == nil {
		return now.Add(d)
	}
	return time.Time{}
}
