// Package modeladapter defines the uniform contract every LLM provider adapter
// implements, and the shared plumbing adapters embed.
//
// It contains:
//   - [Sender] interface with [Options] and the normalized [Response]
//   - [ProviderError] and its [ErrorKind] taxonomy, produced by [ModelAdapter.PostJSON]
//     from HTTP status codes, transport failures and malformed payloads
//   - embeddable [ModelAdapter] base struct with HTTP helpers, auth, custom headers,
//     default options and usage tracking
//   - [Throttle], a fail-fast client-side rate guard
//   - [github.com/folio-dev/folio/pkg/modeladapter/usage]: thread-safe token usage totals
//
// Adapters never retry. A failed call is reported once, with its kind, and the
// caller decides what to do next.
package modeladapter
