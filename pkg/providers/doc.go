// Package providers groups the concrete LLM provider adapters.
//
// Each sub-package embeds [github.com/folio-dev/folio/pkg/modeladapter.ModelAdapter]
// and implements modeladapter.Sender for one vendor API:
//   - [github.com/folio-dev/folio/pkg/providers/groq]: Groq, OpenAI-compatible wire format (fast tier)
//   - [github.com/folio-dev/folio/pkg/providers/openai]: OpenAI Chat Completions (capable tier)
//   - [github.com/folio-dev/folio/pkg/providers/anthropic]: Anthropic Messages (truthful tier)
//
// This package contains no provider-specific code.
package providers
