package modeladapter

// promptOverhead is the estimated token overhead of wrapping a prompt in a
// single-message chat request (role, structure delimiters, etc.).
const promptOverhead = 4

// charsToTokens converts a character count to an estimated token count using the
// 1-token-per-4-characters heuristic.
func charsToTokens(chars int) int {
	return (chars + 3) / 4 // round up
}

// EstimatePromptTokens estimates the input tokens a request will consume for
// the given prompt and optional system instruction. It is only used for
// client-side budgeting; providers report the real count.
func EstimatePromptTokens(prompt, system string) int {
	tokens := charsToTokens(len(prompt)) + promptOverhead
	if system != "" {
		tokens += charsToTokens(len(system)) + promptOverhead
	}
	return tokens
}
