package llm

// costPer1kTokens computes the $/1k-token rate implied by a result,
// used for the "per-token ceiling" safety guard (spec §4.3).
func costPer1kTokens(result *Result) float64 {
	totalTokens := result.InputTokens + result.OutputTokens
	if totalTokens == 0 {
		return 0
	}
	return result.Cost / (float64(totalTokens) / 1000.0)
}
