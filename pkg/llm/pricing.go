package llm

// pricing holds a $/1k-token rate table for known models, used to compute
// a call's dollar cost before the safety guards run (spec §4.3 lists
// `cost: money` as part of Result but leaves pricing itself
// implementation-defined; Cardigan keeps a small static table rather than
// querying a billing API, noted in DESIGN.md's pkg/llm ledger entry rather
// than as a numbered Open Question). Unknown models fall back to defaultRate, which operators are
// expected to override via the model allowlist / cost cap if it doesn't
// fit their contract.
type pricing struct {
	inputPer1k  float64
	outputPer1k float64
}

var modelPricing = map[string]pricing{
	"gpt-4o-mini":         {inputPer1k: 0.00015, outputPer1k: 0.0006},
	"gpt-4o":              {inputPer1k: 0.0025, outputPer1k: 0.01},
	"claude-haiku-4":      {inputPer1k: 0.0008, outputPer1k: 0.004},
	"claude-sonnet-4":     {inputPer1k: 0.003, outputPer1k: 0.015},
	"claude-opus-4":       {inputPer1k: 0.015, outputPer1k: 0.075},
}

var defaultRate = pricing{inputPer1k: 0.005, outputPer1k: 0.015}

func computeCost(model string, inputTokens, outputTokens int) float64 {
	rate, ok := modelPricing[model]
	if !ok {
		rate = defaultRate
	}
	return float64(inputTokens)/1000.0*rate.inputPer1k + float64(outputTokens)/1000.0*rate.outputPer1k
}
