package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// openAIBackend calls an OpenAI-compatible chat completion endpoint via
// langchaingo (spec.md §4.3's "one or more remote chat-completion
// providers", concretized per SPEC_FULL.md §4.3 using kubernaut's declared
// tmc/langchaingo dependency). A fresh langchaingo client is built per
// tier rather than cached, since each tier may point at a different
// base URL/model/key and clients are cheap to construct.
type openAIBackend struct{}

func (openAIBackend) call(ctx context.Context, tier TierDescriptor, messages []Message, limits Limits) (*Result, error) {
	apiKey := os.Getenv(tier.APIKeyEnv)
	if apiKey == "" {
		return nil, newError(KindPermanent, fmt.Errorf("env var %s is unset for tier %s", tier.APIKeyEnv, tier.TierLabel))
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(tier.Model),
	}
	if tier.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(tier.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, newError(KindPermanent, fmt.Errorf("construct openai client: %w", err))
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if limits.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	content := toLangchainMessages(messages)
	start := time.Now()
	resp, err := model.GenerateContent(callCtx, content, llms.WithMaxTokens(limits.MaxTokens))
	latency := time.Since(start)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(KindTransient, fmt.Errorf("empty response from %s", tier.Model))
	}

	choice := resp.Choices[0]
	inputTokens, _ := choice.GenerationInfo["PromptTokens"].(int)
	outputTokens, _ := choice.GenerationInfo["CompletionTokens"].(int)

	return &Result{
		Content:      choice.Content,
		ModelUsed:    tier.Model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		LatencyMS:    latency.Milliseconds(),
	}, nil
}

func toLangchainMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var role llms.ChatMessageType
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

// classifyOpenAIError maps langchaingo/OpenAI error text into the spec
// §4.3 taxonomy. langchaingo surfaces provider errors as plain error
// values rather than a typed hierarchy, so classification is
// substring-based on the conventional OpenAI error messages.
func classifyOpenAIError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context_length_exceeded") || strings.Contains(msg, "maximum context length"):
		return newError(KindContextTooLarge, err)
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "server error") || strings.Contains(msg, "503") || strings.Contains(msg, "502"):
		return newError(KindTransient, err)
	default:
		return newError(KindPermanent, err)
	}
}
