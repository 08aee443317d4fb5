package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicBackend calls the Anthropic Messages API directly (SPEC_FULL.md
// §4.3's second concrete provider backend, drawn from kubernaut's declared
// anthropics/anthropic-sdk-go dependency — giving the tier router a real
// second provider type, not just a second model on the same backend).
type anthropicBackend struct{}

func (anthropicBackend) call(ctx context.Context, tier TierDescriptor, messages []Message, limits Limits) (*Result, error) {
	apiKey := os.Getenv(tier.APIKeyEnv)
	if apiKey == "" {
		return nil, newError(KindPermanent, fmt.Errorf("env var %s is unset for tier %s", tier.APIKeyEnv, tier.TierLabel))
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if tier.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(tier.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	var system string
	var turns []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(limits.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if limits.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(tier.Model),
		MaxTokens: maxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	resp, err := client.Messages.New(callCtx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	if len(resp.Content) == 0 {
		return nil, newError(KindTransient, fmt.Errorf("empty response from %s", tier.Model))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		text.WriteString(block.Text)
	}

	return &Result{
		Content:      text.String(),
		ModelUsed:    tier.Model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		LatencyMS:    latency.Milliseconds(),
	}, nil
}

// classifyAnthropicError maps the SDK's typed *anthropic.Error into the
// spec §4.3 taxonomy by HTTP status.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return newError(KindTransient, err)
		case apiErr.StatusCode == 400 && strings.Contains(strings.ToLower(apiErr.Message), "context"):
			return newError(KindContextTooLarge, err)
		default:
			return newError(KindPermanent, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTransient, err)
	}
	return newError(KindPermanent, err)
}
