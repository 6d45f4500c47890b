package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient adapts the provider-agnostic Client interface onto
// Anthropic's SDK, grounded on the same client-construction pattern used
// by jordigilh-kubernaut, ttrei-beads, and ternarybob-quaero (all three
// pack repos that call Anthropic construct a single long-lived
// *anthropic.Client via option.WithAPIKey and reuse it across calls).
type AnthropicClient struct {
	sdk   anthropic.Client
	tiers TierModelMap
}

// NewAnthropicClient builds an adapter over the given API key and
// per-tier model mapping.
func NewAnthropicClient(apiKey string, tiers TierModelMap) *AnthropicClient {
	return &AnthropicClient{
		sdk:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		tiers: tiers,
	}
}

// Complete implements Client by issuing a single Messages.New call and
// parsing the model's text response as a JSON array of RawCandidate.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := c.tiers.Resolve(req.ModelTier)
	if model == "" {
		return Response{}, fmt.Errorf("llm: no model configured for tier %q", req.ModelTier)
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	msg, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: anthropic messages.new: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	candidates, notes := parseCandidateResponse(text.String())

	return Response{
		Candidates: candidates,
		Notes:      notes,
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// parseCandidateResponse extracts a JSON array of RawCandidate from the
// model's free-form text response, tolerating surrounding prose by
// locating the first '[' and last ']'.
func parseCandidateResponse(text string) ([]RawCandidate, []string) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < start {
		return nil, []string{"llm response contained no parseable candidate array"}
	}

	var candidates []RawCandidate
	if err := json.Unmarshal([]byte(text[start:end+1]), &candidates); err != nil {
		return nil, []string{fmt.Sprintf("llm response candidate array did not parse: %v", err)}
	}
	return candidates, nil
}

var _ Client = (*AnthropicClient)(nil)
