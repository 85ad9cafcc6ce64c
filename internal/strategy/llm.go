package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

const systemPrompt = `You are a hotel marketing strategist. Given structured
facts extracted from a business's website (and optionally a social media
profile), produce a marketing strategy as a single JSON object with these
keys: "audience" (array of strings), "selling_points" (array of strings),
"opportunities" (array of strings), "budget" (object with "tier", "monthly",
"daily", and "allocation" mapping channel to fraction), "timeline" (array of
objects with "phase", "duration", "tasks"), and "kpis" (array of strings).
Respond with JSON only, no prose and no code fences.`

// messageCreator is the slice of the Anthropic SDK the synthesizer needs;
// it matches sdk.Client.Messages.New.
type messageCreator interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// LLMConfig holds settings for the Anthropic-backed synthesizer.
type LLMConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// LLM implements analysis.Synthesizer through the Anthropic Messages API.
// Any API or parse failure degrades to the rules engine so synthesis stays
// total.
type LLM struct {
	messages  messageCreator
	model     string
	maxTokens int64
	timeout   time.Duration
	fallback  *Rules
	logger    *zap.Logger
}

// NewLLM builds an LLM synthesizer.
func NewLLM(cfg LLMConfig, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLM{
		messages:  &client.Messages,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		fallback:  NewRules(logger),
		logger:    logger.Named("strategy.llm"),
	}
}

// Synthesize asks the model for a strategy and validates the response.
func (l *LLM) Synthesize(ctx context.Context, primary analysis.ExtractionResult, secondary *analysis.ExtractionResult) (analysis.Strategy, error) {
	strategy, err := l.synthesizeOnce(ctx, primary, secondary)
	if err == nil {
		return strategy, nil
	}
	l.logger.Warn("llm synthesis failed, falling back to rules", zap.Error(err))
	return l.fallback.Synthesize(ctx, primary, secondary)
}

func (l *LLM) synthesizeOnce(ctx context.Context, primary analysis.ExtractionResult, secondary *analysis.ExtractionResult) (analysis.Strategy, error) {
	prompt, err := buildPrompt(primary, secondary)
	if err != nil {
		return analysis.Strategy{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	msg, err := l.messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(l.model),
		MaxTokens: l.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return analysis.Strategy{}, fmt.Errorf("anthropic message: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return analysis.Strategy{}, fmt.Errorf("anthropic message: no text content")
	}
	return parseStrategy(text)
}

func buildPrompt(primary analysis.ExtractionResult, secondary *analysis.ExtractionResult) (string, error) {
	facts := struct {
		Website analysis.ExtractionResult  `json:"website"`
		Social  *analysis.ExtractionResult `json:"social,omitempty"`
	}{Website: primary, Social: secondary}

	encoded, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode facts: %w", err)
	}
	return "Extracted facts:\n" + string(encoded), nil
}

// parseStrategy decodes and validates the model's JSON answer. Code fences
// are tolerated even though the prompt forbids them.
func parseStrategy(text string) (analysis.Strategy, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var strategy analysis.Strategy
	if err := json.Unmarshal([]byte(cleaned), &strategy); err != nil {
		return analysis.Strategy{}, fmt.Errorf("decode strategy: %w", err)
	}
	if len(strategy.Audience) == 0 {
		return analysis.Strategy{}, fmt.Errorf("strategy missing audience")
	}
	if strategy.Budget.Monthly <= 0 {
		return analysis.Strategy{}, fmt.Errorf("strategy missing budget")
	}
	if err := validateAllocation(strategy.Budget.Allocation); err != nil {
		return analysis.Strategy{}, err
	}
	if len(strategy.Timeline) == 0 {
		strategy.Timeline = defaultTimeline()
	}
	if len(strategy.KPIs) == 0 {
		strategy.KPIs = defaultKPIs()
	}
	return strategy, nil
}
