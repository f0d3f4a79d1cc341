package mladjuster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"keywordintel/internal/model"
)

// AnthropicAdjuster implements Adjuster.Suggest via tool-use: the request
// offers a single "emit_candidates" tool whose input is the adjusted
// candidate list, avoiding freeform-text parsing. Tool use is not forced;
// a reply without that tool call leaves the candidates unchanged.
type AnthropicAdjuster struct {
	client anthropic.Client
	model  string
}

func NewAnthropicAdjuster(cfg Config) (*AnthropicAdjuster, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mladjuster: anthropic api key required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}

	return &AnthropicAdjuster{client: anthropic.NewClient(opts...), model: model}, nil
}

var emitCandidatesSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"candidates": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"term":          map[string]any{"type": "string"},
					"search_volume": map[string]any{"type": "integer"},
					"cpc":           map[string]any{"type": "number"},
					"competition":   map[string]any{"type": "number"},
					"intent":        map[string]any{"type": "string"},
				},
			},
		},
	},
	"required": []string{"candidates"},
}

func (a *AnthropicAdjuster) Suggest(ctx context.Context, candidates []model.Keyword, sctx SuggestContext) ([]model.Keyword, error) {
	userPrompt := fmt.Sprintf("domain=%s audience=%s notes=%s\ncandidates=%s",
		sctx.Domain, sctx.Audience, sctx.Notes, encodeCandidates(candidates))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 2000,
		Messages: []anthropic.MessageParam{
			{Role: anthropic.MessageParamRoleUser, Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(userPrompt)}},
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        "emit_candidates",
					Description: anthropic.String("Emit the refined keyword candidate list"),
					InputSchema: anthropic.ToolInputSchemaParam{Type: "object", Properties: emitCandidatesSchema["properties"]},
				},
			},
		},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return candidates, fmt.Errorf("mladjuster: anthropic suggest: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" || block.Name != "emit_candidates" {
			continue
		}

		var parsed suggestResponse
		if err := json.Unmarshal(block.Input, &parsed); err != nil {
			return candidates, fmt.Errorf("mladjuster: anthropic suggest: unmarshal tool input: %w", err)
		}

		out := make([]model.Keyword, 0, len(parsed.Candidates))
		for _, c := range parsed.Candidates {
			kw := model.Keyword{
				Term:         c.Term,
				SearchVolume: c.SearchVolume,
				CPC:          c.CPC,
				Competition:  c.Competition,
				Intent:       model.Intent(c.Intent),
				ClusterOrder: -1,
				Source:       "ml_adjuster",
			}
			kw.CalculateScore(model.DefaultScoreWeights)
			out = append(out, kw)
		}

		slog.DebugContext(ctx, "ml adjuster suggest completed", "model", a.model, "input", len(candidates), "output", len(out))
		return out, nil
	}

	// Model chose not to call the tool - treat as "no change".
	return candidates, nil
}

func (a *AnthropicAdjuster) BlockRepeats(_ context.Context, candidates []model.Keyword, history []FeedbackRecord) ([]model.Keyword, error) {
	return blockRepeats(candidates, history), nil
}

func (a *AnthropicAdjuster) TrainIncremental(ctx context.Context, history []FeedbackRecord) error {
	slog.DebugContext(ctx, "ml adjuster incremental training noted", "records", len(history))
	return nil
}
