package mladjuster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"keywordintel/internal/model"
)

// Config configures either concrete backend.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type suggestResponse struct {
	Candidates []struct {
		Term         string  `json:"term"`
		SearchVolume int     `json:"search_volume"`
		CPC          float64 `json:"cpc"`
		Competition  float64 `json:"competition"`
		Intent       string  `json:"intent"`
	} `json:"candidates"`
}

// OpenAIAdjuster implements Adjuster.Suggest via a strict-mode,
// JSON-schema-constrained chat completion; BlockRepeats and
// TrainIncremental never call the network.
type OpenAIAdjuster struct {
	client openai.Client
	model  string
}

func NewOpenAIAdjuster(cfg Config) (*OpenAIAdjuster, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mladjuster: openai api key required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIAdjuster{client: openai.NewClient(opts...), model: model}, nil
}

func (a *OpenAIAdjuster) Suggest(ctx context.Context, candidates []model.Keyword, sctx SuggestContext) ([]model.Keyword, error) {
	schema := generateSchema[suggestResponse]()

	systemPrompt := "You refine a list of SEO keyword candidates: you may re-rank, add close variants, or drop weak ones. " +
		"Respond only with the candidates array."
	userPrompt := fmt.Sprintf("domain=%s audience=%s notes=%s\ncandidates=%s",
		sctx.Domain, sctx.Audience, sctx.Notes, encodeCandidates(candidates))

	params := openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens: openai.Int(2000),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "keyword_suggestions",
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		},
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return candidates, fmt.Errorf("mladjuster: openai suggest: %w", err)
	}
	if len(resp.Choices) == 0 {
		return candidates, errors.New("mladjuster: openai suggest: no choices returned")
	}

	var parsed suggestResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return candidates, fmt.Errorf("mladjuster: openai suggest: unmarshal: %w", err)
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

func (a *OpenAIAdjuster) BlockRepeats(_ context.Context, candidates []model.Keyword, history []FeedbackRecord) ([]model.Keyword, error) {
	return blockRepeats(candidates, history), nil
}

func (a *OpenAIAdjuster) TrainIncremental(ctx context.Context, history []FeedbackRecord) error {
	slog.DebugContext(ctx, "ml adjuster incremental training noted", "records", len(history))
	return nil
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{AllowAdditionalProperties: false, DoNotReference: true}
	var v T
	return reflector.Reflect(v)
}

func encodeCandidates(candidates []model.Keyword) string {
	b, err := json.Marshal(candidates)
	if err != nil {
		return "[]"
	}
	return string(b)
}
