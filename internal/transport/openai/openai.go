package openai

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
)

// #endregion

// #region config

const systemPrompt = "You are a careful analyst. Answer from the provided canvas. " +
	"If the canvas does not contain the answer, say so plainly."

// Config maps tiers to model names on an OpenAI-compatible endpoint.
type Config struct {
	APIKey     string
	BaseURL    string // empty = api.openai.com
	SmallModel string
	LargeModel string
}

// #endregion config

// #region model

// Model is a transport.Model backed by the chat completions API.
type Model struct {
	client openai.Client
	models map[transport.Tier]string
}

// New creates a Model. Retries are left to the reasoner's retry policy.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Model{
		client: openai.NewClient(opts...),
		models: map[transport.Tier]string{
			transport.TierSmall:  cfg.SmallModel,
			transport.TierExpert: cfg.LargeModel,
		},
	}, nil
}

// Invoke sends one chat completion for req.
func (m *Model) Invoke(ctx context.Context, req transport.Request) (transport.Response, error) {
	name, ok := m.models[req.Tier]
	if !ok || name == "" {
		return transport.Response{}, transport.NewError(req.Tier, fmt.Errorf("no model configured for tier %q", req.Tier))
	}

	ctx, cancel := transport.WithTimeout(ctx, req)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(name),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	resp, err := m.client.Chat.Completions.New(ctx, params)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return transport.Response{LatencyMs: latency}, transport.NewError(req.Tier, err)
	}
	if len(resp.Choices) == 0 {
		return transport.Response{TokensUsed: int(resp.Usage.TotalTokens), LatencyMs: latency},
			transport.NewError(req.Tier, errors.New("empty choices"))
	}
	return transport.Response{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: int(resp.Usage.TotalTokens),
		LatencyMs:  latency,
	}, nil
}

// #endregion model
