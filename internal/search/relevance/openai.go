package relevance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const classifierPrompt = `You decide whether marketplace listings are the product a shopper searched for.
Reply with a JSON object {"verdicts":[{"index":0,"relevant":true,"confidence":0.9,"category":"exact_match"}]}
with one entry per listing. category is one of exact_match, related_product, accessory, unrelated.
Accessories, cases and parts for the product are not relevant.`

// OpenAIConfig configures the chat model based classifier.
type OpenAIConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	MaxTitles     int           `mapstructure:"max_titles"`
}

// OpenAIClassifier asks an OpenAI compatible chat model for verdicts.
type OpenAIClassifier struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	maxTitles int
	logger    *logger.Logger
}

// NewOpenAIClassifier creates the classifier.
func NewOpenAIClassifier(cfg *OpenAIConfig, lgr *logger.Logger) (*OpenAIClassifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxTitles := cfg.MaxTitles
	if maxTitles <= 0 {
		maxTitles = 50
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	lgr.Info("relevance classifier created", zap.String("model", model))

	return &OpenAIClassifier{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		timeout:   timeout,
		maxTitles: maxTitles,
		logger:    lgr,
	}, nil
}

// Classify returns one verdict per title. Titles past the configured
// maximum, and titles the model did not answer for, are kept as relevant.
func (c *OpenAIClassifier) Classify(ctx context.Context, query string, titles []string) ([]Verdict, error) {
	verdicts := make([]Verdict, len(titles))
	for i := range verdicts {
		verdicts[i] = Verdict{Relevant: true}
	}
	if len(titles) == 0 {
		return verdicts, nil
	}

	n := len(titles)
	if n > c.maxTitles {
		n = c.maxTitles
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search query: %s\nListings:\n", query)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d. %s\n", i, titles[i])
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		c.logger.Warn("relevance classification failed", zap.Error(err))
		return nil, fmt.Errorf("classify titles: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("classify titles: empty response")
	}

	content := resp.Choices[0].Message.Content
	if !gjson.Valid(content) {
		return nil, fmt.Errorf("classify titles: model returned invalid JSON")
	}

	gjson.Get(content, "verdicts").ForEach(func(_, v gjson.Result) bool {
		idx := int(v.Get("index").Int())
		if idx < 0 || idx >= n {
			return true
		}
		verdicts[idx] = Verdict{
			Relevant:   v.Get("relevant").Bool(),
			Confidence: v.Get("confidence").Float(),
			Category:   Category(v.Get("category").String()),
		}
		return true
	})

	c.logger.Debug("titles classified",
		zap.Int("count", n),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return verdicts, nil
}
