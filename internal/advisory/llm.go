package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"airdrop-optimizer/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama3-70b-8192"
	DefaultTimeout     = 15 * time.Second
	DefaultTemperature = float32(0.3)
	DefaultMaxTokens   = 1024
	DefaultRatePerMin  = 30
	DefaultBurst       = 2
)

const systemPrompt = "You are a cryptocurrency market analyst. " +
	"Reply with a single JSON object and nothing else."

// ChatModel is the subset of an eino chat model used by LLMClient.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// LLMClient implements Client on top of a chat completion model.
type LLMClient struct {
	model       ChatModel
	limiter     *rate.Limiter
	timeout     time.Duration
	temperature float32
	logger      *log.Logger
}

// LLMOption configures LLMClient.
type LLMOption func(*LLMClient)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) LLMOption {
	return func(c *LLMClient) {
		c.timeout = d
	}
}

// WithRateLimit limits calls to perMinute with the given burst.
// A non-positive perMinute disables limiting.
func WithRateLimit(perMinute float64, burst int) LLMOption {
	return func(c *LLMClient) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perMinute/60), burst)
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) LLMOption {
	return func(c *LLMClient) {
		c.temperature = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) LLMOption {
	return func(c *LLMClient) {
		c.logger = l
	}
}

// NewLLMClient creates an advisory client backed by m.
func NewLLMClient(m ChatModel, opts ...LLMOption) *LLMClient {
	c := &LLMClient{
		model:       m,
		limiter:     rate.NewLimiter(rate.Limit(float64(DefaultRatePerMin)/60), DefaultBurst),
		timeout:     DefaultTimeout,
		temperature: DefaultTemperature,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOpenAIChatModel creates an OpenAI-compatible chat model, such as Groq.
func NewOpenAIChatModel(ctx context.Context, baseURL, apiKey, modelName string, maxTokens int) (*openai.ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("advisory api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     modelName,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return cm, nil
}

// Sentiment asks for a recommendation from recent headlines.
func (c *LLMClient) Sentiment(ctx context.Context, token string, headlines []string) (Recommendation, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the market sentiment for %s from these news items:\n", token)
	for _, h := range headlines {
		fmt.Fprintf(&b, "- %s\n", h)
	}
	b.WriteString(`Reply with {"sentiment_score": number in [-1,1], "explanation": string, "recommendation": "BUY"|"SELL"|"HOLD"}.`)

	return c.ask(ctx, "sentiment", b.String(), decodeSentiment)
}

// Forecast asks for a short-horizon recommendation from recent prices.
func (c *LLMClient) Forecast(ctx context.Context, token string, prices []float64) (Recommendation, error) {
	data, err := json.Marshal(prices)
	if err != nil {
		return Recommendation{}, fmt.Errorf("marshal prices: %w", err)
	}
	prompt := fmt.Sprintf("Predict the next price movement of %s from its recent prices (oldest first): %s\n"+
		`Reply with {"prediction_score": number in [-1,1], "explanation": string, "recommendation": "BUY"|"SELL"|"HOLD"}.`,
		token, data)

	return c.ask(ctx, "forecast", prompt, decodeForecast)
}

// Recommend asks for a recommendation from a full market snapshot.
func (c *LLMClient) Recommend(ctx context.Context, token string, snap Snapshot) (Recommendation, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return Recommendation{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	prompt := fmt.Sprintf("Given this market data for %s: %s\n"+
		`Reply with {"recommendation": "BUY"|"SELL"|"HOLD", "confidence": number in [0,1], "explanation": string, "risk_level": "LOW"|"MEDIUM"|"HIGH"}.`,
		token, data)

	return c.ask(ctx, "comprehensive", prompt, decodeComprehensive)
}

func (c *LLMClient) ask(ctx context.Context, source, prompt string, decode func(string) (Recommendation, error)) (Recommendation, error) {
	start := time.Now()
	rec, err := c.generate(ctx, prompt, decode)
	observability.RecordAdvisoryCall(source, outcome(err), time.Since(start).Seconds())
	if err != nil {
		c.logger.Printf("advisory %s call failed: %v", source, err)
	}
	return rec, err
}

func (c *LLMClient) generate(ctx context.Context, prompt string, decode func(string) (Recommendation, error)) (Recommendation, error) {
	if c.model == nil {
		return Recommendation{}, ErrUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			return Recommendation{}, fmt.Errorf("%w: rate limited: %v", ErrUnavailable, err)
		}
	}

	msg, err := c.model.Generate(callCtx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	}, model.WithTemperature(c.temperature))
	if err != nil {
		return Recommendation{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if msg == nil {
		return Recommendation{}, fmt.Errorf("%w: empty message", ErrMalformedResponse)
	}
	return decode(msg.Content)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "unavailable"
	}
}

var _ Client = (*LLMClient)(nil)
