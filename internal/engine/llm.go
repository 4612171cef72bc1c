package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go-kit/llm"
	openai "github.com/sashabaranov/go-openai"
)

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	System string
	Prompt string
	// JSON asks the provider for a JSON object response.
	JSON bool
	// Zero values keep the client defaults.
	MaxTokens   int
	Temperature float64
}

// Completer is the chat completion capability used by analysis and chat.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// KitCompleter calls an OpenAI-compatible endpoint through go-kit/llm.
// JSON mode is carried by the prompt; fences are stripped from the reply.
type KitCompleter struct {
	Client      *llm.Client
	maxTokens   int
	temperature float64
}

// NewKitCompleter builds a go-kit/llm client with the configured key rotation.
func NewKitCompleter(c Config) *KitCompleter {
	return &KitCompleter{
		Client: llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
			llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
			llm.WithMaxTokens(c.LLMMaxTokens),
			llm.WithTemperature(c.LLMTemperature),
			llm.WithHTTPClient(c.LLMHTTPClient()),
		),
		maxTokens:   c.LLMMaxTokens,
		temperature: c.LLMTemperature,
	}
}

func (k *KitCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	temperature, maxTokens := k.temperature, k.maxTokens
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	resp, err := k.Client.Complete(ctx, req.System, req.Prompt,
		llm.WithChatTemperature(temperature),
		llm.WithChatMaxTokens(maxTokens),
	)
	if err != nil {
		return "", err
	}
	if req.JSON {
		return stripFences(resp), nil
	}
	return strings.TrimSpace(resp), nil
}

// OpenAICompleter uses go-openai and requests json_object responses natively.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAICompleter builds a go-openai client. An empty base keeps the
// library default endpoint.
func NewOpenAICompleter(c Config) *OpenAICompleter {
	oc := openai.DefaultConfig(c.LLMAPIKey)
	if c.LLMAPIBase != "" {
		oc.BaseURL = strings.TrimRight(c.LLMAPIBase, "/")
	}
	oc.HTTPClient = c.LLMHTTPClient()
	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(oc),
		model:       c.LLMModel,
		maxTokens:   c.LLMMaxTokens,
		temperature: c.LLMTemperature,
	}
}

func (o *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	cr := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		MaxTokens:   o.maxTokens,
		Temperature: float32(o.temperature),
	}
	if req.MaxTokens > 0 {
		cr.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		cr.Temperature = float32(req.Temperature)
	}
	if req.JSON {
		cr.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := o.client.CreateChatCompletion(ctx, cr)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	out := resp.Choices[0].Message.Content
	if req.JSON {
		return stripFences(out), nil
	}
	return strings.TrimSpace(out), nil
}

// NewCompleter picks the provider named by c.LLMProvider.
func NewCompleter(c Config) (Completer, error) {
	switch strings.ToLower(c.LLMProvider) {
	case "", "kit":
		return NewKitCompleter(c), nil
	case "openai":
		return NewOpenAICompleter(c), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
}

// stripFences removes markdown code fences from LLM output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first balanced {...} span of s, honoring
// string literals. Returns "" when none is found.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
