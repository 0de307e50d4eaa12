// Package openai provides a content provider backed by an OpenAI-compatible
// API. It serves as the fallback when the Gemini API is unavailable.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/aria/pkg/provider/content"
)

// Default model names.
const (
	DefaultChatModel  = "gpt-4o-mini"
	DefaultImageModel = "dall-e-3"
)

// insightsFormat is appended to the insights prompt; the chat completions
// call has no schema support here so the shape is described in words.
const insightsFormat = ` Responde únicamente con JSON: {"summary": string, "keyMetrics": [{"label": string, "value": string, "trend": "up"|"down"|"neutral"}]}.`

var _ content.Provider = (*Provider)(nil)

// Provider implements [content.Provider] using the OpenAI API.
type Provider struct {
	client     oai.Client
	chatModel  string
	imageModel string
	persona    content.Persona
}

type config struct {
	baseURL    string
	timeout    time.Duration
	chatModel  string
	imageModel string
	persona    content.Persona
}

// Option is a functional option for [Provider].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithChatModel overrides [DefaultChatModel], used for chat and insights.
func WithChatModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.chatModel = model
		}
	}
}

// WithImageModel overrides [DefaultImageModel].
func WithImageModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.imageModel = model
		}
	}
}

// WithPersona sets the prompt texts. Empty fields keep their defaults.
func WithPersona(p content.Persona) Option {
	return func(c *config) { c.persona = p }
}

// New constructs a Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := &config{chatModel: DefaultChatModel, imageModel: DefaultImageModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:     oai.NewClient(reqOpts...),
		chatModel:  cfg.chatModel,
		imageModel: cfg.imageModel,
		persona:    cfg.persona.WithDefaults(),
	}, nil
}

// Insights implements [content.Provider].
func (p *Provider) Insights(ctx context.Context, systemData any) (*content.Insights, error) {
	prompt, err := p.persona.InsightsRequest(systemData)
	if err != nil {
		return nil, fmt.Errorf("openai: insights: %w", err)
	}
	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.chatModel),
		Messages: []oai.ChatCompletionMessageParamUnion{oai.UserMessage(prompt + insightsFormat)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: insights: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai: insights: %w", content.ErrEmptyResponse)
	}
	in, err := content.ParseInsights(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("openai: insights: %w", err)
	}
	return in, nil
}

// StreamChat implements [content.Provider].
func (p *Provider) StreamChat(ctx context.Context, history []content.Message, message string) (<-chan content.Chunk, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errors.New("openai: chat: empty message")
	}
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, oai.SystemMessage(p.persona.ChatInstruction))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		messages = append(messages, convertMessage(m))
	}
	messages = append(messages, oai.UserMessage(message))

	stream := p.client.Chat.Completions.NewStreaming(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.chatModel),
		Messages: messages,
	})
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan content.Chunk, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- content.Chunk{Text: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case ch <- content.Chunk{Err: fmt.Errorf("openai: chat stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// GenerateImage implements [content.Provider].
func (p *Provider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Images.Generate(ctx, oai.ImageGenerateParams{
		Prompt:         p.persona.ImageRequest(prompt),
		Model:          oai.ImageModel(p.imageModel),
		ResponseFormat: oai.ImageGenerateParamsResponseFormatB64JSON,
		Size:           oai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return "", fmt.Errorf("openai: generate image: %w", err)
	}
	for _, img := range resp.Data {
		if img.B64JSON != "" {
			return "data:image/png;base64," + img.B64JSON, nil
		}
	}
	return "", fmt.Errorf("openai: generate image: %w", content.ErrEmptyResponse)
}

// convertMessage converts a chat turn to an OpenAI message param.
func convertMessage(m content.Message) oai.ChatCompletionMessageParamUnion {
	if m.Role == content.RoleAssistant {
		asst := oai.ChatCompletionAssistantMessageParam{}
		asst.Content.OfString = oai.String(m.Content)
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	}
	return oai.UserMessage(m.Content)
}
