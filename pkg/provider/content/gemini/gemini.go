// Package gemini provides a content provider backed by the Gemini API
// through the google.golang.org/genai SDK.
//
// Insights use a JSON response schema, chat streams through
// GenerateContentStream, and images are read from the inline data of the
// first candidate.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/aria/pkg/provider/content"
)

// Default model names.
const (
	DefaultInsightsModel = "gemini-3-flash-preview"
	DefaultChatModel     = "gemini-3-pro-preview"
	DefaultImageModel    = "gemini-2.5-flash-image"
)

// imageAspectRatio is the aspect ratio requested for generated images.
const imageAspectRatio = "1:1"

// chatBuffer is the channel capacity of streamed chat replies.
const chatBuffer = 16

var _ content.Provider = (*Provider)(nil)

// models is the subset of [genai.Models] used by the provider.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Provider implements [content.Provider] using the Gemini API.
type Provider struct {
	models        models
	insightsModel string
	chatModel     string
	imageModel    string
	persona       content.Persona
}

type config struct {
	baseURL       string
	httpClient    *http.Client
	insightsModel string
	chatModel     string
	imageModel    string
	persona       content.Persona
}

// Option is a functional option for [Provider].
type Option func(*config)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithInsightsModel overrides [DefaultInsightsModel].
func WithInsightsModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.insightsModel = model
		}
	}
}

// WithChatModel overrides [DefaultChatModel].
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

// New creates a Provider authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	cfg := &config{
		insightsModel: DefaultInsightsModel,
		chatModel:     DefaultChatModel,
		imageModel:    DefaultImageModel,
	}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newWithModels(client.Models, cfg), nil
}

func newWithModels(m models, cfg *config) *Provider {
	return &Provider{
		models:        m,
		insightsModel: cfg.insightsModel,
		chatModel:     cfg.chatModel,
		imageModel:    cfg.imageModel,
		persona:       cfg.persona.WithDefaults(),
	}
}

// insightsSchema constrains the insights reply to the dashboard shape.
var insightsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {Type: genai.TypeString},
		"keyMetrics": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"label": {Type: genai.TypeString},
					"value": {Type: genai.TypeString},
					"trend": {
						Type: genai.TypeString,
						Enum: []string{string(content.TrendUp), string(content.TrendDown), string(content.TrendNeutral)},
					},
				},
				Required: []string{"label", "value", "trend"},
			},
		},
	},
	Required: []string{"summary", "keyMetrics"},
}

// Insights implements [content.Provider].
func (p *Provider) Insights(ctx context.Context, systemData any) (*content.Insights, error) {
	prompt, err := p.persona.InsightsRequest(systemData)
	if err != nil {
		return nil, fmt.Errorf("gemini: insights: %w", err)
	}
	resp, err := p.models.GenerateContent(ctx, p.insightsModel, userText(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   insightsSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: insights: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("gemini: insights: %w", content.ErrEmptyResponse)
	}
	in, err := content.ParseInsights(text)
	if err != nil {
		return nil, fmt.Errorf("gemini: insights: %w", err)
	}
	return in, nil
}

// StreamChat implements [content.Provider].
func (p *Provider) StreamChat(ctx context.Context, history []content.Message, message string) (<-chan content.Chunk, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errors.New("gemini: chat: empty message")
	}
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  chatRole(m.Role),
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	contents = append(contents, userText(message)...)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: p.persona.ChatInstruction}}},
	}

	ch := make(chan content.Chunk, chatBuffer)
	go func() {
		defer close(ch)
		send := func(c content.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for resp, err := range p.models.GenerateContentStream(ctx, p.chatModel, contents, cfg) {
			if err != nil {
				send(content.Chunk{Err: fmt.Errorf("gemini: chat stream: %w", err)})
				return
			}
			if text := responseText(resp); text != "" {
				if !send(content.Chunk{Text: text}) {
					return
				}
			}
		}
	}()
	return ch, nil
}

// GenerateImage implements [content.Provider].
func (p *Provider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := p.models.GenerateContent(ctx, p.imageModel, userText(p.persona.ImageRequest(prompt)), &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: imageAspectRatio},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: generate image: %w", err)
	}
	for _, part := range firstParts(resp) {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return content.DataURL(part.InlineData.MIMEType, part.InlineData.Data), nil
		}
	}
	return "", fmt.Errorf("gemini: generate image: %w", content.ErrEmptyResponse)
}

func userText(text string) []*genai.Content {
	return []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: text}}}}
}

// chatRole maps chat roles to Gemini roles.
func chatRole(r content.Role) string {
	if r == content.RoleAssistant {
		return "model"
	}
	return "user"
}

func firstParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

// responseText concatenates the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, part := range firstParts(resp) {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}
