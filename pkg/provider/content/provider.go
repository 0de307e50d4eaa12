// Package content defines the request/response collaborators behind the
// assistant's dashboard, chat and image studio: a structured insights call,
// a streaming chat call and an image generation call.
//
// Implementations must be safe for concurrent use.
package content

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the remote answered without a
	// usable payload, for example an image response with no inline image.
	ErrEmptyResponse = errors.New("content: empty response")

	// ErrInvalidInsights is returned when an insights payload is not valid
	// JSON of the expected shape.
	ErrInvalidInsights = errors.New("content: invalid insights payload")
)

// Trend is the direction of a key metric.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// NormalizeTrend maps unknown trend values to [TrendNeutral].
func NormalizeTrend(t Trend) Trend {
	switch Trend(strings.ToLower(string(t))) {
	case TrendUp:
		return TrendUp
	case TrendDown:
		return TrendDown
	default:
		return TrendNeutral
	}
}

// Metric is one dashboard key metric.
type Metric struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Trend Trend  `json:"trend"`
}

// Insights is the dashboard system analysis.
type Insights struct {
	Summary    string   `json:"summary"`
	KeyMetrics []Metric `json:"keyMetrics"`
}

// ParseInsights decodes a JSON insights payload. Markdown code fences
// around the JSON are tolerated and trends are normalised. A payload without
// a summary is rejected with [ErrInvalidInsights].
func ParseInsights(raw string) (*Insights, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var in Insights
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInsights, err)
	}
	if in.Summary == "" {
		return nil, fmt.Errorf("%w: missing summary", ErrInvalidInsights)
	}
	if in.KeyMetrics == nil {
		in.KeyMetrics = []Metric{}
	}
	for i := range in.KeyMetrics {
		in.KeyMetrics[i].Trend = NormalizeTrend(in.KeyMetrics[i].Trend)
	}
	return &in, nil
}

// Role identifies the author of a chat [Message].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Chunk is one streamed chat fragment. A chunk with a non-nil Err is the
// last one on its channel.
type Chunk struct {
	Text string
	Err  error
}

// Provider is the content collaborator.
type Provider interface {
	// Insights analyses systemData (any JSON-encodable value) and returns
	// a summary with key metrics.
	Insights(ctx context.Context, systemData any) (*Insights, error)

	// StreamChat sends message after history and streams the reply. The
	// channel is closed when the reply ends. A failure after the stream has
	// started is delivered as a final [Chunk] with Err set.
	StreamChat(ctx context.Context, history []Message, message string) (<-chan Chunk, error)

	// GenerateImage renders prompt and returns the image as a data URL.
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// DataURL formats data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
