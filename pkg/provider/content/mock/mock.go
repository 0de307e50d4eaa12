// Package mock provides a test double for the [content.Provider] interface.
//
// Set response and error fields before use; every call is recorded.
//
//	p := &mock.Provider{
//	    InsightsResult: &content.Insights{Summary: "ok"},
//	    ChatChunks:     []content.Chunk{{Text: "Hola"}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aria/pkg/provider/content"
)

var _ content.Provider = (*Provider)(nil)

// ChatCall records a single StreamChat invocation.
type ChatCall struct {
	History []content.Message
	Message string
}

// Provider is a mock implementation of [content.Provider].
type Provider struct {
	mu sync.Mutex

	// InsightsResult is returned by Insights when InsightsErr is nil.
	InsightsResult *content.Insights

	// InsightsErr is returned by Insights when non-nil.
	InsightsErr error

	// ChatChunks are emitted in order by StreamChat.
	ChatChunks []content.Chunk

	// ChatErr is returned by StreamChat when non-nil.
	ChatErr error

	// ImageURL is returned by GenerateImage when ImageErr is nil.
	ImageURL string

	// ImageErr is returned by GenerateImage when non-nil.
	ImageErr error

	// InsightsCalls records the systemData of every Insights call.
	InsightsCalls []any

	// ChatCalls records every StreamChat call.
	ChatCalls []ChatCall

	// ImageCalls records the prompt of every GenerateImage call.
	ImageCalls []string
}

// Insights implements [content.Provider].
func (p *Provider) Insights(_ context.Context, systemData any) (*content.Insights, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InsightsCalls = append(p.InsightsCalls, systemData)
	if p.InsightsErr != nil {
		return nil, p.InsightsErr
	}
	return p.InsightsResult, nil
}

// StreamChat implements [content.Provider].
func (p *Provider) StreamChat(ctx context.Context, history []content.Message, message string) (<-chan content.Chunk, error) {
	p.mu.Lock()
	p.ChatCalls = append(p.ChatCalls, ChatCall{History: history, Message: message})
	err := p.ChatErr
	chunks := make([]content.Chunk, len(p.ChatChunks))
	copy(chunks, p.ChatChunks)
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	ch := make(chan content.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// GenerateImage implements [content.Provider].
func (p *Provider) GenerateImage(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ImageCalls = append(p.ImageCalls, prompt)
	if p.ImageErr != nil {
		return "", p.ImageErr
	}
	return p.ImageURL, nil
}

// CallCount returns the total number of calls across all methods.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.InsightsCalls) + len(p.ChatCalls) + len(p.ImageCalls)
}
