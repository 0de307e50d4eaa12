package resilience

import (
	"context"

	"github.com/MrWong99/aria/pkg/provider/content"
)

var _ content.Provider = (*ContentFallback)(nil)

// ContentFallback implements [content.Provider] over an ordered group of
// content providers.
//
// StreamChat fails over only while opening the stream. Once a provider has
// returned a channel, errors delivered on it reach the caller unchanged.
type ContentFallback struct {
	group *FallbackGroup[content.Provider]
}

// NewContentFallback creates a ContentFallback with primary tried first.
func NewContentFallback(primary content.Provider, name string, cfg FallbackConfig) *ContentFallback {
	return &ContentFallback{group: NewFallbackGroup(primary, name, cfg)}
}

// AddFallback registers another provider after the existing ones.
func (f *ContentFallback) AddFallback(name string, p content.Provider) {
	f.group.AddFallback(name, p)
}

// Healthy reports whether any provider is currently admitting calls.
func (f *ContentFallback) Healthy() bool { return f.group.Healthy() }

// Names returns the provider names in failover order.
func (f *ContentFallback) Names() []string { return f.group.Names() }

// Insights implements [content.Provider].
func (f *ContentFallback) Insights(ctx context.Context, systemData any) (*content.Insights, error) {
	return ExecuteWithResult(f.group, func(p content.Provider) (*content.Insights, error) {
		return p.Insights(ctx, systemData)
	})
}

// StreamChat implements [content.Provider].
func (f *ContentFallback) StreamChat(ctx context.Context, history []content.Message, message string) (<-chan content.Chunk, error) {
	return ExecuteWithResult(f.group, func(p content.Provider) (<-chan content.Chunk, error) {
		return p.StreamChat(ctx, history, message)
	})
}

// GenerateImage implements [content.Provider].
func (f *ContentFallback) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return ExecuteWithResult(f.group, func(p content.Provider) (string, error) {
		return p.GenerateImage(ctx, prompt)
	})
}
