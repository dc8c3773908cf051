// Package ai provides an OpenAI-compatible chat completion client and a
// gateway that fans prompts out across the configured providers.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrNoProviders is returned when the gateway has no configured provider.
var ErrNoProviders = errors.New("no provider configured")

// ImageInput carries image bytes plus their MIME type for vision calls.
type ImageInput struct {
	Data     []byte
	MIMEType string
}

// Provider is a single chat completion backend.
type Provider interface {
	// Name identifies the provider in logs and aggregated answers.
	Name() string

	// Complete sends a text prompt and returns the completion text.
	Complete(ctx context.Context, prompt string) (string, error)

	// AnalyzeImage sends an image alongside a text prompt and returns the
	// completion text.
	AnalyzeImage(ctx context.Context, image ImageInput, prompt string) (string, error)
}

// ProviderAnswer records one provider's response to a fanned-out prompt.
type ProviderAnswer struct {
	Provider string
	Text     string
	Err      error
}

// Gateway routes single calls to the primary provider and fans multi-provider
// prompts out to every configured one. The first provider passed to
// NewGateway is the primary.
type Gateway struct {
	providers []Provider
}

// NewGateway builds a gateway over the given providers, primary first.
// Nil entries are dropped.
func NewGateway(providers ...Provider) *Gateway {
	active := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			active = append(active, p)
		}
	}
	return &Gateway{providers: active}
}

// Primary returns the provider that answers single-provider calls, or nil
// when none is configured.
func (g *Gateway) Primary() Provider {
	if len(g.providers) == 0 {
		return nil
	}
	return g.providers[0]
}

// Providers returns the active providers, primary first.
func (g *Gateway) Providers() []Provider {
	return append([]Provider(nil), g.providers...)
}

// Complete sends prompt to the primary provider.
func (g *Gateway) Complete(ctx context.Context, prompt string) (string, error) {
	p := g.Primary()
	if p == nil {
		return "", ErrNoProviders
	}
	return p.Complete(ctx, prompt)
}

// AnalyzeImage sends an image prompt to the primary provider.
func (g *Gateway) AnalyzeImage(ctx context.Context, image ImageInput, prompt string) (string, error) {
	p := g.Primary()
	if p == nil {
		return "", ErrNoProviders
	}
	return p.AnalyzeImage(ctx, image, prompt)
}

// CompleteAll sends prompt to every provider concurrently, then asks the
// primary to merge the raw answers into a single one. Providers that fail
// stay in the returned answer list with their error; only successes feed the
// merge. With a single provider, or a single success, the merge is skipped.
// If the merge call itself fails the first successful raw answer is returned
// instead.
func (g *Gateway) CompleteAll(ctx context.Context, prompt string) (string, []ProviderAnswer, error) {
	if len(g.providers) == 0 {
		return "", nil, ErrNoProviders
	}

	answers := g.fanOut(ctx, prompt)

	succeeded := make([]ProviderAnswer, 0, len(answers))
	for _, a := range answers {
		if a.Err == nil {
			succeeded = append(succeeded, a)
		}
	}
	if len(succeeded) == 0 {
		return "", answers, fmt.Errorf("all providers failed: %w", answers[0].Err)
	}
	if len(succeeded) == 1 {
		return succeeded[0].Text, answers, nil
	}

	merged, err := g.Primary().Complete(ctx, buildMergePrompt(prompt, succeeded))
	if err != nil {
		return succeeded[0].Text, answers, nil
	}
	return merged, answers, nil
}

// fanOut asks every provider concurrently. Each goroutine records its outcome
// in the answers slice and never returns an error, so one slow or failing
// provider cannot cancel the others.
func (g *Gateway) fanOut(ctx context.Context, prompt string) []ProviderAnswer {
	eg, egCtx := errgroup.WithContext(ctx)
	answers := make([]ProviderAnswer, len(g.providers))
	for i, p := range g.providers {
		eg.Go(func() error {
			text, err := p.Complete(egCtx, prompt)
			answers[i] = ProviderAnswer{Provider: p.Name(), Text: text, Err: err}
			return nil
		})
	}
	_ = eg.Wait()
	return answers
}

func buildMergePrompt(prompt string, answers []ProviderAnswer) string {
	var b strings.Builder
	b.WriteString("Several assistants answered the same request independently. ")
	b.WriteString("Merge their answers into one final answer. Prefer points that ")
	b.WriteString("multiple assistants agree on and resolve conflicts in favor of ")
	b.WriteString("the majority. Reply with the final answer only, in the same ")
	b.WriteString("format the assistants used.\n\nRequest:\n")
	b.WriteString(prompt)
	for _, a := range answers {
		b.WriteString("\n\nAnswer from ")
		b.WriteString(a.Provider)
		b.WriteString(":\n")
		b.WriteString(a.Text)
	}
	return b.String()
}
