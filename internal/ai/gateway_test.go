package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name    string
	respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
	images  []ImageInput
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.respond(prompt)
}

func (s *stubProvider) AnalyzeImage(_ context.Context, image ImageInput, prompt string) (string, error) {
	s.mu.Lock()
	s.images = append(s.images, image)
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.respond(prompt)
}

func (s *stubProvider) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func stubReply(text string) func(string) (string, error) {
	return func(string) (string, error) { return text, nil }
}

func stubError(err error) func(string) (string, error) {
	return func(string) (string, error) { return "", err }
}

func TestGatewayNoProviders(t *testing.T) {
	gw := NewGateway()

	_, err := gw.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoProviders)

	_, err = gw.AnalyzeImage(context.Background(), ImageInput{Data: []byte{1}, MIMEType: "image/png"}, "hello")
	assert.ErrorIs(t, err, ErrNoProviders)

	_, _, err = gw.CompleteAll(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoProviders)

	assert.Nil(t, gw.Primary())
}

func TestGatewayNilProvidersDropped(t *testing.T) {
	primary := &stubProvider{name: "primary", respond: stubReply("answer")}
	gw := NewGateway(nil, primary, nil)

	require.Len(t, gw.Providers(), 1)
	assert.Equal(t, primary, gw.Primary())
}

func TestGatewayPrimaryPassthrough(t *testing.T) {
	primary := &stubProvider{name: "primary", respond: stubReply("from primary")}
	secondary := &stubProvider{name: "secondary", respond: stubReply("from secondary")}
	gw := NewGateway(primary, secondary)

	text, err := gw.Complete(context.Background(), "which store is cheapest?")
	require.NoError(t, err)
	assert.Equal(t, "from primary", text)

	image := ImageInput{Data: []byte{0xFF, 0xD8}, MIMEType: "image/jpeg"}
	text, err = gw.AnalyzeImage(context.Background(), image, "identify this")
	require.NoError(t, err)
	assert.Equal(t, "from primary", text)

	assert.Len(t, primary.recorded(), 2)
	assert.Empty(t, secondary.recorded(), "single-provider calls must not reach the secondary")
	require.Len(t, primary.images, 1)
	assert.Equal(t, image, primary.images[0])
}

func TestGatewayCompleteAllSingleProvider(t *testing.T) {
	primary := &stubProvider{name: "primary", respond: stubReply("only answer")}
	gw := NewGateway(primary)

	text, answers, err := gw.CompleteAll(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "only answer", text)
	require.Len(t, answers, 1)
	assert.Equal(t, "primary", answers[0].Provider)
	assert.NoError(t, answers[0].Err)

	// One fan-out call and no merge call.
	assert.Len(t, primary.recorded(), 1)
}

func TestGatewayCompleteAllMergesAnswers(t *testing.T) {
	primary := &stubProvider{name: "alpha", respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Answer from") {
			return "merged answer", nil
		}
		return "alpha answer", nil
	}}
	secondary := &stubProvider{name: "beta", respond: stubReply("beta answer")}
	tertiary := &stubProvider{name: "gamma", respond: stubReply("gamma answer")}
	gw := NewGateway(primary, secondary, tertiary)

	text, answers, err := gw.CompleteAll(context.Background(), "cheapest milk?")
	require.NoError(t, err)

	assert.Equal(t, "merged answer", text)
	require.Len(t, answers, 3)
	assert.Equal(t, "alpha", answers[0].Provider)
	assert.Equal(t, "beta", answers[1].Provider)
	assert.Equal(t, "gamma", answers[2].Provider)
	for _, a := range answers {
		assert.NoError(t, a.Err)
	}

	prompts := primary.recorded()
	require.Len(t, prompts, 2)
	mergePrompt := prompts[1]
	assert.Contains(t, mergePrompt, "cheapest milk?")
	assert.Contains(t, mergePrompt, "Answer from alpha:\nalpha answer")
	assert.Contains(t, mergePrompt, "Answer from beta:\nbeta answer")
	assert.Contains(t, mergePrompt, "Answer from gamma:\ngamma answer")
}

func TestGatewayCompleteAllPartialFailure(t *testing.T) {
	providerErr := errors.New("upstream 503")
	primary := &stubProvider{name: "alpha", respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Answer from") {
			return "merged answer", nil
		}
		return "alpha answer", nil
	}}
	secondary := &stubProvider{name: "beta", respond: stubError(providerErr)}
	tertiary := &stubProvider{name: "gamma", respond: stubReply("gamma answer")}
	gw := NewGateway(primary, secondary, tertiary)

	text, answers, err := gw.CompleteAll(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "merged answer", text)
	require.Len(t, answers, 3)
	assert.ErrorIs(t, answers[1].Err, providerErr)

	prompts := primary.recorded()
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[1], "Answer from beta", "failed providers must not feed the merge")
	assert.Contains(t, prompts[1], "Answer from gamma")
}

func TestGatewayCompleteAllSingleSuccessSkipsMerge(t *testing.T) {
	primary := &stubProvider{name: "alpha", respond: stubError(errors.New("down"))}
	secondary := &stubProvider{name: "beta", respond: stubReply("beta answer")}
	gw := NewGateway(primary, secondary)

	text, answers, err := gw.CompleteAll(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "beta answer", text)
	require.Len(t, answers, 2)
	assert.Error(t, answers[0].Err)
	assert.NoError(t, answers[1].Err)

	// Only the fan-out call; a lone answer is returned as-is.
	assert.Len(t, primary.recorded(), 1)
}

func TestGatewayCompleteAllAllFail(t *testing.T) {
	primary := &stubProvider{name: "alpha", respond: stubError(errors.New("alpha down"))}
	secondary := &stubProvider{name: "beta", respond: stubError(errors.New("beta down"))}
	gw := NewGateway(primary, secondary)

	_, answers, err := gw.CompleteAll(context.Background(), "hello")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "all providers failed")
	require.Len(t, answers, 2)
	assert.Error(t, answers[0].Err)
	assert.Error(t, answers[1].Err)
}

func TestGatewayCompleteAllMergeFallback(t *testing.T) {
	primary := &stubProvider{name: "alpha", respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Answer from") {
			return "", errors.New("merge call rejected")
		}
		return "alpha answer", nil
	}}
	secondary := &stubProvider{name: "beta", respond: stubReply("beta answer")}
	gw := NewGateway(primary, secondary)

	text, answers, err := gw.CompleteAll(context.Background(), "hello")
	require.NoError(t, err)

	// Merge failed, so the first successful raw answer wins.
	assert.Equal(t, "alpha answer", text)
	require.Len(t, answers, 2)
	assert.NoError(t, answers[0].Err)
	assert.NoError(t, answers[1].Err)
}
