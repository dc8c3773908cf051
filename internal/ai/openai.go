package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultClientName  = "openai"
	defaultModel       = "gpt-4o-mini"
	defaultCallTimeout = 60 * time.Second
)

// Config describes one OpenAI-compatible chat completion endpoint.
type Config struct {
	// Name identifies the provider in logs and aggregated answers.
	Name string

	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token. Ignored when TokenURL is set.
	APIKey string

	// Model is the chat model used for text prompts.
	Model string

	// VisionModel is the model used for image prompts. Defaults to Model.
	VisionModel string

	// Timeout bounds a single completion call.
	Timeout time.Duration

	// TokenURL switches authentication to the OAuth2 client-credentials flow
	// for providers that sit behind an API gateway. ClientID and ClientSecret
	// are exchanged for bearer tokens and APIKey is ignored.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Client overrides the HTTP client. Mostly for tests.
	Client *http.Client
}

// Client is an OpenAI-compatible chat completion provider.
type Client struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	visionModel string
	timeout     time.Duration
	client      *http.Client
}

// NewClient builds a chat completion client. Callers should pass a validated
// config.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("provider base url is required")
	}

	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = defaultClientName
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	visionModel := strings.TrimSpace(cfg.VisionModel)
	if visionModel == "" {
		visionModel = model
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if tokenURL := strings.TrimSpace(cfg.TokenURL); tokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       cfg.Scopes,
		}
		// Token fetches reuse the base client; completions go through the
		// token-injecting transport it returns.
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = cc.Client(tokenCtx)
		hc.Timeout = timeout
		apiKey = ""
	}

	return &Client{
		name:        name,
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		visionModel: visionModel,
		timeout:     timeout,
		client:      hc,
	}, nil
}

// Name returns the configured provider name.
func (c *Client) Name() string {
	return c.name
}

// Complete sends a text prompt and returns the completion text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is required")
	}

	messages := []chatMessage{{Role: "user", Content: prompt}}
	return c.chat(ctx, c.model, messages)
}

// AnalyzeImage sends an image as a data URL alongside a text prompt.
func (c *Client) AnalyzeImage(ctx context.Context, image ImageInput, prompt string) (string, error) {
	if len(image.Data) == 0 {
		return "", errors.New("image data is empty")
	}
	mimeType := strings.ToLower(strings.TrimSpace(image.MIMEType))
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("unsupported image content type %q", image.MIMEType)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is required")
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
	messages := []chatMessage{{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageRef{URL: dataURL}},
		},
	}}
	return c.chat(ctx, c.visionModel, messages)
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a plain string for text prompts or []contentPart for
	// multimodal ones.
	Content any `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) chat(ctx context.Context, model string, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		callCtx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}

	respBody, err := readCompletionBody(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat completion %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("chat completion rejected: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func readCompletionBody(body io.ReadCloser) ([]byte, error) {
	data, readErr := io.ReadAll(body)
	if readErr != nil {
		closeErr := body.Close()
		if closeErr != nil {
			return nil, errors.Join(
				fmt.Errorf("read chat response: %w", readErr),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return nil, fmt.Errorf("read chat response: %w", readErr)
	}
	if err := body.Close(); err != nil {
		return nil, fmt.Errorf("close response body: %w", err)
	}
	return data, nil
}
