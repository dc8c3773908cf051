package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionResponse(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + jsonString(content) + `}}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

type capturedChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base url is required")
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "https://api.example.com/v1/"})
	require.NoError(t, err)

	assert.Equal(t, "openai", client.Name())
	assert.Equal(t, "https://api.example.com/v1", client.baseURL)
	assert.Equal(t, defaultModel, client.model)
	assert.Equal(t, defaultModel, client.visionModel)
	assert.Equal(t, defaultCallTimeout, client.timeout)
}

func TestClientComplete(t *testing.T) {
	var captured capturedChatRequest
	var gotAuth, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse("  The cheapest option is oat milk.\n")))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		Name:    "primary",
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "Which milk is cheapest?")
	require.NoError(t, err)

	assert.Equal(t, "The cheapest option is oat milk.", text)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)

	var prompt string
	require.NoError(t, json.Unmarshal(captured.Messages[0].Content, &prompt))
	assert.Equal(t, "Which milk is cheapest?", prompt)
}

func TestClientCompleteEmptyPrompt(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "https://api.example.com"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt is required")
}

func TestClientCompleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClientCompleteErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestClientCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestClientCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte(completionResponse("too late")))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat request failed")
}

func TestClientAnalyzeImage(t *testing.T) {
	imageBytes := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a}
	var captured capturedChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse(`{"name":"Olive Oil"}`)))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL:     srv.URL,
		Model:       "gpt-4o-mini",
		VisionModel: "gpt-4o",
	})
	require.NoError(t, err)

	text, err := client.AnalyzeImage(
		context.Background(),
		ImageInput{Data: imageBytes, MIMEType: "image/png"},
		"Identify this product.",
	)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Olive Oil"}`, text)

	assert.Equal(t, "gpt-4o", captured.Model)
	require.Len(t, captured.Messages, 1)

	var parts []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL *struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	require.NoError(t, json.Unmarshal(captured.Messages[0].Content, &parts))
	require.Len(t, parts, 2)

	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "Identify this product.", parts[0].Text)

	assert.Equal(t, "image_url", parts[1].Type)
	require.NotNil(t, parts[1].ImageURL)
	require.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))

	encoded := strings.TrimPrefix(parts[1].ImageURL.URL, "data:image/png;base64,")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, imageBytes, decoded)
}

func TestClientAnalyzeImageValidation(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "https://api.example.com"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		image  ImageInput
		prompt string
		errMsg string
	}{
		{
			name:   "empty image data",
			image:  ImageInput{MIMEType: "image/png"},
			prompt: "identify",
			errMsg: "image data is empty",
		},
		{
			name:   "non-image mime type",
			image:  ImageInput{Data: []byte{1}, MIMEType: "application/pdf"},
			prompt: "identify",
			errMsg: "unsupported image content type",
		},
		{
			name:   "missing prompt",
			image:  ImageInput{Data: []byte{1}, MIMEType: "image/jpeg"},
			prompt: " ",
			errMsg: "prompt is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.AnalyzeImage(context.Background(), tt.image, tt.prompt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestClientClientCredentials(t *testing.T) {
	var completionAuth string
	tokenCalls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gateway-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		completionAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse("ok")))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL:      srv.URL,
		APIKey:       "ignored-when-token-url-set",
		TokenURL:     srv.URL + "/oauth/token",
		ClientID:     "svc",
		ClientSecret: "secret",
		Scopes:       []string{"chat"},
	})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "ok", text)
	assert.Equal(t, 1, tokenCalls)
	assert.Equal(t, "Bearer gateway-token", completionAuth)
}
