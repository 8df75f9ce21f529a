package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/recognizer"
	"docscan/internal/recognizer/openai"
)

func newTestBackend(serverURL string) *openai.Backend {
	return openai.NewWithEndpoint(&config.BackendProviderConfig{APIKey: "sk-test"}, serverURL)
}

func choice(content, finish string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": content}, "finish_reason": finish},
		},
	}
}

func TestOpenAIBackend_Recognize_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "gpt-4o", reqBody["model"])
		content := reqBody["messages"].([]interface{})[0].(map[string]interface{})["content"].([]interface{})
		img := content[0].(map[string]interface{})
		assert.Equal(t, "image_url", img["type"])
		url := img["image_url"].(map[string]interface{})["url"].(string)
		assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))

		_ = json.NewEncoder(w).Encode(choice(
			"```json\n{\"tokens\":[{\"text\":\"Razem\",\"bbox\":[0.5,0.8,0.1,0.02],\"confidence\":1.4}]}\n```", "stop"))
	}))
	defer server.Close()

	res, err := newTestBackend(server.URL).Recognize(context.Background(),
		&domain.Page{MediaType: domain.MediaTypeJPEG, Data: []byte("jpeg")})

	require.NoError(t, err)
	require.Len(t, res.Tokens, 1)
	assert.Equal(t, "Razem", res.Tokens[0].Text)
	assert.Equal(t, 1.0, res.Tokens[0].Confidence)
}

func TestOpenAIBackend_Recognize_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestBackend(server.URL).Recognize(context.Background(),
		&domain.Page{MediaType: domain.MediaTypePNG, Data: []byte("png")})

	var rl *recognizer.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 30.0, rl.RetryAfter.Seconds())
	assert.Equal(t, domain.ErrorKindProcessing, domain.KindOf(err))
}

func TestOpenAIBackend_Recognize_Truncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(choice(`{"tokens":[`, "length"))
	}))
	defer server.Close()

	_, err := newTestBackend(server.URL).Recognize(context.Background(),
		&domain.Page{MediaType: domain.MediaTypePNG, Data: []byte("png")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finish_reason: length")
}

func TestOpenAIBackend_Recognize_UnsupportedMediaType(t *testing.T) {
	_, err := newTestBackend("http://unused").Recognize(context.Background(),
		&domain.Page{MediaType: domain.MediaTypeTIFF})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMediaType)
	assert.Equal(t, domain.ErrorKindInitialization, domain.KindOf(err))
}
