package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/port"
	"docscan/internal/recognizer"
)

const (
	// Name is the registry name of this backend.
	Name = "openai"

	apiURL = "https://api.openai.com/v1/chat/completions"
)

// Backend implements port.RecognitionBackend using the OpenAI Chat Completions API.
type Backend struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// Factory builds the backend from configuration.
func Factory(cfg *config.BackendsConfig, _ *slog.Logger) (port.RecognitionBackend, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, errors.New("openai: api key not configured")
	}
	return New(&cfg.OpenAI), nil
}

// New creates an OpenAI-based recognition backend.
func New(cfg *config.BackendProviderConfig) *Backend {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = apiURL
	}
	return NewWithEndpoint(cfg, endpoint)
}

// NewWithEndpoint creates a backend pointing at a custom API endpoint (for testing).
func NewWithEndpoint(cfg *config.BackendProviderConfig, endpoint string) *Backend {
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-4o"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Backend{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Supports(mediaType string) bool {
	switch mediaType {
	case domain.MediaTypePDF, domain.MediaTypeJPEG, domain.MediaTypePNG, domain.MediaTypeGIF, domain.MediaTypeWebP:
		return true
	}
	return false
}

func (b *Backend) Recognize(ctx context.Context, page *domain.Page) (*domain.BackendResult, error) {
	contentBlocks, err := buildContentBlocks(page)
	if err != nil {
		return nil, domain.NewRecognitionError(domain.ErrorKindInitialization, Name, err)
	}

	reqBody := map[string]interface{}{
		"model":                 b.model,
		"max_completion_tokens": 16384,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": contentBlocks,
			},
		},
		"response_format": map[string]interface{}{
			"type": "json_object",
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling openai API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, recognizer.HTTPError(Name, resp, respBody)
	}

	return parseResponse(respBody)
}

func buildContentBlocks(page *domain.Page) ([]map[string]interface{}, error) {
	encoded := base64.StdEncoding.EncodeToString(page.Data)
	dataURI := fmt.Sprintf("data:%s;base64,%s", page.MediaType, encoded)
	var blocks []map[string]interface{}

	switch page.MediaType {
	case domain.MediaTypePDF:
		blocks = append(blocks, map[string]interface{}{
			"type": "file",
			"file": map[string]interface{}{
				"filename":  "document.pdf",
				"file_data": dataURI,
			},
		})
	case domain.MediaTypeJPEG, domain.MediaTypePNG, domain.MediaTypeGIF, domain.MediaTypeWebP:
		blocks = append(blocks, map[string]interface{}{
			"type": "image_url",
			"image_url": map[string]interface{}{
				"url":    dataURI,
				"detail": "high",
			},
		})
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, page.MediaType)
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "text",
		"text": recognizer.TokenPrompt,
	})

	return blocks, nil
}

// apiResponse models the OpenAI Chat Completions API response.
type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func parseResponse(body []byte) (*domain.BackendResult, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API: no choices")
	}

	if resp.Choices[0].FinishReason == "length" {
		return nil, fmt.Errorf("output truncated (finish_reason: length): response exceeded output token limit")
	}

	return recognizer.ParseTokenJSON(resp.Choices[0].Message.Content)
}
