package claude

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
	Name = "claude"

	apiURL     = "https://api.anthropic.com/v1/messages"
	apiVersion = "2023-06-01"
)

// Backend implements port.RecognitionBackend using the Anthropic Messages API.
type Backend struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// Factory builds the backend from configuration. A missing API key is an
// initialization failure.
func Factory(cfg *config.BackendsConfig, _ *slog.Logger) (port.RecognitionBackend, error) {
	if cfg.Claude.APIKey == "" {
		return nil, errors.New("claude: api key not configured")
	}
	return New(&cfg.Claude), nil
}

// New creates a Claude-based recognition backend.
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
		model = "claude-sonnet-4-20250514"
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
		"model":      b.model,
		"max_tokens": 16384,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": contentBlocks,
			},
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
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
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
	var blocks []map[string]interface{}

	switch page.MediaType {
	case domain.MediaTypePDF:
		blocks = append(blocks, map[string]interface{}{
			"type": "document",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": domain.MediaTypePDF,
				"data":       encoded,
			},
		})
	case domain.MediaTypeJPEG, domain.MediaTypePNG, domain.MediaTypeGIF, domain.MediaTypeWebP:
		blocks = append(blocks, map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": page.MediaType,
				"data":       encoded,
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

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func parseResponse(body []byte) (*domain.BackendResult, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	if resp.StopReason == "max_tokens" {
		return nil, errors.New("output truncated (stop_reason: max_tokens): response exceeded output token limit")
	}

	return recognizer.ParseTokenJSON(resp.Content[0].Text)
}
