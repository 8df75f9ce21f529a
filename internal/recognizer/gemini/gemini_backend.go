package gemini

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
	Name = "gemini"

	apiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
)

// Backend implements port.RecognitionBackend using Google's Gemini API.
type Backend struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// Factory builds the backend from configuration.
func Factory(cfg *config.BackendsConfig, _ *slog.Logger) (port.RecognitionBackend, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, errors.New("gemini: api key not configured")
	}
	return New(&cfg.Gemini), nil
}

// New creates a Gemini-based recognition backend.
func New(cfg *config.BackendProviderConfig) *Backend {
	return NewWithEndpoint(cfg, cfg.Endpoint)
}

// NewWithEndpoint creates a backend pointing at a custom API endpoint (for testing).
func NewWithEndpoint(cfg *config.BackendProviderConfig, endpoint string) *Backend {
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s:generateContent", apiBaseURL, model)
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
	_, err := toGeminiMimeType(mediaType)
	return err == nil
}

func (b *Backend) Recognize(ctx context.Context, page *domain.Page) (*domain.BackendResult, error) {
	mimeType, err := toGeminiMimeType(page.MediaType)
	if err != nil {
		return nil, domain.NewRecognitionError(domain.ErrorKindInitialization, Name, err)
	}

	encoded := base64.StdEncoding.EncodeToString(page.Data)

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]interface{}{
					{
						"inline_data": map[string]interface{}{
							"mime_type": mimeType,
							"data":      encoded,
						},
					},
					{
						"text": recognizer.TokenPrompt,
					},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
			"maxOutputTokens":  16384,
			"temperature":      0,
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
	req.Header.Set("x-goog-api-key", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gemini API: %w", err)
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

func toGeminiMimeType(mediaType string) (string, error) {
	switch mediaType {
	case domain.MediaTypePDF, domain.MediaTypeJPEG, domain.MediaTypePNG, domain.MediaTypeWebP:
		return mediaType, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, mediaType)
	}
}

// geminiResponse models the Gemini API response.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func parseResponse(body []byte) (*domain.BackendResult, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from API: no candidates")
	}

	if resp.Candidates[0].FinishReason == "MAX_TOKENS" {
		return nil, fmt.Errorf("output truncated (finishReason: MAX_TOKENS): response exceeded output token limit")
	}

	if len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from API: no parts")
	}

	return recognizer.ParseTokenJSON(resp.Candidates[0].Content.Parts[0].Text)
}
