package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dukex/promoflow/pkg/models"
)

// HTTPProvider calls a remote text+image to video endpoint.
type HTTPProvider struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProvider(name, endpoint, apiKey string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if name == "" {
		name = "http"
	}

	return &HTTPProvider{
		name:       name,
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

func (p *HTTPProvider) Name() string {
	return p.name
}

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	Images      []string `json:"images"`
	DurationSec int      `json:"duration_sec"`
}

type generateResponse struct {
	URL         string         `json:"url"`
	DurationSec int            `json:"duration_sec"`
	Metadata    map[string]any `json:"metadata"`
}

func (p *HTTPProvider) Generate(ctx context.Context, prompt string, images []string, durationSec int) (*models.VideoArtifact, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, Images: images, DurationSec: durationSec})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build video request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read video response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("video provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out generateResponse

	err = json.Unmarshal(payload, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode video response: %w", err)
	}

	if out.URL == "" {
		return nil, fmt.Errorf("video provider returned no url")
	}

	duration := out.DurationSec
	if duration == 0 {
		duration = durationSec
	}

	return &models.VideoArtifact{
		URL:         out.URL,
		Provider:    p.name,
		DurationSec: duration,
		Metadata:    out.Metadata,
	}, nil
}
