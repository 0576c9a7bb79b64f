// Package imagegen is the image-generation collaborator.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Image is one generated scene.
type Image struct {
	URL      string
	Provider string
	Prompt   string
}

// Generator renders a scene prompt, optionally guided by a reference image.
type Generator interface {
	Generate(ctx context.Context, prompt, referenceURL string) (*Image, error)
}

// Client calls an HTTP image generation endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(endpoint, apiKey, model string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: httpClient,
	}
}

type generateRequest struct {
	Model        string `json:"model,omitempty"`
	Prompt       string `json:"prompt"`
	ReferenceURL string `json:"reference_image_url,omitempty"`
	N            int    `json:"n"`
}

type generateResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (c *Client) Generate(ctx context.Context, prompt, referenceURL string) (*Image, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, ReferenceURL: referenceURL, N: 1})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read image response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out generateResponse

	err = json.Unmarshal(payload, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image response: %w", err)
	}

	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return nil, errors.New("image provider returned no image")
	}

	return &Image{URL: out.Data[0].URL, Provider: "http", Prompt: prompt}, nil
}

// Reference reuses the reference image for every scene. It is the generator
// used when no image provider is configured.
type Reference struct{}

func (Reference) Generate(ctx context.Context, prompt, referenceURL string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if referenceURL == "" {
		return nil, errors.New("no reference image to reuse")
	}

	return &Image{URL: referenceURL, Provider: "reference", Prompt: prompt}, nil
}
