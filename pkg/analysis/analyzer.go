// Package analysis extracts a structured product description from the input
// image and background context using the text-generation collaborator.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/promoflow/pkg/llm"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

const systemPrompt = "You are a product marketing analyst. Answer with a single JSON object and nothing else."

// schema is the contract the model output must satisfy before it is accepted.
var schema = map[string]any{
	"type":     "object",
	"required": []any{"product_name", "features", "suggested_scenes"},
	"properties": map[string]any{
		"product_name":     map[string]any{"type": "string", "minLength": 1},
		"category":         map[string]any{"type": "string"},
		"target_audience":  map[string]any{"type": "string"},
		"brand_guidelines": map[string]any{"type": "string"},
		"features": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"suggested_scenes": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"type": "string", "minLength": 1},
		},
	},
}

// Analyzer is the product-analysis collaborator.
type Analyzer struct {
	generator llm.TextGenerator
	model     string
	logger    *slog.Logger
}

func NewAnalyzer(generator llm.TextGenerator, model string, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		generator: generator,
		model:     model,
		logger:    logger.With("module", "analysis"),
	}
}

// Analyze describes the product shown at imageURL.
func (a *Analyzer) Analyze(ctx context.Context, imageURL, backgroundContext string) (*models.Analysis, error) {
	prompt := fmt.Sprintf("Product image: %s\nBackground: %s\n"+
		"Return JSON with product_name, category, features (array of strings), target_audience, "+
		"brand_guidelines and suggested_scenes (array of 1 to 4 short scene descriptions for product photos).",
		imageURL, strings.TrimSpace(backgroundContext))

	temperature := 0.2

	content, err := a.generator.Generate(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		Model:        a.model,
		Temperature:  &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("product analysis failed: %w", err)
	}

	analysis, err := Parse(content)
	if err != nil {
		a.logger.WarnContext(ctx, "Rejected product analysis output", "error", err)

		return nil, err
	}

	return analysis, nil
}

// Parse decodes model output and validates it against the analysis schema.
func Parse(content string) (*models.Analysis, error) {
	var raw map[string]any

	err := llm.DecodeJSON(content, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: analysis is not valid JSON: %w", llm.ErrGeneration, err)
	}

	err = validate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", llm.ErrGeneration, err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var analysis models.Analysis

	err = json.Unmarshal(data, &analysis)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", llm.ErrGeneration, err)
	}

	return &analysis, nil
}

func validate(data map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("analysis validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
