package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/promoflow/pkg/llm"
	"github.com/dukex/promoflow/pkg/log"
	"github.com/dukex/promoflow/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "plain object",
			content: `{"product_name":"Trail Bottle","features":["insulated"],"suggested_scenes":["mountain"]}`,
		},
		{
			name:    "fenced object",
			content: "```json\n{\"product_name\":\"Trail Bottle\",\"features\":[],\"suggested_scenes\":[\"desk\"]}\n```",
		},
		{
			name:    "missing scenes",
			content: `{"product_name":"Trail Bottle","features":["insulated"]}`,
			wantErr: true,
		},
		{
			name:    "empty product name",
			content: `{"product_name":"","features":[],"suggested_scenes":["desk"]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			content: "I cannot see the image",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := Parse(tt.content)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, llm.ErrGeneration)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "Trail Bottle", analysis.ProductName)
			assert.NotEmpty(t, analysis.SuggestedScenes)
		})
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	generator := &mocks.MockTextGenerator{}
	generator.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Model == "vision" && req.SystemPrompt != ""
	})).Return(`{"product_name":"Lamp","category":"home","features":["dimmable"],"suggested_scenes":["bedside"]}`, nil)

	analysis, err := NewAnalyzer(generator, "vision", log.Discard()).
		Analyze(context.Background(), "https://cdn/lamp.png", "cozy lighting")

	require.NoError(t, err)
	assert.Equal(t, "Lamp", analysis.ProductName)
	assert.Equal(t, "home", analysis.Category)
	assert.Equal(t, []string{"bedside"}, analysis.SuggestedScenes)
	generator.AssertExpectations(t)
}

func TestAnalyzer_Analyze_GeneratorError(t *testing.T) {
	generator := &mocks.MockTextGenerator{}
	generator.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("boom"))

	_, err := NewAnalyzer(generator, "", log.Discard()).Analyze(context.Background(), "u", "c")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "product analysis failed")
}
