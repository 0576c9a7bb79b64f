package mocks

import (
	"context"

	"github.com/dukex/promoflow/pkg/llm"
	"github.com/stretchr/testify/mock"
)

// MockTextGenerator is a mock implementation of llm.TextGenerator.
type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	args := m.Called(ctx, req)

	return args.String(0), args.Error(1)
}

func (m *MockTextGenerator) GenerateStream(ctx context.Context, req llm.Request, onChunk func(llm.Chunk)) (string, error) {
	args := m.Called(ctx, req, onChunk)

	return args.String(0), args.Error(1)
}

var _ llm.TextGenerator = (*MockTextGenerator)(nil)
