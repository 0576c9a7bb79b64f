package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const maxStreamLine = 1 << 20

// GenerateStream issues a streaming completion and calls onChunk for every
// delta carrying content or reasoning. It returns the concatenated content.
// Streams are not retried; callers fall back to Generate instead.
func (c *Client) GenerateStream(ctx context.Context, req Request, onChunk func(Chunk)) (string, error) {
	payload, err := c.buildPayload(req, true)
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var content strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		data, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data:")
		if !ok {
			continue
		}

		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return finishStream(content.String())
		}

		chunk, err := decodeStreamChunk(data)
		if err != nil {
			return "", err
		}

		if chunk.Content == "" && chunk.ReasoningContent == "" {
			continue
		}

		content.WriteString(chunk.Content)

		if onChunk != nil {
			onChunk(chunk)
		}
	}

	err = scanner.Err()
	if err != nil {
		return "", classifyRequestError(ctx, err)
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	return finishStream(content.String())
}

func decodeStreamChunk(data string) (Chunk, error) {
	var event chatCompletionResponse

	err := json.Unmarshal([]byte(data), &event)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: decode stream chunk: %w", ErrGeneration, err)
	}

	if event.Error != nil {
		return Chunk{}, fmt.Errorf("%w: api error: %s", ErrGeneration, strings.TrimSpace(event.Error.Message))
	}

	var chunk Chunk

	for _, choice := range event.Choices {
		chunk.Content += choice.Delta.Content
		chunk.ReasoningContent += choice.Delta.ReasoningContent + choice.Delta.Reasoning
	}

	return chunk, nil
}

func finishStream(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: empty stream", ErrGeneration)
	}

	return content, nil
}
