package embeddings

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/agentloom/agentloom/internal/retry"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// Known vector widths per model, used when no override is configured.
var openaiModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAI generates embeddings through the OpenAI embeddings API.
type OpenAI struct {
	client     *goopenai.Client
	model      string
	dimensions int
}

// NewOpenAI creates an OpenAI embedder. dimensions > 0 requests shortened
// vectors (v3 models only).
func NewOpenAI(apiKey, model string, dimensions int) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:     goopenai.NewClient(apiKey),
		model:      model,
		dimensions: dimensions,
	}
}

// NewOpenAIWithClient wraps an existing go-openai client.
func NewOpenAIWithClient(client *goopenai.Client, model string, dimensions int) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: client, model: model, dimensions: dimensions}
}

// Embed generates an embedding for a single text.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	req := goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("agentloom: embeddings API returned %d vectors for %d inputs",
			len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("agentloom: embeddings API returned out-of-range index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// Dimensions returns the vector width for the configured model.
func (e *OpenAI) Dimensions() int {
	if e.dimensions > 0 {
		return e.dimensions
	}
	if d, ok := openaiModelDimensions[e.model]; ok {
		return d
	}
	return 1536
}

// Name returns the embedder name.
func (e *OpenAI) Name() string {
	return fmt.Sprintf("openai:%s", e.model)
}

func wrapOpenAIError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if sentinel := retry.ClassifyStatus(apiErr.HTTPStatusCode); sentinel != nil {
			return fmt.Errorf("%w: %v", sentinel, apiErr)
		}
	}
	return err
}
