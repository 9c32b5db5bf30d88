package embeddings

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIDriver embeds text through the OpenAI embeddings API.
// It is never selected by default; tests and local development use the
// hash driver.
type OpenAIDriver struct {
	client oai.Client
	model  string
}

var _ Driver = (*OpenAIDriver)(nil)

// NewOpenAIDriver constructs an OpenAI embedding driver.
// If model is empty, text-embedding-3-small is used.
func NewOpenAIDriver(apiKey, model string) (*OpenAIDriver, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embeddings: api key must not be empty")
	}
	if model == "" {
		model = string(oai.EmbeddingModelTextEmbedding3Small)
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIDriver{client: client, model: model}, nil
}

func (d *OpenAIDriver) Kind() string { return "openai" }

// Dimensions returns the embedding dimensions for known OpenAI models.
func (d *OpenAIDriver) Dimensions() int {
	lower := strings.ToLower(d.model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	default:
		return 1536
	}
}

func (d *OpenAIDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := d.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: d.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	result := make([][]float64, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: unexpected index %d", e.Index)
		}
		result[e.Index] = e.Embedding
	}
	return result, nil
}

func (d *OpenAIDriver) HealthCheck(ctx context.Context) error {
	_, err := d.Embed(ctx, []string{"health check"})
	return err
}
