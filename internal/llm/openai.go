package llm

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const defaultChatModel = "gpt-4o-mini"

// systemPrompt pins the model to JSON-only output; prompts carry the schema
// they must satisfy.
const systemPrompt = "You are a careful health information assistant. " +
	"Respond with a single JSON object only, no prose, no code fences. " +
	"Never provide a diagnosis, never recommend medication or dosage."

// OpenAIDriver generates text through the OpenAI chat completions API.
type OpenAIDriver struct {
	client oai.Client
	model  string
}

var _ Driver = (*OpenAIDriver)(nil)

func NewOpenAIDriver(apiKey, model string) (*OpenAIDriver, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai driver: api key is required")
	}
	if model == "" {
		model = defaultChatModel
	}
	return &OpenAIDriver{
		client: oai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (d *OpenAIDriver) Kind() string { return "openai" }

func (d *OpenAIDriver) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := d.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(d.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(prompt),
		},
		Temperature: param.NewOpt(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (d *OpenAIDriver) HealthCheck(ctx context.Context) error {
	_, err := d.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai: health check: %w", err)
	}
	return nil
}
