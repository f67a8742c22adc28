package llm

import (
	"context"
	"fmt"
	"os"

	gopenai "github.com/sashabaranov/go-openai"
)

// localProvider implements Provider against any OpenAI-compatible endpoint,
// typically a locally hosted model server such as LM Studio or Ollama. The
// endpoint is taken from the configured base URL; the API key is optional
// because most local servers accept any value.
type localProvider struct {
	client *gopenai.Client
	model  string
}

func newLocalProvider(model, baseURL string) (Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("llm: local provider requires a base URL (e.g. http://localhost:1234/v1)")
	}
	apiKey := os.Getenv("LOCAL_API_KEY")
	if apiKey == "" {
		apiKey = "local"
	}
	cfg := gopenai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &localProvider{client: gopenai.NewClientWithConfig(cfg), model: model}, nil
}

func (p *localProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
		Messages: []gopenai.ChatCompletionMessage{
			{Role: gopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: gopenai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("local: chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("local: response contained no choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("local: response contained no content")
	}
	return content, nil
}
