package knowledge

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/physiohub/rag-backend/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Generator 文本生成接口，管道末端调用的托管大模型
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Ready() bool
}

// NoopGenerator 默认占位实现
type NoopGenerator struct{}

func (n *NoopGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("generation provider not configured")
}

func (n *NoopGenerator) Ready() bool {
	return false
}

// OpenAIGenerator 使用OpenAI Chat Completion API生成回答
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIGenerator 创建OpenAI生成器
func NewOpenAIGenerator(apiKey, model string, maxTokens int, temperature float64) Generator {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopGenerator{}
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperrors.NewGenerationError(errors.New("prompt is empty"))
	}
	if g.client == nil {
		return "", apperrors.NewGenerationError(errors.New("openai client not initialized"))
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", apperrors.NewGenerationError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewGenerationError(errors.New("generation response empty"))
	}

	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Ready() bool {
	return g.client != nil
}
