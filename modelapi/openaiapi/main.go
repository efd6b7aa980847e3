package openaiapi

import (
	"context"
	"fmt"
	"os"

	"github.com/TheThommo/PerformanceAICoach-sub000/logger"
	"github.com/TheThommo/PerformanceAICoach-sub000/modelapi"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

type OpenAI struct {
	logger    *logger.LogMiddleware
	semaphore *semaphore.Weighted
	client    *openai.Client
}

type OpenAIConnectProps struct {
	Logger *logger.LogMiddleware
}

func Connect(ctx context.Context, args OpenAIConnectProps) *OpenAI {
	tracer := otel.Tracer("openaiapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	maxWorkers := 10
	sem := semaphore.NewWeighted(int64(maxWorkers))

	OPENAI_SECRET_KEY := os.Getenv("OPENAI_SECRET_KEY")

	span.SetAttributes(attribute.Int("maxWorkers", maxWorkers))
	client := openai.NewClient(
		option.WithAPIKey(OPENAI_SECRET_KEY),
	)

	return &OpenAI{logger: args.Logger, semaphore: sem, client: &client}
}

// GenerateContent implements modelapi.Provider.
func (d *OpenAI) GenerateContent(ctx context.Context, systemPrompt string, history []modelapi.ChatMessage, userMessage string) (string, error) {
	tracer := otel.Tracer("openaiapi/GenerateContent")
	ctx, span := tracer.Start(ctx, "GenerateContent")
	defer span.End()

	d.logger.Logger(ctx).Info("[OpenAIAPI] Generating completion",
		zap.Int("history_length", len(history)),
		zap.Int("message_length", len(userMessage)),
	)

	if err := d.semaphore.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		return "", err
	}
	defer d.semaphore.Release(1)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
	}
	for _, m := range history {
		if m.Role == modelapi.ASSISTANT {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userMessage))

	res, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModelGPT4oMini,
		Messages: messages,
	})
	if err != nil {
		span.RecordError(err)
		d.logger.Logger(ctx).Error("[OpenAIAPI] Completion request failed", zap.Error(err))
		return "", err
	}

	if len(res.Choices) == 0 || res.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no response received")
	}

	return res.Choices[0].Message.Content, nil
}
