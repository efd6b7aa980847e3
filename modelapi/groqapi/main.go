package groqapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/TheThommo/PerformanceAICoach-sub000/httpmiddleware"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"
	"github.com/TheThommo/PerformanceAICoach-sub000/modelapi"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	GROQ_MODEL_NAME = "moonshotai/kimi-k2-instruct"
	MAX_TOKENS      = 2048
)

type ChatCompletionInputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequestInput struct {
	Model     string                       `json:"model"`
	Messages  []ChatCompletionInputMessage `json:"messages"`
	MaxTokens int                          `json:"max_tokens"`
}

type GroqResponse struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GroqConnectProps struct {
	Logger *logger.LogMiddleware
}

type Groq struct {
	logger    *logger.LogMiddleware
	semaphore *semaphore.Weighted
}

func Connect(ctx context.Context, args GroqConnectProps) *Groq {
	tracer := otel.Tracer("groqapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	maxWorkers := 10
	sem := semaphore.NewWeighted(int64(maxWorkers))

	span.SetAttributes(attribute.Int("maxWorkers", maxWorkers))

	return &Groq{logger: args.Logger, semaphore: sem}
}

type MakeAPIRequestProps struct {
	Retries      int
	RequestInput ChatRequestInput
}

// Used for retry logic.
func GetExponentialDelaySeconds(retryNumber int) int {
	delayTime := int(5 * math.Pow(2, float64(retryNumber)))
	return delayTime
}

// sleepWithContext waits out the backoff delay unless the caller's deadline
// lands first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (o *Groq) MakeAPIRequest(ctx context.Context, args MakeAPIRequestProps) (*GroqResponse, error) {
	tracer := otel.Tracer("groqapi/MakeAPIRequest")
	ctx, span := tracer.Start(ctx, "MakeAPIRequest")
	defer span.End()

	API_KEY := os.Getenv("GROQ_SECRET_KEY")
	URL := "https://api.groq.com/openai/v1/chat/completions"

	span.SetAttributes(
		attribute.String("api.url", URL),
		attribute.Int("request.max_tokens", args.RequestInput.MaxTokens),
		attribute.String("request.model", args.RequestInput.Model),
	)

	requestInput := args.RequestInput
	retries := args.Retries
	originalRetries := args.Retries

	jsonData, err := json.Marshal(requestInput)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("Could not generate request body: " + err.Error())
	}

	span.SetAttributes(attribute.Int("retries", retries))

	for retries > 0 {
		sleepTime := GetExponentialDelaySeconds(originalRetries - retries)
		span.SetAttributes(attribute.Int("sleep_time", sleepTime))

		if err := o.semaphore.Acquire(ctx, 1); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("Failed to acquire semaphore.")
		}

		respBody, err := httpmiddleware.HttpRequest(ctx, httpmiddleware.HttpRequestStruct{
			Method: "POST",
			Url:    URL,
			Body:   bytes.NewBuffer(jsonData),
			Headers: map[string]string{
				"authorization": "Bearer " + API_KEY,
				"content-type":  "application/json",
			},
		})
		o.semaphore.Release(1)

		if err != nil {
			span.RecordError(err)
			o.logger.Logger(ctx).Error(
				"[Groq-API] Could not make request to Groq. Retrying after sleeping.",
				zap.Error(err),
				zap.Int("retries_left", retries),
				zap.Int("sleep_time", sleepTime),
			)
			retries -= 1
			if err := sleepWithContext(ctx, time.Duration(sleepTime)*time.Second); err != nil {
				span.RecordError(err)
				return nil, err
			}
		} else {
			var messageResponse GroqResponse
			err = json.Unmarshal(respBody, &messageResponse)
			if err != nil || len(messageResponse.Choices) == 0 {
				span.RecordError(err)
				retries -= 1
				o.logger.Logger(ctx).Error(
					"[Groq-API] Could not parse Groq Request. Retrying after sleeping.",
					zap.Int("retries_left", retries),
					zap.Int("sleep_time", sleepTime),
					zap.Error(err),
					zap.String("response_body", string(respBody)),
					zap.Int("content_length", len(messageResponse.Choices)),
				)
				if err := sleepWithContext(ctx, time.Duration(sleepTime)*time.Second); err != nil {
					span.RecordError(err)
					return nil, err
				}
			} else {
				span.AddEvent("Request successful")
				return &messageResponse, nil
			}
		}
	}

	span.AddEvent("All retries exhausted")
	return nil, fmt.Errorf("Groq Requests Failed")
}

// GenerateContent implements modelapi.Provider.
func (a *Groq) GenerateContent(ctx context.Context, systemPrompt string, history []modelapi.ChatMessage, userMessage string) (string, error) {
	tracer := otel.Tracer("groqapi/GenerateContent")
	ctx, span := tracer.Start(ctx, "GenerateContent")
	defer span.End()

	span.SetAttributes(
		attribute.Int("conversation_history_length", len(history)),
		attribute.Int("message_length", len(userMessage)),
	)

	messages := []ChatCompletionInputMessage{
		{
			Role:    modelapi.SYSTEM,
			Content: systemPrompt,
		},
	}

	for _, m := range history {
		messages = append(messages, ChatCompletionInputMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	messages = append(messages, ChatCompletionInputMessage{
		Role:    modelapi.USER,
		Content: userMessage,
	})

	requestInput := MakeAPIRequestProps{
		Retries: 3,
		RequestInput: ChatRequestInput{
			Model:     GROQ_MODEL_NAME,
			MaxTokens: MAX_TOKENS,
			Messages:  messages,
		},
	}

	resp, err := a.MakeAPIRequest(ctx, requestInput)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.Content) == 0 {
		return "", fmt.Errorf("no response received")
	}

	return resp.Choices[0].Message.Content, nil
}
