package service

import (
	"context"
	"encoding/json"
	"fmt"
	"recall_edu_backend/internal/config"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// AIService OpenAI 兼容的 chat/completions 客户端
type AIService struct {
	config config.AIConfig
	client *resty.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() >= 500
		}).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &AIService{config: cfg, client: client}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []AIChatMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ChatJSON 要求模型返回 JSON 对象并解析到 out
func (s *AIService) ChatJSON(ctx context.Context, system, prompt string, temperature float64, out interface{}) error {
	content, err := s.complete(ctx, system, prompt, temperature, &responseFormat{Type: "json_object"})
	if err != nil {
		return err
	}
	content = stripCodeFence(content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("AI returned malformed JSON: %w", err)
	}
	return nil
}

func (s *AIService) complete(ctx context.Context, system, prompt string, temperature float64, format *responseFormat) (string, error) {
	req := ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: temperature,
		Messages: []AIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: format,
	}

	var result ChatCompletionResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post("/chat/completions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		if result.Error != nil {
			return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode(), result.Error.Message)
		}
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode(), resp.String())
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("AI returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// 部分模型会把 JSON 包在 ```json 代码块里
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
