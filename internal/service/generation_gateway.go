package service

import (
	"context"
	"fmt"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/util"
	"recall_edu_backend/pkg/monitoring"
	"strings"
	"time"
)

// GenerationRequest 生成追问题所需的上下文
type GenerationRequest struct {
	Question   *model.Question
	Transcript string
	Confidence float64
	Bucket     model.Bucket
}

// GeneratedFollowUp 生成结果，Content 不能为空
type GeneratedFollowUp struct {
	Content     string           `json:"content"`
	ModelAnswer string           `json:"model_answer"`
	Explanation string           `json:"explanation"`
	Difficulty  model.Difficulty `json:"difficulty"`
}

type Generator interface {
	GenerateFollowUp(ctx context.Context, req GenerationRequest) (*GeneratedFollowUp, error)
}

// AIGenerator 由大模型生成追问题
type AIGenerator struct {
	AI *AIService
}

func NewAIGenerator(ai *AIService) *AIGenerator {
	return &AIGenerator{AI: ai}
}

const generatorSystemPrompt = "你是一名善于追问的老师，根据学生对上一题的作答生成一道追问题，用于检验学生是否真正理解。" +
	"追问题必须独立成题，不要透露参考答案。" +
	`只输出 JSON：{"content": "...", "model_answer": "...", "explanation": "...", "difficulty": "EASY|MEDIUM|HARD"}`

// 不同象限的追问方向
var bucketGuidance = map[model.Bucket]string{
	model.BucketA: "学生回答正确且很有把握，请提高难度，考察概念的迁移和应用。",
	model.BucketB: "学生回答正确但不太确定，请换一个角度考察同一概念，帮助巩固。",
	model.BucketC: "学生回答错误却很自信，可能存在误解，请设计能暴露该误解的问题。",
	model.BucketD: "学生回答错误且不确定，请降低难度，从更基础的知识点入手。",
}

func (g *AIGenerator) GenerateFollowUp(ctx context.Context, req GenerationRequest) (*GeneratedFollowUp, error) {
	start := time.Now()
	defer monitoring.ObserveUpstream("generate", start)

	prompt := fmt.Sprintf("原题：%s\n参考答案：%s\n学生作答：%s\n置信度：%.2f\n追问方向：%s",
		req.Question.Content,
		req.Question.ModelAnswer,
		req.Transcript,
		req.Confidence,
		bucketGuidance[req.Bucket],
	)

	var out GeneratedFollowUp
	if err := g.AI.ChatJSON(ctx, generatorSystemPrompt, prompt, 0.7, &out); err != nil {
		return nil, fmt.Errorf("%w: generation: %v", util.ErrUpstream, err)
	}
	if err := out.normalize(req.Question.Difficulty); err != nil {
		return nil, err
	}
	return &out, nil
}

// normalize 去除首尾空白；难度缺失或非法时沿用原题难度
func (f *GeneratedFollowUp) normalize(fallback model.Difficulty) error {
	f.Content = strings.TrimSpace(f.Content)
	f.ModelAnswer = strings.TrimSpace(f.ModelAnswer)
	f.Explanation = strings.TrimSpace(f.Explanation)
	f.Difficulty = model.Difficulty(strings.ToUpper(strings.TrimSpace(string(f.Difficulty))))

	if f.Content == "" {
		return fmt.Errorf("%w: %w", util.ErrUpstream, util.ErrInvalidGeneration)
	}
	if !f.Difficulty.Valid() {
		f.Difficulty = fallback
		if !f.Difficulty.Valid() {
			f.Difficulty = model.DifficultyMedium
		}
	}
	return nil
}
