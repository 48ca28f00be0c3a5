package service

import (
	"context"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/repository"
	"recall_edu_backend/pkg/logger"
	"recall_edu_backend/pkg/monitoring"
	"recall_edu_backend/pkg/tracing"
	"time"

	"go.uber.org/zap"
)

// FollowUpStatus 追问处理结果
type FollowUpStatus string

const (
	FollowUpCreated      FollowUpStatus = "created"
	FollowUpReused       FollowUpStatus = "reused"
	FollowUpNotRequested FollowUpStatus = "not_requested"
	FollowUpFailed       FollowUpStatus = "failed"
)

// FollowUpResolver 为 ASK 计划的作答找到或生成下一深度的追问题
type FollowUpResolver struct {
	QuestionRepo *repository.QuestionRepository
	AnswerRepo   *repository.AnswerRepository
	Generator    Generator
	timeout      upstreamTimeout
}

func NewFollowUpResolver(questionRepo *repository.QuestionRepository, answerRepo *repository.AnswerRepository, generator Generator, timeout time.Duration) *FollowUpResolver {
	r := &FollowUpResolver{
		QuestionRepo: questionRepo,
		AnswerRepo:   answerRepo,
		Generator:    generator,
	}
	r.timeout.Set(defaultGenerationTimeout)
	r.timeout.Set(timeout)
	return r
}

const defaultGenerationTimeout = 60 * time.Second

func (r *FollowUpResolver) SetTimeout(d time.Duration) {
	r.timeout.Set(d)
}

// Resolve 已有追问题则复用，否则生成并创建。生成失败只记录日志，返回 FollowUpFailed。
// 生成在脱离调用方取消的 context 上进行，客户端断开不会中断已提交作答的后续处理。
func (r *FollowUpResolver) Resolve(ctx context.Context, question *model.Question, answer *model.Answer) (*model.Question, FollowUpStatus) {
	if answer.Plan != model.PlanAsk || question.RecallDepth >= model.MaxRecallDepth {
		return nil, FollowUpNotRequested
	}

	ctx, span := tracing.StartSpan(context.WithoutCancel(ctx), "submission.resolve_follow_up")
	followUp, status, err := r.resolve(ctx, question, answer)
	tracing.EndSpan(span, err)

	if err != nil {
		logger.Log.Warn("Follow-up generation failed",
			zap.Uint("questionId", question.ID),
			zap.Uint("personalAssignmentId", question.PersonalAssignmentID),
			zap.Int("number", question.Number),
			zap.Int("depth", question.RecallDepth+1),
			zap.Error(err))
	}
	monitoring.FollowUpCounter.WithLabelValues(string(status)).Inc()
	return followUp, status
}

func (r *FollowUpResolver) resolve(ctx context.Context, question *model.Question, answer *model.Answer) (*model.Question, FollowUpStatus, error) {
	depth := question.RecallDepth + 1

	existing, err := r.QuestionRepo.FindSlot(ctx, question.PersonalAssignmentID, question.Number, depth)
	if err != nil {
		return nil, FollowUpFailed, err
	}
	if existing != nil {
		return existing, FollowUpReused, nil
	}

	baseID, err := r.baseQuestionID(ctx, question)
	if err != nil {
		return nil, FollowUpFailed, err
	}

	var confidence float64
	if answer.Confidence != nil {
		confidence = *answer.Confidence
	}

	genCtx, cancel := context.WithTimeout(ctx, r.timeout.Get())
	defer cancel()

	generated, err := r.Generator.GenerateFollowUp(genCtx, GenerationRequest{
		Question:   question,
		Transcript: answer.Transcript,
		Confidence: confidence,
		Bucket:     answer.Bucket,
	})
	if err != nil {
		return nil, FollowUpFailed, err
	}

	followUp, created, err := r.QuestionRepo.CreateFollowUp(ctx, &model.Question{
		PersonalAssignmentID: question.PersonalAssignmentID,
		Number:               question.Number,
		RecallDepth:          depth,
		Content:              generated.Content,
		ModelAnswer:          generated.ModelAnswer,
		Explanation:          generated.Explanation,
		Difficulty:           generated.Difficulty,
		BaseQuestionID:       &baseID,
	})
	if err != nil {
		return nil, FollowUpFailed, err
	}
	if !created {
		return followUp, FollowUpReused, nil
	}

	logger.Log.Info("Follow-up question created",
		zap.Uint("questionId", followUp.ID),
		zap.String("label", followUp.Label()),
		zap.Uint("baseQuestionId", baseID))
	return followUp, FollowUpCreated, nil
}

// Recover 题组最深一题为 ASK 但追问题缺失时，根据已存作答补生成
func (r *FollowUpResolver) Recover(ctx context.Context, deepest *model.Question, studentID uint) (*model.Question, FollowUpStatus, error) {
	answer, err := r.AnswerRepo.FindByQuestionAndStudent(ctx, deepest.ID, studentID)
	if err != nil {
		return nil, FollowUpFailed, err
	}
	if answer == nil {
		return nil, FollowUpNotRequested, nil
	}
	followUp, status := r.Resolve(ctx, deepest, answer)
	return followUp, status, nil
}

func (r *FollowUpResolver) baseQuestionID(ctx context.Context, question *model.Question) (uint, error) {
	if question.IsBase() {
		return question.ID, nil
	}
	if question.BaseQuestionID != nil {
		return *question.BaseQuestionID, nil
	}
	base, err := r.QuestionRepo.FindSlot(ctx, question.PersonalAssignmentID, question.Number, 0)
	if err != nil {
		return 0, err
	}
	if base == nil {
		return question.ID, nil
	}
	return base.ID, nil
}
