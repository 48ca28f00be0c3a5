package service

import (
	"context"
	"errors"
	"fmt"
	"recall_edu_backend/internal/cache"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/repository"
	"recall_edu_backend/internal/util"
	"recall_edu_backend/pkg/logger"
	"recall_edu_backend/pkg/monitoring"
	"recall_edu_backend/pkg/tracing"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubmissionResult 作答处理结果
type SubmissionResult struct {
	QuestionID     uint                `json:"questionId"`
	Label          string              `json:"label"`
	IsCorrect      bool                `json:"isCorrect"`
	Outcome        model.AnswerOutcome `json:"outcome"`
	Transcript     string              `json:"transcript"`
	Confidence     float64             `json:"confidence"`
	Bucket         model.Bucket        `json:"bucket"`
	Plan           model.FollowUpPlan  `json:"plan"`
	FollowUp       *model.QuestionView `json:"followUp,omitempty"`
	FollowUpStatus FollowUpStatus      `json:"followUpStatus"`
	NextQuestion   *model.QuestionView `json:"nextQuestion,omitempty"`
}

type SubmissionService struct {
	DB             *gorm.DB
	Roster         Roster
	QuestionRepo   *repository.QuestionRepository
	AnswerRepo     *repository.AnswerRepository
	AssignmentRepo *repository.PersonalAssignmentRepository
	Extractor      FeatureExtractor
	Scorer         Scorer
	Evaluator      Evaluator
	Resolver       *FollowUpResolver
	Storage        *StorageService
	Cache          cache.NextQuestionCache
	Now            func() time.Time

	mu            sync.RWMutex
	highThreshold float64
}

func NewSubmissionService(
	db *gorm.DB,
	roster Roster,
	questionRepo *repository.QuestionRepository,
	answerRepo *repository.AnswerRepository,
	assignmentRepo *repository.PersonalAssignmentRepository,
	extractor FeatureExtractor,
	scorer Scorer,
	evaluator Evaluator,
	resolver *FollowUpResolver,
	storage *StorageService,
	nextCache cache.NextQuestionCache,
	highThreshold float64,
) *SubmissionService {
	return &SubmissionService{
		DB:             db,
		Roster:         roster,
		QuestionRepo:   questionRepo,
		AnswerRepo:     answerRepo,
		AssignmentRepo: assignmentRepo,
		Extractor:      extractor,
		Scorer:         scorer,
		Evaluator:      evaluator,
		Resolver:       resolver,
		Storage:        storage,
		Cache:          nextCache,
		Now:            time.Now,
		highThreshold:  highThreshold,
	}
}

func (s *SubmissionService) HighThreshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.highThreshold
}

// SetHighThreshold 配置热更新时调用，越界值被忽略
func (s *SubmissionService) SetHighThreshold(v float64) {
	if v < 0 || v > 1 {
		return
	}
	s.mu.Lock()
	s.highThreshold = v
	s.mu.Unlock()
}

// Submit 处理一次作答：提取特征 -> 评分 -> 判题 -> 分类 -> 落库 -> 追问
func (s *SubmissionService) Submit(ctx context.Context, studentID, questionID uint, in SubmissionInput) (result *SubmissionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "submission.submit")
	defer func() { tracing.EndSpan(span, err) }()

	question, err := s.loadQuestion(ctx, studentID, questionID)
	if err != nil {
		return nil, err
	}

	if in.Empty() {
		return nil, fmt.Errorf("%w: %w", util.ErrValidation, util.ErrEmptyInput)
	}

	features, err := s.extract(ctx, in)
	if err != nil {
		return nil, err
	}

	score, err := s.score(ctx, features)
	if err != nil {
		return nil, err
	}

	isCorrect, err := s.Evaluator.IsCorrect(ctx, question, features.Transcript)
	if err != nil {
		monitoring.SubmissionFailures.WithLabelValues("evaluate").Inc()
		return nil, asUpstream(err)
	}

	bucket := Classify(isCorrect, score.Confidence, s.HighThreshold())
	plan := DecidePlan(bucket, question.RecallDepth)

	now := s.Now()
	answer := &model.Answer{
		QuestionID:  question.ID,
		StudentID:   studentID,
		StartedAt:   startedAt(now, features.DurationSeconds),
		SubmittedAt: now,
		Outcome:     model.OutcomeOf(isCorrect),
		Transcript:  features.Transcript,
		Confidence:  &score.Confidence,
		Bucket:      bucket,
		Plan:        plan,
		AudioURL:    s.archiveAudio(ctx, studentID, question.ID, in),
	}

	stored, superseded, err := s.persist(ctx, question, answer, now)
	if err != nil {
		monitoring.SubmissionFailures.WithLabelValues("persist").Inc()
		s.discardAudio(ctx, answer.AudioURL)
		return nil, err
	}
	if superseded != stored.AudioURL {
		s.discardAudio(ctx, superseded)
	}
	if err := s.Cache.Invalidate(ctx, question.PersonalAssignmentID); err != nil {
		logger.Log.Warn("Failed to invalidate next question cache", zap.Uint("personalAssignmentId", question.PersonalAssignmentID), zap.Error(err))
	}
	monitoring.SubmissionCounter.WithLabelValues(string(bucket), string(plan)).Inc()

	logger.Log.Info("Answer recorded",
		zap.Uint("studentId", studentID),
		zap.Uint("questionId", question.ID),
		zap.String("label", question.Label()),
		zap.Bool("correct", isCorrect),
		zap.Float64("confidence", score.Confidence),
		zap.String("bucket", string(bucket)),
		zap.String("plan", string(plan)))

	result = &SubmissionResult{
		QuestionID: question.ID,
		Label:      question.Label(),
		IsCorrect:  isCorrect,
		Outcome:    stored.Outcome,
		Transcript: stored.Transcript,
		Confidence: score.Confidence,
		Bucket:     bucket,
		Plan:       plan,
	}

	if plan == model.PlanAsk {
		followUp, status := s.Resolver.Resolve(ctx, question, stored)
		result.FollowUp = model.NewQuestionView(followUp)
		result.FollowUpStatus = status
		return result, nil
	}

	result.FollowUpStatus = FollowUpNotRequested
	next, err := s.QuestionRepo.FindSlot(ctx, question.PersonalAssignmentID, question.Number+1, 0)
	if err != nil {
		logger.Log.Warn("Failed to load next base question", zap.Uint("questionId", question.ID), zap.Error(err))
	}
	result.NextQuestion = model.NewQuestionView(next)
	return result, nil
}

// loadQuestion 学生必须存在，题目必须属于该学生的个人作业
func (s *SubmissionService) loadQuestion(ctx context.Context, studentID, questionID uint) (*model.Question, error) {
	if _, err := s.Roster.FindLearner(ctx, studentID); err != nil {
		return nil, err
	}

	question, err := s.QuestionRepo.FindByID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load question: %v", util.ErrPersistence, err)
	}
	if question == nil {
		return nil, fmt.Errorf("%w: %w", util.ErrNotFound, util.ErrQuestionNotFound)
	}

	pa, err := s.AssignmentRepo.FindByID(ctx, question.PersonalAssignmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: load personal assignment: %v", util.ErrPersistence, err)
	}
	if pa == nil || pa.StudentID != studentID {
		return nil, fmt.Errorf("%w: %w", util.ErrNotFound, util.ErrQuestionNotFound)
	}
	return question, nil
}

func (s *SubmissionService) extract(ctx context.Context, in SubmissionInput) (*AudioFeatures, error) {
	ctx, span := tracing.StartSpan(ctx, "submission.extract_features")
	features, err := s.Extractor.Extract(ctx, in)
	if err == nil && strings.TrimSpace(features.Transcript) == "" {
		err = fmt.Errorf("%w: %w", util.ErrValidation, util.ErrEmptyTranscript)
	}
	tracing.EndSpan(span, err)

	if err != nil {
		monitoring.SubmissionFailures.WithLabelValues("extract").Inc()
		if errors.Is(err, util.ErrValidation) {
			return nil, err
		}
		return nil, asUpstream(err)
	}
	features.Transcript = strings.TrimSpace(features.Transcript)
	return features, nil
}

func (s *SubmissionService) score(ctx context.Context, features *AudioFeatures) (*ScoreResult, error) {
	ctx, span := tracing.StartSpan(ctx, "submission.score")
	result, err := s.Scorer.Score(ctx, features)
	if err == nil {
		err = ValidateConfidence(result.Confidence)
	}
	tracing.EndSpan(span, err)

	if err != nil {
		monitoring.SubmissionFailures.WithLabelValues("score").Inc()
		return nil, asUpstream(err)
	}
	return result, nil
}

// archiveAudio 归档失败不影响作答
func (s *SubmissionService) archiveAudio(ctx context.Context, studentID, questionID uint, in SubmissionInput) string {
	if s.Storage == nil || !in.HasAudio() {
		return ""
	}
	url, err := s.Storage.ArchiveAnswerAudio(ctx, studentID, questionID, in)
	if err != nil {
		logger.Log.Warn("Failed to archive answer audio",
			zap.Uint("studentId", studentID),
			zap.Uint("questionId", questionID),
			zap.Error(err))
		return ""
	}
	return url
}

// discardAudio 删除未被引用的录音，失败只记录日志
func (s *SubmissionService) discardAudio(ctx context.Context, url string) {
	if s.Storage == nil || url == "" {
		return
	}
	if err := s.Storage.DeleteAnswerAudio(ctx, url); err != nil {
		logger.Log.Warn("Failed to delete answer audio", zap.String("url", url), zap.Error(err))
	}
}

// persist 在同一事务内写入作答并推进个人作业状态，superseded 为被覆盖的旧录音地址
func (s *SubmissionService) persist(ctx context.Context, question *model.Question, answer *model.Answer, now time.Time) (stored *model.Answer, superseded string, err error) {
	ctx, span := tracing.StartSpan(ctx, "submission.persist")

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		answers := s.AnswerRepo.WithTx(tx)
		assignments := s.AssignmentRepo.WithTx(tx)

		previous, err := answers.FindByQuestionAndStudent(ctx, answer.QuestionID, answer.StudentID)
		if err != nil {
			return err
		}
		if previous != nil {
			superseded = previous.AudioURL
		}

		solved, err := answers.GroupSolved(ctx, question.PersonalAssignmentID, question.Number, answer.StudentID)
		if err != nil {
			return err
		}

		stored, err = answers.Upsert(ctx, answer)
		if err != nil {
			return err
		}

		if err := assignments.MarkInProgress(ctx, question.PersonalAssignmentID); err != nil {
			return err
		}

		if !stored.Accepted() {
			return nil
		}
		// 每个题组最多计一次
		if solved {
			return assignments.Complete(ctx, question.PersonalAssignmentID, now)
		}
		return assignments.RecordSolved(ctx, question.PersonalAssignmentID, now)
	})
	tracing.EndSpan(span, err)

	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", util.ErrPersistence, err)
	}
	return stored, superseded, nil
}

func startedAt(now time.Time, durationSeconds float64) time.Time {
	if durationSeconds <= 0 {
		return now
	}
	return now.Add(-time.Duration(durationSeconds * float64(time.Second)))
}

func asUpstream(err error) error {
	if errors.Is(err, util.ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %v", util.ErrUpstream, err)
}
