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
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PersonalAssignmentService struct {
	DB             *gorm.DB
	AssignmentRepo *repository.PersonalAssignmentRepository
	QuestionRepo   *repository.QuestionRepository
	AnswerRepo     *repository.AnswerRepository
	Resolver       *FollowUpResolver
	Cache          cache.NextQuestionCache
}

func NewPersonalAssignmentService(
	db *gorm.DB,
	assignmentRepo *repository.PersonalAssignmentRepository,
	questionRepo *repository.QuestionRepository,
	answerRepo *repository.AnswerRepository,
	resolver *FollowUpResolver,
	nextCache cache.NextQuestionCache,
) *PersonalAssignmentService {
	return &PersonalAssignmentService{
		DB:             db,
		AssignmentRepo: assignmentRepo,
		QuestionRepo:   questionRepo,
		AnswerRepo:     answerRepo,
		Resolver:       resolver,
		Cache:          nextCache,
	}
}

// load 读取个人作业并校验访问权限：学生只能访问自己的作业，教师和管理员不受限
func (s *PersonalAssignmentService) load(ctx context.Context, id uint, requester *util.Claims) (*model.PersonalAssignment, error) {
	pa, err := s.AssignmentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load personal assignment: %v", util.ErrPersistence, err)
	}
	if pa == nil {
		return nil, fmt.Errorf("%w: %w", util.ErrNotFound, util.ErrPersonalAssignmentNotFound)
	}
	if requester != nil && !requester.CanAccessStudent(pa.StudentID) {
		return nil, util.ErrPermissionDenied
	}
	return pa, nil
}

// GetNextQuestion 返回下一道待答题；全部完成时 Completed 为 true
func (s *PersonalAssignmentService) GetNextQuestion(ctx context.Context, id uint, requester *util.Claims) (*model.NextQuestionView, error) {
	pa, err := s.load(ctx, id, requester)
	if err != nil {
		return nil, err
	}

	// 版本号必须在读库之前获取
	version, err := s.Cache.Version(ctx, pa.ID)
	useCache := err == nil
	if err != nil {
		logger.Log.Warn("Next question cache version read failed", zap.Uint("personalAssignmentId", pa.ID), zap.Error(err))
	}
	if useCache {
		if cached, err := s.Cache.Get(ctx, pa.ID, version); err != nil {
			logger.Log.Warn("Next question cache read failed", zap.Uint("personalAssignmentId", pa.ID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	questions, plans, err := s.snapshot(ctx, pa)
	if err != nil {
		return nil, err
	}

	view := &model.NextQuestionView{PersonalAssignmentID: pa.ID}
	selection, err := SelectNextQuestion(questions, plans)
	switch {
	case errors.Is(err, util.ErrAllQuestionsCompleted):
		view.Completed = true
	case err != nil:
		return nil, err
	case selection.Pending != nil:
		followUp, status, err := s.Resolver.Recover(ctx, selection.Pending, pa.StudentID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrPersistence, err)
		}
		if followUp == nil {
			return nil, fmt.Errorf("%w: follow-up for question %s is not available (%s)", util.ErrUpstream, selection.Pending.Label(), status)
		}
		view.Question = model.NewQuestionView(followUp)
	default:
		view.Question = model.NewQuestionView(selection.Question)
	}

	if useCache {
		if err := s.Cache.Set(ctx, view, version); err != nil {
			logger.Log.Warn("Next question cache write failed", zap.Uint("personalAssignmentId", pa.ID), zap.Error(err))
		}
	}
	return view, nil
}

// GetStatus 个人作业状态及各题组进度
func (s *PersonalAssignmentService) GetStatus(ctx context.Context, id uint, requester *util.Claims) (*model.PersonalAssignmentView, error) {
	pa, err := s.load(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	questions, plans, err := s.snapshot(ctx, pa)
	if err != nil {
		return nil, err
	}
	return newPersonalAssignmentView(pa, GroupStates(questions, plans)), nil
}

// Complete 显式完成作业，已评分的作业保持 GRADED
func (s *PersonalAssignmentService) Complete(ctx context.Context, id uint, requester *util.Claims) (*model.PersonalAssignmentView, error) {
	pa, err := s.load(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	if err := s.AssignmentRepo.Complete(ctx, pa.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("%w: complete personal assignment: %v", util.ErrPersistence, err)
	}
	if err := s.Cache.Invalidate(ctx, pa.ID); err != nil {
		logger.Log.Warn("Failed to invalidate next question cache", zap.Uint("personalAssignmentId", pa.ID), zap.Error(err))
	}
	logger.Log.Info("Personal assignment completed", zap.Uint("personalAssignmentId", pa.ID), zap.Uint("studentId", pa.StudentID))
	return s.GetStatus(ctx, pa.ID, nil)
}

// Issue 下发个人作业并创建 base 题，已下发时直接返回已有记录
func (s *PersonalAssignmentService) Issue(ctx context.Context, studentID, assignmentID uint, questions []model.Question) (*model.PersonalAssignment, error) {
	var pa *model.PersonalAssignment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		pa, err = s.AssignmentRepo.WithTx(tx).Issue(ctx, studentID, assignmentID)
		if err != nil {
			return err
		}
		existing, err := s.QuestionRepo.WithTx(tx).ListByPersonalAssignment(ctx, pa.ID)
		if err != nil || len(existing) > 0 {
			return err
		}
		return s.QuestionRepo.WithTx(tx).CreateBaseQuestions(ctx, pa.ID, questions)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: issue personal assignment: %v", util.ErrPersistence, err)
	}
	return pa, nil
}

// RefreshStatusGauge 刷新各状态个人作业数量指标
func (s *PersonalAssignmentService) RefreshStatusGauge(ctx context.Context) error {
	counts, err := s.AssignmentRepo.CountByStatus(ctx)
	if err != nil {
		return err
	}
	monitoring.AssignmentStatusGauge.Reset()
	for _, c := range counts {
		monitoring.AssignmentStatusGauge.WithLabelValues(string(c.Status)).Set(float64(c.Count))
	}
	return nil
}

func (s *PersonalAssignmentService) snapshot(ctx context.Context, pa *model.PersonalAssignment) ([]model.Question, map[uint]model.FollowUpPlan, error) {
	questions, err := s.QuestionRepo.ListByPersonalAssignment(ctx, pa.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list questions: %v", util.ErrPersistence, err)
	}
	plans, err := s.AnswerRepo.PlansByPersonalAssignment(ctx, pa.ID, pa.StudentID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load answers: %v", util.ErrPersistence, err)
	}
	return questions, plans, nil
}

func newPersonalAssignmentView(pa *model.PersonalAssignment, groups []model.GroupProgress) *model.PersonalAssignmentView {
	view := &model.PersonalAssignmentView{
		ID:           pa.ID,
		AssignmentID: pa.AssignmentID,
		StudentID:    pa.StudentID,
		Status:       pa.Status,
		SolvedCount:  pa.SolvedCount,
		StartedAt:    pa.StartedAt.Format(util.TimeFormat),
		Groups:       groups,
	}
	if pa.SubmittedAt != nil {
		view.SubmittedAt = pa.SubmittedAt.Format(util.TimeFormat)
	}
	if view.Groups == nil {
		view.Groups = []model.GroupProgress{}
	}
	return view
}
