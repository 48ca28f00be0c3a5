package repository

import (
	"context"
	"recall_edu_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) WithTx(tx *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: tx}
}

// CreateBaseQuestions 批量创建 base 题，Number 未设置时按顺序从 1 编号
func (r *QuestionRepository) CreateBaseQuestions(ctx context.Context, personalAssignmentID uint, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	for i := range questions {
		questions[i].PersonalAssignmentID = personalAssignmentID
		questions[i].RecallDepth = 0
		questions[i].BaseQuestionID = nil
		if questions[i].Number == 0 {
			questions[i].Number = i + 1
		}
	}
	return r.DB.WithContext(ctx).CreateInBatches(questions, 100).Error
}

func (r *QuestionRepository) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).First(&q, id).Error
	return notFoundAsNil(&q, err)
}

// ListByPersonalAssignment 按 (number ASC, recall_depth ASC) 返回，选题逻辑依赖此顺序
func (r *QuestionRepository) ListByPersonalAssignment(ctx context.Context, personalAssignmentID uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.WithContext(ctx).
		Where("personal_assignment_id = ?", personalAssignmentID).
		Order("number ASC").
		Order("recall_depth ASC").
		Find(&questions).Error
	return questions, err
}

func (r *QuestionRepository) FindSlot(ctx context.Context, personalAssignmentID uint, number, depth int) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).
		Where("personal_assignment_id = ? AND number = ? AND recall_depth = ?", personalAssignmentID, number, depth).
		First(&q).Error
	return notFoundAsNil(&q, err)
}

// CreateFollowUp 创建追问题；槽位已被占用时返回已有记录，created=false
func (r *QuestionRepository) CreateFollowUp(ctx context.Context, q *model.Question) (*model.Question, bool, error) {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "personal_assignment_id"}, {Name: "number"}, {Name: "recall_depth"}},
			DoNothing: true,
		}).
		Create(q)
	if res.Error != nil {
		return nil, false, res.Error
	}

	existing, err := r.FindSlot(ctx, q.PersonalAssignmentID, q.Number, q.RecallDepth)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, gorm.ErrRecordNotFound
	}
	return existing, res.RowsAffected > 0, nil
}
