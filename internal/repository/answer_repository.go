package repository

import (
	"context"
	"recall_edu_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnswerRepository struct {
	DB *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) *AnswerRepository {
	return &AnswerRepository{DB: db}
}

func (r *AnswerRepository) WithTx(tx *gorm.DB) *AnswerRepository {
	return &AnswerRepository{DB: tx}
}

func (r *AnswerRepository) FindByQuestionAndStudent(ctx context.Context, questionID, studentID uint) (*model.Answer, error) {
	var answer model.Answer
	err := r.DB.WithContext(ctx).
		Where("question_id = ? AND student_id = ?", questionID, studentID).
		First(&answer).Error
	return notFoundAsNil(&answer, err)
}

// Upsert 按 (question_id, student_id) 插入或覆盖，返回落库后的记录
func (r *AnswerRepository) Upsert(ctx context.Context, answer *model.Answer) (*model.Answer, error) {
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "question_id"}, {Name: "student_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"started_at", "submitted_at", "outcome", "transcript",
				"confidence", "bucket", "plan", "audio_url", "updated_at",
			}),
		}).
		Create(answer).Error
	if err != nil {
		return nil, err
	}

	stored, err := r.FindByQuestionAndStudent(ctx, answer.QuestionID, answer.StudentID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return stored, nil
}

// PlansByPersonalAssignment 学生在某个人作业下已作答题目的路由计划，key 为 question_id
func (r *AnswerRepository) PlansByPersonalAssignment(ctx context.Context, personalAssignmentID, studentID uint) (map[uint]model.FollowUpPlan, error) {
	var rows []struct {
		QuestionID uint
		Plan       model.FollowUpPlan
	}
	err := r.DB.WithContext(ctx).
		Table("answers").
		Select("answers.question_id, answers.plan").
		Joins("JOIN questions ON questions.id = answers.question_id").
		Where("questions.personal_assignment_id = ? AND answers.student_id = ?", personalAssignmentID, studentID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	plans := make(map[uint]model.FollowUpPlan, len(rows))
	for _, row := range rows {
		plans[row.QuestionID] = row.Plan
	}
	return plans, nil
}

// GroupSolved 学生在某题组 (personal_assignment_id, number) 内是否已有通过的作答
func (r *AnswerRepository) GroupSolved(ctx context.Context, personalAssignmentID uint, number int, studentID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.Answer{}).
		Joins("JOIN questions ON questions.id = answers.question_id").
		Where("questions.personal_assignment_id = ? AND questions.number = ? AND answers.student_id = ?", personalAssignmentID, number, studentID).
		Where("answers.outcome = ? AND answers.plan = ?", model.OutcomeCorrect, model.PlanOnlyCorrect).
		Count(&count).Error
	return count > 0, err
}
