package repository

import (
	"context"
	"recall_edu_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type PersonalAssignmentRepository struct {
	DB *gorm.DB
}

func NewPersonalAssignmentRepository(db *gorm.DB) *PersonalAssignmentRepository {
	return &PersonalAssignmentRepository{DB: db}
}

// WithTx 返回绑定到事务的仓储
func (r *PersonalAssignmentRepository) WithTx(tx *gorm.DB) *PersonalAssignmentRepository {
	return &PersonalAssignmentRepository{DB: tx}
}

func (r *PersonalAssignmentRepository) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

// Issue 下发作业给学生，(student, assignment) 已存在时返回已有记录
func (r *PersonalAssignmentRepository) Issue(ctx context.Context, studentID, assignmentID uint) (*model.PersonalAssignment, error) {
	pa := model.PersonalAssignment{
		StudentID:    studentID,
		AssignmentID: assignmentID,
		Status:       model.StatusNotStarted,
		StartedAt:    time.Now(),
	}
	err := r.DB.WithContext(ctx).
		Where(model.PersonalAssignment{StudentID: studentID, AssignmentID: assignmentID}).
		FirstOrCreate(&pa).Error
	if err != nil {
		return nil, err
	}
	return &pa, nil
}

func (r *PersonalAssignmentRepository) FindByID(ctx context.Context, id uint) (*model.PersonalAssignment, error) {
	var pa model.PersonalAssignment
	err := r.DB.WithContext(ctx).First(&pa, id).Error
	return notFoundAsNil(&pa, err)
}

// MarkInProgress NOT_STARTED -> IN_PROGRESS，其他状态不变
func (r *PersonalAssignmentRepository) MarkInProgress(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Model(&model.PersonalAssignment{}).
		Where("id = ? AND status = ?", id, model.StatusNotStarted).
		Update("status", model.StatusInProgress).Error
}

// RecordSolved 原子递增 solved_count 并标记 SUBMITTED（GRADED 不回退）
func (r *PersonalAssignmentRepository) RecordSolved(ctx context.Context, id uint, now time.Time) error {
	db := r.DB.WithContext(ctx)
	if err := db.Model(&model.PersonalAssignment{}).
		Where("id = ?", id).
		Update("solved_count", gorm.Expr("solved_count + ?", 1)).Error; err != nil {
		return err
	}
	return r.markSubmitted(db, id, now)
}

// Complete 显式完成，不论当前追问计划
func (r *PersonalAssignmentRepository) Complete(ctx context.Context, id uint, now time.Time) error {
	return r.markSubmitted(r.DB.WithContext(ctx), id, now)
}

func (r *PersonalAssignmentRepository) markSubmitted(db *gorm.DB, id uint, now time.Time) error {
	return db.Model(&model.PersonalAssignment{}).
		Where("id = ? AND status <> ?", id, model.StatusGraded).
		Updates(map[string]interface{}{
			"status":       model.StatusSubmitted,
			"submitted_at": now,
		}).Error
}

type StatusCount struct {
	Status model.PersonalAssignmentStatus
	Count  int64
}

func (r *PersonalAssignmentRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.DB.WithContext(ctx).Model(&model.PersonalAssignment{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	return rows, err
}
