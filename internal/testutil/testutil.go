package testutil

import (
	"fmt"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/pkg/database"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq int64

func next() int64 {
	return atomic.AddInt64(&seq, 1)
}

// NewTestDB 每个测试独立的内存 sqlite，单连接避免事务内外锁冲突
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:recall_test_%d?mode=memory&cache=shared", next())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, role model.UserRole) *model.User {
	t.Helper()
	n := next()
	user := &model.User{
		Name:  fmt.Sprintf("%s-%d", role, n),
		Email: fmt.Sprintf("%s-%d@example.com", role, n),
		Role:  role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// Fixture 一个学生的个人作业及其 base 题
type Fixture struct {
	Student            *model.User
	Teacher            *model.User
	Assignment         *model.Assignment
	PersonalAssignment *model.PersonalAssignment
	BaseQuestions      []*model.Question
}

// SeedPersonalAssignment 创建个人作业与 baseCount 道 base 题（题号 1..baseCount）
func SeedPersonalAssignment(t *testing.T, db *gorm.DB, baseCount int) *Fixture {
	t.Helper()

	f := &Fixture{
		Student: CreateUser(t, db, model.Student),
		Teacher: CreateUser(t, db, model.Teacher),
	}

	f.Assignment = &model.Assignment{Title: "recall", Subject: "biology", TeacherID: f.Teacher.ID}
	require.NoError(t, db.Create(f.Assignment).Error)

	f.PersonalAssignment = &model.PersonalAssignment{
		StudentID:    f.Student.ID,
		AssignmentID: f.Assignment.ID,
		Status:       model.StatusNotStarted,
		StartedAt:    time.Now(),
	}
	require.NoError(t, db.Create(f.PersonalAssignment).Error)

	for i := 1; i <= baseCount; i++ {
		f.BaseQuestions = append(f.BaseQuestions, AddQuestion(t, db, f.PersonalAssignment.ID, i, 0, nil))
	}
	return f
}

// AddQuestion 直接插入一道题，depth > 0 时 baseID 指向 base 题
func AddQuestion(t *testing.T, db *gorm.DB, personalAssignmentID uint, number, depth int, baseID *uint) *model.Question {
	t.Helper()
	q := &model.Question{
		PersonalAssignmentID: personalAssignmentID,
		Number:               number,
		RecallDepth:          depth,
		Content:              fmt.Sprintf("question %s", model.QuestionLabel(number, depth)),
		ModelAnswer:          fmt.Sprintf("answer %s", model.QuestionLabel(number, depth)),
		Difficulty:           model.DifficultyMedium,
		BaseQuestionID:       baseID,
	}
	require.NoError(t, db.Create(q).Error)
	return q
}

// AddAnswer 直接插入一条作答
func AddAnswer(t *testing.T, db *gorm.DB, questionID, studentID uint, outcome model.AnswerOutcome, plan model.FollowUpPlan) *model.Answer {
	t.Helper()
	now := time.Now()
	a := &model.Answer{
		QuestionID:  questionID,
		StudentID:   studentID,
		StartedAt:   now,
		SubmittedAt: now,
		Outcome:     outcome,
		Transcript:  "transcript",
		Plan:        plan,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func ReloadPersonalAssignment(t *testing.T, db *gorm.DB, id uint) *model.PersonalAssignment {
	t.Helper()
	var pa model.PersonalAssignment
	require.NoError(t, db.First(&pa, id).Error)
	return &pa
}
