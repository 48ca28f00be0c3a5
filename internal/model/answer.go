package model

import "time"

type AnswerOutcome string

const (
	OutcomeUnset     AnswerOutcome = ""
	OutcomeCorrect   AnswerOutcome = "CORRECT"
	OutcomeIncorrect AnswerOutcome = "INCORRECT"
)

func OutcomeOf(isCorrect bool) AnswerOutcome {
	if isCorrect {
		return OutcomeCorrect
	}
	return OutcomeIncorrect
}

// Bucket 正误 × 置信度 的四象限分类
type Bucket string

const (
	BucketA Bucket = "A" // 正确 + 高置信
	BucketB Bucket = "B" // 正确 + 低置信
	BucketC Bucket = "C" // 错误 + 高置信
	BucketD Bucket = "D" // 错误 + 低置信
)

// FollowUpPlan 作答后的路由决策
type FollowUpPlan string

const (
	PlanAsk         FollowUpPlan = "ASK"
	PlanOnlyCorrect FollowUpPlan = "ONLY_CORRECT"
)

// Answer 每个 (question, student) 只有一条记录，重复提交时原地覆盖
// swagger:model Answer
type Answer struct {
	RecordBase
	QuestionID  uint          `gorm:"not null;uniqueIndex:uq_answer_question_student,priority:1" json:"questionId"`
	StudentID   uint          `gorm:"not null;uniqueIndex:uq_answer_question_student,priority:2;index" json:"studentId"`
	StartedAt   time.Time     `json:"startedAt"`
	SubmittedAt time.Time     `json:"submittedAt"`
	Outcome     AnswerOutcome `gorm:"size:10" json:"outcome"`
	Transcript  string        `gorm:"type:text" json:"transcript"`
	Confidence  *float64      `json:"confidence,omitempty"`
	Bucket      Bucket        `gorm:"size:1" json:"bucket"`
	Plan        FollowUpPlan  `gorm:"size:20" json:"plan"`
	AudioURL    string        `gorm:"size:512" json:"audioUrl,omitempty"`

	Question *Question `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Answer) TableName() string {
	return "answers"
}

// Accepted 该题已被判定为最终通过（不再追问且回答正确）
func (a *Answer) Accepted() bool {
	return a.Outcome == OutcomeCorrect && a.Plan == PlanOnlyCorrect
}
