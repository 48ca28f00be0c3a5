package model

import "fmt"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// MaxRecallDepth 追问链的最大深度，base 题为 0
const MaxRecallDepth = 3

// Question 个人作业中的一道题。同一 Number 下 depth 0 为 base 题，1..3 为追问题
// swagger:model Question
type Question struct {
	RecordBase
	PersonalAssignmentID uint       `gorm:"not null;uniqueIndex:uq_question_slot,priority:1" json:"personalAssignmentId"`
	Number               int        `gorm:"not null;uniqueIndex:uq_question_slot,priority:2" json:"number"`
	RecallDepth          int        `gorm:"not null;default:0;uniqueIndex:uq_question_slot,priority:3" json:"recallDepth"`
	Content              string     `gorm:"type:text;not null" json:"content"`
	ModelAnswer          string     `gorm:"type:text" json:"modelAnswer"`
	Explanation          string     `gorm:"type:text" json:"explanation"`
	Difficulty           Difficulty `gorm:"size:10;default:'MEDIUM'" json:"difficulty"`
	BaseQuestionID       *uint      `gorm:"index" json:"baseQuestionId,omitempty"`

	PersonalAssignment *PersonalAssignment `gorm:"foreignKey:PersonalAssignmentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Question) TableName() string {
	return "questions"
}

func (q *Question) IsBase() bool {
	return q.RecallDepth == 0
}

// Label 展示编号："3" 或 "3-2"
func (q *Question) Label() string {
	return QuestionLabel(q.Number, q.RecallDepth)
}

func QuestionLabel(number, depth int) string {
	if depth == 0 {
		return fmt.Sprintf("%d", number)
	}
	return fmt.Sprintf("%d-%d", number, depth)
}
