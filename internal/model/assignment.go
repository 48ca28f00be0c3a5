package model

import "time"

// swagger:model Assignment
type Assignment struct {
	BaseModel
	Title     string     `gorm:"size:255;not null" json:"title"`
	Subject   string     `gorm:"size:100" json:"subject"`
	TeacherID uint       `gorm:"index" json:"teacherId"`
	DueAt     *time.Time `json:"dueAt,omitempty"`
}

func (Assignment) TableName() string {
	return "assignments"
}

type PersonalAssignmentStatus string

const (
	StatusNotStarted PersonalAssignmentStatus = "NOT_STARTED"
	StatusInProgress PersonalAssignmentStatus = "IN_PROGRESS"
	StatusSubmitted  PersonalAssignmentStatus = "SUBMITTED"
	StatusGraded     PersonalAssignmentStatus = "GRADED"
)

// PersonalAssignment 学生个人的作业实例，(student, assignment) 唯一
// swagger:model PersonalAssignment
type PersonalAssignment struct {
	RecordBase
	StudentID    uint                     `gorm:"not null;uniqueIndex:uq_personal_assignment,priority:1" json:"studentId"`
	AssignmentID uint                     `gorm:"not null;uniqueIndex:uq_personal_assignment,priority:2" json:"assignmentId"`
	Status       PersonalAssignmentStatus `gorm:"size:20;not null;default:'NOT_STARTED'" json:"status"`
	SolvedCount  int                      `gorm:"not null;default:0" json:"solvedCount"`
	StartedAt    time.Time                `json:"startedAt"`
	SubmittedAt  *time.Time               `json:"submittedAt,omitempty"`

	Student    *User       `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"-"`
	Assignment *Assignment `gorm:"foreignKey:AssignmentID" json:"-"`
}

func (PersonalAssignment) TableName() string {
	return "personal_assignments"
}
