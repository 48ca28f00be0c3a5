package model

// QuestionView 返回给学生的题目，不含参考答案与解析
type QuestionView struct {
	ID          uint       `json:"id"`
	Number      int        `json:"number"`
	RecallDepth int        `json:"recallDepth"`
	Label       string     `json:"label"`
	Content     string     `json:"content"`
	Difficulty  Difficulty `json:"difficulty"`
}

func NewQuestionView(q *Question) *QuestionView {
	if q == nil {
		return nil
	}
	return &QuestionView{
		ID:          q.ID,
		Number:      q.Number,
		RecallDepth: q.RecallDepth,
		Label:       q.Label(),
		Content:     q.Content,
		Difficulty:  q.Difficulty,
	}
}

// NextQuestionView 下一题；Completed 为 true 时 Question 为空
type NextQuestionView struct {
	PersonalAssignmentID uint          `json:"personalAssignmentId"`
	Completed            bool          `json:"completed"`
	Question             *QuestionView `json:"question,omitempty"`
}

// GroupProgress 单个题组的作答进度
type GroupProgress struct {
	Number   int    `json:"number"`
	MaxDepth int    `json:"maxDepth"`
	Answered int    `json:"answered"`
	State    string `json:"state"`
}

// PersonalAssignmentView 个人作业状态
type PersonalAssignmentView struct {
	ID           uint                     `json:"id"`
	AssignmentID uint                     `json:"assignmentId"`
	StudentID    uint                     `json:"studentId"`
	Status       PersonalAssignmentStatus `json:"status"`
	SolvedCount  int                      `json:"solvedCount"`
	StartedAt    string                   `json:"startedAt"`
	SubmittedAt  string                   `json:"submittedAt,omitempty"`
	Groups       []GroupProgress          `json:"groups"`
}
