package service

import (
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/util"
)

// Selection 选题结果。Question 与 Pending 至多一个非空
type Selection struct {
	Question *model.Question
	Label    string

	// Pending 题组已全部作答但最后一题要求追问、追问题尚未生成时，指向该组最深一题
	Pending *model.Question
}

// SelectNextQuestion 按 (number, recall_depth) 升序逐组查找下一题，不跳组。
// questions 必须已排序；plans 为已作答题目的路由计划（key 为 question_id）。
// 全部完成时返回 util.ErrAllQuestionsCompleted。
func SelectNextQuestion(questions []model.Question, plans map[uint]model.FollowUpPlan) (*Selection, error) {
	for start := 0; start < len(questions); {
		number := questions[start].Number
		end := start
		for end < len(questions) && questions[end].Number == number {
			end++
		}
		group := questions[start:end]
		start = end

		var candidate, deepest *model.Question
		for i := range group {
			q := &group[i]
			if deepest == nil || q.RecallDepth > deepest.RecallDepth {
				deepest = q
			}
			if _, answered := plans[q.ID]; !answered {
				if candidate == nil || q.RecallDepth < candidate.RecallDepth {
					candidate = q
				}
			}
		}

		if candidate != nil {
			return &Selection{Question: candidate, Label: candidate.Label()}, nil
		}
		if groupSettled(deepest, plans) {
			continue
		}
		return &Selection{Pending: deepest}, nil
	}

	return nil, util.ErrAllQuestionsCompleted
}

// groupSettled 题组达到最大深度，或最深一题的计划为 ONLY_CORRECT
func groupSettled(deepest *model.Question, plans map[uint]model.FollowUpPlan) bool {
	if deepest.RecallDepth >= model.MaxRecallDepth {
		return true
	}
	return plans[deepest.ID] == model.PlanOnlyCorrect
}

const (
	GroupOpen    = "open"
	GroupPending = "pending"
	GroupSettled = "settled"
)

// GroupStates 每组的作答进度，用于个人作业状态视图
func GroupStates(questions []model.Question, plans map[uint]model.FollowUpPlan) []model.GroupProgress {
	var groups []model.GroupProgress
	for start := 0; start < len(questions); {
		number := questions[start].Number
		end := start
		for end < len(questions) && questions[end].Number == number {
			end++
		}
		group := questions[start:end]
		start = end

		progress := model.GroupProgress{Number: number}
		var deepest *model.Question
		for i := range group {
			q := &group[i]
			if deepest == nil || q.RecallDepth > deepest.RecallDepth {
				deepest = q
			}
			if _, answered := plans[q.ID]; answered {
				progress.Answered++
			}
		}
		progress.MaxDepth = deepest.RecallDepth

		switch {
		case progress.Answered < len(group):
			progress.State = GroupOpen
		case groupSettled(deepest, plans):
			progress.State = GroupSettled
		default:
			progress.State = GroupPending
		}
		groups = append(groups, progress)
	}
	return groups
}
