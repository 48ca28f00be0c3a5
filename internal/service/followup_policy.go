package service

import "recall_edu_backend/internal/model"

// IsHighConfidence 置信度达到阈值（含等于）即为高置信
func IsHighConfidence(confidence, highThreshold float64) bool {
	return confidence >= highThreshold
}

// Classify 按正误与置信度划分四象限
func Classify(isCorrect bool, confidence, highThreshold float64) model.Bucket {
	high := IsHighConfidence(confidence, highThreshold)
	switch {
	case isCorrect && high:
		return model.BucketA
	case isCorrect:
		return model.BucketB
	case high:
		return model.BucketC
	default:
		return model.BucketD
	}
}

// DecidePlan base 题总是追问；追问链中仅 A 类停止；到达最大深度后停止
func DecidePlan(bucket model.Bucket, depth int) model.FollowUpPlan {
	if depth >= model.MaxRecallDepth {
		return model.PlanOnlyCorrect
	}
	if depth == 0 {
		return model.PlanAsk
	}
	if bucket == model.BucketA {
		return model.PlanOnlyCorrect
	}
	return model.PlanAsk
}
