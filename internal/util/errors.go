package util

import "errors"

// 错误类别，控制器按类别映射 HTTP 状态码
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrUpstream    = errors.New("upstream service failed")
	ErrPersistence = errors.New("persistence failed")
)

var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrStudentNotFound            = errors.New("student not found")
	ErrQuestionNotFound           = errors.New("question not found")
	ErrPersonalAssignmentNotFound = errors.New("personal assignment not found")
	ErrAllQuestionsCompleted      = errors.New("all questions completed")

	ErrEmptyInput        = errors.New("audio or text answer is required")
	ErrEmptyTranscript   = errors.New("transcript is empty")
	ErrUnsupportedAudio  = errors.New("unsupported audio file type")
	ErrInvalidConfidence = errors.New("scorer returned an invalid confidence")
	ErrInvalidGeneration = errors.New("generator returned an incomplete follow-up")
)
