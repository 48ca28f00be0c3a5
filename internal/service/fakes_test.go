package service

import (
	"context"
	"errors"
	"fmt"
	"recall_edu_backend/internal/cache"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/repository"
	"testing"
	"time"

	"gorm.io/gorm"
)

type fakeExtractor struct {
	transcript string
	duration   float64
	err        error
	calls      int
}

func (f *fakeExtractor) Extract(ctx context.Context, in SubmissionInput) (*AudioFeatures, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	transcript := f.transcript
	if transcript == "" {
		transcript = in.Text
	}
	return &AudioFeatures{Transcript: transcript, DurationSeconds: f.duration}, nil
}

type fakeScorer struct {
	confidence float64
	err        error
	calls      int
}

func (f *fakeScorer) Score(ctx context.Context, features *AudioFeatures) (*ScoreResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ScoreResult{Confidence: f.confidence}, nil
}

type fakeEvaluator struct {
	correct bool
	err     error
}

func (f *fakeEvaluator) IsCorrect(ctx context.Context, question *model.Question, transcript string) (bool, error) {
	return f.correct, f.err
}

type fakeGenerator struct {
	err      error
	calls    int
	requests []GenerationRequest
}

func (f *fakeGenerator) GenerateFollowUp(ctx context.Context, req GenerationRequest) (*GeneratedFollowUp, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &GeneratedFollowUp{
		Content:     "follow-up of " + req.Question.Label(),
		ModelAnswer: "model answer",
		Explanation: "explanation",
		Difficulty:  model.DifficultyHard,
	}, nil
}

var errUnavailable = errors.New("connection refused")

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	db         *gorm.DB
	extractor  *fakeExtractor
	scorer     *fakeScorer
	evaluator  *fakeEvaluator
	generator  *fakeGenerator
	submission *SubmissionService
	assignment *PersonalAssignmentService
}

func newHarness(t *testing.T, db *gorm.DB) *harness {
	t.Helper()

	h := &harness{
		db:        db,
		extractor: &fakeExtractor{},
		scorer:    &fakeScorer{confidence: 0.9},
		evaluator: &fakeEvaluator{correct: true},
		generator: &fakeGenerator{},
	}

	questions := repository.NewQuestionRepository(db)
	answers := repository.NewAnswerRepository(db)
	assignments := repository.NewPersonalAssignmentRepository(db)
	nextCache := cache.NewNextQuestionCache(nil, 0)
	resolver := NewFollowUpResolver(questions, answers, h.generator, time.Second)

	h.submission = NewSubmissionService(
		db,
		NewRosterService(repository.NewUserRepository(db)),
		questions,
		answers,
		assignments,
		h.extractor,
		h.scorer,
		h.evaluator,
		resolver,
		nil,
		nextCache,
		0.5,
	)
	h.submission.Now = func() time.Time { return fixedNow }

	h.assignment = NewPersonalAssignmentService(db, assignments, questions, answers, resolver, nextCache)
	return h
}

func (h *harness) countAnswers(t *testing.T) int64 {
	t.Helper()
	var n int64
	h.db.Model(&model.Answer{}).Count(&n)
	return n
}

func (h *harness) countQuestions(t *testing.T, personalAssignmentID uint) int64 {
	t.Helper()
	var n int64
	h.db.Model(&model.Question{}).Where("personal_assignment_id = ?", personalAssignmentID).Count(&n)
	return n
}

// memoryCache 进程内的版本化缓存，beforeSet 用于在写缓存前插入并发操作
type memoryCache struct {
	versions  map[uint]int64
	views     map[string]*model.NextQuestionView
	hits      int
	beforeSet func()
}

func newMemoryCache() *memoryCache {
	return &memoryCache{versions: map[uint]int64{}, views: map[string]*model.NextQuestionView{}}
}

func memoryKey(personalAssignmentID uint, version int64) string {
	return fmt.Sprintf("%d:%d", personalAssignmentID, version)
}

func (c *memoryCache) Version(ctx context.Context, personalAssignmentID uint) (int64, error) {
	return c.versions[personalAssignmentID], nil
}

func (c *memoryCache) Get(ctx context.Context, personalAssignmentID uint, version int64) (*model.NextQuestionView, error) {
	view, ok := c.views[memoryKey(personalAssignmentID, version)]
	if ok {
		c.hits++
	}
	return view, nil
}

func (c *memoryCache) Set(ctx context.Context, view *model.NextQuestionView, version int64) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	c.views[memoryKey(view.PersonalAssignmentID, version)] = view
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, personalAssignmentID uint) error {
	c.versions[personalAssignmentID]++
	return nil
}

func (h *harness) useCache(c cache.NextQuestionCache) {
	h.submission.Cache = c
	h.assignment.Cache = c
}
