package service

import (
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/testutil"
	"recall_edu_backend/internal/util"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(s string) SubmissionInput {
	return SubmissionInput{Text: s}
}

func TestSubmit_BaseCorrectHighConfidenceCreatesFollowUp(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 2)
	h := newHarness(t, db)
	base := f.BaseQuestions[0]

	result, err := h.submission.Submit(context.Background(), f.Student.ID, base.ID, text("plants turn light into sugar"))
	require.NoError(t, err)

	assert.True(t, result.IsCorrect)
	assert.Equal(t, model.OutcomeCorrect, result.Outcome)
	assert.Equal(t, model.BucketA, result.Bucket)
	assert.Equal(t, model.PlanAsk, result.Plan)
	assert.Equal(t, FollowUpCreated, result.FollowUpStatus)
	require.NotNil(t, result.FollowUp)
	assert.Equal(t, "1-1", result.FollowUp.Label)
	assert.Nil(t, result.NextQuestion)

	var followUp model.Question
	require.NoError(t, db.First(&followUp, result.FollowUp.ID).Error)
	assert.Equal(t, 1, followUp.RecallDepth)
	require.NotNil(t, followUp.BaseQuestionID)
	assert.Equal(t, base.ID, *followUp.BaseQuestionID)
	assert.Equal(t, model.DifficultyHard, followUp.Difficulty)

	require.Len(t, h.generator.requests, 1)
	assert.Equal(t, model.BucketA, h.generator.requests[0].Bucket)
	assert.Equal(t, "plants turn light into sugar", h.generator.requests[0].Transcript)
	assert.InDelta(t, 0.9, h.generator.requests[0].Confidence, 1e-9)

	pa := testutil.ReloadPersonalAssignment(t, db, f.PersonalAssignment.ID)
	assert.Equal(t, model.StatusInProgress, pa.Status)
	assert.Equal(t, 0, pa.SolvedCount)
	assert.Nil(t, pa.SubmittedAt)
}

func TestSubmit_FollowUpCorrectHighConfidenceSolves(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 2)
	h := newHarness(t, db)
	ctx := context.Background()

	first, err := h.submission.Submit(ctx, f.Student.ID, f.BaseQuestions[0].ID, text("answer"))
	require.NoError(t, err)
	require.NotNil(t, first.FollowUp)

	result, err := h.submission.Submit(ctx, f.Student.ID, first.FollowUp.ID, text("deeper answer"))
	require.NoError(t, err)

	assert.Equal(t, model.BucketA, result.Bucket)
	assert.Equal(t, model.PlanOnlyCorrect, result.Plan)
	assert.Equal(t, FollowUpNotRequested, result.FollowUpStatus)
	assert.Nil(t, result.FollowUp)
	require.NotNil(t, result.NextQuestion)
	assert.Equal(t, "2", result.NextQuestion.Label)

	pa := testutil.ReloadPersonalAssignment(t, db, f.PersonalAssignment.ID)
	assert.Equal(t, 1, pa.SolvedCount)
	assert.Equal(t, model.StatusSubmitted, pa.Status)
	assert.NotNil(t, pa.SubmittedAt)

	assert.Equal(t, int64(3), h.countQuestions(t, f.PersonalAssignment.ID))
	assert.Equal(t, 1, h.generator.calls)
}

func TestSubmit_DepthThreeAlwaysStops(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	base := f.BaseQuestions[0]
	testutil.AddQuestion(t, db, f.PersonalAssignment.ID, 1, 1, &base.ID)
	testutil.AddQuestion(t, db, f.PersonalAssignment.ID, 1, 2, &base.ID)
	deepest := testutil.AddQuestion(t, db, f.PersonalAssignment.ID, 1, 3, &base.ID)

	h := newHarness(t, db)
	h.evaluator.correct = false
	h.scorer.confidence = 0.1

	result, err := h.submission.Submit(context.Background(), f.Student.ID, deepest.ID, text("not sure"))
	require.NoError(t, err)

	assert.Equal(t, model.BucketD, result.Bucket)
	assert.Equal(t, model.PlanOnlyCorrect, result.Plan)
	assert.Equal(t, FollowUpNotRequested, result.FollowUpStatus)
	assert.Nil(t, result.NextQuestion)
	assert.Equal(t, 0, h.generator.calls)
	assert.Equal(t, int64(4), h.countQuestions(t, f.PersonalAssignment.ID))

	// 答错不计入 solved_count，也不会提交作业
	pa := testutil.ReloadPersonalAssignment(t, db, f.PersonalAssignment.ID)
	assert.Equal(t, 0, pa.SolvedCount)
	assert.Equal(t, model.StatusInProgress, pa.Status)
}

func TestSubmit_EmptyTranscriptIsValidationErrorAndWritesNothing(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)
	h.extractor.transcript = "   "

	result, err := h.submission.Submit(context.Background(), f.Student.ID, f.BaseQuestions[0].ID, SubmissionInput{AudioPath: "/tmp/a.webm"})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, util.ErrValidation)
	assert.ErrorIs(t, err, util.ErrEmptyTranscript)

	assert.Equal(t, 0, h.scorer.calls)
	assert.Equal(t, int64(0), h.countAnswers(t))
	assert.Equal(t, model.StatusNotStarted, testutil.ReloadPersonalAssignment(t, db, f.PersonalAssignment.ID).Status)
}

func TestSubmit_EmptyInputIsRejected(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)

	_, err := h.submission.Submit(context.Background(), f.Student.ID, f.BaseQuestions[0].ID, text("  "))
	assert.ErrorIs(t, err, util.ErrValidation)
	assert.ErrorIs(t, err, util.ErrEmptyInput)
	assert.Equal(t, 0, h.extractor.calls)
}

func TestSubmit_UpstreamFailuresWriteNothing(t *testing.T) {
	cases := []struct {
		name  string
		setup func(h *harness)
		extra error
	}{
		{"extractor down", func(h *harness) { h.extractor.err = errUnavailable }, nil},
		{"scorer down", func(h *harness) { h.scorer.err = errUnavailable }, nil},
		{"scorer +Inf", func(h *harness) { h.scorer.confidence = math.Inf(1) }, util.ErrInvalidConfidence},
		{"scorer NaN", func(h *harness) { h.scorer.confidence = math.NaN() }, util.ErrInvalidConfidence},
		{"evaluator down", func(h *harness) { h.evaluator.err = errUnavailable }, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := testutil.NewTestDB(t)
			f := testutil.SeedPersonalAssignment(t, db, 1)
			h := newHarness(t, db)
			tc.setup(h)

			_, err := h.submission.Submit(context.Background(), f.Student.ID, f.BaseQuestions[0].ID, text("answer"))
			assert.ErrorIs(t, err, util.ErrUpstream)
			if tc.extra != nil {
				assert.ErrorIs(t, err, tc.extra)
			}
			assert.Equal(t, int64(0), h.countAnswers(t))
			assert.Equal(t, int64(1), h.countQuestions(t, f.PersonalAssignment.ID))
			assert.Equal(t, model.StatusNotStarted, testutil.ReloadPersonalAssignment(t, db, f.PersonalAssignment.ID).Status)
		})
	}
}

func TestSubmit_GenerationFailureIsNotFatal(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)
	h.generator.err = errUnavailable

	result, err := h.submission.Submit(context.Background(), f.Student.ID, f.BaseQuestions[0].ID, text("answer"))
	require.NoError(t, err)

	assert.Equal(t, model.PlanAsk, result.Plan)
	assert.Equal(t, FollowUpFailed, result.FollowUpStatus)
	assert.Nil(t, result.FollowUp)
	assert.Equal(t, int64(1), h.countAnswers(t))
	assert.Equal(t, int64(1), h.countQuestions(t, f.PersonalAssignment.ID))
}

func TestSubmit_ReusesExistingFollowUp(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	base := f.BaseQuestions[0]
	existing := testutil.AddQuestion(t, db, f.PersonalAssignment.ID, 1, 1, &base.ID)
	h := newHarness(t, db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := h.submission.Submit(ctx, f.Student.ID, base.ID, text("answer"))
		require.NoError(t, err)
		assert.Equal(t, FollowUpReused, result.FollowUpStatus)
		require.NotNil(t, result.FollowUp)
		assert.Equal(t, existing.ID, result.FollowUp.ID)
	}

	assert.Equal(t, 0, h.generator.calls)
	assert.Equal(t, int64(2), h.countQuestions(t, f.PersonalAssignment.ID))
}

func TestSubmit_ResubmissionKeepsOneAnswerAndLastWriteWins(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	base := f.BaseQuestions[0]
	followUp := testutil.AddQuestion(t, db, f.PersonalAssignment.ID, 1, 1, &base.ID)
	h := newHarness(t, db)
	ctx := context.Background()

	h.evaluator.correct = false
	_, err := h.submission.Submit(ctx, f.Student.ID, followUp.ID, text("wrong"))
	require.NoError(t, err)

	h.evaluator.correct = true
	_, err = h.submission.Submit(ctx, f.Student.ID, followUp.ID, text("right"))
	require.NoError(t, err)
	_, err = h.submission.Submit(ctx, f.Student.ID, followUp.ID, text("right again"))
	require.NoError(t, err)

	var answers []model.Answer
	require.NoError(t, db.Where("question_id = ?", followUp.ID).Find(&answers).Error)
	require.Len(t, answers, 1)
	assert.Equal(t, "right again", answers[0].Transcript)
	assert.Equal(t, model.OutcomeCorrect, answers[0].Outcome)

	// 同一题重复通过只计一次
	pa := testutil.ReloadPersonalAssignment(t, db, f.PersonalAssignment.ID)
	assert.Equal(t, 1, pa.SolvedCount)
	assert.Equal(t, model.StatusSubmitted, pa.Status)
}

func TestSubmit_StartedAtBackComputedFromDuration(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)
	h.extractor.duration = 12.5

	_, err := h.submission.Submit(context.Background(), f.Student.ID, f.BaseQuestions[0].ID, text("answer"))
	require.NoError(t, err)

	var answer model.Answer
	require.NoError(t, db.Where("question_id = ?", f.BaseQuestions[0].ID).First(&answer).Error)
	assert.WithinDuration(t, fixedNow, answer.SubmittedAt, time.Millisecond)
	assert.WithinDuration(t, fixedNow.Add(-12500*time.Millisecond), answer.StartedAt, time.Millisecond)
}

func TestSubmit_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	other := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)
	ctx := context.Background()

	_, err := h.submission.Submit(ctx, 9999, f.BaseQuestions[0].ID, text("answer"))
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.ErrorIs(t, err, util.ErrStudentNotFound)

	_, err = h.submission.Submit(ctx, f.Teacher.ID, f.BaseQuestions[0].ID, text("answer"))
	assert.ErrorIs(t, err, util.ErrStudentNotFound)

	_, err = h.submission.Submit(ctx, f.Student.ID, 9999, text("answer"))
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)

	// 别人的题目对当前学生不可见
	_, err = h.submission.Submit(ctx, f.Student.ID, other.BaseQuestions[0].ID, text("answer"))
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)

	assert.Equal(t, 0, h.extractor.calls)
	assert.Equal(t, int64(0), h.countAnswers(t))
}

func TestSubmit_UsesLiveThreshold(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)
	h.scorer.confidence = 0.7

	h.submission.SetHighThreshold(0.8)
	result, err := h.submission.Submit(context.Background(), f.Student.ID, f.BaseQuestions[0].ID, text("answer"))
	require.NoError(t, err)
	assert.Equal(t, model.BucketB, result.Bucket)

	h.submission.SetHighThreshold(1.5)
	assert.Equal(t, 0.8, h.submission.HighThreshold())
}

func TestSubmit_SolvedCountedOncePerGroup(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)
	ctx := context.Background()

	base, err := h.submission.Submit(ctx, f.Student.ID, f.BaseQuestions[0].ID, text("answer"))
	require.NoError(t, err)
	require.NotNil(t, base.FollowUp)

	h.scorer.confidence = 0.1
	first, err := h.submission.Submit(ctx, f.Student.ID, base.FollowUp.ID, text("hesitant"))
	require.NoError(t, err)
	require.Equal(t, model.BucketB, first.Bucket)
	require.NotNil(t, first.FollowUp)
	assert.Equal(t, "1-2", first.FollowUp.Label)

	h.scorer.confidence = 0.9
	second, err := h.submission.Submit(ctx, f.Student.ID, first.FollowUp.ID, text("confident"))
	require.NoError(t, err)
	require.Equal(t, model.PlanOnlyCorrect, second.Plan)
	assert.Equal(t, 1, testutil.ReloadPersonalAssignment(t, db, f.PersonalAssignment.ID).SolvedCount)

	// 同组较浅的追问改答为 A，题组已通过，不再计数
	again, err := h.submission.Submit(ctx, f.Student.ID, base.FollowUp.ID, text("confident now"))
	require.NoError(t, err)
	require.Equal(t, model.BucketA, again.Bucket)
	require.Equal(t, model.PlanOnlyCorrect, again.Plan)

	pa := testutil.ReloadPersonalAssignment(t, db, f.PersonalAssignment.ID)
	assert.Equal(t, 1, pa.SolvedCount)
	assert.Equal(t, model.StatusSubmitted, pa.Status)
}

func TestSubmit_SolvedCountsEachGroup(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 2)
	h := newHarness(t, db)
	ctx := context.Background()

	for _, base := range f.BaseQuestions {
		result, err := h.submission.Submit(ctx, f.Student.ID, base.ID, text("answer"))
		require.NoError(t, err)
		require.NotNil(t, result.FollowUp)
		_, err = h.submission.Submit(ctx, f.Student.ID, result.FollowUp.ID, text("deeper"))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, testutil.ReloadPersonalAssignment(t, db, f.PersonalAssignment.ID).SolvedCount)
}

func TestSubmit_UnboundedConfidenceClassifiedAsIs(t *testing.T) {
	cases := []struct {
		confidence float64
		correct    bool
		want       model.Bucket
	}{
		{1.07, true, model.BucketA},
		{-0.2, true, model.BucketB},
		{3.5, false, model.BucketC},
		{-1, false, model.BucketD},
	}

	for _, tc := range cases {
		db := testutil.NewTestDB(t)
		f := testutil.SeedPersonalAssignment(t, db, 1)
		h := newHarness(t, db)
		h.scorer.confidence = tc.confidence
		h.evaluator.correct = tc.correct

		result, err := h.submission.Submit(context.Background(), f.Student.ID, f.BaseQuestions[0].ID, text("answer"))
		require.NoError(t, err, "%v", tc.confidence)
		assert.Equal(t, tc.want, result.Bucket, "%v", tc.confidence)
		assert.Equal(t, tc.confidence, result.Confidence)

		var answer model.Answer
		require.NoError(t, db.Where("question_id = ?", f.BaseQuestions[0].ID).First(&answer).Error)
		require.NotNil(t, answer.Confidence)
		assert.Equal(t, tc.confidence, *answer.Confidence)
	}
}

func TestSubmit_EmptyInputStillReportsNotFoundFirst(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)
	ctx := context.Background()

	_, err := h.submission.Submit(ctx, f.Student.ID, 9999, text(""))
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
	assert.NotErrorIs(t, err, util.ErrValidation)

	_, err = h.submission.Submit(ctx, 9999, f.BaseQuestions[0].ID, text(""))
	assert.ErrorIs(t, err, util.ErrStudentNotFound)
	assert.NotErrorIs(t, err, util.ErrValidation)
}

func audioInput(t *testing.T) SubmissionInput {
	t.Helper()
	path := filepath.Join(t.TempDir(), "answer.webm")
	require.NoError(t, os.WriteFile(path, []byte("recording"), 0644))
	return SubmissionInput{AudioPath: path, AudioFilename: "answer.webm", MimeType: "audio/webm"}
}

func archivedFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func TestSubmit_ReplacesSupersededRecording(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)
	root := t.TempDir()
	h.submission.Storage = &StorageService{Provider: &LocalStorageProvider{Root: root}}
	h.extractor.transcript = "spoken answer"
	ctx := context.Background()
	questionID := f.BaseQuestions[0].ID

	loadAudioURL := func() string {
		var answer model.Answer
		require.NoError(t, db.Where("question_id = ?", questionID).First(&answer).Error)
		return answer.AudioURL
	}

	_, err := h.submission.Submit(ctx, f.Student.ID, questionID, audioInput(t))
	require.NoError(t, err)
	firstURL := loadAudioURL()
	require.NotEmpty(t, firstURL)
	require.Len(t, archivedFiles(t, root), 1)

	_, err = h.submission.Submit(ctx, f.Student.ID, questionID, audioInput(t))
	require.NoError(t, err)
	secondURL := loadAudioURL()
	assert.NotEqual(t, firstURL, secondURL)

	files := archivedFiles(t, root)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(filepath.ToSlash(files[0]), strings.TrimPrefix(secondURL, "/uploads/")))

	// 改为文本作答后旧录音不再被引用
	h.extractor.transcript = ""
	_, err = h.submission.Submit(ctx, f.Student.ID, questionID, text("typed"))
	require.NoError(t, err)
	assert.Empty(t, loadAudioURL())
	assert.Empty(t, archivedFiles(t, root))
}

func TestSubmit_PersistFailureRemovesArchivedRecording(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedPersonalAssignment(t, db, 1)
	h := newHarness(t, db)
	root := t.TempDir()
	h.submission.Storage = &StorageService{Provider: &LocalStorageProvider{Root: root}}
	h.extractor.transcript = "spoken answer"

	require.NoError(t, db.Migrator().DropTable(&model.Answer{}))

	_, err := h.submission.Submit(context.Background(), f.Student.ID, f.BaseQuestions[0].ID, audioInput(t))
	assert.ErrorIs(t, err, util.ErrPersistence)
	assert.Empty(t, archivedFiles(t, root))
}
