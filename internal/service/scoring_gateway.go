package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"recall_edu_backend/internal/config"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/util"
	"recall_edu_backend/pkg/logger"
	"recall_edu_backend/pkg/monitoring"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SubmissionInput 学生提交的作答：录音临时文件或文本，二选一
type SubmissionInput struct {
	AudioPath     string
	AudioFilename string
	MimeType      string
	Text          string
}

func (in SubmissionInput) HasAudio() bool {
	return in.AudioPath != ""
}

func (in SubmissionInput) Empty() bool {
	return !in.HasAudio() && strings.TrimSpace(in.Text) == ""
}

// AudioFeatures 特征提取结果
type AudioFeatures struct {
	Transcript      string             `json:"transcript"`
	DurationSeconds float64            `json:"duration_seconds"`
	Signals         map[string]float64 `json:"features,omitempty"`
}

type ScoreResult struct {
	Confidence float64 `json:"confidence"`
}

type FeatureExtractor interface {
	Extract(ctx context.Context, in SubmissionInput) (*AudioFeatures, error)
}

type Scorer interface {
	Score(ctx context.Context, features *AudioFeatures) (*ScoreResult, error)
}

type Evaluator interface {
	IsCorrect(ctx context.Context, question *model.Question, transcript string) (bool, error)
}

// 外部调用的超时可在配置热更新时调整
type upstreamTimeout struct {
	mu      sync.RWMutex
	timeout time.Duration
}

func (t *upstreamTimeout) Get() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.timeout
}

func (t *upstreamTimeout) Set(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.timeout = d
	t.mu.Unlock()
}

func newUpstreamClient(retryCount int) *resty.Client {
	return resty.New().
		SetRetryCount(retryCount).
		SetRetryWaitTime(300 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() >= 500
		})
}

// HTTPFeatureExtractor 调用语音特征提取服务（转写 + 声学特征）
type HTTPFeatureExtractor struct {
	URL     string
	TempDir string
	client  *resty.Client
	timeout upstreamTimeout
}

func NewHTTPFeatureExtractor(cfg *config.Config) *HTTPFeatureExtractor {
	e := &HTTPFeatureExtractor{
		URL:     cfg.Scoring.ExtractorURL,
		TempDir: cfg.Storage.TempPath,
		client:  newUpstreamClient(cfg.Scoring.RetryCount),
	}
	e.timeout.Set(cfg.Scoring.ExtractTimeout)
	return e
}

func (e *HTTPFeatureExtractor) SetTimeout(d time.Duration) {
	e.timeout.Set(d)
}

// Extract 纯文本作答不调用远端服务，转写即文本本身
func (e *HTTPFeatureExtractor) Extract(ctx context.Context, in SubmissionInput) (*AudioFeatures, error) {
	if !in.HasAudio() {
		return &AudioFeatures{Transcript: strings.TrimSpace(in.Text)}, nil
	}

	start := time.Now()
	defer monitoring.ObserveUpstream("extract", start)

	uploadPath := in.AudioPath
	normalized := filepath.Join(e.TempDir, model.GenerateUUID()+".wav")
	if err := util.NormalizeAudio(in.AudioPath, normalized); err != nil {
		logger.Log.Warn("Audio normalization failed, sending original file", zap.Error(err))
	} else {
		uploadPath = normalized
		defer os.Remove(normalized)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout.Get())
	defer cancel()

	var features AudioFeatures
	resp, err := e.client.R().
		SetContext(ctx).
		SetFile("audio", uploadPath).
		SetResult(&features).
		Post(e.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: feature extraction: %v", util.ErrUpstream, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: feature extraction returned status %d", util.ErrUpstream, resp.StatusCode())
	}

	features.Transcript = strings.TrimSpace(features.Transcript)
	if features.DurationSeconds <= 0 {
		if info, err := util.GetAudioInfo(in.AudioPath); err == nil {
			features.DurationSeconds = info.Duration
		}
	}
	return &features, nil
}

// HTTPScorer 调用置信度评分服务
type HTTPScorer struct {
	URL     string
	client  *resty.Client
	timeout upstreamTimeout
}

func NewHTTPScorer(cfg *config.ScoringConfig) *HTTPScorer {
	s := &HTTPScorer{
		URL:    cfg.ScorerURL,
		client: newUpstreamClient(cfg.RetryCount),
	}
	s.timeout.Set(cfg.ScoreTimeout)
	return s
}

func (s *HTTPScorer) SetTimeout(d time.Duration) {
	s.timeout.Set(d)
}

func (s *HTTPScorer) Score(ctx context.Context, features *AudioFeatures) (*ScoreResult, error) {
	start := time.Now()
	defer monitoring.ObserveUpstream("score", start)

	ctx, cancel := context.WithTimeout(ctx, s.timeout.Get())
	defer cancel()

	var result ScoreResult
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(features).
		SetResult(&result).
		Post(s.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: scoring: %v", util.ErrUpstream, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: scoring returned status %d", util.ErrUpstream, resp.StatusCode())
	}
	if err := ValidateConfidence(result.Confidence); err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateConfidence 置信度为回归模型输出，不限定区间，只拒绝 NaN 与 ±Inf
func ValidateConfidence(confidence float64) error {
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return fmt.Errorf("%w: %w (%v)", util.ErrUpstream, util.ErrInvalidConfidence, confidence)
	}
	return nil
}

// AIEvaluator 由大模型对照参考答案判定正误
type AIEvaluator struct {
	AI      *AIService
	timeout upstreamTimeout
}

func NewAIEvaluator(ai *AIService, timeout time.Duration) *AIEvaluator {
	e := &AIEvaluator{AI: ai}
	e.timeout.Set(defaultEvaluateTimeout)
	e.timeout.Set(timeout)
	return e
}

const defaultEvaluateTimeout = 20 * time.Second

func (e *AIEvaluator) SetTimeout(d time.Duration) {
	e.timeout.Set(d)
}

const evaluatorSystemPrompt = "你是一名严格但公正的阅卷老师。对照题目和参考答案判断学生的口头作答是否正确。" +
	"只关注概念是否正确，忽略口语化表达和语音转写错误。" +
	`只输出 JSON：{"correct": true|false}`

func (e *AIEvaluator) IsCorrect(ctx context.Context, question *model.Question, transcript string) (bool, error) {
	start := time.Now()
	defer monitoring.ObserveUpstream("evaluate", start)

	ctx, cancel := context.WithTimeout(ctx, e.timeout.Get())
	defer cancel()

	prompt := fmt.Sprintf("题目：%s\n参考答案：%s\n学生作答：%s", question.Content, question.ModelAnswer, transcript)

	var verdict struct {
		Correct *bool `json:"correct"`
	}
	if err := e.AI.ChatJSON(ctx, evaluatorSystemPrompt, prompt, 0, &verdict); err != nil {
		return false, fmt.Errorf("%w: evaluation: %v", util.ErrUpstream, err)
	}
	if verdict.Correct == nil {
		return false, fmt.Errorf("%w: evaluation returned no verdict", util.ErrUpstream)
	}
	return *verdict.Correct, nil
}
