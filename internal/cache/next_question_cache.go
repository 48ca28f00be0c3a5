package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"recall_edu_backend/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultNextQuestionTTL = 5 * time.Minute
	versionTTL             = 24 * time.Hour
)

// NextQuestionCache 下一题视图缓存。视图按版本号存储，Invalidate 递增版本号，
// 基于旧版本计算出的视图即使晚于失效写入也不会再被读到
type NextQuestionCache interface {
	Version(ctx context.Context, personalAssignmentID uint) (int64, error)
	Get(ctx context.Context, personalAssignmentID uint, version int64) (*model.NextQuestionView, error)
	Set(ctx context.Context, view *model.NextQuestionView, version int64) error
	Invalidate(ctx context.Context, personalAssignmentID uint) error
}

// NewNextQuestionCache rdb 为 nil 时返回空实现
func NewNextQuestionCache(rdb *redis.Client, ttl time.Duration) NextQuestionCache {
	if rdb == nil {
		return noopCache{}
	}
	if ttl <= 0 {
		ttl = DefaultNextQuestionTTL
	}
	return &nextQuestionCache{client: rdb, ttl: ttl}
}

type nextQuestionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func versionKey(personalAssignmentID uint) string {
	return fmt.Sprintf("next_question:pa:%d:version", personalAssignmentID)
}

func nextQuestionKey(personalAssignmentID uint, version int64) string {
	return fmt.Sprintf("next_question:pa:%d:v%d", personalAssignmentID, version)
}

// Version 从未失效过的个人作业版本号为 0
func (c *nextQuestionCache) Version(ctx context.Context, personalAssignmentID uint) (int64, error) {
	version, err := c.client.Get(ctx, versionKey(personalAssignmentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// Get 未命中时返回 (nil, nil)
func (c *nextQuestionCache) Get(ctx context.Context, personalAssignmentID uint, version int64) (*model.NextQuestionView, error) {
	data, err := c.client.Get(ctx, nextQuestionKey(personalAssignmentID, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var view model.NextQuestionView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *nextQuestionCache) Set(ctx context.Context, view *model.NextQuestionView, version int64) error {
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, nextQuestionKey(view.PersonalAssignmentID, version), data, c.ttl).Err()
}

func (c *nextQuestionCache) Invalidate(ctx context.Context, personalAssignmentID uint) error {
	key := versionKey(personalAssignmentID)
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, versionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

type noopCache struct{}

func (noopCache) Version(context.Context, uint) (int64, error) { return 0, nil }
func (noopCache) Get(context.Context, uint, int64) (*model.NextQuestionView, error) {
	return nil, nil
}
func (noopCache) Set(context.Context, *model.NextQuestionView, int64) error { return nil }
func (noopCache) Invalidate(context.Context, uint) error                    { return nil }
