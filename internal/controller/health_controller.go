package controller

import (
	"context"
	"net/http"
	"recall_edu_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
	// FFmpeg 查询 ffmpeg 版本，录音转码依赖它
	FFmpeg func(ctx context.Context) (string, error)
}

func NewHealthController(db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{DB: db, Redis: rdb, FFmpeg: util.FFmpegVersion}
}

// @Summary 健康检查
// @Description 检查数据库、缓存与 ffmpeg 状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	if err := sqlDB.PingContext(ctx.Request.Context()); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	cacheStatus := "disabled"
	if c.Redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		cacheStatus = "up"
		// 缓存不可用时降级为直接查库，不影响整体健康状态
		if err := c.Redis.Ping(pingCtx).Err(); err != nil {
			cacheStatus = "down"
		}
	}

	// ffmpeg 缺失时文本作答仍可用，整体状态降级为 degraded
	status := "ok"
	ffmpegStatus := gin.H{"status": "up"}
	ffmpegCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()
	if version, err := c.FFmpeg(ffmpegCtx); err != nil {
		status = "degraded"
		ffmpegStatus = gin.H{"status": "down", "error": err.Error()}
	} else {
		ffmpegStatus["version"] = version
	}

	util.Success(ctx, gin.H{
		"status": status,
		"components": gin.H{
			"database": "up",
			"cache":    cacheStatus,
			"ffmpeg":   ffmpegStatus,
		},
	})
}
