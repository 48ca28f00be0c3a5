package app

import (
	"recall_edu_backend/docs"
	"recall_edu_backend/internal/config"
	"recall_edu_backend/internal/middleware"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/pkg/monitoring"
	"recall_edu_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/login", security.RateLimiter(10, time.Minute, security.ByClientIP), c.auth.Login)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		registerPersonalAssignmentRoutes(authGroup, c)
		registerSubmissionRoutes(authGroup, c)
	}
}

func registerPersonalAssignmentRoutes(rg *gin.RouterGroup, c *controllers) {
	pa := rg.Group("/personal-assignments")
	pa.Use(middleware.RoleMiddleware(model.Student, model.Teacher))
	{
		pa.GET("/:id", c.personalAssignment.GetStatus)
		pa.GET("/:id/next", c.personalAssignment.GetNextQuestion)
		pa.POST("/:id/complete", c.personalAssignment.Complete)
	}
}

func registerSubmissionRoutes(rg *gin.RouterGroup, c *controllers) {
	// 作答按用户限流
	rg.POST("/questions/:id/answers",
		middleware.RoleMiddleware(model.Student),
		security.RateLimiter(30, time.Minute, security.ByUserOrIP),
		c.submission.SubmitAnswer,
	)
}
