// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gaochaoqwe/wordllm/internal/app"
)

// SetupRouter 配置控制台HTTP路由。
// 返回的事件中心已接入提示广播与会话实时进度，关闭服务时由调用方 Close
func SetupRouter(a *app.App) (*gin.Engine, *EventHub) {
	if a.Config.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	hub := NewEventHub(a.Logger.With(map[string]interface{}{"component": "events"}))
	a.Notifier.Add(hub)
	a.OnSession(func(s *app.Session) {
		s.Editor.OnRemoteProgress(hub.RemoteProgress)
	})

	handler := NewHandler(a, hub)
	limiter := NewRateLimiter()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(AccessLog(a.Logger))
	r.Use(corsMiddleware())

	// WebSocket 事件推送
	r.GET("/ws/events", hub.ServeWS)

	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.GET("/metrics", handler.Metrics)

		// ===============================
		// 会话
		// ===============================
		sessionGroup := api.Group("/session")
		{
			sessionGroup.POST("", handler.Mount)
			sessionGroup.GET("", handler.Snapshot)
			sessionGroup.POST("/defaults", handler.LoadDefaults)
		}

		// ===============================
		// 章节编辑
		// ===============================
		chaptersGroup := api.Group("/chapters")
		{
			chaptersGroup.POST("", handler.AddChapter)
			chaptersGroup.DELETE("/:number", handler.RemoveChapter)
			chaptersGroup.PUT("/:number/requirement", handler.SetRequirement)
			chaptersGroup.POST("/:number/select", handler.SelectChapter)
		}

		// ===============================
		// 大纲
		// ===============================
		outlineGroup := api.Group("/outline")
		{
			outlineGroup.POST("/save", handler.SaveOutline)
			outlineGroup.POST("/start-document", handler.StartDocument)

			generation := outlineGroup.Group("", limiter.GenerationRateLimit())
			generation.POST("/generate", handler.GenerateOutline)
			generation.POST("/expand", handler.ExpandOutline)
			generation.POST("/regenerate", handler.RegenerateOutline)
			generation.POST("/subchapters", handler.ContinueSubchapters)
		}

		// ===============================
		// 正文
		// ===============================
		contentGroup := api.Group("/content")
		{
			contentGroup.GET("/:number", handler.GetContent)
			contentGroup.PUT("/:number", handler.SaveContent)
			contentGroup.POST("/:number/generate", limiter.GenerationRateLimit(), handler.GenerateContent)
		}
		api.POST("/generate-all", handler.GenerateAll)
		api.POST("/chat", limiter.GenerationRateLimit(), handler.Chat)
		api.GET("/progress", handler.SubscribeProgress)

		api.POST("/export", handler.Export)

		// ===============================
		// 后端资源
		// ===============================
		api.GET("/templates", handler.ListTemplates)
		api.GET("/templates/:id", handler.GetTemplate)
		api.GET("/templates/:id/download", handler.DownloadTemplate)
		api.GET("/documents", handler.ListDocuments)
		api.GET("/documents/:id/download", handler.DownloadDocument)
		api.GET("/projects", handler.ListProjects)
		api.GET("/projects/:id", handler.GetProject)
	}

	return r, hub
}
