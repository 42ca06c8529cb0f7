// file: internal/transport/http/router/router.go
package router

import (
	"net/http"
	"time"

	"ModWarden/internal/core/domain"
	"ModWarden/internal/core/port"
	"ModWarden/internal/mwmiddleware"
	"ModWarden/internal/mwobserve"
	"ModWarden/internal/rulestore"
	"ModWarden/internal/service/enrich"
	"ModWarden/internal/transport/http/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	Analyzer port.Analyzer
	Holder   *rulestore.Holder
	Store    *rulestore.Store
	Repo     port.CandidateRuleRepository // 可为 nil：纯主列表模式
	Enricher *enrich.Service              // 可为 nil：不生成说明
	Auth     *middleware.Authenticator
	Limiter  *mwmiddleware.RateLimiter
}

// New 创建并配置一个全新的、基于 Gin 的 HTTP 路由器 (V1 版本)
func New(deps Dependencies) http.Handler {
	router := gin.Default()

	// --- 配置全局中间件 ---
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(metricsMiddleware())
	router.Use(middleware.ErrorHandlingMiddleware())

	router.GET("/healthz", healthHandler(deps.Holder))
	router.GET("/metrics", gin.WrapH(mwobserve.Handler()))

	v1 := router.Group("/api/v1")
	{
		// --- 分析平面 (Analysis Plane) ---
		v1.POST("/analyze", analyzeHandler(deps.Analyzer, deps.Enricher))

		// --- 元数据/发现平面 (Metadata/Discovery Plane) ---
		v1.GET("/games", gamesHandler(deps.Holder))
		v1.GET("/rulesets/:gameID", rulesetHandler(deps.Holder))
		v1.GET("/catalog/:gameID", catalogHandler(deps.Holder))

		// --- 控制平面 (Control Plane) ---
		adminGroup := v1.Group("/admin")
		adminGroup.Use(deps.Auth.RequireAdmin())
		{
			adminGroup.POST("/rulesets/:gameID/rebuild", rebuildHandler(deps.Store))
			adminGroup.GET("/candidates", listCandidatesHandler(deps.Repo))
			adminGroup.POST("/candidates", submitCandidateHandler(deps.Repo))
		}
	}

	// 速率限制包在最外层：全局与按IP两层
	if deps.Limiter != nil {
		return deps.Limiter.Middleware(router)
	}
	return router
}

// metricsMiddleware 统计请求总数与失败数
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		mwobserve.TotalReq.Inc()
		c.Next()
		if c.Writer.Status() >= http.StatusInternalServerError {
			mwobserve.FailReq.Inc()
		}
	}
}

// =============================================================================
//  分析平面处理器
// =============================================================================

// analyzeHandler 处理完整的兼容性分析请求
func analyzeHandler(analyzer port.Analyzer, enricher *enrich.Service) gin.HandlerFunc {
	type RequestBody struct {
		GameID         string `json:"game_id" binding:"required"`
		GameVersion    string `json:"game_version"`
		RulesetVersion string `json:"ruleset_version"`
		RawList        string `json:"raw_list" binding:"required"`
		Explain        bool   `json:"explain"`
	}

	return func(c *gin.Context) {
		var reqBody RequestBody
		if err := c.ShouldBindJSON(&reqBody); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体: " + err.Error()})
			return
		}

		result, err := analyzer.Analyze(c.Request.Context(), port.AnalyzeRequest{
			GameID:         reqBody.GameID,
			GameVersion:    reqBody.GameVersion,
			RulesetVersion: reqBody.RulesetVersion,
			RawList:        reqBody.RawList,
		})
		if err != nil {
			_ = c.Error(err)
			return
		}

		payload := gin.H{"data": result}
		if reqBody.Explain {
			// 说明生成是尽力而为：失败时字段为空串
			payload["explanation"] = enricher.Explain(c.Request.Context(), result)
		}
		c.JSON(http.StatusOK, payload)
	}
}

// =============================================================================
//  元数据平面处理器
// =============================================================================

// healthHandler 报告进程存活与已发布快照数
func healthHandler(holder *rulestore.Holder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "games": len(holder.Games())})
	}
}

// gamesHandler 返回所有已发布规则集的游戏
func gamesHandler(holder *rulestore.Holder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": holder.Games()})
	}
}

// rulesetHandler 返回某游戏当前快照的元数据（不含规则全文）
func rulesetHandler(holder *rulestore.Holder) gin.HandlerFunc {
	return func(c *gin.Context) {
		rs, err := holder.Snapshot(c.Param("gameID"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"game_id":      rs.GameID,
			"version_tag":  rs.VersionTag,
			"rule_count":   len(rs.Rules),
			"catalog_size": len(rs.Catalog),
			"built_at":     rs.BuiltAt,
		}})
	}
}

// catalogHandler 返回某游戏的已知插件目录
func catalogHandler(holder *rulestore.Holder) gin.HandlerFunc {
	return func(c *gin.Context) {
		rs, err := holder.Snapshot(c.Param("gameID"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rs.Catalog, "version_tag": rs.VersionTag})
	}
}

// =============================================================================
//  控制平面处理器
// =============================================================================

// rebuildHandler 触发某游戏规则集的离线重建并发布
func rebuildHandler(store *rulestore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := store.RebuildGame(c.Request.Context(), c.Param("gameID"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		mwobserve.RulesetRebuilds.Inc()
		c.JSON(http.StatusOK, gin.H{"status": "success", "version_tag": version})
	}
}

// listCandidatesHandler 返回某游戏已评分的候选规则
func listCandidatesHandler(repo port.CandidateRuleRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if repo == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "未配置候选规则仓库"})
			return
		}
		gameID := c.Query("game_id")
		if gameID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 'game_id' 参数"})
			return
		}
		candidates, err := repo.ListScored(c.Request.Context(), gameID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": candidates})
	}
}

// submitCandidateHandler 接收一条社区候选规则，进入可靠性评估队列
func submitCandidateHandler(repo port.CandidateRuleRepository) gin.HandlerFunc {
	type RequestBody struct {
		GameID         string `json:"game_id" binding:"required"`
		Kind           string `json:"kind" binding:"required,oneof=requires incompatible_with load_after load_before patch_available"`
		SubjectPattern string `json:"subject_pattern" binding:"required"`
		ObjectPattern  string `json:"object_pattern" binding:"required"`
		VersionRange   string `json:"version_range"`
		SourceID       string `json:"source_id" binding:"required"`
		AuthorID       string `json:"author_id" binding:"required"`
	}

	return func(c *gin.Context) {
		if repo == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "未配置候选规则仓库"})
			return
		}
		var reqBody RequestBody
		if err := c.ShouldBindJSON(&reqBody); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体: " + err.Error()})
			return
		}

		now := time.Now().UTC()
		candidate := domain.CandidateRule{
			Rule: domain.Rule{
				ID:             uuid.NewString(),
				Kind:           domain.RuleKind(reqBody.Kind),
				SubjectPattern: reqBody.SubjectPattern,
				ObjectPattern:  reqBody.ObjectPattern,
				GameID:         reqBody.GameID,
				VersionRange:   reqBody.VersionRange,
				Provenance:     "community:" + reqBody.SourceID,
				CreatedAt:      now,
			},
			SourceID:    reqBody.SourceID,
			AuthorID:    reqBody.AuthorID,
			SubmittedAt: now,
		}
		if err := repo.InsertCandidate(c.Request.Context(), candidate); err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "id": candidate.ID})
	}
}
