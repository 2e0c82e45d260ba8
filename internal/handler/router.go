package handler

import (
	"net/http"
	"runtime/debug"
	"time"

	"markov-go/internal/controller"
	"markov-go/pkg/mcp"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter wires the corpus API, health and metrics endpoints and, when
// mcpServer is non-nil, the MCP streamable HTTP endpoint
func SetupRouter(corpusController *controller.CorpusController, mcpServer *mcp.GenerationServer, releaseMode bool, logger *zap.Logger) *gin.Engine {
	if releaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(CustomRecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/corpora", corpusController.RegisterCorpus)
		v1.GET("/corpora", corpusController.ListCorpora)
		v1.GET("/corpora/:name", corpusController.DescribeCorpus)
		v1.DELETE("/corpora/:name", corpusController.DeleteCorpus)
		v1.POST("/corpora/:name/pseudorandom", corpusController.Pseudorandom)
		v1.POST("/corpora/:name/markov", corpusController.Markov)
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "healthy",
			})
		})
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if mcpServer != nil {
		router.Any("/mcp", gin.WrapH(mcpServer.Handler()))
	}

	return router
}

func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func CustomRecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("stack", string(debug.Stack())),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
