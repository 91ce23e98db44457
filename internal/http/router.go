package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"machikado-auth/internal/metrics"
	"machikado-auth/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authH *AuthHandler,
	profileH *ProfileHandler,
	sessions *service.SessionService,
	registry *prometheus.Registry,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if registry != nil {
		r.GET("/metrics", metrics.Handler(registry))
	}

	// Los endpoints de autenticación llevan rate limit por IP.
	authLimiter := NewRateLimiter(rate.Limit(1), 10)

	auth := r.Group("/auth")
	auth.Use(authLimiter.Middleware())
	auth.POST("/otp/request", authH.RequestOTP)
	auth.POST("/otp/verify", authH.VerifyOTP)
	auth.GET("/line/login", authH.LineLogin)
	auth.GET("/line/callback", authH.LineCallback)
	auth.POST("/refresh", authH.RefreshToken)
	auth.POST("/logout", authH.Logout)

	profile := r.Group("/profile")
	profile.Use(JWTAuthMiddleware(sessions))
	profile.GET("/me", profileH.Me)
	profile.POST("/create", profileH.CreateProfile)
	profile.POST("/use-external-data", profileH.UseExternalData)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
