package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Course  *handler.CourseHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the background goroutines owned by route middlewares.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ─── Student REST API ──────────────────────────────────────────────
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitPerMinute, time.Minute)

	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		limiter.Middleware(),
	)
	{
		studentAPI.GET("/courses", handlers.Course.ListCourses)
		studentAPI.POST("/courses/:course_id/attempt", handlers.Course.StartAttempt)

		sess := studentAPI.Group("/session")
		{
			sess.GET("", handlers.Session.GetSession)
			sess.POST("/questions/:question_id/option", handlers.Session.SelectOption)
			sess.POST("/questions/:question_id/review", handlers.Session.MarkForReview)
			sess.POST("/questions/:question_id/submit", handlers.Session.SubmitAnswer)
			sess.POST("/navigate", handlers.Session.Navigate)
			sess.POST("/select", handlers.Session.SelectQuestion)
			sess.POST("/submit", handlers.Session.SubmitExam)
			sess.POST("/exit", handlers.Session.Exit)
			sess.POST("/warning/dismiss", handlers.Session.DismissWarning)
			sess.POST("/pending/retry", handlers.Session.RetryPending)
			sess.POST("/signals", handlers.Session.Signal)
		}
	}

	// ─── WebSocket ─────────────────────────────────────────────────────
	// Browsers cannot set headers on the upgrade request; the token rides in
	// the query string.
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/session/stream", handlers.WS.SessionStream)
	}

	return router
}
