package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/middlewares"
	"github.com/iemipdd12/reports_backend/models"
	"github.com/iemipdd12/reports_backend/utils"
	"github.com/sirupsen/logrus"
)

type server struct {
	settings *config.Settings
	store    utils.ObjectStore
	tokens   *utils.TokenIssuer
	identity utils.IdentityProvider
	logger   *logrus.Logger
}

func newServer(settings *config.Settings, store utils.ObjectStore, identity utils.IdentityProvider, logger *logrus.Logger) *server {
	return &server{
		settings: settings,
		store:    store,
		tokens:   utils.NewTokenIssuer(settings.JWT.Secret, settings.JWT.Lifetime),
		identity: identity,
		logger:   logger,
	}
}

// RateLimiter is a fixed-window limiter keyed by client IP, backed by Redis.
type RateLimiter struct {
	limit  int64
	window time.Duration
}

func NewRateLimiter(limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := fmt.Sprintf("RateLimit:%s", c.ClientIP())
	count, err := config.IncrementWindowCounter(c.Request.Context(), key, rl.window)
	if err != nil {
		// a Redis outage must not take the API down
		_ = c.Error(err)
		c.Next()
		return
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}

func correlationIdMiddleware(c *gin.Context) {
	cid := c.GetHeader("x-correlation-id")
	if cid == "" {
		cid = uuid.NewString()
	}
	c.Writer.Header().Set("X-Correlation-Id", cid)
	c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
	c.Next()
}

// readinessGate answers 503 until the database connection is installed.
func readinessGate(c *gin.Context) {
	if c.Request.URL.Path == "/health" {
		c.Next()
		return
	}
	if config.GetDB() == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service not ready"})
		return
	}
	c.Next()
}

func (s *server) corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// production requires an explicit allow-list; an empty one denies all
	if s.settings.IsProduction() {
		corsConfig.AllowOrigins = s.settings.CORS.AllowedOrigins
		if corsConfig.AllowOrigins == nil {
			corsConfig.AllowOrigins = []string{}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "X-Correlation-Id")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return corsConfig
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(correlationIdMiddleware)
	r.Use(readinessGate)
	r.Use(cors.New(s.corsConfig()))
	if s.settings.RateLimit.Enabled {
		r.Use(NewRateLimiter(s.settings.RateLimit.MaxRequests, s.settings.RateLimit.Window).RateLimitMiddleware)
	}
	r.Use(customErrorLogger(s.logger))
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		if config.GetDB() == nil {
			status = "starting"
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	})

	api := r.Group("/api/v1")
	api.POST("/auth/login", s.loginHandler())

	authed := api.Group("")
	authed.Use(middlewares.AuthMiddleware(s.tokens, s.identity))
	authed.POST("/auth/logout", s.logoutHandler())
	authed.GET("/auth/me", s.meHandler())

	persons := authed.Group("/persons")
	persons.POST("", s.createPersonHandler())
	persons.GET("", s.listPersonsHandler())
	persons.GET("/:id", s.getPersonHandler())
	persons.PUT("/:id", s.updatePersonHandler())
	persons.DELETE("/:id", s.deletePersonHandler())
	persons.GET("/:id/recurring-meetings", s.personRecurringMeetingsHandler())

	meetings := authed.Group("/recurring-meetings")
	meetings.POST("", s.createRecurringMeetingHandler())
	meetings.GET("", s.listRecurringMeetingsHandler())
	meetings.GET("/:id", s.getRecurringMeetingHandler())
	meetings.PUT("/:id", s.updateRecurringMeetingHandler())
	meetings.DELETE("/:id", s.deleteRecurringMeetingHandler())
	meetings.GET("/:id/reports", s.recurringMeetingReportsHandler())

	reports := authed.Group("/reports")
	reports.POST("", s.createReportHandler())
	reports.GET("", s.listReportsHandler())
	reports.GET("/export", s.exportReportsHandler())
	reports.GET("/:id", s.getReportHandler())
	reports.PUT("/:id", s.updateReportHandler())
	reports.DELETE("/:id", s.deleteReportHandler())

	reports.POST("/:id/attachments", s.uploadAttachmentHandler())
	reports.GET("/:id/attachments", s.listAttachmentsHandler())
	reports.GET("/:id/attachments/:attachmentId/download", s.downloadAttachmentHandler())
	reports.GET("/:id/attachments/:attachmentId/content", s.attachmentContentHandler())
	reports.GET("/:id/attachments/:attachmentId/thumbnail", s.attachmentThumbnailHandler())
	reports.DELETE("/:id/attachments/:attachmentId", s.deleteAttachmentHandler())

	r.NoRoute(customNotFoundHandler)
	return r
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if err := settings.Validate(); err != nil {
		log.Fatal(err)
	}
	logger := config.NewLogger(settings.LogLevel)
	config.SetLogger(logger)
	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	store, err := utils.NewGCSStore(sigCtx, settings.Storage)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "storage"}).Fatal("create object store: " + err.Error())
	}
	defer store.Close()

	s := newServer(settings, store, utils.NewOAuthIdentityProvider(settings.Identity), logger)

	// Listen first; the readiness gate answers 503 until the database is connected.
	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	db, err := config.ConnectDatabaseWithRetry(settings.Database)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal("connect database: " + err.Error())
	}
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	config.ConnectRedisWithRetry(sigCtx, settings.Redis)

	// AutoMigrate is for fresh local databases; existing ones go through recurring-meetings-migrate.
	if settings.Database.AutoMigrate {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal("auto migrate: " + err.Error())
		}
	}

	logger.WithFields(logrus.Fields{"port": settings.Port}).Info("server started")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
