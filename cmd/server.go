package main

import (
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/handlers"
	"github.com/Mateo9804/gastoclaro/internal/logger"
	"github.com/Mateo9804/gastoclaro/internal/metrics"
	"github.com/Mateo9804/gastoclaro/internal/middleware"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

type serverDeps struct {
	version     string
	logger      *zap.Logger
	metrics     *metrics.Metrics
	validator   echo.Validator
	authService services.AuthService

	auth          *handlers.AuthHandlers
	receipts      *handlers.ReceiptHandlers
	comments      *handlers.CommentHandlers
	exports       *handlers.ExportHandlers
	subscriptions *handlers.SubscriptionHandlers
	team          *handlers.TeamHandlers
	health        *handlers.HealthHandlers
}

func newServer(d serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = d.validator
	e.HTTPErrorHandler = common.HTTPErrorHandler

	// Global middleware
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Pre(echoMiddleware.RemoveTrailingSlash())
	e.Use(echoMiddleware.BodyLimit("100M"))
	e.Use(middleware.VersionHeader(d.version))
	e.Use(d.metrics.Middleware())
	e.Use(logger.Middleware(d.logger))

	// Health and metrics endpoints (no auth required)
	e.GET("/health", d.health.LivenessCheck)
	e.GET("/health/ready", d.health.ReadinessCheck)
	e.GET("/metrics", echo.WrapHandler(d.metrics.Handler()))

	// Public routes
	e.POST("/login", d.auth.Login)
	e.POST("/pricing-request", d.auth.PricingRequest)

	protected := e.Group("")
	protected.Use(middleware.JWTMiddleware(d.authService))

	protected.POST("/logout", d.auth.Logout)
	protected.GET("/user", d.auth.Me)
	protected.POST("/change-password", d.auth.ChangePassword)

	// Subscription
	protected.GET("/subscription", d.subscriptions.GetSubscription)
	manageSubscription := middleware.RequireCapability(services.CapManageSubscription)
	protected.POST("/subscription/cancel", d.subscriptions.CancelSubscription, manageSubscription)
	protected.POST("/subscription/change-plan", d.subscriptions.ChangePlan, manageSubscription)
	protected.POST("/subscription/renew", d.subscriptions.RenewSubscription, manageSubscription)

	// Receipts
	protected.GET("/receipts", d.receipts.ListReceipts)
	protected.POST("/receipts/upload", d.receipts.UploadReceipts, middleware.RequireCapability(services.CapUploadReceipts))
	protected.GET("/receipts/export", d.exports.ExportReceipts, middleware.RequireCapability(services.CapExportReceipts))
	protected.GET("/receipts/activity", d.receipts.ListActivity, middleware.RequireCapability(services.CapViewActivity))
	protected.GET("/receipts/:id", d.receipts.GetReceipt)
	protected.PUT("/receipts/:id", d.receipts.UpdateReceipt, middleware.RequireCapability(services.CapEditReceipts))
	protected.DELETE("/receipts/:id", d.receipts.DeleteReceipt, middleware.RequireCapability(services.CapDeleteReceipts))
	protected.POST("/receipts/:id/approve", d.receipts.ApproveReceipt, middleware.RequireCapability(services.CapApproveReceipts))
	protected.GET("/receipts/:id/history", d.receipts.ReceiptHistory)

	// Comments
	protected.POST("/receipts/:id/comments", d.comments.AddComment, middleware.RequireCapability(services.CapComment))
	protected.GET("/receipts/:id/comments", d.comments.ListComments)
	protected.DELETE("/comments/:id", d.comments.DeleteComment)

	// Team
	team := protected.Group("/team", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	team.GET("", d.team.ListTeam)
	team.POST("", d.team.CreateTeamMember)
	team.PUT("/:id", d.team.UpdateTeamMember)
	team.DELETE("/:id", d.team.DeleteTeamMember)

	return e
}
