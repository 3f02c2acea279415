package handlers

import (
	"vsla-ledger/config"
	"vsla-ledger/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine) {
	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": config.AppConfig.AppName,
		})
	})

	// ==========================================
	// API ROUTES (authenticated)
	// ==========================================
	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	{
		// Members
		api.POST("/members", CreateMember)
		api.GET("/members/:id", GetMember)
		api.GET("/members/:id/balance", GetMemberBalance)
		api.GET("/members/:id/statement", GetMemberStatement)
		api.PUT("/users/me/fcm-token", UpdateFCMToken)

		// Groups
		api.POST("/groups", CreateGroup)
		api.GET("/groups/:id", GetGroup)
		api.POST("/groups/:id/members", AddMember)
		api.POST("/groups/:id/projects", CreateProject)
		api.GET("/groups/:id/balance", GetGroupBalance)
		api.GET("/groups/:id/activity", GetGroupActivity)

		// Cycles
		api.GET("/projects/:id", GetProject)
		api.GET("/projects/:id/verify", VerifyProject)
		api.POST("/projects/:id/savings", RecordSaving)
		api.POST("/projects/:id/shares", RecordSharePurchase)
		api.POST("/projects/:id/loans", DisburseLoan)
		api.POST("/projects/:id/repayments", RecordLoanRepayment)
		api.POST("/projects/:id/fines", RecordFine)

		// Entries
		api.DELETE("/entries/:id", DeleteEntry)
		api.POST("/entries/:id/restore", RestoreEntry)

		// Disbursements
		api.POST("/projects/:id/disbursements", CreateDisbursement)
		api.GET("/projects/:id/disbursements", ListDisbursements)
		api.DELETE("/disbursements/:id", DeleteDisbursement)

		// Offline meeting sync
		meetingRoutes := api.Group("/meetings")
		meetingRoutes.POST("", middleware.RateLimit(config.AppConfig.MeetingSyncRPS, config.AppConfig.MeetingSyncBurst), SubmitMeeting)
		meetingRoutes.GET("/:id", GetMeeting)
		meetingRoutes.POST("/:id/reprocess", ReprocessMeeting)
	}
}
