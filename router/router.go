package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/yeremiapane/waitercall/config"
	"github.com/yeremiapane/waitercall/controllers"
	"github.com/yeremiapane/waitercall/middlewares"
	"github.com/yeremiapane/waitercall/realtime"
	"github.com/yeremiapane/waitercall/services"
	"github.com/yeremiapane/waitercall/store"
)

type Deps struct {
	DB          *gorm.DB
	Store       store.Store
	CallService *services.CallService
	Transport   realtime.Transport
	Limiter     middlewares.WindowLimiter
	Cfg         *config.Config
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares())
	r.Use(middlewares.LoggerMiddleware())

	callCtrl := controllers.NewCallController(d.CallService)
	realtimeCtrl := controllers.NewRealtimeController(d.Transport, d.CallService, d.Cfg)
	subCtrl := controllers.NewSubscriptionController(d.Store)
	staffCtrl := controllers.NewStaffController(d.DB)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Customers hit this from the QR link, no login involved.
	r.POST("/calls", middlewares.RateLimit(d.Limiter), callCtrl.CreateCall)

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	auth := r.Group("/")
	auth.Use(middlewares.AuthMiddleware())
	{
		auth.GET("/calls", callCtrl.ListCalls)
		auth.POST("/calls/:call_id/acknowledge", callCtrl.AcknowledgeCall)
		auth.POST("/calls/:call_id/start", callCtrl.StartCall)
		auth.POST("/calls/:call_id/resolve", callCtrl.ResolveCall)

		push := auth.Group("/push")
		push.Use(middlewares.NewStrictRateLimiter())
		{
			push.POST("/subscriptions", subCtrl.Register)
			push.DELETE("/subscriptions", subCtrl.Unregister)
		}
	}

	admin := r.Group("/admin")
	admin.Use(middlewares.AuthMiddleware(), middlewares.AdminOnly())
	{
		admin.POST("/calls/:call_id/cancel", callCtrl.CancelCall)

		admin.POST("/tables", staffCtrl.CreateTable)
		admin.GET("/tables", staffCtrl.GetAllTables)
		admin.PATCH("/tables/:table_id", staffCtrl.UpdateTableActive)

		admin.POST("/waiters", staffCtrl.CreateWaiter)
		admin.GET("/waiters", staffCtrl.GetAllWaiters)
		admin.POST("/assignments", staffCtrl.AssignWaiter)
		admin.DELETE("/assignments", staffCtrl.UnassignWaiter)

		admin.GET("/settings", staffCtrl.GetSettings)
		admin.PATCH("/settings", staffCtrl.UpdateSettings)
	}

	// WebSocket endpoint; token travels as a query parameter.
	ws := r.Group("/ws")
	ws.Use(middlewares.WebSocketAuthMiddleware())
	{
		ws.GET("/calls", realtimeCtrl.CallsHandler)
	}

	return r
}
