package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yeremiapane/waitercall/config"
	"github.com/yeremiapane/waitercall/middlewares"
	"github.com/yeremiapane/waitercall/models"
	"github.com/yeremiapane/waitercall/realtime"
	"github.com/yeremiapane/waitercall/router"
	"github.com/yeremiapane/waitercall/services"
	"github.com/yeremiapane/waitercall/store"
	"github.com/yeremiapane/waitercall/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	utils.InitLogger()
	cfg := config.LoadConfig()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := cfg.InitDB()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	utils.InitDB(db)
	autoMigrate(db)

	st := store.NewGormStore(db)

	// Redis turns on cross-instance fan-out and shared rate limiting;
	// without it everything stays in process.
	var transport realtime.Transport = realtime.NewBus()
	var limiter middlewares.WindowLimiter = middlewares.NewMemoryLimiter(cfg.CreateRateLimit, cfg.CreateRateWindow)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		transport = realtime.NewRedisTransport(rdb)
		limiter = middlewares.NewRedisLimiter(rdb, cfg.CreateRateLimit, cfg.CreateRateWindow)
		utils.InfoLogger.Printf("Using redis at %s for realtime transport and rate limiting", cfg.RedisAddr)
	}

	sender := services.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	dispatcher := services.NewDispatcher(st, sender, cfg.DispatchAttempts, cfg.DispatchBackoff)
	sweeper := services.NewSweeper(st, transport)
	callService := services.NewCallService(st, transport, dispatcher, sweeper, cfg.SLAWindow, cfg.ListLimit)

	monitor := services.NewSweepMonitor(sweeper, st, cfg.SweepInterval)
	monitor.Start()
	defer monitor.Stop()

	r := router.SetupRouter(router.Deps{
		DB:          db,
		Store:       st,
		CallService: callService,
		Transport:   transport,
		Limiter:     limiter,
		Cfg:         cfg,
	})

	utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}

func autoMigrate(db *gorm.DB) {
	err := db.AutoMigrate(
		&models.Restaurant{},
		&models.RestaurantSetting{},
		&models.Table{},
		&models.Waiter{},
		&models.Assignment{},
		&models.Call{},
		&models.PushSubscription{},
	)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
}
