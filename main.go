package main

import (
	"fmt"
	"log"
	"os"
	"vsla-ledger/config"
	"vsla-ledger/database"
	"vsla-ledger/handlers"
	"vsla-ledger/middleware"
	"vsla-ledger/services"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// Load configuration
	config.Load()

	// `vsla-ledger token <user-id>` prints a bearer token for operators
	if len(os.Args) == 3 && os.Args[1] == "token" {
		issueToken(os.Args[2])
		return
	}

	// Connect to database
	database.Connect()

	// Connect to Redis (optional, won't crash if unavailable)
	database.ConnectRedis()

	cache := services.NewBalanceCache(database.Redis, config.AppConfig.BalanceCacheTTL)
	handlers.Init(cache, services.GetNotificationService())

	// Setup router
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())
	handlers.RegisterRoutes(r)

	// Start server
	port := config.AppConfig.Port
	log.Printf("🚀 %s server starting on port %s", config.AppConfig.AppName, port)
	log.Printf("📡 Health: http://%s:%s/health", config.AppConfig.AppURL, port)

	addr := "0.0.0.0:" + port
	if err := r.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func issueToken(raw string) {
	userID, err := uuid.Parse(raw)
	if err != nil {
		log.Fatal("Invalid user ID:", err)
	}
	token, err := utils.GenerateToken(userID, config.AppConfig.JWTSecret)
	if err != nil {
		log.Fatal("Failed to sign token:", err)
	}
	fmt.Println(token)
}
