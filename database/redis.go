package database

import (
	"context"
	"log"
	"time"
	"vsla-ledger/config"

	"github.com/redis/go-redis/v9"
)

var Redis *redis.Client

func ConnectRedis() {
	opts, err := redis.ParseURL(config.AppConfig.RedisURL)
	if err != nil {
		log.Println("⚠️  Invalid REDIS_URL, running without cache:", err)
		return
	}
	Redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := Redis.Ping(ctx).Result(); err != nil {
		log.Println("⚠️  Redis not available, using in-process cache:", err)
		Redis = nil
		return
	}

	log.Println("✅ Redis connected successfully")
}
