package global

import (
	"context"
	"os"
	"strconv"
	"strings"

	"tripchat/logger"
	midsec "tripchat/middleware/security"
	"tripchat/service/mgo"
	"tripchat/service/storage"
	"tripchat/tools/ids"
)

type AppConfig struct {
	HTTPAddr string
	NodeID   string
	NodeNum  int64

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NatsServers []string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads the whole service configuration from the environment.
// Optional subsystems (nats, kafka, redis) stay off when their vars are unset.
func Load() *AppConfig {
	nodeNum, _ := strconv.ParseInt(env("NODE_NUM", "1"), 10, 64)
	redisDB, _ := strconv.Atoi(env("REDIS_DB", "0"))
	return &AppConfig{
		HTTPAddr: env("HTTP_ADDR", ":8080"),
		NodeID:   env("NODE_ID", "chat-gw-1"),
		NodeNum:  nodeNum,

		MongoURI:      env("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: env("MONGO_DB", "tripchat"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		NatsServers: envList("NATS_SERVERS"),

		KafkaBrokers: envList("KAFKA_BROKERS"),
		KafkaTopic:   env("KAFKA_TOPIC", "chat.message.archive"),

		JWTSecret: env("JWT_SECRET", "dev-secret-change-me"),
	}
}

func ConfigIds(cfg *AppConfig) {
	ids.SetNodeID(cfg.NodeNum)
}

func ConfigAuth(cfg *AppConfig) {
	midsec.SetSecret([]byte(cfg.JWTSecret))
}

func ConfigRedis(cfg *AppConfig) {
	if cfg.RedisAddr == "" {
		logger.Infof("[Config] redis disabled (REDIS_ADDR unset), presence is off")
		return
	}
	if err := storage.InitRedis(storage.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}); err != nil {
		logger.Warnf("[Config] redis init failed, presence is off: %v", err)
	}
}

func ConfigMgo(ctx context.Context, cfg *AppConfig) {
	mgo.StartAsync(ctx, mgo.Config{
		URI:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		MaxPoolSize: 20,
	})
}
