package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var v = load()

func load() *viper.Viper {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("SQLITE_PATH", "messenger.db")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", "0,1")
	v.SetDefault("JWT_ACCESS_EXPIRE", "15")
	v.SetDefault("JWT_REFRESH_EXPIRE", "10080")
	v.SetDefault("OTP_ISSUER", "messenger-sync")
	v.SetDefault("EVENT_BROKER", "rabbitmq")
	v.SetDefault("RABBITMQ_PORT", "5672")
	v.SetDefault("RABBITMQ_EVENTS_QUEUE", "messenger")
	v.SetDefault("RABBITMQ_IDENTITY_QUEUE", "identity")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "messenger-events")
	v.SetDefault("EVENT_JOURNAL_DIR", "log")
	v.SetDefault("EVENT_MODE", "")
	v.SetDefault("EVENT_BREAKER_FAILURES", 5)
	v.SetDefault("EVENT_BREAKER_TIMEOUT", "30s")
	v.SetDefault("EVENT_BUFFER", 1024)
	v.SetDefault("PRESENCE_TOUCH_WINDOW", "30s")
	v.SetDefault("PRESENCE_STALE_AFTER", "5m")
	v.SetDefault("PRESENCE_REAP_INTERVAL", "1m")
	v.SetDefault("MESSAGES_PAGE_SIZE", 50)
	v.SetDefault("SOCKET_PING_INTERVAL", "25s")
	v.SetDefault("SOCKET_PING_TIMEOUT", "20s")
	v.SetDefault("SOCKET_DEBUG", false)
	v.SetDefault("SOCKET_RATE_LIMIT", 20)
	v.SetDefault("SOCKET_RATE_BURST", 40)
	v.SetDefault("LOG_DEVELOPMENT", false)

	return v
}

// Config func to get env value
func Config(key string) string {
	return v.GetString(key)
}

func Int(key string) int {
	return v.GetInt(key)
}

func Bool(key string) bool {
	return v.GetBool(key)
}

func Duration(key string) time.Duration {
	return v.GetDuration(key)
}

// List splits a comma separated value, dropping empty items.
func List(key string) []string {
	out := []string{}
	for _, item := range strings.Split(v.GetString(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
