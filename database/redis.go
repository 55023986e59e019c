package database

import (
	"fmt"
	"strconv"

	"messenger-sync/config"
	"messenger-sync/logger"

	"github.com/redis/go-redis/v9"
)

const (
	// RedisTokens holds refresh tokens and presence touch windows.
	RedisTokens = 0
	// RedisRealtime backs the socket.io adapter and the change feed bridge.
	RedisRealtime = 1
)

var Redis = make(map[int]*redis.Client)

func RedisConnect() {
	for _, db := range config.List("REDIS_DB") {
		dbNumber, err := strconv.Atoi(db)
		if err != nil {
			panic(fmt.Sprintf("invalid REDIS_DB entry %q", db))
		}

		Redis[dbNumber] = redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf(
				"%s:%s",
				config.Config("REDIS_HOST"),
				config.Config("REDIS_PORT"),
			),
			Password: config.Config("REDIS_PASSWORD"),
			DB:       dbNumber,
		})
	}

	for _, required := range []int{RedisTokens, RedisRealtime} {
		if Redis[required] == nil {
			panic(fmt.Sprintf("REDIS_DB must include database %d", required))
		}
	}

	logger.L().Infow("connections opened to redis", "databases", len(Redis))
}

func RedisClose() {
	for _, client := range Redis {
		_ = client.Close()
	}
}
