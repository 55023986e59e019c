package socketio

import (
	"context"

	"messenger-sync/config"
	"messenger-sync/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/zishang520/engine.io/v2/log"
	"github.com/zishang520/socket.io-go-redis/adapter"
	r_type "github.com/zishang520/socket.io-go-redis/types"
	"github.com/zishang520/socket.io/v2/socket"
)

// Init mounts a socket.io server on app. With a redis client, rooms are
// shared across instances through the redis adapter.
func Init(app *fiber.App, realtime *redis.Client) *socket.Server {
	log.DEBUG = config.Bool("SOCKET_DEBUG")

	options := socket.DefaultServerOptions()
	options.SetServeClient(false)
	options.SetAllowEIO3(true)
	options.SetPingInterval(config.Duration("SOCKET_PING_INTERVAL"))
	options.SetPingTimeout(config.Duration("SOCKET_PING_TIMEOUT"))
	options.SetMaxHttpBufferSize(1000000)
	options.SetConnectTimeout(config.Duration("SOCKET_PING_TIMEOUT"))
	if realtime != nil {
		options.SetAdapter(&adapter.RedisAdapterBuilder{
			Redis: r_type.NewRedisClient(context.Background(), realtime),
			Opts:  &adapter.RedisAdapterOptions{},
		})
	}

	server := socket.NewServer(nil, options)

	// Sockets with a valid, fully authenticated access token carry its
	// metadata. Everyone else is turned away on connection.
	server.Use(func(client *socket.Socket, next func(*socket.ExtendedError)) {
		token, auth := client.Conn().Request().Query().Get("token")

		if auth {
			claims, err := utils.CheckAndExtractTokenMetadata(token, "JWT_ACCESS_KEY")

			if err == nil && !claims.Otp {
				client.Join(socket.Room(claims.Id))
				client.SetData(claims)
			}
		}

		next(nil)
	})

	handler := adaptor.HTTPHandler(server.ServeHandler(options))
	app.Get("/socket.io/", handler)
	app.Post("/socket.io/", handler)

	return server
}

// Actor returns the user id the socket authenticated as.
func Actor(client *socket.Socket) string {
	claims, ok := client.Data().(*utils.TokenMetadata)
	if !ok || claims == nil {
		return ""
	}
	return claims.Id
}
