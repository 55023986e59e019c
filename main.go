package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"messenger-sync/chatlist"
	"messenger-sync/config"
	"messenger-sync/contact"
	"messenger-sync/controller"
	"messenger-sync/database"
	"messenger-sync/directory"
	"messenger-sync/event"
	"messenger-sync/event/listener"
	"messenger-sync/feed"
	"messenger-sync/logger"
	"messenger-sync/messenger"
	"messenger-sync/presence"
	"messenger-sync/router"
	"messenger-sync/socketio"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const service = "messenger-sync"

func main() {
	if _, err := logger.Init(config.Bool("LOG_DEVELOPMENT")); err != nil {
		fmt.Fprintf(os.Stderr, "%s: logger init failed: %v\n", service, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rest := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		AppName:               service,
	})

	rest.Use(cors.New())

	database.RedisConnect()
	database.Connect()
	database.CasbinConnect()

	hub := feed.NewHub().WithBridge(feed.NewRedisBridge(database.Redis[database.RedisRealtime], service+":feed"))
	if err := hub.Start(ctx); err != nil {
		logger.L().Errorw("feed bridge unavailable, delivering to local subscribers only", "error", err)
	}

	publisher, rabbit := connectPublisher()
	emitter := event.NewEmitter(publisher, openJournal()).Async(config.Int("EVENT_BUFFER"))

	if strings.EqualFold(config.Config("EVENT_MODE"), "OUT") {
		replayed, err := emitter.Replay(ctx, journalPath())
		if err != nil {
			logger.L().Errorw("event replay failed", "replayed", replayed, "error", err)
		} else {
			logger.L().Infow("event journal replayed", "replayed", replayed)
		}
	}

	users := directory.New(database.DB)

	if rabbit != nil {
		// Profiles published by the identity provider
		go listener.Identity(ctx, users, listener.IdentityChannel)

		if err := rabbit.Subscribe([]event.RabbitMQSubscribeListener{
			{
				Queue:   config.Config("RABBITMQ_IDENTITY_QUEUE"),
				Channel: listener.IdentityChannel,
			},
		}); err != nil {
			logger.L().Errorw("identity subscription failed", "error", err)
		}
	}

	tracker := presence.NewTracker(
		database.DB,
		hub,
		presence.NewRedisThrottle(database.Redis[database.RedisTokens], config.Duration("PRESENCE_TOUCH_WINDOW")),
	)
	go tracker.StartReaper(ctx, config.Duration("PRESENCE_REAP_INTERVAL"), config.Duration("PRESENCE_STALE_AFTER"))

	ctl := controller.New(controller.Services{
		DB:         database.DB,
		Tokens:     database.Redis[database.RedisTokens],
		Enforcer:   database.Enforcer,
		Users:      users,
		Contacts:   contact.NewGraph(database.DB, users, hub, emitter),
		Messages:   messenger.NewStore(database.DB, hub, tracker, emitter).WithPageSize(config.Int("MESSAGES_PAGE_SIZE")),
		Chats:      chatlist.New(database.DB, users, hub),
		Presence:   tracker,
		StaleAfter: config.Duration("PRESENCE_STALE_AFTER"),
	})

	socket := socketio.Init(rest, database.Redis[database.RedisRealtime])

	router.Rest(rest, ctl)
	router.Socket(socket, ctl)

	go func() {
		if err := rest.Listen(fmt.Sprintf(":%s", config.Config("SERVER_PORT"))); err != nil {
			logger.L().Errorw("server stopped", "error", err)
		}
	}()
	logger.L().Infow("listening", "port", config.Config("SERVER_PORT"))

	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logger.L().Info("shutting down")
	cancel()
	socket.Close(nil)
	if err := rest.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.L().Warnw("server shutdown failed", "error", err)
	}
	if err := emitter.Close(); err != nil {
		logger.L().Warnw("event publisher close failed", "error", err)
	}
	database.RedisClose()
}

// connectPublisher picks the outbound broker. A RabbitMQ connection is also
// returned so the identity queue can be consumed from it.
func connectPublisher() (event.Publisher, *event.RabbitMQ) {
	failures := uint32(config.Int("EVENT_BREAKER_FAILURES"))
	timeout := config.Duration("EVENT_BREAKER_TIMEOUT")

	switch config.Config("EVENT_BROKER") {
	case "kafka":
		kafka := event.NewKafka(config.List("KAFKA_BROKERS"), config.Config("KAFKA_TOPIC"))
		logger.L().Infow("publishing events to kafka", "topic", config.Config("KAFKA_TOPIC"))
		return event.WithBreaker(kafka, failures, timeout), nil
	case "rabbitmq":
		rabbit, err := event.RabbitMQConnect([]string{
			config.Config("RABBITMQ_EVENTS_QUEUE"),
			config.Config("RABBITMQ_IDENTITY_QUEUE"),
		})
		if err != nil {
			logger.L().Errorw("rabbitmq unavailable, events disabled", "error", err)
			return event.Nop{}, nil
		}
		return event.WithBreaker(rabbit, failures, timeout), rabbit
	default:
		logger.L().Info("event broker disabled")
		return event.Nop{}, nil
	}
}

func journalPath() string {
	return filepath.Join(config.Config("EVENT_JOURNAL_DIR"), "out.log")
}

func openJournal() *event.Journal {
	if strings.EqualFold(config.Config("EVENT_MODE"), "DISABLE") {
		return nil
	}
	journal, err := event.OpenJournal(journalPath(), service)
	if err != nil {
		logger.L().Warnw("event journal unavailable", "error", err)
		return nil
	}
	return journal
}
