package router

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"messenger-sync/config"
	"messenger-sync/controller"
	"messenger-sync/logger"
	"messenger-sync/messenger"
	"messenger-sync/model"
	"messenger-sync/presence"
	"messenger-sync/socketio"
	"messenger-sync/utils"

	"github.com/zishang520/socket.io/v2/socket"
	"golang.org/x/time/rate"
)

const socketOpTimeout = 10 * time.Second

type InitConnection struct {
	User     SocketUser          `json:"user"`
	Chats    []model.ChatSummary `json:"chats"`
	Contacts []model.Contact     `json:"contacts"`
}

type SocketUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type MessagesSubscribeInput struct {
	ChatID string `json:"chatId"`
	Limit  int    `json:"limit"`
}

type MessagesOlderInput struct {
	ChatID   string    `json:"chatId"`
	Before   time.Time `json:"before"`
	BeforeID string    `json:"beforeId"`
	Limit    int       `json:"limit"`
}

type SendMessageInput struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
	Type   string `json:"type"`
}

type ChatMessages struct {
	ChatID   string              `json:"chatId"`
	Messages []model.MessageView `json:"messages"`
}

type PresenceStatus struct {
	IsOnline    bool       `json:"isOnline"`
	LastSeen    *time.Time `json:"lastSeen"`
	ConnectedAt *time.Time `json:"connectedAt"`
	Status      string     `json:"status"`
}

type SocketError struct {
	Event   string     `json:"event"`
	Kind    utils.Kind `json:"kind"`
	Message string     `json:"message"`
}

// session is the per-socket state: the authenticated user and every live
// subscription, keyed so that re-subscribing replaces the old one.
type session struct {
	client  *socket.Socket
	userID  string
	limiter *rate.Limiter

	emitMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]func()
	closed bool
	done   chan struct{}
}

func (s *session) emit(event string, payload interface{}) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if err := s.client.Emit(event, payload); err != nil {
		logger.L().Debugw("socket emit failed", "event", event, "user", s.userID, "error", err)
	}
}

func (s *session) fail(event string, err error) {
	kind := utils.KindOf(err)
	message := err.Error()
	if kind == utils.KindTransient {
		logger.L().Errorw("socket event failed", "event", event, "user", s.userID, "error", err)
		message = "Internal server error"
	}
	s.emit("error", SocketError{Event: event, Kind: kind, Message: message})
}

func (s *session) replace(key string, subscribe func() func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if unsubscribe, ok := s.subs[key]; ok {
		unsubscribe()
	}
	s.subs[key] = subscribe()
}

func (s *session) cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unsubscribe, ok := s.subs[key]; ok {
		unsubscribe()
		delete(s.subs, key)
	}
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	for key, unsubscribe := range s.subs {
		unsubscribe()
		delete(s.subs, key)
	}
}

// heartbeat touches the user's presence every interval while the socket is
// connected, which keeps the reaper away from live connections.
func (s *session) heartbeat(toucher messenger.Toucher, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), socketOpTimeout)
			toucher.Touch(ctx, s.userID)
			cancel()
		}
	}
}

// on registers a rate limited handler. Handlers get a context bounded by
// socketOpTimeout.
func (s *session) on(event string, handler func(ctx context.Context, args []interface{}) error) {
	s.client.On(event, func(args ...interface{}) {
		if !s.limiter.Allow() {
			s.emit("error", SocketError{Event: event, Kind: utils.KindValidation, Message: "Too many requests"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), socketOpTimeout)
		defer cancel()
		if err := handler(ctx, args); err != nil {
			s.fail(event, err)
		}
	})
}

func Socket(server *socket.Server, ctl *controller.Controller) {
	server.On("connection", func(clients ...interface{}) {
		client := clients[0].(*socket.Socket)

		userID := socketio.Actor(client)
		if userID == "" {
			client.Emit("error", SocketError{Event: "connection", Kind: utils.KindUnauthorized, Message: "Unauthorized"})
			client.Disconnect(true)
			return
		}

		s := &session{
			client:  client,
			userID:  userID,
			limiter: rate.NewLimiter(rate.Limit(config.Int("SOCKET_RATE_LIMIT")), config.Int("SOCKET_RATE_BURST")),
			subs:    make(map[string]func()),
			done:    make(chan struct{}),
		}

		ctx, cancel := context.WithTimeout(context.Background(), socketOpTimeout)
		onDisconnect, err := ctl.Presence.SetOnline(ctx, userID, string(client.Id()))
		cancel()
		if err != nil {
			logger.L().Errorw("presence online failed", "user", userID, "error", err)
			onDisconnect = func() {}
		}

		client.On("disconnect", func(...interface{}) {
			s.close()
			onDisconnect()
		})

		go s.heartbeat(ctl.Presence, config.Duration("PRESENCE_TOUCH_WINDOW"))

		s.on("init", func(ctx context.Context, _ []interface{}) error {
			user, err := ctl.Users.Get(ctx, userID)
			if err != nil {
				return err
			}
			chats, err := ctl.Chats.List(ctx, userID)
			if err != nil {
				return err
			}
			contacts, err := ctl.Contacts.List(ctx, userID)
			if err != nil {
				return err
			}
			s.emit("init", InitConnection{
				User:     SocketUser{ID: user.ID, Email: user.Email, DisplayName: user.Name()},
				Chats:    chats,
				Contacts: contacts,
			})
			return nil
		})

		s.on("presence_touch", func(ctx context.Context, _ []interface{}) error {
			ctl.Presence.Touch(ctx, userID)
			return nil
		})

		s.on("presence_subscribe", func(_ context.Context, args []interface{}) error {
			ids := []string{}
			if err := decode(args, &ids); err != nil {
				return err
			}
			s.replace("presence", func() func() {
				return ctl.Presence.SubscribeMany(ids, func(snapshots map[string]presence.Snapshot) {
					now := time.Now()
					out := make(map[string]PresenceStatus, len(snapshots))
					for id, snapshot := range snapshots {
						out[id] = PresenceStatus{
							IsOnline:    snapshot.IsOnline,
							LastSeen:    snapshot.LastSeen,
							ConnectedAt: snapshot.ConnectedAt,
							Status:      presence.StatusText(snapshot, id == userID, now),
						}
					}
					s.emit("presence", out)
				})
			})
			return nil
		})

		s.on("presence_unsubscribe", func(context.Context, []interface{}) error {
			s.cancel("presence")
			return nil
		})

		s.on("chat_list_subscribe", func(context.Context, []interface{}) error {
			s.replace("chat_list", func() func() {
				return ctl.Chats.Subscribe(userID, func(chats []model.ChatSummary) {
					s.emit("chat_list", chats)
				})
			})
			return nil
		})

		s.on("chat_list_unsubscribe", func(context.Context, []interface{}) error {
			s.cancel("chat_list")
			return nil
		})

		s.on("contacts_subscribe", func(context.Context, []interface{}) error {
			s.replace("contacts", func() func() {
				return ctl.Contacts.Subscribe(userID, func(contacts []model.Contact) {
					s.emit("contacts", contacts)
				})
			})
			return nil
		})

		s.on("contacts_unsubscribe", func(context.Context, []interface{}) error {
			s.cancel("contacts")
			return nil
		})

		s.on("messages_subscribe", func(ctx context.Context, args []interface{}) error {
			input := MessagesSubscribeInput{}
			if err := decode(args, &input); err != nil {
				return err
			}
			if err := requireParticipant(ctx, ctl, input.ChatID, userID); err != nil {
				return err
			}
			s.replace("messages:"+input.ChatID, func() func() {
				return ctl.Messages.Subscribe(input.ChatID, input.Limit, func(messages []model.MessageView) {
					s.emit("messages", ChatMessages{ChatID: input.ChatID, Messages: messages})
				})
			})
			return nil
		})

		s.on("messages_unsubscribe", func(_ context.Context, args []interface{}) error {
			chatID := ""
			if err := decode(args, &chatID); err != nil {
				return err
			}
			s.cancel("messages:" + chatID)
			return nil
		})

		s.on("messages_older", func(ctx context.Context, args []interface{}) error {
			input := MessagesOlderInput{}
			if err := decode(args, &input); err != nil {
				return err
			}
			if err := requireParticipant(ctx, ctl, input.ChatID, userID); err != nil {
				return err
			}
			messages, err := ctl.Messages.FetchOlder(ctx, input.ChatID, messenger.Cursor{
				Timestamp: input.Before,
				MessageID: input.BeforeID,
			}, input.Limit)
			if err != nil {
				return err
			}
			s.emit("messages_older", ChatMessages{ChatID: input.ChatID, Messages: messages})
			return nil
		})

		s.on("send_message", func(ctx context.Context, args []interface{}) error {
			input := SendMessageInput{}
			if err := decode(args, &input); err != nil {
				return err
			}
			sender, err := ctl.Users.Get(ctx, userID)
			if err != nil {
				return err
			}
			sent, err := ctl.Messages.Send(ctx, input.ChatID, userID, sender.Name(), input.Text, input.Type)
			if err != nil {
				return err
			}
			s.emit("send_message", sent)
			return nil
		})

		s.on("mark_read", func(ctx context.Context, args []interface{}) error {
			chatID := ""
			if err := decode(args, &chatID); err != nil {
				return err
			}
			if _, err := ctl.Messages.MarkRead(ctx, chatID, userID); err != nil {
				logger.L().Warnw("mark read failed", "chat", chatID, "user", userID, "error", err)
			}
			return nil
		})
	})
}

func requireParticipant(ctx context.Context, ctl *controller.Controller, chatID, userID string) error {
	ok, err := ctl.Messages.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return utils.Unauthorized("not a participant of this chat")
	}
	return nil
}

// decode converts the first event argument into target. Socket payloads
// arrive as generic JSON values.
func decode(args []interface{}, target interface{}) error {
	if len(args) == 0 {
		return utils.Validation("missing payload")
	}
	raw, err := json.Marshal(args[0])
	if err != nil {
		return utils.Validation("malformed payload")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return utils.Validation("malformed payload: " + strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}
