// Package presence tracks whether users are online and when they were last
// active.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"messenger-sync/feed"
	"messenger-sync/logger"
	"messenger-sync/metrics"
	"messenger-sync/model"
	"messenger-sync/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const offlineTimeout = 5 * time.Second

// Snapshot is what subscribers see. A user without a presence row is offline
// with no last seen time.
type Snapshot struct {
	IsOnline    bool       `json:"isOnline"`
	LastSeen    *time.Time `json:"lastSeen"`
	ConnectedAt *time.Time `json:"connectedAt"`
}

type Tracker struct {
	db       *gorm.DB
	feed     *feed.Hub
	throttle Throttle
	now      func() time.Time
}

func NewTracker(db *gorm.DB, hub *feed.Hub, throttle Throttle) *Tracker {
	if throttle == nil {
		throttle = NoThrottle{}
	}
	return &Tracker{
		db:       db,
		feed:     hub,
		throttle: throttle,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetOnline marks the user online for connectionID and returns the hook to
// run when that connection goes away. The hook leaves a newer connection's
// presence alone.
func (t *Tracker) SetOnline(ctx context.Context, userID, connectionID string) (onDisconnect func(), err error) {
	now := t.now()
	presence := model.Presence{
		UserID:       userID,
		IsOnline:     true,
		LastSeen:     &now,
		ConnectedAt:  &now,
		ConnectionID: connectionID,
	}

	err = t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen", "connected_at", "connection_id"}),
	}).Create(&presence).Error
	if err != nil {
		return nil, utils.Transient("set online", err)
	}

	metrics.PresenceTransitions.WithLabelValues("online", "connect").Inc()
	t.feed.Publish(ctx, feed.PresenceTopic(userID))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), offlineTimeout)
		defer cancel()
		if err := t.SetOffline(ctx, userID, connectionID); err != nil {
			logger.L().Errorw("presence offline hook failed", "user", userID, "connection", connectionID, "error", err)
		}
	}, nil
}

func (t *Tracker) SetOffline(ctx context.Context, userID, connectionID string) error {
	now := t.now()
	res := t.db.WithContext(ctx).Model(&model.Presence{}).
		Where("user_id = ? AND connection_id = ?", userID, connectionID).
		Updates(map[string]interface{}{
			"is_online":     false,
			"last_seen":     now,
			"connected_at":  nil,
			"connection_id": "",
		})
	if res.Error != nil {
		return utils.Transient("set offline", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.PresenceTransitions.WithLabelValues("offline", "disconnect").Inc()
		t.feed.Publish(ctx, feed.PresenceTopic(userID))
	}
	return nil
}

// Touch refreshes lastSeen, at most once per throttle window. A presence the
// reaper forced offline while its connection was still registered comes back
// online. Failures are logged and swallowed.
func (t *Tracker) Touch(ctx context.Context, userID string) {
	if userID == "" || !t.throttle.Allow(ctx, userID) {
		return
	}

	now := t.now()
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_seen"}),
		}).Create(&model.Presence{UserID: userID, LastSeen: &now}).Error
		if err != nil {
			return err
		}

		res := tx.Model(&model.Presence{}).
			Where("user_id = ? AND is_online = ? AND connection_id <> ?", userID, false, "").
			Updates(map[string]interface{}{"is_online": true, "connected_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			metrics.PresenceTransitions.WithLabelValues("online", "touch").Inc()
		}
		return nil
	})
	if err != nil {
		logger.L().Warnw("presence touch failed", "user", userID, "error", err)
		return
	}
	t.feed.Publish(ctx, feed.PresenceTopic(userID))
}

func (t *Tracker) Get(ctx context.Context, userID string) (Snapshot, error) {
	presences := []model.Presence{}
	if err := t.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&presences).Error; err != nil {
		return Snapshot{}, utils.Transient("get presence", err)
	}
	if len(presences) == 0 {
		return Snapshot{}, nil
	}
	p := presences[0]
	return Snapshot{IsOnline: p.IsOnline, LastSeen: p.LastSeen, ConnectedAt: p.ConnectedAt}, nil
}

// Subscribe delivers the current snapshot and then one per change.
func (t *Tracker) Subscribe(userID string, cb func(Snapshot)) (unsubscribe func()) {
	return t.feed.Subscribe(feed.PresenceTopic(userID), func() {
		snapshot, err := t.Get(context.Background(), userID)
		if err != nil {
			logger.L().Warnw("presence subscription read failed", "user", userID, "error", err)
			return
		}
		cb(snapshot)
	})
}

// SubscribeMany subscribes to every user and hands cb the whole merged map
// whenever any one of them changes.
func (t *Tracker) SubscribeMany(userIDs []string, cb func(map[string]Snapshot)) (unsubscribe func()) {
	var mu sync.Mutex
	merged := make(map[string]Snapshot, len(userIDs))
	unsubscribers := make([]func(), 0, len(userIDs))

	for _, userID := range uniqueIDs(userIDs) {
		userID := userID
		unsubscribers = append(unsubscribers, t.Subscribe(userID, func(s Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			merged[userID] = s
			out := make(map[string]Snapshot, len(merged))
			for id, snapshot := range merged {
				out[id] = snapshot
			}
			cb(out)
		}))
	}

	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

// ReapStale forces offline every online presence that has not been seen for
// olderThan. It covers instances that died without running disconnect hooks.
// The connection id is kept so that a live connection touching again is
// restored.
func (t *Tracker) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := t.now().Add(-olderThan)

	stale := []string{}
	err := t.db.WithContext(ctx).Model(&model.Presence{}).
		Where("is_online = ? AND last_seen < ?", true, cutoff).
		Pluck("user_id", &stale).Error
	if err != nil {
		return 0, utils.Transient("find stale presence", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	res := t.db.WithContext(ctx).Model(&model.Presence{}).
		Where("user_id IN ? AND is_online = ? AND last_seen < ?", stale, true, cutoff).
		Updates(map[string]interface{}{"is_online": false, "connected_at": nil})
	if res.Error != nil {
		return 0, utils.Transient("reap stale presence", res.Error)
	}

	metrics.PresenceTransitions.WithLabelValues("offline", "stale").Add(float64(res.RowsAffected))
	topics := make([]string, 0, len(stale))
	for _, userID := range stale {
		topics = append(topics, feed.PresenceTopic(userID))
	}
	t.feed.Publish(ctx, topics...)
	return int(res.RowsAffected), nil
}

// StartReaper runs ReapStale every interval until ctx is done. It blocks, so
// callers run it on its own goroutine.
func (t *Tracker) StartReaper(ctx context.Context, every, staleAfter time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := t.ReapStale(ctx, staleAfter); err != nil {
				logger.L().Errorw("presence reaper failed", "error", err)
			} else if n > 0 {
				logger.L().Infow("presence reaper forced users offline", "count", n)
			}
		}
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
