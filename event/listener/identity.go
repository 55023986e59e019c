package listener

import (
	"context"
	"encoding/json"

	"messenger-sync/directory"
	"messenger-sync/event"
	"messenger-sync/logger"
	"messenger-sync/model"
)

var (
	IdentityChannel = make(chan event.EventChannelData)
)

// Identity seeds the directory from profiles published by the identity
// provider until events is closed or ctx is done.
func Identity(ctx context.Context, users *directory.Directory, events <-chan event.EventChannelData) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-events:
			if !ok {
				return
			}
			if err := handleIdentity(ctx, users, data); err != nil {
				logger.L().Warnw("identity event rejected", "action", data.Action, "error", err)
			}
		}
	}
}

func handleIdentity(ctx context.Context, users *directory.Directory, data event.EventChannelData) error {
	switch data.Action {
	case event.IdentityUpsert:
		profile := event.IdentityProfile{}
		if err := json.Unmarshal(data.Data, &profile); err != nil {
			return err
		}
		return users.Upsert(ctx, &model.User{
			ID:          profile.ID,
			Email:       profile.Email,
			FirstName:   profile.FirstName,
			LastName:    profile.LastName,
			DisplayName: profile.DisplayName,
		})
	default:
		logger.L().Debugw("ignoring identity event", "action", data.Action)
		return nil
	}
}
