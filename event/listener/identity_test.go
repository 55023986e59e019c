package listener

import (
	"context"
	"testing"
	"time"

	"messenger-sync/database"
	"messenger-sync/directory"
	"messenger-sync/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentitySeedsDirectory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	users := directory.New(database.OpenTest(t))
	events := make(chan event.EventChannelData)
	done := make(chan struct{})
	go func() {
		Identity(ctx, users, events)
		close(done)
	}()

	events <- event.EventChannelData{Action: "unknown", Data: []byte(`{}`)}
	events <- event.EventChannelData{Action: event.IdentityUpsert, Data: []byte(`not json`)}
	events <- event.EventChannelData{
		Action: event.IdentityUpsert,
		Data:   []byte(`{"id":"u1","email":"Grace@Example.com","firstName":"Grace","lastName":"Hopper"}`),
	}
	close(events)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}

	user, err := users.FindUserByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Grace Hopper", user.Name())
}
