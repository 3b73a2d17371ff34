package chat

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/northlane/livechat-server/internal/redis"
)

type recordingDeliverer struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (r *recordingDeliverer) Deliver(d Delivery) {
	r.mu.Lock()
	r.deliveries = append(r.deliveries, d)
	r.mu.Unlock()
}

func (r *recordingDeliverer) snapshot() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

func TestLocalRelay(t *testing.T) {
	rec := &recordingDeliverer{}
	relay := NewLocalRelay(rec)

	require.NoError(t, relay.Publish(context.Background(), Delivery{Target: TargetAdmins, Type: TypePong}))
	assert.Len(t, rec.snapshot(), 1)
}

// Two relays on one channel stand in for two server instances.
func TestRedisRelay_FansOutAcrossInstances(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	client, err := redisclient.NewClient(url)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := &recordingDeliverer{}, &recordingDeliverer{}
	relayA := NewRedisRelay(client, a)
	relayB := NewRedisRelay(client, b)
	require.NoError(t, relayA.Subscribe(ctx))
	require.NoError(t, relayB.Subscribe(ctx))

	frame, err := Encode(Pong{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, relayA.Publish(ctx, Delivery{
			Target:    TargetSessionAndAdmins,
			SessionID: testUUID(i),
			Type:      TypePong,
			Frame:     frame,
		}))
	}

	require.Eventually(t, func() bool {
		return len(a.snapshot()) == 3 && len(b.snapshot()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	got := b.snapshot()
	for i, d := range got {
		assert.Equal(t, testUUID(i), d.SessionID)
		assert.JSONEq(t, string(frame), string(d.Frame))
	}
}
