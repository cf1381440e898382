package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(Notification{Kind: Stopped, SessionID: "s1"})

	select {
	case n := <-sub.C():
		require.Equal(t, Stopped, n.Kind)
		require.Equal(t, "s1", n.SessionID)
	case <-time.After(time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestPublishFansOutToEverySubscriber(t *testing.T) {
	b := New(4)
	subA := b.Subscribe()
	subB := b.Subscribe()
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	b.Publish(Notification{Kind: Continued})

	for _, sub := range []*Subscription{subA, subB} {
		select {
		case n := <-sub.C():
			require.Equal(t, Continued, n.Kind)
		case <-time.After(time.Second):
			t.Fatal("notification missing for a subscriber")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	sub.Unsubscribe()

	b.Publish(Notification{Kind: Output})

	_, ok := <-sub.C()
	require.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestPublishDropsOnFullBufferWithoutBlocking(t *testing.T) {
	b := New(1)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish(Notification{Kind: Output})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}
