package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_SubscribeReceivesNotifications(t *testing.T) {
	n := NewNotifier()
	unsub, ch := n.Subscribe()
	defer unsub()

	n.Notify()
	n.Notify()

	select {
	case _, ok := <-ch:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected notification")
	}

	select {
	case <-ch:
		t.Fatal("notifications should coalesce")
	default:
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier()
	unsub, ch := n.Subscribe()
	n.Notify()
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestNotifier_StopAllClosesChannels(t *testing.T) {
	n := NewNotifier()
	_, ch1 := n.Subscribe()
	_, ch2 := n.Subscribe()

	n.StopAll()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)

	_, ch3 := n.Subscribe()
	_, ok3 := <-ch3
	assert.False(t, ok3)
}

func TestNotifier_NilNotifyIsSafe(t *testing.T) {
	var n *LocalNotifier
	assert.NotPanics(t, n.Notify)
}
