package job

import "sync"

// Notifier fans out "work available" signals to subscribers in the same process.
// Signals coalesce: a subscriber that has not consumed the previous one sees a single wakeup.
type Notifier interface {
	Subscribe() (func(), <-chan struct{})
	Notify()
	StopAll()
}

// LocalNotifier is the in-process Notifier.
type LocalNotifier struct {
	mu      sync.Mutex
	subs    map[chan struct{}]struct{}
	stopped bool
}

// NewNotifier constructs an in-process notifier.
func NewNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers a subscriber. The returned func unsubscribes and closes the channel.
func (n *LocalNotifier) Subscribe() (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	if n.stopped {
		close(ch)
		return func() {}, ch
	}
	n.subs[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[ch]; !ok {
			return
		}
		delete(n.subs, ch)
		drainAndClose(ch)
	}
	return unsub, ch
}

// Notify wakes every subscriber without blocking.
func (n *LocalNotifier) Notify() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// StopAll closes every subscriber channel. Later subscriptions receive a closed channel.
func (n *LocalNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	for ch := range n.subs {
		drainAndClose(ch)
		delete(n.subs, ch)
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*LocalNotifier)(nil)
