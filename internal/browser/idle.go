package browser

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// idleWatcher closes done once no request has been in flight for idleAfter.
// Requests are tracked by ID so redirects do not count twice.
type idleWatcher struct {
	idleAfter time.Duration

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	timer    *time.Timer
	once     sync.Once
	done     chan struct{}
}

func newIdleWatcher(idleAfter time.Duration) *idleWatcher {
	return &idleWatcher{
		idleAfter: idleAfter,
		inflight:  make(map[network.RequestID]struct{}),
		done:      make(chan struct{}),
	}
}

func (w *idleWatcher) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		w.mu.Lock()
		w.inflight[e.RequestID] = struct{}{}
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	case *network.EventLoadingFinished:
		w.finish(e.RequestID)
	case *network.EventLoadingFailed:
		w.finish(e.RequestID)
	}
}

func (w *idleWatcher) finish(id network.RequestID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[id]; !ok {
		return
	}
	delete(w.inflight, id)
	if len(w.inflight) == 0 {
		w.armLocked()
	}
}

// arm starts the quiet window. Navigate calls it once the load completes so a
// page with no subresources still goes idle.
func (w *idleWatcher) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.inflight) == 0 {
		w.armLocked()
	}
}

func (w *idleWatcher) armLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.idleAfter, func() {
		w.mu.Lock()
		idle := len(w.inflight) == 0
		w.mu.Unlock()
		if idle {
			w.once.Do(func() { close(w.done) })
		}
	})
}

func (w *idleWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
