package history

import (
	"context"
	"sync"
	"time"
)

const DefaultAutoPlayInterval = 2 * time.Second

// AutoPlay walks a snapshot of versions oldest-to-newest. Start and Tick are
// pure state transitions; Schedule drives Tick from a ticker goroutine.
type AutoPlay struct {
	interval time.Duration
	onSelect func(Entry)
	onFinish func()

	mu       sync.Mutex
	versions []Entry
	index    int
	playing  bool
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewAutoPlay returns a stopped player. onSelect is called from the ticker
// goroutine for every version Schedule advances to.
func NewAutoPlay(interval time.Duration, onSelect func(Entry)) *AutoPlay {
	if interval <= 0 {
		interval = DefaultAutoPlayInterval
	}
	if onSelect == nil {
		onSelect = func(Entry) {}
	}
	return &AutoPlay{interval: interval, onSelect: onSelect}
}

// OnFinish registers a hook run when a scheduled run reaches the end on its own.
func (a *AutoPlay) OnFinish(fn func()) {
	a.mu.Lock()
	a.onFinish = fn
	a.mu.Unlock()
}

func (a *AutoPlay) Interval() time.Duration {
	return a.interval
}

// Start begins a new run at the oldest version and returns it. Any previous
// run is stopped first. It reports false for an empty history.
func (a *AutoPlay) Start(versions []Entry) (Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()
	if len(versions) == 0 {
		return Entry{}, false
	}

	a.versions = make([]Entry, len(versions))
	copy(a.versions, versions)
	a.index = 0
	a.playing = true
	return a.versions[0].clone(), true
}

// Tick advances to the next version. Advancing past the last one stops the
// run and reports false.
func (a *AutoPlay) Tick() (Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tickLocked()
}

func (a *AutoPlay) tickLocked() (Entry, bool) {
	if !a.playing {
		return Entry{}, false
	}
	next := a.index + 1
	if next >= len(a.versions) {
		a.playing = false
		return Entry{}, false
	}
	a.index = next
	return a.versions[next].clone(), true
}

// Schedule launches the ticker goroutine for the current run. It exits when the
// run ends, Stop is called, or ctx is done.
func (a *AutoPlay) Schedule(ctx context.Context) {
	a.mu.Lock()
	if !a.playing {
		a.mu.Unlock()
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	done := make(chan struct{})
	a.done = done
	gen := a.gen
	a.mu.Unlock()

	go a.run(runCtx, gen, done)
}

// Play starts a run, selects the first version and schedules the rest.
func (a *AutoPlay) Play(ctx context.Context, versions []Entry) bool {
	first, ok := a.Start(versions)
	if !ok {
		return false
	}
	a.onSelect(first)
	a.Schedule(ctx)
	return true
}

func (a *AutoPlay) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		a.mu.Lock()
		if a.gen != gen {
			a.mu.Unlock()
			return
		}
		e, ok := a.tickLocked()
		finish := a.onFinish
		a.mu.Unlock()

		if !ok {
			if finish != nil {
				finish()
			}
			return
		}
		a.onSelect(e)
	}
}

// Stop ends the current run. It does not wait for the ticker goroutine, so it
// is safe to call from onSelect.
func (a *AutoPlay) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *AutoPlay) stopLocked() {
	a.playing = false
	a.gen++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *AutoPlay) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

// IsCurrent reports whether id is the version the running playback is on.
// A tick delivered after its run was stopped or restarted reports false.
func (a *AutoPlay) IsCurrent(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing && a.index < len(a.versions) && a.versions[a.index].ID == id
}

func (a *AutoPlay) Index() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index
}

// Progress returns the 1-based position and the run length; 0, 0 when stopped.
func (a *AutoPlay) Progress() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.playing {
		return 0, 0
	}
	return a.index + 1, len(a.versions)
}

// Done is closed when the most recently scheduled goroutine exits. It is nil
// before the first Schedule.
func (a *AutoPlay) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}
