package progress

import "time"

type sample struct {
	at    time.Time
	bytes int64
}

// rateWindow is a fixed-capacity ring of byte samples. The smoothed rate
// only considers samples inside the window, so one slow or fast object
// cannot distort the estimate for long. Single-owner: the tracker guards
// all access.
type rateWindow struct {
	window  time.Duration
	samples []sample
	head    int
	count   int
}

func newRateWindow(window time.Duration, capacity int) *rateWindow {
	return &rateWindow{
		window:  window,
		samples: make([]sample, capacity),
	}
}

func (w *rateWindow) add(at time.Time, bytes int64) {
	if w.count == len(w.samples) {
		w.evictOldest()
	}
	w.samples[(w.head+w.count)%len(w.samples)] = sample{at: at, bytes: bytes}
	w.count++
}

func (w *rateWindow) evictOldest() {
	w.head = (w.head + 1) % len(w.samples)
	w.count--
}

// rate returns smoothed bytes per second over the window, 0 when no
// recent samples exist.
func (w *rateWindow) rate(now time.Time) float64 {
	for w.count > 0 && now.Sub(w.samples[w.head].at) > w.window {
		w.evictOldest()
	}
	if w.count == 0 {
		return 0
	}

	var total int64
	for i := 0; i < w.count; i++ {
		total += w.samples[(w.head+i)%len(w.samples)].bytes
	}

	span := now.Sub(w.samples[w.head].at)
	if span < 100*time.Millisecond {
		span = 100 * time.Millisecond
	}
	return float64(total) / span.Seconds()
}
