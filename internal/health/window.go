package health

import "time"

// window is a bounded FIFO of events. Once it holds size events the oldest
// slot is overwritten, so a push never copies the backlog.
type window struct {
	buf   []event
	start int
	n     int
	size  int
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{size: size}
}

func (w *window) len() int { return w.n }

func (w *window) at(i int) event { return w.buf[(w.start+i)%len(w.buf)] }

func (w *window) push(e event) {
	if w.n == len(w.buf) {
		if len(w.buf) == w.size {
			w.buf[w.start] = e
			w.start = (w.start + 1) % len(w.buf)
			return
		}
		w.grow(min(max(2*len(w.buf), 16), w.size))
	}
	w.buf[(w.start+w.n)%len(w.buf)] = e
	w.n++
}

// grow doubles the backing array until it reaches size.
func (w *window) grow(capacity int) {
	buf := make([]event, capacity)
	for i := 0; i < w.n; i++ {
		buf[i] = w.at(i)
	}
	w.buf, w.start = buf, 0
}

// expire drops events at or before cutoff from the front. Events arrive in
// time order, so it stops at the first live one.
func (w *window) expire(cutoff time.Time) {
	for w.n > 0 && !w.at(0).timestamp.After(cutoff) {
		w.buf[w.start] = event{}
		w.start = (w.start + 1) % len(w.buf)
		w.n--
	}
}

// each calls fn for every event after cutoff, oldest first.
func (w *window) each(cutoff time.Time, fn func(event)) {
	for i := 0; i < w.n; i++ {
		if e := w.at(i); e.timestamp.After(cutoff) {
			fn(e)
		}
	}
}
