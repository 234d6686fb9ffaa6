package observer

import "sync"

// EdgeDetector remembers the last status it saw so callers react to a status
// change once, however many notifications report it.
type EdgeDetector struct {
	mu   sync.Mutex
	last string
}

// Observe records status and returns the previous one when it differs.
// The first observation is not an edge.
func (d *EdgeDetector) Observe(status string) (previous string, changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	previous = d.last
	d.last = status
	if previous == "" || previous == status {
		return previous, false
	}
	return previous, true
}

func (d *EdgeDetector) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
