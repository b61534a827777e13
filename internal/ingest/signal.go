package ingest

// Trigger is a coalescing change signal. Any number of Fire calls made while
// a consumer is busy collapse into one pending wake-up.
type Trigger struct {
	ch chan struct{}
}

// NewTrigger creates a Trigger with nothing pending.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Fire marks a change. It never blocks.
func (t *Trigger) Fire() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// C is the channel consumers wait on.
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}
